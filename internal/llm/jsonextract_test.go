package llm

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

func TestExtractJSON(t *testing.T) {
	t.Run("object embedded in prose", func(t *testing.T) {
		obj, located, err := ExtractJSON(`Here is the JSON: {"invoice_number":"INV-1","total":"100"}`)
		require.NoError(t, err)
		assert.Equal(t, `{"invoice_number":"INV-1","total":"100"}`, located)
		assert.Equal(t, "INV-1", obj["invoice_number"])
		assert.Equal(t, "100", obj["total"])
	})

	t.Run("fenced block", func(t *testing.T) {
		obj, _, err := ExtractJSON("```json\n{\"total\": 12.50, \"line_items\": []}\n```")
		require.NoError(t, err)
		assert.Equal(t, json.Number("12.50"), obj["total"])
	})

	t.Run("no braces", func(t *testing.T) {
		_, _, err := ExtractJSON("I could not read this invoice.")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrNoJSONFound)
		assert.Equal(t, common.CodeNoJSONFound, common.ErrorCode(err))
	})

	t.Run("closing brace before opening brace", func(t *testing.T) {
		_, _, err := ExtractJSON("} nothing {")
		assert.ErrorIs(t, err, common.ErrNoJSONFound)
	})

	t.Run("syntax error", func(t *testing.T) {
		_, located, err := ExtractJSON(`{"total": 10,}`)
		assert.ErrorIs(t, err, common.ErrMalformedJSON)
		assert.Equal(t, `{"total": 10,}`, located)
	})

	t.Run("greedy span over two objects is malformed", func(t *testing.T) {
		_, _, err := ExtractJSON(`{"a":1} and also {"b":2}`)
		assert.ErrorIs(t, err, common.ErrMalformedJSON)
	})

	t.Run("nested braces inside strings", func(t *testing.T) {
		obj, _, err := ExtractJSON(`{"supplier_name":"ACME {EU}","total":1}`)
		require.NoError(t, err)
		assert.Equal(t, "ACME {EU}", obj["supplier_name"])
	})
}
