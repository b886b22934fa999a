package llm

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt(t *testing.T) {
	t.Run("text document", func(t *testing.T) {
		p := BuildPrompt(PromptInput{MIMEType: "application/pdf", Text: "INVOICE #42\nTotal 10.00"})
		assert.Contains(t, p, "Return ONLY a single JSON object")
		assert.Contains(t, p, "set it to null")
		assert.Contains(t, p, "YYYY-MM-DD")
		assert.Contains(t, p, "Document MIME type: application/pdf\n")
		assert.True(t, strings.HasSuffix(p, "Document text:\nINVOICE #42\nTotal 10.00\n"))
		assert.NotContains(t, p, "base64")
	})

	t.Run("embedded base64", func(t *testing.T) {
		p := BuildPrompt(PromptInput{MIMEType: "image/png", Base64: "aGVsbG8="})
		assert.True(t, strings.HasSuffix(p, "Document content (base64):\naGVsbG8=\n"))
	})

	t.Run("attachment", func(t *testing.T) {
		p := BuildPrompt(PromptInput{MIMEType: "image/jpeg", Base64: "ignored", Attached: true})
		assert.Contains(t, p, "The document is attached to this message.")
		assert.NotContains(t, p, "ignored")
	})

	t.Run("schema is embedded verbatim", func(t *testing.T) {
		p := BuildPrompt(PromptInput{MIMEType: "application/pdf"})
		start := strings.Index(p, "JSON Schema:\n") + len("JSON Schema:\n")
		end := strings.Index(p, "\n\nDocument MIME type:")
		require.True(t, start > 0 && end > start)

		var schema map[string]any
		require.NoError(t, json.Unmarshal([]byte(p[start:end]), &schema))
		props := schema["properties"].(map[string]any)
		for _, k := range []string{"invoice_number", "invoice_date", "supplier_name", "currency", "subtotal", "total", "confidence", "line_items"} {
			assert.Contains(t, props, k)
		}
	})
}

func TestValidateInvoiceJSON(t *testing.T) {
	valid := `{"invoice_number":"A-1","invoice_date":"2024-05-01","supplier_name":null,"currency":"EUR",
		"subtotal":10,"total":12,"confidence":0.9,
		"line_items":[{"description":"Item","quantity":1,"unit_price":10,"line_total":10}]}`

	tests := []struct {
		name    string
		data    string
		wantErr bool
	}{
		{name: "valid", data: valid},
		{name: "all nulls", data: `{"invoice_number":null,"invoice_date":null,"supplier_name":null,"currency":null,"subtotal":null,"total":null,"confidence":null,"line_items":[]}`},
		{name: "lowercase currency", data: strings.Replace(valid, `"EUR"`, `"eur"`, 1), wantErr: true},
		{name: "string total", data: strings.Replace(valid, `"total":12`, `"total":"12"`, 1), wantErr: true},
		{name: "confidence above one", data: strings.Replace(valid, `"confidence":0.9`, `"confidence":1.5`, 1), wantErr: true},
		{name: "missing fields", data: `{"total":1}`, wantErr: true},
		{name: "not json", data: `{`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateInvoiceJSON([]byte(tt.data))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestAuditPayload(t *testing.T) {
	t.Run("pure json text is stored as is", func(t *testing.T) {
		got := AuditPayload("  {\"total\": 1}\n", map[string]any{"total": json.Number("1")})
		assert.Equal(t, `{"total": 1}`, string(got))
	})

	t.Run("prose is wrapped", func(t *testing.T) {
		raw := `Sure! {"total":"100"}`
		got := AuditPayload(raw, map[string]any{"total": json.Number("100"), "line_items": []any{}})

		var v map[string]any
		require.NoError(t, json.Unmarshal(got, &v))
		assert.Equal(t, raw, v["raw_text"])
		assert.Equal(t, map[string]any{"total": 100.0, "line_items": []any{}}, v["parsed"])
	})
}

func TestFailurePayload(t *testing.T) {
	got := FailurePayload("NO_JSON_FOUND", "model output contains no JSON object", "sorry, no invoice here")

	var v map[string]string
	require.NoError(t, json.Unmarshal(got, &v))
	assert.Equal(t, map[string]string{
		"error":    "NO_JSON_FOUND",
		"message":  "model output contains no JSON object",
		"raw_text": "sorry, no invoice here",
	}, v)
}

func TestAttachment(t *testing.T) {
	a := Attachment{Name: "scan.png", MIMEType: "image/png", Data: []byte("png-bytes")}
	assert.Equal(t, "cG5nLWJ5dGVz", a.Base64())
	assert.Equal(t, "data:image/png;base64,cG5nLWJ5dGVz", a.DataURL())
	assert.True(t, a.IsImage())
	assert.False(t, Attachment{MIMEType: "application/pdf"}.IsImage())
}
