package openaichat

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/openai"
)

func TestInvokeChatCompletions(t *testing.T) {
	var got map[string]any
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"supplier_name\":\"ACME\"}"},"finish_reason":"stop"}]}`))
	}))
	defer srv.Close()

	c := NewClient(openai.Config{APIKey: "sk", BaseURL: srv.URL, Model: "local-model"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.False(t, c.SupportsAttachments())

	resp, err := c.Invoke(context.Background(), llm.Request{Prompt: "extract please"})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk", auth)
	assert.Equal(t, "/chat/completions", path)
	assert.Equal(t, "local-model", got["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	assert.Equal(t, []any{map[string]any{"role": "user", "content": "extract please"}}, got["messages"])

	text, variant := llm.ResolveTextVariant(resp)
	assert.Equal(t, `{"supplier_name":"ACME"}`, text)
	assert.Equal(t, "candidates", variant)
}

func TestInvokeNullContentFallsBackToRaw(t *testing.T) {
	body := `{"choices":[{"message":{"role":"assistant","content":null},"finish_reason":"length"}]}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	c := NewClient(openai.Config{APIKey: "sk", BaseURL: srv.URL}, nil)
	resp, err := c.Invoke(context.Background(), llm.Request{Prompt: "p"})
	require.NoError(t, err)

	text, variant := llm.ResolveTextVariant(resp)
	assert.Equal(t, "raw", variant)
	assert.JSONEq(t, body, text)
}

func TestInvokeMissingKey(t *testing.T) {
	c := NewClient(openai.Config{}, nil)
	_, err := c.Invoke(context.Background(), llm.Request{Prompt: "p"})
	assert.ErrorIs(t, err, common.ErrConfiguration)
}
