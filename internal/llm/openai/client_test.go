package openai

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
)

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestInvokeSendsResponsesRequest(t *testing.T) {
	var got map[string]any
	var auth, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"output":[{"type":"message","content":[{"type":"output_text","text":"{\"total\":3}"}]}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "sk-test", BaseURL: srv.URL + "/v1/", Model: "gpt-test"}, testLogger())
	resp, err := c.Invoke(context.Background(), llm.Request{
		Prompt:     "extract",
		Attachment: &llm.Attachment{Name: "a.pdf", MIMEType: "application/pdf", Data: []byte("%PDF")},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer sk-test", auth)
	assert.Equal(t, "/v1/responses", path)
	assert.Equal(t, "gpt-test", got["model"])
	assert.Equal(t, map[string]any{"format": map[string]any{"type": "json_object"}}, got["text"])

	input := got["input"].([]any)
	require.Len(t, input, 1)
	content := input[0].(map[string]any)["content"].([]any)
	require.Len(t, content, 2)
	assert.Equal(t, map[string]any{"type": "input_text", "text": "extract"}, content[0])
	assert.Equal(t, map[string]any{"type": "input_file", "filename": "a.pdf", "file_data": "data:application/pdf;base64,JVBERg=="}, content[1])

	assert.Equal(t, `{"total":3}`, llm.ResolveText(resp))
	assert.Equal(t, "openai", resp.Backend)
}

func TestInvokeImageAttachment(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"output_text":"{}"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, testLogger())
	_, err := c.Invoke(context.Background(), llm.Request{
		Prompt:     "p",
		Attachment: &llm.Attachment{Name: "a.png", MIMEType: "image/png", Data: []byte("png")},
	})
	require.NoError(t, err)

	content := got["input"].([]any)[0].(map[string]any)["content"].([]any)
	assert.Equal(t, map[string]any{"type": "input_image", "image_url": "data:image/png;base64,cG5n"}, content[1])
}

func TestInvokeMissingKeyMakesNoRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, testLogger())
	_, err := c.Invoke(context.Background(), llm.Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrConfiguration)
	assert.False(t, common.IsReviewable(err))
	assert.False(t, called)
}

func TestInvokeUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"bad key"}}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, testLogger())
	_, err := c.Invoke(context.Background(), llm.Request{Prompt: "p"})
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrModelCall)
	assert.Contains(t, err.Error(), "openai status 401")
	assert.Contains(t, err.Error(), "bad key")
}

func TestDefaults(t *testing.T) {
	c := NewClient(Config{}, nil)
	assert.Equal(t, "gpt-4o-mini", c.Model())
	assert.Equal(t, "https://api.openai.com/v1", c.cfg.BaseURL)
	assert.True(t, c.SupportsAttachments())
}

func TestInvokeTemperatureOnlyWhenSet(t *testing.T) {
	tests := []struct {
		name    string
		temp    float32
		present bool
	}{
		{name: "unset", temp: 0, present: false},
		{name: "set", temp: 0.2, present: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
				_, _ = w.Write([]byte(`{"output_text":"{}"}`))
			}))
			defer srv.Close()

			c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Model: "o4-mini", Temperature: tt.temp}, testLogger())
			_, err := c.Invoke(context.Background(), llm.Request{Prompt: "p"})
			require.NoError(t, err)

			temp, ok := got["temperature"]
			assert.Equal(t, tt.present, ok)
			if tt.present {
				assert.InDelta(t, 0.2, temp, 1e-6)
			}
		})
	}
}
