// Package openaichat invokes OpenAI-compatible Chat Completions endpoints.
// It is text only; inline documents are embedded in the prompt as base64.
package openaichat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/openai"
)

type Client struct {
	cfg    openai.Config
	http   *http.Client
	logger *slog.Logger
}

var _ llm.Invoker = (*Client)(nil)

func NewClient(cfg openai.Config, logger *slog.Logger) *Client {
	cfg = cfg.WithDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc, logger: logger}
}

func (c *Client) Backend() string           { return constants.BackendOpenAIChat }
func (c *Client) Model() string             { return c.cfg.Model }
func (c *Client) SupportsAttachments() bool { return false }

func (c *Client) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		c.logger.Error("llm.invoke.missing_credentials", "backend", c.Backend())
		return nil, common.ConfigurationError("OPENAI_API_KEY is not set")
	}
	start := time.Now()

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "user", "content": req.Prompt},
		},
	}

	c.logger.Info("llm.invoke.start", "backend", c.Backend(), "model", c.cfg.Model, "prompt_len", len(req.Prompt))

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := llm.SendJSON(ctx, c.http, c.Backend(), endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.logger)
	if err != nil {
		c.logger.Error("llm.invoke.http_error", "backend", c.Backend(), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	resp := llm.DecodeResponse(c.Backend(), raw)
	var cc struct {
		Choices []struct {
			Message struct {
				Role    string  `json:"role"`
				Content *string `json:"content"`
			} `json:"message"`
			FinishReason string `json:"finish_reason"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		c.logger.Warn("llm.invoke.decode_error", "backend", c.Backend(), "error", err, "raw_bytes", len(raw))
		return resp, nil
	}
	for _, ch := range cc.Choices {
		resp.Candidates = append(resp.Candidates, llm.Candidate{
			Content: llm.CandidateContent{
				Role:  ch.Message.Role,
				Parts: []llm.Part{{Text: ch.Message.Content}},
			},
			FinishReason: ch.FinishReason,
		})
	}

	c.logger.Info("llm.invoke.ok", "backend", c.Backend(), "choices", len(cc.Choices), "elapsed_ms", time.Since(start).Milliseconds())
	return resp, nil
}
