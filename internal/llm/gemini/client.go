// Package gemini invokes the Gemini generateContent endpoint.
package gemini

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

type Config struct {
	APIKey      string
	BaseURL     string // default https://generativelanguage.googleapis.com/v1beta
	Model       string // e.g., "gemini-1.5-flash"
	Temperature float32
	Timeout     time.Duration
	HTTPClient  *http.Client
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

var _ llm.Invoker = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{cfg: cfg, http: hc, logger: logger}
}

func (c *Client) Backend() string           { return constants.BackendGemini }
func (c *Client) Model() string             { return c.cfg.Model }
func (c *Client) SupportsAttachments() bool { return true }

func (c *Client) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		c.logger.Error("llm.invoke.missing_credentials", "backend", c.Backend())
		return nil, common.ConfigurationError("GEMINI_API_KEY is not set")
	}
	start := time.Now()

	parts := []map[string]any{{"text": req.Prompt}}
	if a := req.Attachment; a != nil {
		parts = append(parts, map[string]any{
			"inline_data": map[string]any{
				"mime_type": a.MIMEType,
				"data":      a.Base64(),
			},
		})
	}
	body := map[string]any{
		"contents": []map[string]any{
			{"role": "user", "parts": parts},
		},
		"generationConfig": map[string]any{
			"temperature":      c.cfg.Temperature,
			"responseMimeType": "application/json",
		},
	}

	c.logger.Info("llm.invoke.start",
		"backend", c.Backend(),
		"model", c.cfg.Model,
		"prompt_len", len(req.Prompt),
		"has_attachment", req.Attachment != nil,
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent"
	raw, err := llm.SendJSON(ctx, c.http, c.Backend(), endpoint, body, map[string]string{
		"x-goog-api-key": c.cfg.APIKey,
	}, c.logger)
	if err != nil {
		c.logger.Error("llm.invoke.http_error", "backend", c.Backend(), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	c.logger.Info("llm.invoke.ok", "backend", c.Backend(), "bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())
	return llm.DecodeResponse(c.Backend(), raw), nil
}
