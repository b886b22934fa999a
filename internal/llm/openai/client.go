package openai

import (
	"context"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
)

var _ llm.Invoker = (*Client)(nil)

func (c *Client) Backend() string           { return constants.BackendOpenAI }
func (c *Client) Model() string             { return c.cfg.Model }
func (c *Client) SupportsAttachments() bool { return true }

// Invoke sends the prompt (and attachment, if any) to POST {base}/responses.
func (c *Client) Invoke(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		c.logger.Error("llm.invoke.missing_credentials", "backend", c.Backend())
		return nil, common.ConfigurationError("OPENAI_API_KEY is not set")
	}
	start := time.Now()

	content := []map[string]any{
		{"type": "input_text", "text": req.Prompt},
	}
	if a := req.Attachment; a != nil {
		if a.IsImage() {
			content = append(content, map[string]any{
				"type":      "input_image",
				"image_url": a.DataURL(),
			})
		} else {
			content = append(content, map[string]any{
				"type":      "input_file",
				"filename":  a.Name,
				"file_data": a.DataURL(),
			})
		}
	}

	body := map[string]any{
		"model": c.cfg.Model,
		"input": []map[string]any{
			{"role": "user", "content": content},
		},
		"text": map[string]any{
			"format": map[string]any{"type": "json_object"},
		},
	}
	// reasoning models reject the field; leave it to the server default
	if c.cfg.Temperature != 0 {
		body["temperature"] = c.cfg.Temperature
	}

	c.logger.Info("llm.invoke.start",
		"backend", c.Backend(),
		"model", c.cfg.Model,
		"prompt_len", len(req.Prompt),
		"has_attachment", req.Attachment != nil,
	)

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/responses"
	raw, err := llm.SendJSON(ctx, c.http, c.Backend(), endpoint, body, map[string]string{
		"Authorization": "Bearer " + c.cfg.APIKey,
	}, c.logger)
	if err != nil {
		c.logger.Error("llm.invoke.http_error", "backend", c.Backend(), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, err
	}

	c.logger.Info("llm.invoke.ok", "backend", c.Backend(), "bytes", len(raw), "elapsed_ms", time.Since(start).Milliseconds())
	return llm.DecodeResponse(c.Backend(), raw), nil
}
