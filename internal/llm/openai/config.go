package openai

import (
	"log/slog"
	"net/http"
	"time"
)

// Config for the OpenAI clients (Responses and Chat Completions).
type Config struct {
	APIKey      string        // required at call time; empty -> ConfigurationError
	BaseURL     string        // default https://api.openai.com/v1
	Model       string        // e.g., "gpt-4o-mini"
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
	HTTPClient  *http.Client  // optional; overrides Timeout
}

// WithDefaults fills the base URL, model and timeout when unset.
func (c Config) WithDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = "https://api.openai.com/v1"
	}
	if c.Model == "" {
		c.Model = "gpt-4o-mini"
	}
	if c.Timeout <= 0 {
		c.Timeout = 45 * time.Second
	}
	return c
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

// NewClient returns an invoker for the Responses API.
func NewClient(cfg Config, logger *slog.Logger) *Client {
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
