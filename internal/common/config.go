package common

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// Config holds all application configuration. It is built once at startup and
// passed explicitly; nothing reads the environment after LoadConfig returns.
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Storage  StorageConfig
	Text     TextConfig
	LLM      LLMConfig
	Log      LogConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	Driver           string // postgres | sqlite
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
	AutoMigrate      bool
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPAddr           string
	GRPCAddr           string
	CORSAllowedOrigins []string
	RateLimitRPS       float64
	RateLimitBurst     int
	RedisAddr          string
	RedisPassword      string
	RedisDB            int
	ExtractLockTTL     time.Duration
}

// StorageConfig holds upload storage configuration
type StorageConfig struct {
	UploadDir      string
	MaxUploadBytes int64
}

// TextConfig holds document text extraction configuration
type TextConfig struct {
	Pdftotext string
	MaxChars  int
}

// LLMConfig holds model backend configuration
type LLMConfig struct {
	Backend         string
	Model           string
	Mode            string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	GeminiAPIKey    string
	GeminiBaseURL   string
	Temperature     float32
	Timeout         time.Duration
	DefaultCurrency string
}

// LogConfig selects the zap encoder and level.
type LogConfig struct {
	Level  string
	Format string // json | console
}

var reCurrency = regexp.MustCompile(`^[A-Z]{3}$`)

// LoadConfig loads an optional .env file, an optional invoiced.yaml, and the environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("invoiced")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/invoiced")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, NewAppError(CodeConfig, "read config file", err)
		}
	}

	return &Config{
		Database: DatabaseConfig{
			Driver:           strings.ToLower(v.GetString("db_driver")),
			DSN:              v.GetString("db_url"),
			MaxConns:         v.GetInt32("db_max_conns"),
			MinConns:         v.GetInt32("db_min_conns"),
			MaxConnLifetime:  v.GetDuration("db_max_conn_lifetime"),
			MaxConnIdleTime:  v.GetDuration("db_max_conn_idle_time"),
			DialTimeout:      v.GetDuration("db_dial_timeout"),
			StatementTimeout: v.GetDuration("db_statement_timeout"),
			AutoMigrate:      v.GetBool("db_auto_migrate"),
		},
		Server: ServerConfig{
			HTTPAddr:           normalizeAddr(v.GetString("http_addr")),
			GRPCAddr:           normalizeAddr(v.GetString("grpc_addr")),
			CORSAllowedOrigins: splitList(v.GetString("cors_allowed_origins")),
			RateLimitRPS:       v.GetFloat64("rate_limit_rps"),
			RateLimitBurst:     v.GetInt("rate_limit_burst"),
			RedisAddr:          v.GetString("redis_addr"),
			RedisPassword:      v.GetString("redis_password"),
			RedisDB:            v.GetInt("redis_db"),
			ExtractLockTTL:     v.GetDuration("extract_lock_ttl"),
		},
		Storage: StorageConfig{
			UploadDir:      v.GetString("upload_dir"),
			MaxUploadBytes: v.GetInt64("upload_max_bytes"),
		},
		Text: TextConfig{
			Pdftotext: v.GetString("pdftotext_bin"),
			MaxChars:  v.GetInt("text_max_chars"),
		},
		LLM: LLMConfig{
			Backend:         strings.ToLower(v.GetString("llm_backend")),
			Model:           v.GetString("llm_model"),
			Mode:            strings.ToLower(v.GetString("extract_mode")),
			OpenAIAPIKey:    v.GetString("openai_api_key"),
			OpenAIBaseURL:   v.GetString("openai_base_url"),
			GeminiAPIKey:    v.GetString("gemini_api_key"),
			GeminiBaseURL:   v.GetString("gemini_base_url"),
			Temperature:     float32(v.GetFloat64("llm_temperature")),
			Timeout:         v.GetDuration("llm_timeout"),
			DefaultCurrency: strings.ToUpper(strings.TrimSpace(v.GetString("default_currency"))),
		},
		Log: LogConfig{
			Level:  v.GetString("log_level"),
			Format: v.GetString("log_format"),
		},
	}, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db_driver", "postgres")
	v.SetDefault("db_max_conns", 20)
	v.SetDefault("db_min_conns", 5)
	v.SetDefault("db_max_conn_lifetime", 30*time.Minute)
	v.SetDefault("db_max_conn_idle_time", 5*time.Minute)
	v.SetDefault("db_dial_timeout", 3*time.Second)
	v.SetDefault("db_statement_timeout", 0)
	v.SetDefault("db_auto_migrate", true)

	v.SetDefault("http_addr", ":8080")
	v.SetDefault("grpc_addr", ":9090")
	v.SetDefault("cors_allowed_origins", "*")
	v.SetDefault("rate_limit_rps", 5.0)
	v.SetDefault("rate_limit_burst", 20)
	v.SetDefault("redis_db", 0)
	v.SetDefault("extract_lock_ttl", 3*time.Minute)

	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("upload_max_bytes", 10<<20)

	v.SetDefault("pdftotext_bin", "pdftotext")
	v.SetDefault("text_max_chars", constants.DefaultTextMaxChars)

	v.SetDefault("llm_backend", constants.BackendOpenAI)
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("extract_mode", constants.ExtractModeAuto)
	v.SetDefault("openai_base_url", "https://api.openai.com/v1")
	v.SetDefault("gemini_base_url", "https://generativelanguage.googleapis.com/v1beta")
	v.SetDefault("llm_temperature", 0.0)
	v.SetDefault("llm_timeout", 45*time.Second)
	v.SetDefault("default_currency", "USD")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Validate checks the loaded configuration. Model API keys are not checked here:
// a missing key is reported per extraction attempt as a ConfigurationError.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return NewAppError(CodeConfig, "DB_DRIVER must be postgres or sqlite", ErrInvalidInput)
	}
	if c.Database.DSN == "" {
		return NewAppError(CodeConfig, "DB_URL is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError(CodeConfig, "HTTP_ADDR is required", ErrInvalidInput)
	}
	if c.Storage.UploadDir == "" {
		return NewAppError(CodeConfig, "UPLOAD_DIR is required", ErrInvalidInput)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		return NewAppError(CodeConfig, "UPLOAD_MAX_BYTES must be positive", ErrInvalidInput)
	}
	switch c.LLM.Backend {
	case constants.BackendOpenAI, constants.BackendOpenAIChat, constants.BackendGemini:
	default:
		return NewAppError(CodeConfig, "unknown LLM_BACKEND "+c.LLM.Backend, ErrInvalidInput)
	}
	switch c.LLM.Mode {
	case constants.ExtractModeText, constants.ExtractModeInline, constants.ExtractModeAuto:
	default:
		return NewAppError(CodeConfig, "unknown EXTRACT_MODE "+c.LLM.Mode, ErrInvalidInput)
	}
	if !reCurrency.MatchString(c.LLM.DefaultCurrency) {
		return NewAppError(CodeConfig, "DEFAULT_CURRENCY must be a 3-letter ISO 4217 code", ErrInvalidInput)
	}
	return nil
}

// APIKey returns the credential for the configured backend.
func (c LLMConfig) APIKey() string {
	if c.Backend == constants.BackendGemini {
		return c.GeminiAPIKey
	}
	return c.OpenAIAPIKey
}

// BaseURL returns the endpoint root for the configured backend.
func (c LLMConfig) BaseURL() string {
	if c.Backend == constants.BackendGemini {
		return c.GeminiBaseURL
	}
	return c.OpenAIBaseURL
}

func normalizeAddr(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr != "" && !strings.Contains(addr, ":") {
		addr = ":" + addr
	}
	return addr
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
