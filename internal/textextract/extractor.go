package textextract

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	MaxChars  int    // normalized text budget; if <= 0 -> 30000
}

type Result struct {
	Text     string
	MIMEType string
	Format   string // constants.PDF | constants.IMAGE
	Method   string // "pdf-text" | "binary"
	Pages    int
	Binary   bool // no text layer; content must be sent inline
	Duration time.Duration
	Warnings []string
}

// Usable reports whether the result carries text worth prompting with.
func (r Result) Usable() bool {
	return !r.Binary && strings.TrimSpace(r.Text) != ""
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = constants.DefaultTextMaxChars
	}
	return &Extractor{cfg: cfg, runner: execRunner{logger: logger}, logger: logger}
}

// WithRunner swaps the command runner (tests).
func (e *Extractor) WithRunner(r Runner) *Extractor {
	e.runner = r
	return e
}

// Extract reads a stored file and returns its normalized text. Failures of the
// text library degrade to an empty result with a warning.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	if err := checkReadable(path); err != nil {
		e.logger.Warn("textextract.file_unavailable", "path", path, "error", err)
		return Result{}, common.FileUnavailableError(path, err)
	}

	ext := constants.NormalizeExt(filepath.Ext(path))
	res := Result{MIMEType: constants.MIMEForExt(ext), Format: constants.FormatForExt(ext)}
	e.logger.Debug("textextract.start", "path", path, "ext", ext, "format", res.Format)

	switch res.Format {
	case constants.PDF:
		text, pages, warn := e.pdfToText(ctx, path)
		res.Method = "pdf-text"
		res.Pages = pages
		res.Text = NormalizeWithLimit(text, e.cfg.MaxChars)
		res.Warnings = warn
	case constants.IMAGE:
		res.Method = "binary"
		res.Binary = true
	default:
		e.logger.Error("unsupported extension", "extension", ext)
		return Result{}, common.NewAppError(common.CodeInvalidInput, "unsupported extension: "+ext, common.ErrInvalidInput)
	}

	res.Duration = time.Since(start)
	e.logger.Info("textextract.ok",
		"path", path,
		"method", res.Method,
		"pages", res.Pages,
		"chars", len(res.Text),
		"warnings", len(res.Warnings),
		"elapsed_ms", res.Duration.Milliseconds(),
	)
	return res, nil
}

func (e *Extractor) pdfToText(ctx context.Context, path string) (string, int, []string) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := e.runner.Run(ctx, e.cfg.Pdftotext, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		warn := "pdftotext failed: " + err.Error()
		if s := strings.TrimSpace(string(errb)); s != "" {
			warn += ": " + truncate(s, 512)
		}
		return "", 0, []string{warn}
	}
	text := string(out)
	if strings.TrimSpace(text) == "" {
		return "", 0, []string{"pdf has no text layer"}
	}
	// form feed separates pages; a trailing one follows the last page
	pages := strings.Count(text, "\f")
	if !strings.HasSuffix(strings.TrimRight(text, "\n"), "\f") {
		pages++
	}
	return strings.ReplaceAll(text, "\f", "\n"), pages, nil
}

func checkReadable(path string) error {
	if strings.TrimSpace(path) == "" {
		return os.ErrNotExist
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return err
	}
	if st.IsDir() {
		return &os.PathError{Op: "read", Path: path, Err: os.ErrInvalid}
	}
	return nil
}
