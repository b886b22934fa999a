package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/textextract"
)

// TextSource turns a stored file into normalized text.
type TextSource interface {
	Extract(ctx context.Context, path string) (textextract.Result, error)
}

// Recorder receives pipeline measurements. The metrics package implements it.
type Recorder interface {
	ExtractionFinished(outcome, backend string)
	ModelCallFinished(backend, status string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ExtractionFinished(string, string)               {}
func (nopRecorder) ModelCallFinished(string, string, time.Duration) {}

type Config struct {
	Mode string // text | inline | auto; default auto
}

// Outcome is the result of extract(filePath). Quality failures are reported
// with OK=false and Err set; they are not returned as Go errors.
type Outcome struct {
	OK         bool
	Extraction llm.Extraction
	Audit      json.RawMessage // raw-output payload for a successful parse
	RawText    string          // resolved model text, verbatim
	Model      string
	Backend    string
	Method     string // text | inline
	Variant    string // which response shape the text came from
	Err        error
	Duration   time.Duration
}

// Extractor runs the document → prompt → model → JSON → coercion flow for one file.
type Extractor struct {
	cfg     Config
	text    TextSource
	invoker llm.Invoker
	metrics Recorder
	logger  *slog.Logger
}

func NewExtractor(cfg Config, text TextSource, invoker llm.Invoker, rec Recorder, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if cfg.Mode == "" {
		cfg.Mode = constants.ExtractModeAuto
	}
	return &Extractor{cfg: cfg, text: text, invoker: invoker, metrics: rec, logger: logger}
}

// Model returns the model identifier of the configured backend.
func (e *Extractor) Model() string { return e.invoker.Model() }

// Backend returns the configured backend name.
func (e *Extractor) Backend() string { return e.invoker.Backend() }

// Extract runs the full flow for filePath. The returned error is non-nil only
// for failures that must not be recorded on the invoice (configuration).
func (e *Extractor) Extract(ctx context.Context, filePath string) (Outcome, error) {
	start := time.Now()
	out := Outcome{Model: e.invoker.Model(), Backend: e.invoker.Backend()}

	req, method, err := e.prepare(ctx, filePath)
	out.Method = method
	if err != nil {
		return e.fail(out, start, err)
	}

	callStart := time.Now()
	resp, err := e.invoker.Invoke(ctx, req)
	e.metrics.ModelCallFinished(out.Backend, callStatus(err), time.Since(callStart))
	if err != nil {
		return e.fail(out, start, err)
	}

	out.RawText, out.Variant = llm.ResolveTextVariant(resp)
	obj, located, err := llm.ExtractJSON(out.RawText)
	if err != nil {
		return e.fail(out, start, err)
	}
	if verr := llm.ValidateInvoiceJSON([]byte(located)); verr != nil {
		e.logger.Warn("llm.extract.schema_mismatch", "path", filePath, "error", verr)
	}

	coerced := llm.Coerce(obj)
	out.Extraction = llm.ToExtraction(coerced)
	out.Audit = llm.AuditPayload(out.RawText, coerced)
	out.OK = true
	out.Duration = time.Since(start)

	e.logger.Info("pipeline.extract.ok",
		"path", filePath,
		"backend", out.Backend,
		"model", out.Model,
		"method", out.Method,
		"variant", out.Variant,
		"fields", out.Extraction.String(),
		"elapsed_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

func (e *Extractor) fail(out Outcome, start time.Time, err error) (Outcome, error) {
	out.Duration = time.Since(start)
	if !common.IsReviewable(err) {
		e.logger.Error("pipeline.extract.error", "backend", out.Backend, "error", err)
		return out, err
	}
	out.Err = err
	e.logger.Warn("pipeline.extract.needs_review",
		"backend", out.Backend,
		"method", out.Method,
		"code", common.ErrorCode(err),
		"error", err,
		"raw_len", len(out.RawText),
		"elapsed_ms", out.Duration.Milliseconds(),
	)
	return out, nil
}

// prepare builds the model request according to the extraction mode.
func (e *Extractor) prepare(ctx context.Context, filePath string) (llm.Request, string, error) {
	switch e.cfg.Mode {
	case constants.ExtractModeText:
		res, err := e.text.Extract(ctx, filePath)
		if err != nil {
			return llm.Request{}, constants.ExtractModeText, err
		}
		if !res.Usable() {
			return llm.Request{}, constants.ExtractModeText, common.NoUsableTextError(noTextReason(res))
		}
		return textRequest(res), constants.ExtractModeText, nil

	case constants.ExtractModeInline:
		req, err := e.inlineRequest(filePath)
		return req, constants.ExtractModeInline, err

	default:
		res, err := e.text.Extract(ctx, filePath)
		switch {
		case errors.Is(err, common.ErrFileUnavailable):
			return llm.Request{}, constants.ExtractModeText, err
		case err == nil && res.Usable():
			return textRequest(res), constants.ExtractModeText, nil
		}
		if err != nil {
			e.logger.Warn("pipeline.extract.text_failed", "path", filePath, "error", err)
		}
		req, err := e.inlineRequest(filePath)
		return req, constants.ExtractModeInline, err
	}
}

func textRequest(res textextract.Result) llm.Request {
	return llm.Request{Prompt: llm.BuildPrompt(llm.PromptInput{MIMEType: res.MIMEType, Text: res.Text})}
}

func (e *Extractor) inlineRequest(filePath string) (llm.Request, error) {
	f, err := textextract.LoadInline(filePath)
	if err != nil {
		return llm.Request{}, err
	}
	if e.invoker.SupportsAttachments() {
		return llm.Request{
			Prompt:     llm.BuildPrompt(llm.PromptInput{MIMEType: f.MIMEType, Attached: true}),
			Attachment: &llm.Attachment{Name: filepath.Base(filePath), MIMEType: f.MIMEType, Data: f.Data},
		}, nil
	}
	return llm.Request{Prompt: llm.BuildPrompt(llm.PromptInput{MIMEType: f.MIMEType, Base64: f.Base64()})}, nil
}

func noTextReason(res textextract.Result) string {
	if res.Binary {
		return res.MIMEType + " document has no text layer"
	}
	if len(res.Warnings) > 0 {
		return "no text extracted: " + res.Warnings[0]
	}
	return "no text extracted"
}

func callStatus(err error) string {
	if err == nil {
		return "ok"
	}
	var ae *common.AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return "error"
}
