package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// Outcome labels for the extraction counter.
const (
	OutcomeExtracted   = "extracted"
	OutcomeNeedsReview = "needs_review"
	OutcomeError       = "error"
)

// Locker serializes extraction per invoice. A nil Locker disables locking.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// DocumentExtractor is extract(filePath) → outcome.
type DocumentExtractor interface {
	Extract(ctx context.Context, filePath string) (Outcome, error)
}

// Result is what a caller sees after one extraction attempt.
type Result struct {
	OK        bool
	Invoice   *entity.Invoice
	ErrorCode string
	Error     string
	RawOutput json.RawMessage
}

// Processor coordinates one extraction attempt for an invoice and reconciles
// the outcome with storage.
type Processor struct {
	logger          *slog.Logger
	repo            repository.InvoiceRepository
	extractor       DocumentExtractor
	locker          Locker
	metrics         Recorder
	backend         string
	defaultCurrency string
}

type ProcessorConfig struct {
	Backend         string // metrics label
	DefaultCurrency string
}

func NewProcessor(logger *slog.Logger, cfg ProcessorConfig, repo repository.InvoiceRepository, ex DocumentExtractor, locker Locker, rec Recorder) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if rec == nil {
		rec = nopRecorder{}
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "USD"
	}
	return &Processor{
		logger:          logger,
		repo:            repo,
		extractor:       ex,
		locker:          locker,
		metrics:         rec,
		backend:         cfg.Backend,
		defaultCurrency: cfg.DefaultCurrency,
	}
}

// ExtractInvoice runs extraction for invoice id and applies the outcome.
// Quality failures come back as Result{OK:false} with the invoice in
// NEEDS_REVIEW. Configuration and persistence failures are returned as errors
// and leave the stored invoice as it was.
func (p *Processor) ExtractInvoice(ctx context.Context, id uuid.UUID) (*Result, error) {
	ctx = common.WithInvoiceID(ctx, id.String())
	start := time.Now()

	if p.locker != nil {
		release, err := p.locker.Acquire(ctx, "invoice:extract:"+id.String())
		if err != nil {
			p.logger.Warn("processor.lock.busy", "invoice_id", id, "error", err)
			return nil, err
		}
		defer release()
	}

	inv, err := p.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	out, err := p.extractor.Extract(ctx, inv.FilePath)
	if err != nil {
		p.metrics.ExtractionFinished(OutcomeError, p.backend)
		p.logger.Error("processor.extract.failed", "invoice_id", id, "error", err)
		return nil, err
	}

	// the model call already happened; a client disconnect must not drop the write
	wctx := context.WithoutCancel(ctx)
	now := time.Now().UTC()

	if !out.OK {
		return p.needsReview(wctx, inv, out, now, start)
	}

	applied, err := p.repo.ApplyExtraction(wctx, id, func(cur *entity.Invoice) (*entity.Invoice, error) {
		return Merge(cur, out, p.defaultCurrency, now), nil
	})
	if err != nil {
		p.metrics.ExtractionFinished(OutcomeError, p.backend)
		p.logger.Error("processor.reconcile.failed", "invoice_id", id, "error", err)
		return nil, err
	}

	p.metrics.ExtractionFinished(OutcomeExtracted, p.backend)
	p.logger.Info("processor.extract.ok",
		"invoice_id", id,
		"model", out.Model,
		"line_items", len(applied.LineItems),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{OK: true, Invoice: applied}, nil
}

func (p *Processor) needsReview(ctx context.Context, inv *entity.Invoice, out Outcome, now, start time.Time) (*Result, error) {
	code := common.ErrorCode(out.Err)
	payload := llm.FailurePayload(code, out.Err.Error(), out.RawText)
	if err := p.repo.MarkNeedsReview(ctx, inv.ID, payload, out.Model, now); err != nil {
		p.metrics.ExtractionFinished(OutcomeError, p.backend)
		p.logger.Error("processor.reconcile.failed", "invoice_id", inv.ID, "error", err)
		return nil, err
	}

	updated, err := p.repo.GetByID(ctx, inv.ID)
	if err != nil {
		return nil, common.PersistenceError("reload invoice", err)
	}

	p.metrics.ExtractionFinished(OutcomeNeedsReview, p.backend)
	p.logger.Warn("processor.extract.needs_review",
		"invoice_id", inv.ID,
		"code", code,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &Result{
		OK:        false,
		Invoice:   updated,
		ErrorCode: code,
		Error:     out.Err.Error(),
		RawOutput: payload,
	}, nil
}

// Merge applies a successful outcome onto the current invoice. Currency falls
// back to the stored value, then to defaultCurrency; subtotal and total fall
// back to the stored values. Everything else is taken from the extraction.
func Merge(cur *entity.Invoice, out Outcome, defaultCurrency string, at time.Time) *entity.Invoice {
	ex := out.Extraction
	next := *cur

	next.SupplierName = ex.SupplierName
	next.InvoiceNumber = ex.InvoiceNumber
	next.InvoiceDate = ex.InvoiceDate

	switch {
	case ex.Currency != nil:
		next.Currency = *ex.Currency
	case cur.Currency != "":
		next.Currency = cur.Currency
	default:
		next.Currency = defaultCurrency
	}
	if ex.Subtotal != nil {
		next.Subtotal = *ex.Subtotal
	}
	if ex.Total != nil {
		next.Total = *ex.Total
	}

	next.Confidence = ex.Confidence
	next.RawOutput = out.Audit
	if out.Model != "" {
		model := out.Model
		next.ModelName = &model
	}
	next.ExtractedAt = &at
	next.Status = constants.InvoiceStatusExtracted

	next.LineItems = make([]entity.LineItem, len(ex.LineItems))
	for i, li := range ex.LineItems {
		li.InvoiceID = cur.ID
		li.Position = i
		next.LineItems[i] = li
	}
	return &next
}
