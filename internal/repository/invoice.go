package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// ListFilter selects a page of invoices, newest first.
type ListFilter struct {
	Page     int
	PageSize int
	Status   *constants.InvoiceStatus
}

// Normalize clamps page and page size into their valid ranges.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}
	return f
}

// InvoicePatch is a manual edit. Nil fields are left unchanged; an empty
// string clears a nullable text or date field.
type InvoicePatch struct {
	SupplierName  *string
	InvoiceNumber *string
	InvoiceDate   *string
	Currency      *string
	Subtotal      *decimal.Decimal
	Total         *decimal.Decimal
	Confidence    *float64
	Status        *constants.InvoiceStatus
	// LineItems, when non-nil, replaces every line item of the invoice.
	LineItems *[]entity.LineItem
}

// MergeFunc receives the locked current row (with line items) and returns the
// state to persist. Its LineItems replace the stored ones.
type MergeFunc func(current *entity.Invoice) (*entity.Invoice, error)

type InvoiceRepository interface {
	Create(ctx context.Context, inv *entity.Invoice) (*entity.Invoice, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error)
	List(ctx context.Context, filter ListFilter) ([]*entity.Invoice, int, error)
	ListLineItems(ctx context.Context, invoiceID uuid.UUID) ([]entity.LineItem, error)
	Update(ctx context.Context, id uuid.UUID, patch InvoicePatch) (*entity.Invoice, error)
	Delete(ctx context.Context, id uuid.UUID) error
	MarkNeedsReview(ctx context.Context, id uuid.UUID, rawOutput json.RawMessage, model string, at time.Time) error
	ApplyExtraction(ctx context.Context, id uuid.UUID, merge MergeFunc) (*entity.Invoice, error)
}

type invoiceRepository struct {
	drv    *entsql.Driver
	logger *slog.Logger
}

func NewInvoiceRepository(drv *entsql.Driver, logger *slog.Logger) InvoiceRepository {
	return &invoiceRepository{
		drv:    drv,
		logger: logger,
	}
}

func notFound(id uuid.UUID) error {
	return common.NewAppError(common.CodeNotFound, "invoice "+id.String()+" not found", common.ErrNotFound)
}

func (r *invoiceRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *invoiceRepository) Create(ctx context.Context, inv *entity.Invoice) (*entity.Invoice, error) {
	now := time.Now().UTC()
	out := *inv
	if out.ID == uuid.Nil {
		out.ID = uuid.New()
	}
	if out.Status == "" {
		out.Status = constants.InvoiceStatusUploaded
	}
	out.CreatedAt, out.UpdatedAt = now, now
	out.LineItems = nil

	q, args := r.builder().Insert(TableInvoices).
		Columns(invoiceColumns...).
		Values(
			out.ID, out.FilePath, out.OriginalFilename, out.MIMEType, out.FileSize, out.FileSHA256,
			nullableString(out.SupplierName), nullableString(out.InvoiceNumber), nullableDate(out.InvoiceDate),
			out.Currency, out.Subtotal, out.Total, nullableFloat(out.Confidence), string(out.Status),
			nullableJSON(out.RawOutput), nullableString(out.ModelName), nullableTime(out.ExtractedAt),
			out.CreatedAt, out.UpdatedAt,
		).Query()

	var res sql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to create invoice", "invoice_id", out.ID, "error", err)
		return nil, common.WrapError(errors.Join(common.ErrDatabase, err), "create invoice")
	}
	r.logger.Info("invoice created", "invoice_id", out.ID, "file_path", out.FilePath)
	return &out, nil
}

func (r *invoiceRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Invoice, error) {
	inv, err := r.getInvoice(ctx, r.drv, id, false)
	if err != nil {
		return nil, err
	}
	items, err := r.lineItems(ctx, r.drv, id)
	if err != nil {
		return nil, err
	}
	inv.LineItems = items
	return inv, nil
}

func (r *invoiceRepository) List(ctx context.Context, filter ListFilter) ([]*entity.Invoice, int, error) {
	filter = filter.Normalize()

	count := r.builder().Select().Count().From(entsql.Table(TableInvoices))
	page := r.builder().Select(invoiceColumns...).From(entsql.Table(TableInvoices))
	if filter.Status != nil {
		count.Where(entsql.EQ("status", string(*filter.Status)))
		page.Where(entsql.EQ("status", string(*filter.Status)))
	}

	q, args := count.Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to count invoices", "error", err)
		return nil, 0, common.WrapError(errors.Join(common.ErrDatabase, err), "count invoices")
	}
	total, err := entsql.ScanInt(rows)
	_ = rows.Close()
	if err != nil {
		return nil, 0, common.WrapError(errors.Join(common.ErrDatabase, err), "count invoices")
	}

	q, args = page.
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).
		Limit(filter.PageSize).
		Offset((filter.Page - 1) * filter.PageSize).
		Query()
	if err := r.drv.Query(ctx, q, args, &rows); err != nil {
		r.logger.Error("failed to list invoices", "error", err)
		return nil, 0, common.WrapError(errors.Join(common.ErrDatabase, err), "list invoices")
	}
	defer rows.Close()

	out := make([]*entity.Invoice, 0, filter.PageSize)
	for rows.Next() {
		inv, err := scanInvoice(&rows)
		if err != nil {
			return nil, 0, common.WrapError(errors.Join(common.ErrDatabase, err), "scan invoice")
		}
		out = append(out, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, common.WrapError(errors.Join(common.ErrDatabase, err), "list invoices")
	}
	return out, total, nil
}

func (r *invoiceRepository) ListLineItems(ctx context.Context, invoiceID uuid.UUID) ([]entity.LineItem, error) {
	return r.lineItems(ctx, r.drv, invoiceID)
}

// Update applies a manual edit in one transaction. Status is set as given,
// outside the extraction state machine.
func (r *invoiceRepository) Update(ctx context.Context, id uuid.UUID, patch InvoicePatch) (*entity.Invoice, error) {
	var updated *entity.Invoice
	err := r.inTx(ctx, func(tx dialect.Tx) error {
		cur, err := r.getInvoice(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := applyPatch(cur, patch); err != nil {
			return err
		}
		cur.UpdatedAt = time.Now().UTC()
		if err := r.writeInvoice(ctx, tx, cur); err != nil {
			return err
		}
		if patch.LineItems != nil {
			if err := r.replaceLineItems(ctx, tx, id, *patch.LineItems); err != nil {
				return err
			}
		}
		updated, err = r.reload(ctx, tx, id)
		return err
	})
	if err != nil {
		r.logger.Error("failed to update invoice", "invoice_id", id, "error", err)
		return nil, err
	}
	r.logger.Info("invoice updated", "invoice_id", id, "status", updated.Status)
	return updated, nil
}

func applyPatch(inv *entity.Invoice, p InvoicePatch) error {
	if p.SupplierName != nil {
		inv.SupplierName = emptyToNil(*p.SupplierName)
	}
	if p.InvoiceNumber != nil {
		inv.InvoiceNumber = emptyToNil(*p.InvoiceNumber)
	}
	if p.InvoiceDate != nil {
		if strings.TrimSpace(*p.InvoiceDate) == "" {
			inv.InvoiceDate = nil
		} else {
			d, err := entity.ParseDate(strings.TrimSpace(*p.InvoiceDate))
			if err != nil {
				return common.NewAppError(common.CodeInvalidInput, "invoice_date must be YYYY-MM-DD", common.ErrInvalidInput)
			}
			inv.InvoiceDate = &d
		}
	}
	if p.Currency != nil {
		inv.Currency = strings.ToUpper(strings.TrimSpace(*p.Currency))
	}
	if p.Subtotal != nil {
		inv.Subtotal = *p.Subtotal
	}
	if p.Total != nil {
		inv.Total = *p.Total
	}
	if p.Confidence != nil {
		c := *p.Confidence
		inv.Confidence = &c
	}
	if p.Status != nil {
		inv.Status = *p.Status
	}
	return nil
}

func emptyToNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func (r *invoiceRepository) Delete(ctx context.Context, id uuid.UUID) error {
	q, args := r.builder().Delete(TableInvoices).Where(entsql.EQ("id", id)).Query()
	var res sql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to delete invoice", "invoice_id", id, "error", err)
		return common.WrapError(errors.Join(common.ErrDatabase, err), "delete invoice")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	r.logger.Info("invoice deleted", "invoice_id", id)
	return nil
}

// MarkNeedsReview records a failed extraction with a single UPDATE; every
// other extracted field is left as it was.
func (r *invoiceRepository) MarkNeedsReview(ctx context.Context, id uuid.UUID, rawOutput json.RawMessage, model string, at time.Time) error {
	q, args := r.builder().Update(TableInvoices).
		Set("raw_output", nullableJSON(rawOutput)).
		Set("status", string(constants.InvoiceStatusNeedsReview)).
		Set("extracted_at", at.UTC()).
		Set("model_name", nullableString(emptyToNil(model))).
		Set("updated_at", time.Now().UTC()).
		Where(entsql.EQ("id", id)).
		Query()

	var res sql.Result
	if err := r.drv.Exec(ctx, q, args, &res); err != nil {
		r.logger.Error("failed to mark invoice for review", "invoice_id", id, "error", err)
		return common.PersistenceError("mark invoice needs review", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(id)
	}
	r.logger.Info("invoice marked for review", "invoice_id", id)
	return nil
}

// ApplyExtraction is the reconciliation transaction: lock and load the row,
// merge, update the invoice, delete every line item and insert the new ones.
// Any failure rolls everything back and is reported as a PersistenceError.
func (r *invoiceRepository) ApplyExtraction(ctx context.Context, id uuid.UUID, merge MergeFunc) (*entity.Invoice, error) {
	var applied *entity.Invoice
	err := r.inTx(ctx, func(tx dialect.Tx) error {
		cur, err := r.getInvoice(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if cur.LineItems, err = r.lineItems(ctx, tx, id); err != nil {
			return err
		}
		next, err := merge(cur)
		if err != nil {
			return err
		}
		next.ID = id
		next.UpdatedAt = time.Now().UTC()
		if err := r.writeInvoice(ctx, tx, next); err != nil {
			return err
		}
		if err := r.replaceLineItems(ctx, tx, id, next.LineItems); err != nil {
			return err
		}
		applied, err = r.reload(ctx, tx, id)
		return err
	})
	if err != nil {
		r.logger.Error("reconciliation rolled back", "invoice_id", id, "error", err)
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		var ae *common.AppError
		if errors.As(err, &ae) && !errors.Is(err, common.ErrDatabase) {
			return nil, err
		}
		return nil, common.PersistenceError("apply extraction", err)
	}

	r.logger.Info("extraction applied", "invoice_id", id, "line_items", len(applied.LineItems), "status", applied.Status)
	return applied, nil
}

// inTx runs fn in a transaction, rolling back on error or panic.
func (r *invoiceRepository) inTx(ctx context.Context, fn func(tx dialect.Tx) error) (err error) {
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return errors.Join(common.ErrDatabase, fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.logger.Error("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Join(common.ErrDatabase, fmt.Errorf("commit: %w", err))
	}
	return nil
}

func (r *invoiceRepository) getInvoice(ctx context.Context, ex dialect.ExecQuerier, id uuid.UUID, forUpdate bool) (*entity.Invoice, error) {
	sel := r.builder().Select(invoiceColumns...).
		From(entsql.Table(TableInvoices)).
		Where(entsql.EQ("id", id))
	// SQLite has no row locks; its write transaction already serializes writers.
	if forUpdate && r.drv.Dialect() == dialect.Postgres {
		sel.ForUpdate()
	}
	q, args := sel.Query()

	var rows entsql.Rows
	if err := ex.Query(ctx, q, args, &rows); err != nil {
		return nil, errors.Join(common.ErrDatabase, fmt.Errorf("get invoice: %w", err))
	}
	defer rows.Close()
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, errors.Join(common.ErrDatabase, fmt.Errorf("get invoice: %w", err))
		}
		return nil, notFound(id)
	}
	inv, err := scanInvoice(&rows)
	if err != nil {
		return nil, errors.Join(common.ErrDatabase, fmt.Errorf("scan invoice: %w", err))
	}
	return inv, nil
}

// reload reads the invoice and its line items back as stored.
func (r *invoiceRepository) reload(ctx context.Context, ex dialect.ExecQuerier, id uuid.UUID) (*entity.Invoice, error) {
	inv, err := r.getInvoice(ctx, ex, id, false)
	if err != nil {
		return nil, err
	}
	if inv.LineItems, err = r.lineItems(ctx, ex, id); err != nil {
		return nil, err
	}
	return inv, nil
}

func (r *invoiceRepository) lineItems(ctx context.Context, ex dialect.ExecQuerier, invoiceID uuid.UUID) ([]entity.LineItem, error) {
	q, args := r.builder().Select(lineItemColumns...).
		From(entsql.Table(TableLineItems)).
		Where(entsql.EQ("invoice_id", invoiceID)).
		OrderBy("position").
		Query()

	var rows entsql.Rows
	if err := ex.Query(ctx, q, args, &rows); err != nil {
		return nil, errors.Join(common.ErrDatabase, fmt.Errorf("list line items: %w", err))
	}
	defer rows.Close()

	items := []entity.LineItem{}
	for rows.Next() {
		li, err := scanLineItem(&rows)
		if err != nil {
			return nil, errors.Join(common.ErrDatabase, fmt.Errorf("scan line item: %w", err))
		}
		items = append(items, li)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Join(common.ErrDatabase, fmt.Errorf("list line items: %w", err))
	}
	return items, nil
}

// writeInvoice updates every mutable column of inv.
func (r *invoiceRepository) writeInvoice(ctx context.Context, ex dialect.ExecQuerier, inv *entity.Invoice) error {
	q, args := r.builder().Update(TableInvoices).
		Set("supplier_name", nullableString(inv.SupplierName)).
		Set("invoice_number", nullableString(inv.InvoiceNumber)).
		Set("invoice_date", nullableDate(inv.InvoiceDate)).
		Set("currency", inv.Currency).
		Set("subtotal", inv.Subtotal).
		Set("total", inv.Total).
		Set("confidence", nullableFloat(inv.Confidence)).
		Set("status", string(inv.Status)).
		Set("raw_output", nullableJSON(inv.RawOutput)).
		Set("model_name", nullableString(inv.ModelName)).
		Set("extracted_at", nullableTime(inv.ExtractedAt)).
		Set("updated_at", inv.UpdatedAt).
		Where(entsql.EQ("id", inv.ID)).
		Query()

	var res sql.Result
	if err := ex.Exec(ctx, q, args, &res); err != nil {
		return errors.Join(common.ErrDatabase, fmt.Errorf("update invoice: %w", err))
	}
	return nil
}

// replaceLineItems deletes all line items of the invoice and inserts items in order.
func (r *invoiceRepository) replaceLineItems(ctx context.Context, ex dialect.ExecQuerier, invoiceID uuid.UUID, items []entity.LineItem) error {
	q, args := r.builder().Delete(TableLineItems).Where(entsql.EQ("invoice_id", invoiceID)).Query()
	if err := ex.Exec(ctx, q, args, nil); err != nil {
		return errors.Join(common.ErrDatabase, fmt.Errorf("delete line items: %w", err))
	}
	if len(items) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ins := r.builder().Insert(TableLineItems).Columns(lineItemColumns...)
	for i, li := range items {
		ins.Values(uuid.New(), invoiceID, i, li.Description, li.Quantity, li.UnitPrice, li.LineTotal, nullableFloat(li.Confidence), now)
	}
	q, args = ins.Query()
	if err := ex.Exec(ctx, q, args, nil); err != nil {
		return errors.Join(common.ErrDatabase, fmt.Errorf("insert line items: %w", err))
	}
	return nil
}
