package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

var invoiceColumns = []string{
	"id", "file_path", "original_filename", "mime_type", "file_size", "file_sha256",
	"supplier_name", "invoice_number", "invoice_date", "currency", "subtotal", "total",
	"confidence", "status", "raw_output", "model_name", "extracted_at", "created_at", "updated_at",
}

var lineItemColumns = []string{
	"id", "invoice_id", "position", "description", "quantity", "unit_price", "line_total", "confidence", "created_at",
}

type scanner interface {
	Scan(dest ...any) error
}

// nullTime accepts the time representations both drivers hand back:
// time.Time from pgx, and time.Time or text from SQLite depending on the
// declared column type.
type nullTime struct {
	Time  time.Time
	Valid bool
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *nullTime) Scan(v any) error {
	switch x := v.(type) {
	case nil:
		t.Time, t.Valid = time.Time{}, false
		return nil
	case time.Time:
		t.Time, t.Valid = x, true
		return nil
	case string:
		return t.parse(x)
	case []byte:
		return t.parse(string(x))
	default:
		return fmt.Errorf("repository: cannot scan %T into time", v)
	}
}

func (t *nullTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time, t.Valid = parsed, true
			return nil
		}
	}
	return fmt.Errorf("repository: unrecognized time %q", s)
}

func (t nullTime) ptr() *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func scanInvoice(s scanner) (*entity.Invoice, error) {
	var (
		inv                                  entity.Invoice
		supplier, number, status, raw, model sql.NullString
		invoiceDate, extractedAt             nullTime
		createdAt, updatedAt                 nullTime
		confidence                           sql.NullFloat64
	)
	err := s.Scan(
		&inv.ID, &inv.FilePath, &inv.OriginalFilename, &inv.MIMEType, &inv.FileSize, &inv.FileSHA256,
		&supplier, &number, &invoiceDate, &inv.Currency, &inv.Subtotal, &inv.Total,
		&confidence, &status, &raw, &model, &extractedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	inv.SupplierName = stringPtr(supplier)
	inv.InvoiceNumber = stringPtr(number)
	inv.ModelName = stringPtr(model)
	if invoiceDate.Valid {
		d := entity.NewDate(invoiceDate.Time)
		inv.InvoiceDate = &d
	}
	if confidence.Valid {
		c := confidence.Float64
		inv.Confidence = &c
	}
	inv.Status = constants.InvoiceStatus(status.String)
	if raw.Valid && raw.String != "" {
		inv.RawOutput = json.RawMessage(raw.String)
	}
	inv.ExtractedAt = extractedAt.ptr()
	inv.CreatedAt = createdAt.Time.UTC()
	inv.UpdatedAt = updatedAt.Time.UTC()
	return &inv, nil
}

func scanLineItem(s scanner) (entity.LineItem, error) {
	var (
		li         entity.LineItem
		confidence sql.NullFloat64
		createdAt  nullTime
	)
	err := s.Scan(&li.ID, &li.InvoiceID, &li.Position, &li.Description,
		&li.Quantity, &li.UnitPrice, &li.LineTotal, &confidence, &createdAt)
	if err != nil {
		return li, err
	}
	if confidence.Valid {
		c := confidence.Float64
		li.Confidence = &c
	}
	li.CreatedAt = createdAt.Time.UTC()
	return li, nil
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// nullableString and friends turn optional fields into query arguments; nil stays SQL NULL.
func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableDate(d *entity.Date) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func nullableFloat(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
