package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

const (
	SheetInvoices  = "Invoices"
	SheetLineItems = "Line Items"
)

// Filter narrows an export. From/To compare against the invoice date, inclusive;
// invoices without a date are only included when neither bound is set.
type Filter struct {
	Status *constants.InvoiceStatus
	From   *time.Time
	To     *time.Time
}

// Service is a tiny façade over the invoice repository that produces XLSX bytes.
type Service struct {
	repo   repository.InvoiceRepository
	logger *slog.Logger
}

func NewService(repo repository.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

// ExportInvoicesXLSX returns a workbook with one row per invoice on the
// Invoices sheet and one row per line item on the Line Items sheet.
// If only From is provided the window ends today.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, filter Filter) ([]byte, error) {
	start := time.Now()
	filter = normalize(filter)

	invs, err := s.collect(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("query invoices: %w", err)
	}

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	// the default "Sheet1" becomes the invoices sheet
	if err := f.SetSheetName(f.GetSheetName(0), SheetInvoices); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(SheetLineItems); err != nil {
		return nil, err
	}
	f.SetActiveSheet(0)

	writeRow(f, SheetInvoices, 1, []any{
		"Invoice ID", "Invoice Date", "Supplier", "Invoice Number", "Currency",
		"Subtotal", "Total", "Confidence", "Status", "Model", "Extracted At", "File",
	})
	writeRow(f, SheetLineItems, 1, []any{
		"Invoice ID", "Position", "Description", "Quantity", "Unit Price", "Line Total", "Confidence",
	})

	itemRow := 2
	for i, inv := range invs {
		writeRow(f, SheetInvoices, i+2, []any{
			inv.ID.String(),
			dateCell(inv.InvoiceDate),
			deref(inv.SupplierName),
			deref(inv.InvoiceNumber),
			inv.Currency,
			inv.Subtotal.InexactFloat64(),
			inv.Total.InexactFloat64(),
			floatCell(inv.Confidence),
			string(inv.Status),
			deref(inv.ModelName),
			timeCell(inv.ExtractedAt),
			truncate(inv.OriginalFilename, 140),
		})
		for _, li := range inv.LineItems {
			writeRow(f, SheetLineItems, itemRow, []any{
				inv.ID.String(),
				li.Position + 1,
				truncate(li.Description, 140),
				li.Quantity.InexactFloat64(),
				li.UnitPrice.InexactFloat64(),
				li.LineTotal.InexactFloat64(),
				floatCell(li.Confidence),
			})
			itemRow++
		}
	}

	_ = f.SetColWidth(SheetInvoices, "A", "A", 38) // id
	_ = f.SetColWidth(SheetInvoices, "B", "B", 14) // date
	_ = f.SetColWidth(SheetInvoices, "C", "D", 28)
	_ = f.SetColWidth(SheetInvoices, "F", "H", 14) // amounts
	_ = f.SetColWidth(SheetInvoices, "K", "K", 22)
	_ = f.SetColWidth(SheetInvoices, "L", "L", 48)
	_ = f.SetColWidth(SheetLineItems, "A", "A", 38)
	_ = f.SetColWidth(SheetLineItems, "C", "C", 48)
	_ = f.SetColWidth(SheetLineItems, "D", "G", 14)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"invoices", len(invs),
		"line_items", itemRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// collect pages through the repository and applies the date window.
func (s *Service) collect(ctx context.Context, filter Filter) ([]*entity.Invoice, error) {
	var out []*entity.Invoice
	lf := repository.ListFilter{Page: 1, PageSize: repository.MaxPageSize, Status: filter.Status}
	for {
		page, total, err := s.repo.List(ctx, lf)
		if err != nil {
			return nil, err
		}
		for _, inv := range page {
			if !inWindow(inv.InvoiceDate, filter) {
				continue
			}
			items, err := s.repo.ListLineItems(ctx, inv.ID)
			if err != nil {
				return nil, err
			}
			inv.LineItems = items
			out = append(out, inv)
		}
		if len(page) == 0 || lf.Page*lf.PageSize >= total {
			return out, nil
		}
		lf.Page++
	}
}

func normalize(f Filter) Filter {
	if f.From != nil {
		d := entity.NewDate(*f.From).Time
		f.From = &d
	}
	if f.To != nil {
		d := entity.NewDate(*f.To).Time
		f.To = &d
	}
	if f.From != nil && f.To == nil {
		today := entity.NewDate(time.Now().UTC()).Time
		f.To = &today
	}
	return f
}

func inWindow(d *entity.Date, f Filter) bool {
	if f.From == nil && f.To == nil {
		return true
	}
	if d == nil {
		return false
	}
	if f.From != nil && d.Before(*f.From) {
		return false
	}
	if f.To != nil && d.After(*f.To) {
		return false
	}
	return true
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = f.SetCellValue(sheet, cell, v)
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func dateCell(d *entity.Date) string {
	if d == nil {
		return ""
	}
	return d.String()
}

func timeCell(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func floatCell(f *float64) any {
	if f == nil {
		return ""
	}
	return *f
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
