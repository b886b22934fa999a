package entity

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// Invoice represents an uploaded invoice document and its extracted fields.
type Invoice struct {
	ID               uuid.UUID               `json:"id"`
	FilePath         string                  `json:"file_path"`
	OriginalFilename string                  `json:"original_filename,omitempty"`
	MIMEType         string                  `json:"mime_type,omitempty"`
	FileSize         int64                   `json:"file_size"`
	FileSHA256       string                  `json:"file_sha256,omitempty"`
	SupplierName     *string                 `json:"supplier_name"`
	InvoiceNumber    *string                 `json:"invoice_number"`
	InvoiceDate      *Date                   `json:"invoice_date"`
	Currency         string                  `json:"currency"`
	Subtotal         decimal.Decimal         `json:"subtotal"`
	Total            decimal.Decimal         `json:"total"`
	Confidence       *float64                `json:"confidence"`
	Status           constants.InvoiceStatus `json:"status"`
	RawOutput        json.RawMessage         `json:"raw_output,omitempty"`
	ModelName        *string                 `json:"model_name"`
	ExtractedAt      *time.Time              `json:"extracted_at"`
	CreatedAt        time.Time               `json:"created_at"`
	UpdatedAt        time.Time               `json:"updated_at"`

	LineItems []LineItem `json:"line_items,omitempty"`
}

// LineItem is one itemized charge owned by exactly one invoice.
type LineItem struct {
	ID          uuid.UUID       `json:"id"`
	InvoiceID   uuid.UUID       `json:"invoice_id"`
	Position    int             `json:"position"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	LineTotal   decimal.Decimal `json:"line_total"`
	Confidence  *float64        `json:"confidence,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}
