package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

type listQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=UPLOADED EXTRACTED NEEDS_REVIEW"`
}

type listResponse struct {
	Items    []*entity.Invoice `json:"items"`
	Page     int               `json:"page"`
	PageSize int               `json:"page_size"`
	Total    int               `json:"total"`
}

// updateRequest is a manual edit. Absent fields are left unchanged; an empty
// string clears supplier_name, invoice_number or invoice_date.
type updateRequest struct {
	SupplierName  *string            `json:"supplier_name"`
	InvoiceNumber *string            `json:"invoice_number"`
	InvoiceDate   *string            `json:"invoice_date"`
	Currency      *string            `json:"currency"`
	Subtotal      *decimal.Decimal   `json:"subtotal"`
	Total         *decimal.Decimal   `json:"total"`
	Confidence    *float64           `json:"confidence" binding:"omitempty,min=0,max=1"`
	Status        *string            `json:"status"`
	LineItems     *[]lineItemRequest `json:"line_items"`
}

type lineItemRequest struct {
	Description string           `json:"description"`
	Quantity    decimal.Decimal  `json:"quantity"`
	UnitPrice   decimal.Decimal  `json:"unit_price"`
	LineTotal   *decimal.Decimal `json:"line_total"`
	Confidence  *float64         `json:"confidence"`
}

func (h *handlers) listInvoices(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, invalidInput("invalid query parameters", err))
		return
	}

	filter := repository.ListFilter{Page: q.Page, PageSize: q.PageSize}
	if q.Status != "" {
		st := constants.InvoiceStatus(q.Status)
		filter.Status = &st
	}
	filter = filter.Normalize()

	items, total, err := h.deps.Invoices.List(c.Request.Context(), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	if items == nil {
		items = []*entity.Invoice{}
	}
	c.JSON(http.StatusOK, listResponse{Items: items, Page: filter.Page, PageSize: filter.PageSize, Total: total})
}

func (h *handlers) getInvoice(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}
	inv, err := h.deps.Invoices.GetByID(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, inv)
}

func (h *handlers) updateInvoice(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}
	var req updateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, invalidInput("invalid request body", err))
		return
	}
	patch, err := req.toPatch()
	if err != nil {
		respondError(c, err)
		return
	}

	inv, err := h.deps.Invoices.Update(c.Request.Context(), id, patch)
	if err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("invoice.update.ok", "req_id", common.RequestIDFromContext(c.Request.Context()), "invoice_id", id)
	c.JSON(http.StatusOK, inv)
}

func (h *handlers) deleteInvoice(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	inv, err := h.deps.Invoices.GetByID(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	if err := h.deps.Invoices.Delete(ctx, id); err != nil {
		respondError(c, err)
		return
	}
	if h.deps.Uploads != nil {
		h.deps.Uploads.RemoveFile(inv.FilePath)
	}
	h.logger.Info("invoice.delete.ok", "req_id", common.RequestIDFromContext(ctx), "invoice_id", id)
	c.Status(http.StatusNoContent)
}

func (h *handlers) extractInvoice(c *gin.Context) {
	id, ok := invoiceID(c)
	if !ok {
		return
	}
	res, err := h.deps.Extractor.ExtractInvoice(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if res.OK {
		c.JSON(http.StatusOK, extractBody{OK: true, Invoice: res.Invoice})
		return
	}
	c.JSON(http.StatusUnprocessableEntity, extractBody{
		OK:        false,
		Status:    string(constants.InvoiceStatusNeedsReview),
		ErrorCode: res.ErrorCode,
		Error:     res.Error,
		RawOutput: res.RawOutput,
		Invoice:   res.Invoice,
	})
}

func invoiceID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondError(c, invalidInput("id must be a UUID", nil))
		return uuid.Nil, false
	}
	return id, true
}

func (r updateRequest) toPatch() (repository.InvoicePatch, error) {
	statuses := make([]string, len(constants.InvoiceStatuses))
	for i, s := range constants.InvoiceStatuses {
		statuses[i] = string(s)
	}

	var currency *string
	if r.Currency != nil {
		cur := strings.ToUpper(strings.TrimSpace(*r.Currency))
		currency = &cur
	}

	v := common.NewValidator().
		Field("supplier_name", r.SupplierName, common.MaxLength(255)).
		Field("invoice_number", r.InvoiceNumber, common.MaxLength(128)).
		Field("invoice_date", r.InvoiceDate, common.DateYMD).
		Field("currency", currency, common.CurrencyCode).
		Field("status", r.Status, common.OneOf(statuses...))
	if r.Subtotal != nil && r.Subtotal.IsNegative() {
		v.Field("subtotal", r.Subtotal.String(), negative)
	}
	if r.Total != nil && r.Total.IsNegative() {
		v.Field("total", r.Total.String(), negative)
	}
	if r.LineItems != nil {
		for i, li := range *r.LineItems {
			name := fmt.Sprintf("line_items[%d]", i)
			v.Field(name+".description", li.Description, common.MaxLength(1000))
			if li.Confidence != nil && (*li.Confidence < 0 || *li.Confidence > 1) {
				v.Field(name+".confidence", *li.Confidence, outOfUnitRange)
			}
		}
	}
	if err := v.Error(); err != nil {
		return repository.InvoicePatch{}, err
	}

	p := repository.InvoicePatch{
		SupplierName:  r.SupplierName,
		InvoiceNumber: r.InvoiceNumber,
		InvoiceDate:   r.InvoiceDate,
		Currency:      currency,
		Subtotal:      r.Subtotal,
		Total:         r.Total,
		Confidence:    r.Confidence,
	}
	if r.Status != nil {
		st := constants.InvoiceStatus(*r.Status)
		p.Status = &st
	}
	if r.LineItems != nil {
		items := make([]entity.LineItem, len(*r.LineItems))
		for i, li := range *r.LineItems {
			total := li.Quantity.Mul(li.UnitPrice)
			if li.LineTotal != nil {
				total = *li.LineTotal
			}
			items[i] = entity.LineItem{
				Position:    i,
				Description: strings.TrimSpace(li.Description),
				Quantity:    li.Quantity,
				UnitPrice:   li.UnitPrice,
				LineTotal:   total,
				Confidence:  li.Confidence,
			}
		}
		p.LineItems = &items
	}
	return p, nil
}

func negative(field string, value interface{}) *common.ValidationError {
	return &common.ValidationError{Field: field, Value: value, Message: "must not be negative"}
}

func outOfUnitRange(field string, value interface{}) *common.ValidationError {
	return &common.ValidationError{Field: field, Value: value, Message: "must be between 0 and 1"}
}
