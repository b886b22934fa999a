package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// exportInvoices streams an XLSX workbook. Optional query parameters:
// status, from_date and to_date (YYYY-MM-DD, inclusive).
func (h *handlers) exportInvoices(c *gin.Context) {
	ctx := c.Request.Context()
	var filter export.Filter

	if s := strings.TrimSpace(c.Query("status")); s != "" {
		if !constants.ValidStatus(s) {
			respondError(c, invalidInput("status must be one of UPLOADED, EXTRACTED, NEEDS_REVIEW", nil))
			return
		}
		st := constants.InvoiceStatus(s)
		filter.Status = &st
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from_date", &filter.From}, {"to_date", &filter.To}} {
		v := strings.TrimSpace(c.Query(p.name))
		if v == "" {
			continue
		}
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			respondError(c, invalidInput(p.name+" must be YYYY-MM-DD", nil))
			return
		}
		*p.dst = &t
	}

	xlsx, err := h.deps.Exporter.ExportInvoicesXLSX(ctx, filter)
	if err != nil {
		h.logger.Error("export.xlsx.failed", "req_id", common.RequestIDFromContext(ctx), "error", err)
		respondError(c, err)
		return
	}

	name := "invoices-" + time.Now().UTC().Format("20060102") + ".xlsx"
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, xlsxContentType, xlsx)
}
