package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// multipartOverhead is the allowance for boundaries and part headers on top of
// the file itself.
const multipartOverhead = 1 << 20

// uploadInvoice accepts a multipart "file" field and creates an UPLOADED invoice.
func (h *handlers) uploadInvoice(c *gin.Context) {
	ctx := c.Request.Context()
	if limit := h.deps.MaxUploadBytes; limit > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+multipartOverhead)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		if bodyTooLarge(err) {
			respondError(c, common.NewAppError(common.CodeTooLarge, "request body too large", common.ErrTooLarge))
			return
		}
		if errors.Is(err, http.ErrMissingFile) {
			respondError(c, invalidInput("multipart field \"file\" is required", nil))
			return
		}
		respondError(c, invalidInput("invalid multipart body", err))
		return
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, common.WrapError(err, "open upload"))
		return
	}
	defer func() { _ = f.Close() }()

	inv, err := h.deps.Uploads.Upload(ctx, f, fh.Filename)
	if err != nil {
		respondError(c, err)
		return
	}
	h.logger.Info("invoice.upload.ok",
		"req_id", common.RequestIDFromContext(ctx),
		"invoice_id", inv.ID,
		"filename", fh.Filename,
		"size", inv.FileSize,
	)
	c.JSON(http.StatusCreated, inv)
}

// bodyTooLarge reports whether err came from the request body cap. The
// multipart reader does not always wrap the underlying read error.
func bodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe) || strings.Contains(err.Error(), "http: request body too large")
}
