package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

type errorBody struct {
	ErrorCode string `json:"error_code"`
	Error     string `json:"error"`
}

// extractBody is the response of POST /api/invoices/:id/extract.
type extractBody struct {
	OK        bool            `json:"ok"`
	Status    string          `json:"status,omitempty"`
	ErrorCode string          `json:"error_code,omitempty"`
	Error     string          `json:"error,omitempty"`
	RawOutput json.RawMessage `json:"raw_output,omitempty"`
	Invoice   *entity.Invoice `json:"invoice,omitempty"`
}

// respondError maps err through the error taxonomy and writes it as JSON.
func respondError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(common.HTTPStatus(err), errorBody{
		ErrorCode: common.ErrorCode(err),
		Error:     message(err),
	})
}

// message is the client-facing text: the short message for client errors,
// the full chain for server errors.
func message(err error) string {
	var ae *common.AppError
	if errors.As(err, &ae) && common.HTTPStatus(err) < http.StatusInternalServerError {
		return ae.Message
	}
	return err.Error()
}

func invalidInput(msg string, cause error) error {
	if cause == nil {
		cause = common.ErrInvalidInput
	} else {
		cause = errors.Join(common.ErrInvalidInput, cause)
	}
	return common.NewAppError(common.CodeInvalidInput, msg, cause)
}
