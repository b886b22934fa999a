package common

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
	ErrTooLarge     = errors.New("payload too large")
)

// Extraction failures. The first five are quality failures and end in NEEDS_REVIEW;
// configuration and persistence failures leave the invoice untouched.
var (
	ErrConfiguration   = errors.New("configuration error")
	ErrFileUnavailable = errors.New("file unavailable")
	ErrNoUsableText    = errors.New("no usable text")
	ErrModelCall       = errors.New("model call failed")
	ErrNoJSONFound     = errors.New("no json found")
	ErrMalformedJSON   = errors.New("malformed json")
	ErrPersistence     = errors.New("persistence error")
)

// Error codes surfaced to API callers and stored in failure payloads.
const (
	CodeConfig          = "CONFIG_ERROR"
	CodeConfiguration   = "CONFIGURATION_ERROR"
	CodeFileUnavailable = "FILE_UNAVAILABLE"
	CodeNoUsableText    = "NO_USABLE_TEXT"
	CodeModelCall       = "MODEL_CALL_ERROR"
	CodeNoJSONFound     = "NO_JSON_FOUND"
	CodeMalformedJSON   = "MALFORMED_JSON"
	CodePersistence     = "PERSISTENCE_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeInvalidInput    = "INVALID_INPUT"
	CodeConflict        = "CONFLICT"
	CodeTooLarge        = "PAYLOAD_TOO_LARGE"
	CodeInternal        = "INTERNAL"
)

var kindCodes = []struct {
	kind error
	code string
}{
	{ErrConfiguration, CodeConfiguration},
	{ErrFileUnavailable, CodeFileUnavailable},
	{ErrNoUsableText, CodeNoUsableText},
	{ErrModelCall, CodeModelCall},
	{ErrNoJSONFound, CodeNoJSONFound},
	{ErrMalformedJSON, CodeMalformedJSON},
	{ErrPersistence, CodePersistence},
	{ErrNotFound, CodeNotFound},
	{ErrInvalidInput, CodeInvalidInput},
	{ErrValidation, CodeInvalidInput},
	{ErrConflict, CodeConflict},
	{ErrTooLarge, CodeTooLarge},
}

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// newKindError keeps both the taxonomy sentinel and the underlying error matchable.
func newKindError(kind error, message string, cause error) *AppError {
	c := kind
	if cause != nil {
		c = fmt.Errorf("%w: %w", kind, cause)
	}
	return &AppError{Code: codeFor(kind), Message: message, Cause: c}
}

func ConfigurationError(message string) *AppError {
	return newKindError(ErrConfiguration, message, nil)
}

func FileUnavailableError(path string, cause error) *AppError {
	return newKindError(ErrFileUnavailable, "stored file is absent or unreadable: "+path, cause)
}

func NoUsableTextError(message string) *AppError {
	return newKindError(ErrNoUsableText, message, nil)
}

// ModelCallError carries the backend status (0 for transport failures) and diagnostic text.
func ModelCallError(backend string, status int, detail string, cause error) *AppError {
	msg := fmt.Sprintf("%s call failed", backend)
	if status > 0 {
		msg = fmt.Sprintf("%s status %d", backend, status)
	}
	if detail != "" {
		msg += ": " + detail
	}
	return newKindError(ErrModelCall, msg, cause)
}

func NoJSONFoundError() *AppError {
	return newKindError(ErrNoJSONFound, "model output contains no JSON object", nil)
}

func MalformedJSONError(cause error) *AppError {
	return newKindError(ErrMalformedJSON, "model output JSON could not be parsed", cause)
}

func PersistenceError(message string, cause error) *AppError {
	return newKindError(ErrPersistence, message, cause)
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func codeFor(kind error) string {
	for _, kc := range kindCodes {
		if kc.kind == kind {
			return kc.code
		}
	}
	return CodeInternal
}

// ErrorCode returns the API-facing code for err.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var ae *AppError
	if errors.As(err, &ae) && ae.Code != "" {
		return ae.Code
	}
	for _, kc := range kindCodes {
		if errors.Is(err, kc.kind) {
			return kc.code
		}
	}
	return CodeInternal
}

// IsReviewable reports whether err is a document or model quality failure that
// should move the invoice to NEEDS_REVIEW instead of surfacing as a hard error.
func IsReviewable(err error) bool {
	return errors.Is(err, ErrFileUnavailable) ||
		errors.Is(err, ErrNoUsableText) ||
		errors.Is(err, ErrModelCall) ||
		errors.Is(err, ErrNoJSONFound) ||
		errors.Is(err, ErrMalformedJSON)
}

// HTTPStatus maps an error to the response status used by the HTTP API.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	case errors.Is(err, ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case IsReviewable(err):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
