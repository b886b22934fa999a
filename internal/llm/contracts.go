package llm

import (
	"context"
	"encoding/base64"
	"strings"
)

// Attachment is a document forwarded to the model as raw bytes.
type Attachment struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Base64 returns the standard base64 encoding of the attachment bytes.
func (a Attachment) Base64() string {
	return base64.StdEncoding.EncodeToString(a.Data)
}

// DataURL renders the attachment as a data: URL.
func (a Attachment) DataURL() string {
	return "data:" + a.MIMEType + ";base64," + a.Base64()
}

// IsImage reports whether the attachment is an image rather than a document.
func (a Attachment) IsImage() bool {
	return strings.HasPrefix(a.MIMEType, "image/")
}

// Request is a single instruction string, optionally with the file attached natively.
type Request struct {
	Prompt     string
	Attachment *Attachment
}

// Invoker calls a model backend synchronously and returns its native response.
// Implementations fail with a ConfigurationError before any network call when
// credentials are missing and with a ModelCallError on transport or HTTP failure.
type Invoker interface {
	Invoke(ctx context.Context, req Request) (*Response, error)
	Backend() string
	Model() string
	SupportsAttachments() bool
}
