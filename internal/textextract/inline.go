package textextract

import (
	"encoding/base64"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// InlineFile is a stored document forwarded to the model as raw bytes.
type InlineFile struct {
	Name     string
	MIMEType string
	Data     []byte
}

// Base64 returns the standard base64 encoding of the file bytes.
func (f InlineFile) Base64() string {
	return base64.StdEncoding.EncodeToString(f.Data)
}

// LoadInline reads path and resolves its MIME type from the fixed extension table.
func LoadInline(path string) (InlineFile, error) {
	mime := constants.MIMEForExt(filepath.Ext(path))
	if mime == "" {
		return InlineFile{}, common.NewAppError(common.CodeInvalidInput, "unsupported extension: "+filepath.Ext(path), common.ErrInvalidInput)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return InlineFile{}, common.FileUnavailableError(path, err)
	}
	return InlineFile{Name: filepath.Base(path), MIMEType: mime, Data: b}, nil
}
