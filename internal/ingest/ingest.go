package ingest

import (
	"context"
	"io"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
)

// StoredFile describes an upload after it has been written under the upload directory.
type StoredFile struct {
	Path             string
	Name             string // <uuid>.<ext>, relative to the upload directory
	OriginalFilename string
	Ext              string
	MIMEType         string
	Size             int64
	SHA256Hex        string
	StoredAt         time.Time
}

// ImportResult is the per-file outcome of a directory import.
type ImportResult struct {
	SourcePath string
	InvoiceID  string
	StoredAs   string
	HashHex    string
	Err        string
}

// DirStats summarizes a directory import.
type DirStats struct {
	Scanned   uint32
	Matched   uint32
	Succeeded uint32
	Failed    uint32
}

// Uploader is what the HTTP layer and the import command depend on.
type Uploader interface {
	// Upload stores r and creates an UPLOADED invoice pointing at it.
	Upload(ctx context.Context, r io.Reader, originalName string) (*entity.Invoice, error)
	// ImportDirectory uploads every allowed file under root.
	ImportDirectory(ctx context.Context, root string, skipHidden bool) ([]ImportResult, DirStats, error)
}
