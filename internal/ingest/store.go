package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// sniffLen is the number of bytes http.DetectContentType looks at.
const sniffLen = 512

// Store writes uploads to the local filesystem.
type Store struct {
	dir      string
	maxBytes int64
	logger   *slog.Logger
}

func NewStore(dir string, maxBytes int64, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	if maxBytes <= 0 {
		maxBytes = 10 << 20
	}
	return &Store{dir: dir, maxBytes: maxBytes, logger: logger}
}

// Dir returns the upload directory.
func (s *Store) Dir() string { return s.dir }

// EnsureDir creates the upload directory if it does not exist.
func (s *Store) EnsureDir() error {
	if strings.TrimSpace(s.dir) == "" {
		return common.ConfigurationError("UPLOAD_DIR is empty")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create upload dir %s: %w", s.dir, err)
	}
	return nil
}

// Save streams r to <dir>/<uuid>.<ext>. The extension must be allowed, the
// sniffed content type must agree with it, and the body must fit maxBytes.
func (s *Store) Save(ctx context.Context, r io.Reader, originalName string) (StoredFile, error) {
	start := time.Now()
	var out StoredFile

	ext := constants.NormalizeExt(filepath.Ext(originalName))
	if ext == "" || !constants.AllowedExt(ext) {
		s.logger.Warn("ingest.save.rejected", "filename", originalName, "reason", "extension")
		return out, invalid("unsupported or missing extension: %q", ext)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return out, common.WrapError(err, "read upload")
	}
	head = head[:n]
	if n == 0 {
		return out, invalid("empty file")
	}

	want := constants.MIMEForExt(ext)
	got := sniffedType(head)
	if got != want {
		s.logger.Warn("ingest.save.rejected", "filename", originalName, "reason", "content_type", "sniffed", got, "expected", want)
		return out, invalid("content does not match extension %q (detected %s)", ext, got)
	}

	name := uuid.NewString() + "." + ext
	path := filepath.Join(s.dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		s.logger.Error("ingest.save.open_failed", "path", path, "error", err)
		return out, common.WrapError(err, "create upload file")
	}

	h := sha256.New()
	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), contextReader{ctx: ctx, r: r}), s.maxBytes+1)
	written, copyErr := io.Copy(io.MultiWriter(f, h), body)
	closeErr := f.Close()

	switch {
	case copyErr != nil:
		s.Remove(path)
		return out, common.WrapError(copyErr, "write upload")
	case closeErr != nil:
		s.Remove(path)
		return out, common.WrapError(closeErr, "close upload")
	case written > s.maxBytes:
		s.Remove(path)
		s.logger.Warn("ingest.save.rejected", "filename", originalName, "reason", "size", "max_bytes", s.maxBytes)
		return out, common.NewAppError(common.CodeTooLarge, fmt.Sprintf("file exceeds %d bytes", s.maxBytes), common.ErrTooLarge)
	}

	out = StoredFile{
		Path:             path,
		Name:             name,
		OriginalFilename: filepath.Base(originalName),
		Ext:              ext,
		MIMEType:         want,
		Size:             written,
		SHA256Hex:        hex.EncodeToString(h.Sum(nil)),
		StoredAt:         time.Now().UTC(),
	}
	s.logger.Info("ingest.save.ok",
		"path", path,
		"original_filename", out.OriginalFilename,
		"size", written,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// Remove deletes a stored file. Failures are logged and otherwise ignored.
func (s *Store) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("ingest.remove.failed", "path", path, "error", err)
	}
}

// sniffedType returns the media type without parameters.
func sniffedType(head []byte) string {
	ct := http.DetectContentType(head)
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.TrimSpace(ct)
}

func invalid(format string, args ...any) error {
	return common.NewAppError(common.CodeInvalidInput, fmt.Sprintf(format, args...), common.ErrInvalidInput)
}

// contextReader stops a long upload copy once ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
