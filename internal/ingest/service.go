package ingest

import (
	"context"
	"io"
	"log/slog"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// Service stores uploaded documents and creates their invoice rows.
type Service struct {
	store           *Store
	repo            repository.InvoiceRepository
	defaultCurrency string
	logger          *slog.Logger
}

func NewService(store *Store, repo repository.InvoiceRepository, defaultCurrency string, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, repo: repo, defaultCurrency: defaultCurrency, logger: logger}
}

var _ Uploader = (*Service)(nil)

// Upload saves the file and creates an invoice in status UPLOADED. The stored
// file is removed again if the row cannot be created.
func (s *Service) Upload(ctx context.Context, r io.Reader, originalName string) (*entity.Invoice, error) {
	sf, err := s.store.Save(ctx, r, originalName)
	if err != nil {
		return nil, err
	}

	inv, err := s.repo.Create(ctx, &entity.Invoice{
		FilePath:         sf.Path,
		OriginalFilename: sf.OriginalFilename,
		MIMEType:         sf.MIMEType,
		FileSize:         sf.Size,
		FileSHA256:       sf.SHA256Hex,
		Currency:         s.defaultCurrency,
		Status:           constants.InvoiceStatusUploaded,
	})
	if err != nil {
		s.store.Remove(sf.Path)
		return nil, err
	}
	s.logger.Info("ingest.upload.ok", "invoice_id", inv.ID, "file", sf.Name, "sha256", sf.SHA256Hex)
	return inv, nil
}

// RemoveFile deletes the stored document of a deleted invoice.
func (s *Service) RemoveFile(path string) { s.store.Remove(path) }
