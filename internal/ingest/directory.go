package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/invoice-extractor/constants"
)

// ImportDirectory walks root, skips hidden entries if requested, and uploads
// every file with an allowed extension. Per-file failures are recorded in the
// results and do not stop the walk.
func (s *Service) ImportDirectory(ctx context.Context, root string, skipHidden bool) ([]ImportResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var results []ImportResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, ImportResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !constants.AllowedExt(filepath.Ext(path)) {
			return nil
		}
		stats.Matched++

		r := s.importFile(ctx, path)
		if r.Err != "" {
			stats.Failed++
		} else {
			stats.Succeeded++
		}
		results = append(results, r)
		return nil
	})

	s.logger.Info("ingest.import.done",
		"root", root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	return results, stats, nil
}

func (s *Service) importFile(ctx context.Context, path string) ImportResult {
	out := ImportResult{SourcePath: path}
	f, err := os.Open(path)
	if err != nil {
		out.Err = err.Error()
		return out
	}
	defer func() { _ = f.Close() }()

	inv, err := s.Upload(ctx, f, filepath.Base(path))
	if err != nil {
		s.logger.Warn("ingest.import.file_failed", "path", path, "error", err)
		out.Err = err.Error()
		return out
	}
	out.InvoiceID = inv.ID.String()
	out.StoredAs = filepath.Base(inv.FilePath)
	out.HashHex = inv.FileSHA256
	return out
}
