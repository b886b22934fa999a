package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/ingest"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
	svc "github.com/joseph-ayodele/invoice-extractor/internal/server"
)

func main() {
	root := flag.String("root", "", "directory to import invoices from (recursive)")
	skipHidden := flag.Bool("skip-hidden", true, "skip hidden files and directories")
	flag.Parse()

	if *root == "" {
		slog.Error("usage", "cmd", "import -root <dir> [-skip-hidden=false]")
		os.Exit(2)
	}

	cfg, err := common.LoadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(2)
	}
	logger, flush, err := common.NewLogger(cfg.Log)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(2)
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drv, pool, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		os.Exit(1)
	}
	defer svc.CloseDB(drv, pool, logger)

	store := ingest.NewStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes, logger)
	if err := store.EnsureDir(); err != nil {
		logger.Error("upload directory unavailable", "dir", cfg.Storage.UploadDir, "error", err)
		os.Exit(1)
	}

	uploader := ingest.NewService(store, repository.NewInvoiceRepository(drv, logger), cfg.LLM.DefaultCurrency, logger)
	results, stats, err := uploader.ImportDirectory(ctx, *root, *skipHidden)
	if err != nil {
		logger.Error("import failed", "root", *root, "error", err)
		os.Exit(1)
	}
	for _, r := range results {
		if r.Err != "" {
			logger.Warn("import.file.failed", "path", r.SourcePath, "error", r.Err)
		}
	}
	logger.Info("import.done",
		"root", *root,
		"scanned", stats.Scanned,
		"matched", stats.Matched,
		"succeeded", stats.Succeeded,
		"failed", stats.Failed,
	)
	if stats.Failed > 0 {
		os.Exit(1)
	}
}
