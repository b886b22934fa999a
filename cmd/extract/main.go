package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/provider"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
	svc "github.com/joseph-ayodele/invoice-extractor/internal/server"
	"github.com/joseph-ayodele/invoice-extractor/internal/textextract"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: extract <invoice_id> [times]")
		os.Exit(2)
	}
	invoiceID, err := uuid.Parse(os.Args[1])
	if err != nil {
		logger.Error("invalid invoice_id", "arg", os.Args[1], "error", err)
		os.Exit(2)
	}
	times := 1
	if len(os.Args) >= 3 {
		if n, err := strconv.Atoi(os.Args[2]); err == nil && n > 0 {
			times = n
		}
	}

	cfg, err := common.LoadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		logger.Error("invalid config", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(times)*2*time.Minute)
	defer cancel()

	drv, pool, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		os.Exit(1)
	}
	defer svc.CloseDB(drv, pool, logger)

	invoker, err := provider.New(cfg.LLM, logger)
	if err != nil {
		logger.Error("model backend", "error", err)
		os.Exit(1)
	}

	invoices := repository.NewInvoiceRepository(drv, logger)
	text := textextract.NewExtractor(textextract.Config{Pdftotext: cfg.Text.Pdftotext, MaxChars: cfg.Text.MaxChars}, logger)
	extractor := pipeline.NewExtractor(pipeline.Config{Mode: cfg.LLM.Mode}, text, invoker, nil, logger)
	processor := pipeline.NewProcessor(logger,
		pipeline.ProcessorConfig{Backend: invoker.Backend(), DefaultCurrency: cfg.LLM.DefaultCurrency},
		invoices, extractor, nil, nil)

	// run the same invoice repeatedly to compare model output across attempts
	for i := 1; i <= times; i++ {
		start := time.Now()
		logger.Info("extract.run.start", "iter", i, "invoice_id", invoiceID)

		res, err := processor.ExtractInvoice(ctx, invoiceID)
		switch {
		case err != nil:
			logger.Error("extract.run.error", "iter", i, "code", common.ErrorCode(err), "error", err)
		case res.OK:
			logger.Info("extract.run.ok",
				"iter", i,
				"line_items", len(res.Invoice.LineItems),
				"total", res.Invoice.Total.String(),
				"currency", res.Invoice.Currency,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
		default:
			logger.Warn("extract.run.needs_review", "iter", i, "code", res.ErrorCode, "error", res.Error)
		}

		if i < times {
			time.Sleep(750 * time.Millisecond)
		}
	}

	logger.Info("done", "invoice_id", invoiceID.String(), "times", times)
}
