package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/textextract"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if len(os.Args) != 2 {
		logger.Error("usage", "cmd", "textdump <file.pdf|file.png|file.jpg>")
		os.Exit(2)
	}
	path := os.Args[1]

	cfg, err := common.LoadConfig()
	if err != nil {
		logger.Error("load config", "error", err)
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	x := textextract.NewExtractor(textextract.Config{
		Pdftotext: cfg.Text.Pdftotext,
		MaxChars:  cfg.Text.MaxChars,
	}, logger)

	res, err := x.Extract(ctx, path)
	if err != nil {
		logger.Error("text extraction failed", "path", path, "code", common.ErrorCode(err), "error", err)
		os.Exit(1)
	}

	logger.Info("text extraction OK",
		"method", res.Method,
		"mime", res.MIMEType,
		"pages", res.Pages,
		"binary", res.Binary,
		"chars", len([]rune(res.Text)),
		"warnings", res.Warnings,
		"duration_ms", res.Duration.Milliseconds(),
	)
	fmt.Println(res.Text)
}
