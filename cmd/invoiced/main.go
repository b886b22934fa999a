package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
	"github.com/joseph-ayodele/invoice-extractor/internal/ingest"
	"github.com/joseph-ayodele/invoice-extractor/internal/llm/provider"
	"github.com/joseph-ayodele/invoice-extractor/internal/metrics"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	"github.com/joseph-ayodele/invoice-extractor/internal/ratelimit"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
	svc "github.com/joseph-ayodele/invoice-extractor/internal/server"
	"github.com/joseph-ayodele/invoice-extractor/internal/textextract"
)

func main() {
	cfg, err := common.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(2)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(2)
	}

	logger, flush, err := common.NewLogger(cfg.Log)
	if err != nil {
		slog.Error("failed to build logger", "error", err)
		os.Exit(2)
	}
	defer flush()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	drv, pool, err := svc.ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		os.Exit(1)
	}
	defer svc.CloseDB(drv, pool, logger)

	if err := svc.PingDB(ctx, drv, logger, 5*time.Second); err != nil {
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}

	store := ingest.NewStore(cfg.Storage.UploadDir, cfg.Storage.MaxUploadBytes, logger)
	if err := store.EnsureDir(); err != nil {
		logger.Error("upload directory unavailable", "dir", cfg.Storage.UploadDir, "error", err)
		os.Exit(1)
	}

	invoker, err := provider.New(cfg.LLM, logger)
	if err != nil {
		logger.Error("failed to configure model backend", "backend", cfg.LLM.Backend, "error", err)
		os.Exit(1)
	}

	m := metrics.New(nil)
	invoices := repository.NewInvoiceRepository(drv, logger)

	var (
		rdb     *redis.Client
		limiter ratelimit.Limiter
	)
	if cfg.Server.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Server.RedisAddr,
			Password: cfg.Server.RedisPassword,
			DB:       cfg.Server.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, rate limiting fails open", "addr", cfg.Server.RedisAddr, "error", err)
		}
	}
	if cfg.Server.RateLimitRPS > 0 {
		if rdb != nil {
			limiter = ratelimit.NewTokenBucket(rdb, "invoiced:ratelimit:", cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		} else {
			limiter = ratelimit.NewLocalLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
		}
	}

	text := textextract.NewExtractor(textextract.Config{
		Pdftotext: cfg.Text.Pdftotext,
		MaxChars:  cfg.Text.MaxChars,
	}, logger)
	extractor := pipeline.NewExtractor(pipeline.Config{Mode: cfg.LLM.Mode}, text, invoker, m, logger)
	processor := pipeline.NewProcessor(logger,
		pipeline.ProcessorConfig{Backend: invoker.Backend(), DefaultCurrency: cfg.LLM.DefaultCurrency},
		invoices, extractor,
		ratelimit.NewInvoiceLocker(rdb, cfg.Server.ExtractLockTTL, logger),
		m,
	)

	router := svc.NewRouter(svc.Deps{
		Config:         cfg.Server,
		UploadDir:      store.Dir(),
		MaxUploadBytes: cfg.Storage.MaxUploadBytes,
		Logger:         logger,
		DB:             drv,
		Invoices:       invoices,
		Uploads:        ingest.NewService(store, invoices, cfg.LLM.DefaultCurrency, logger),
		Extractor:      processor,
		Exporter:       export.NewService(invoices, logger),
		Metrics:        m,
		Limiter:        limiter,
	})
	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	grpcServer, health := svc.NewGRPCServer()
	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go svc.WatchDatabase(ctx, health, drv, 15*time.Second, logger)

	logger.Info("invoiced listening",
		"http_addr", cfg.Server.HTTPAddr,
		"grpc_addr", cfg.Server.GRPCAddr,
		"backend", invoker.Backend(),
		"model", invoker.Model(),
		"extract_mode", cfg.LLM.Mode,
	)
	go func() {
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC serve error", "error", err)
			stop()
		}
	}()
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP serve error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", "error", err)
	}
	grpcServer.GracefulStop()
}
