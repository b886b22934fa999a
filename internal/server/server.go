package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
	"github.com/joseph-ayodele/invoice-extractor/internal/metrics"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	"github.com/joseph-ayodele/invoice-extractor/internal/ratelimit"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

// Uploader stores documents and creates their invoice rows.
type Uploader interface {
	Upload(ctx context.Context, r io.Reader, originalName string) (*entity.Invoice, error)
	RemoveFile(path string)
}

// InvoiceExtractor runs one extraction attempt for an invoice.
type InvoiceExtractor interface {
	ExtractInvoice(ctx context.Context, id uuid.UUID) (*pipeline.Result, error)
}

// Exporter renders invoices as a workbook.
type Exporter interface {
	ExportInvoicesXLSX(ctx context.Context, filter export.Filter) ([]byte, error)
}

// Deps are the collaborators of the HTTP API.
type Deps struct {
	Config         common.ServerConfig
	UploadDir      string
	// MaxUploadBytes caps the request body of an upload; zero disables the cap.
	MaxUploadBytes int64
	Logger         *slog.Logger
	DB             *entsql.Driver
	Invoices       repository.InvoiceRepository
	Uploads        Uploader
	Extractor      InvoiceExtractor
	Exporter       Exporter
	Metrics        *metrics.Metrics
	Limiter        ratelimit.Limiter
}

// NewRouter builds the gin engine with every route and middleware.
func NewRouter(d Deps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	h := &handlers{deps: d, logger: d.Logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(AccessLog(d.Logger))
	r.Use(Instrument(d.Metrics))
	r.Use(cors.New(corsConfig(d.Config.CORSAllowedOrigins)))

	r.GET("/healthz", h.health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}
	if d.UploadDir != "" {
		r.Static("/files", d.UploadDir)
	}

	api := r.Group("/api", RateLimit(d.Limiter, d.Logger))
	api.POST("/invoices", h.uploadInvoice)
	api.GET("/invoices", h.listInvoices)
	api.GET("/invoices/export.xlsx", h.exportInvoices)
	api.GET("/invoices/:id", h.getInvoice)
	api.PATCH("/invoices/:id", h.updateInvoice)
	api.DELETE("/invoices/:id", h.deleteInvoice)
	api.POST("/invoices/:id/extract", h.extractInvoice)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, errorBody{ErrorCode: common.CodeNotFound, Error: "route not found"})
	})
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = append(cfg.AllowHeaders, "Authorization", headerRequestID)
	cfg.ExposeHeaders = []string{headerRequestID, "Content-Disposition"}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

type handlers struct {
	deps   Deps
	logger *slog.Logger
}
