package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/invoice-extractor/constants"
	"github.com/joseph-ayodele/invoice-extractor/internal/common"
	"github.com/joseph-ayodele/invoice-extractor/internal/entity"
	"github.com/joseph-ayodele/invoice-extractor/internal/export"
	"github.com/joseph-ayodele/invoice-extractor/internal/ingest"
	"github.com/joseph-ayodele/invoice-extractor/internal/metrics"
	"github.com/joseph-ayodele/invoice-extractor/internal/pipeline"
	"github.com/joseph-ayodele/invoice-extractor/internal/ratelimit"
	"github.com/joseph-ayodele/invoice-extractor/internal/repository"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\n")

func init() { gin.SetMode(gin.TestMode) }

func testLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeExtractor struct {
	res *pipeline.Result
	err error
	ids []uuid.UUID
}

func (f *fakeExtractor) ExtractInvoice(_ context.Context, id uuid.UUID) (*pipeline.Result, error) {
	f.ids = append(f.ids, id)
	return f.res, f.err
}

type testServer struct {
	router    *gin.Engine
	repo      repository.InvoiceRepository
	extractor *fakeExtractor
	uploadDir string
}

func newTestServer(t *testing.T, opts ...func(*Deps)) *testServer {
	t.Helper()
	ctx := context.Background()
	drv, err := repository.OpenSQLite(ctx, filepath.Join(t.TempDir(), "invoices.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = drv.Close() })
	require.NoError(t, repository.Migrate(ctx, drv, testLogger()))

	repo := repository.NewInvoiceRepository(drv, testLogger())
	dir := t.TempDir()
	store := ingest.NewStore(dir, 1<<20, testLogger())
	fx := &fakeExtractor{}

	deps := Deps{
		UploadDir: dir,
		Logger:    testLogger(),
		DB:        drv,
		Invoices:  repo,
		Uploads:   ingest.NewService(store, repo, "USD", testLogger()),
		Extractor: fx,
		Exporter:  export.NewService(repo, testLogger()),
		Metrics:   metrics.New(nil),
	}
	for _, o := range opts {
		o(&deps)
	}
	return &testServer{router: NewRouter(deps), repo: repo, extractor: fx, uploadDir: dir}
}

func (s *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *testServer) doJSON(method, path string, body any) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	return s.do(req)
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/invoices", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func (s *testServer) upload(t *testing.T) *entity.Invoice {
	t.Helper()
	w := s.do(uploadRequest(t, "acme.pdf", pdfBytes))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var inv entity.Invoice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &inv))
	return &inv
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body
}

func TestUploadInvoice(t *testing.T) {
	s := newTestServer(t)
	inv := s.upload(t)

	assert.NotEqual(t, uuid.Nil, inv.ID)
	assert.Equal(t, constants.InvoiceStatusUploaded, inv.Status)
	assert.Equal(t, "USD", inv.Currency)
	assert.Equal(t, "acme.pdf", inv.OriginalFilename)
	assert.Equal(t, int64(len(pdfBytes)), inv.FileSize)
	assert.FileExists(t, inv.FilePath)
}

func TestUploadInvoiceRejected(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name     string
		req      func(t *testing.T) *http.Request
		wantCode int
	}{
		{
			name: "missing file field",
			req: func(t *testing.T) *http.Request {
				var buf bytes.Buffer
				mw := multipart.NewWriter(&buf)
				require.NoError(t, mw.WriteField("note", "x"))
				require.NoError(t, mw.Close())
				r := httptest.NewRequest(http.MethodPost, "/api/invoices", &buf)
				r.Header.Set("Content-Type", mw.FormDataContentType())
				return r
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unsupported extension",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "notes.txt", []byte("hello")) },
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "content does not match extension",
			req:      func(t *testing.T) *http.Request { return uploadRequest(t, "scan.png", pdfBytes) },
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.do(tt.req(t))
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, common.CodeInvalidInput, decodeError(t, w).ErrorCode)
		})
	}

	des, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, des)
}

func TestUploadInvoiceTooLarge(t *testing.T) {
	s := newTestServer(t)
	big := append(append([]byte{}, pdfBytes...), bytes.Repeat([]byte("x"), 1<<20)...)

	w := s.do(uploadRequest(t, "big.pdf", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, common.CodeTooLarge, decodeError(t, w).ErrorCode)
}

func TestUploadInvoiceBodyCappedBeforeParsing(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.MaxUploadBytes = 1024 })
	big := append(append([]byte{}, pdfBytes...), bytes.Repeat([]byte("x"), 3<<20)...)

	w := s.do(uploadRequest(t, "big.pdf", big))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, common.CodeTooLarge, decodeError(t, w).ErrorCode)

	des, err := os.ReadDir(s.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, des)

	w = s.do(uploadRequest(t, "small.pdf", pdfBytes))
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestListInvoices(t *testing.T) {
	s := newTestServer(t)
	for i := 0; i < 3; i++ {
		s.upload(t)
	}

	w := s.doJSON(http.MethodGet, "/api/invoices?page=1&page_size=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var resp listResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Items, 2)
	assert.Equal(t, 3, resp.Total)
	assert.Equal(t, 2, resp.PageSize)

	w = s.doJSON(http.MethodGet, "/api/invoices?status=EXTRACTED", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Empty(t, resp.Items)
	assert.NotNil(t, resp.Items)
	assert.Equal(t, 0, resp.Total)
	assert.Contains(t, w.Body.String(), `"items":[]`)

	for _, q := range []string{"page=0", "page_size=101", "status=DONE"} {
		w = s.doJSON(http.MethodGet, "/api/invoices?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestGetInvoice(t *testing.T) {
	s := newTestServer(t)
	inv := s.upload(t)

	w := s.doJSON(http.MethodGet, "/api/invoices/"+inv.ID.String(), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var got entity.Invoice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, inv.ID, got.ID)

	w = s.doJSON(http.MethodGet, "/api/invoices/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.CodeNotFound, decodeError(t, w).ErrorCode)

	w = s.doJSON(http.MethodGet, "/api/invoices/not-a-uuid", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateInvoice(t *testing.T) {
	s := newTestServer(t)
	inv := s.upload(t)

	w := s.doJSON(http.MethodPatch, "/api/invoices/"+inv.ID.String(), map[string]any{
		"supplier_name":  "Acme GmbH",
		"invoice_number": "INV-7",
		"invoice_date":   "2024-03-01",
		"currency":       "eur",
		"total":          "42.50",
		"status":         "EXTRACTED",
		"line_items": []map[string]any{
			{"description": "Widget", "quantity": "2", "unit_price": "10.25"},
			{"description": "Shipping", "quantity": "1", "unit_price": "22", "line_total": "22.00", "confidence": 0.5},
		},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var got entity.Invoice
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	require.NotNil(t, got.SupplierName)
	assert.Equal(t, "Acme GmbH", *got.SupplierName)
	assert.Equal(t, "EUR", got.Currency)
	assert.Equal(t, "42.5", got.Total.String())
	assert.Equal(t, constants.InvoiceStatusExtracted, got.Status)
	require.Len(t, got.LineItems, 2)
	assert.Equal(t, "20.5", got.LineItems[0].LineTotal.String())
	assert.Equal(t, 1, got.LineItems[1].Position)

	// empty string clears, absent fields stay
	w = s.doJSON(http.MethodPatch, "/api/invoices/"+inv.ID.String(), map[string]any{"supplier_name": ""})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Nil(t, got.SupplierName)
	require.NotNil(t, got.InvoiceNumber)
	assert.Equal(t, "INV-7", *got.InvoiceNumber)
	assert.Len(t, got.LineItems, 2)
}

func TestUpdateInvoiceValidation(t *testing.T) {
	s := newTestServer(t)
	inv := s.upload(t)

	tests := []struct {
		name    string
		body    any
		wantMsg string
	}{
		{name: "bad date", body: map[string]any{"invoice_date": "2024-13-01"}, wantMsg: "invoice_date"},
		{name: "bad currency", body: map[string]any{"currency": "EURO"}, wantMsg: "currency"},
		{name: "unknown status", body: map[string]any{"status": "DONE"}, wantMsg: "status"},
		{name: "negative total", body: map[string]any{"total": "-1"}, wantMsg: "total"},
		{name: "confidence out of range", body: map[string]any{"confidence": 1.5}, wantMsg: ""},
		{
			name:    "line item confidence",
			body:    map[string]any{"line_items": []map[string]any{{"description": "x", "quantity": "1", "unit_price": "1", "confidence": 2}}},
			wantMsg: "line_items[0].confidence",
		},
		{name: "supplier too long", body: map[string]any{"supplier_name": strings.Repeat("a", 256)}, wantMsg: "supplier_name"},
		{name: "not json", body: "nope", wantMsg: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := s.doJSON(http.MethodPatch, "/api/invoices/"+inv.ID.String(), tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
			body := decodeError(t, w)
			assert.Equal(t, common.CodeInvalidInput, body.ErrorCode)
			assert.Contains(t, body.Error, tt.wantMsg)
		})
	}

	got, err := s.repo.GetByID(context.Background(), inv.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.InvoiceStatusUploaded, got.Status)
	assert.Equal(t, "USD", got.Currency)
}

func TestDeleteInvoice(t *testing.T) {
	s := newTestServer(t)
	inv := s.upload(t)

	w := s.doJSON(http.MethodDelete, "/api/invoices/"+inv.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.NoFileExists(t, inv.FilePath)

	_, err := s.repo.GetByID(context.Background(), inv.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)

	w = s.doJSON(http.MethodDelete, "/api/invoices/"+inv.ID.String(), nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestExtractInvoice(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name     string
		res      *pipeline.Result
		err      error
		wantCode int
		check    func(t *testing.T, body []byte)
	}{
		{
			name:     "extracted",
			res:      &pipeline.Result{OK: true, Invoice: &entity.Invoice{ID: id, Status: constants.InvoiceStatusExtracted}},
			wantCode: http.StatusOK,
			check: func(t *testing.T, body []byte) {
				var b extractBody
				require.NoError(t, json.Unmarshal(body, &b))
				assert.True(t, b.OK)
				require.NotNil(t, b.Invoice)
				assert.Equal(t, id, b.Invoice.ID)
			},
		},
		{
			name: "needs review",
			res: &pipeline.Result{
				ErrorCode: common.CodeNoJSONFound,
				Error:     "no json found",
				RawOutput: json.RawMessage(`{"error":"NO_JSON_FOUND","raw_text":"sorry"}`),
				Invoice:   &entity.Invoice{ID: id, Status: constants.InvoiceStatusNeedsReview},
			},
			wantCode: http.StatusUnprocessableEntity,
			check: func(t *testing.T, body []byte) {
				var b extractBody
				require.NoError(t, json.Unmarshal(body, &b))
				assert.False(t, b.OK)
				assert.Equal(t, "NEEDS_REVIEW", b.Status)
				assert.Equal(t, common.CodeNoJSONFound, b.ErrorCode)
				assert.JSONEq(t, `{"error":"NO_JSON_FOUND","raw_text":"sorry"}`, string(b.RawOutput))
			},
		},
		{
			name:     "extraction in progress",
			err:      common.NewAppError(common.CodeConflict, "extraction already running", common.ErrConflict),
			wantCode: http.StatusConflict,
		},
		{
			name:     "not found",
			err:      common.NewAppError(common.CodeNotFound, "invoice not found", common.ErrNotFound),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "configuration",
			err:      common.ConfigurationError("OPENAI_API_KEY is not set"),
			wantCode: http.StatusInternalServerError,
			check: func(t *testing.T, body []byte) {
				var b errorBody
				require.NoError(t, json.Unmarshal(body, &b))
				assert.Equal(t, common.CodeConfiguration, b.ErrorCode)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.extractor.res, s.extractor.err = tt.res, tt.err

			w := s.doJSON(http.MethodPost, "/api/invoices/"+id.String()+"/extract", nil)
			assert.Equal(t, tt.wantCode, w.Code, w.Body.String())
			assert.Equal(t, []uuid.UUID{id}, s.extractor.ids)
			if tt.check != nil {
				tt.check(t, w.Body.Bytes())
			}
		})
	}
}

func TestExportInvoices(t *testing.T) {
	s := newTestServer(t)
	inv := s.upload(t)
	_, err := s.repo.Update(context.Background(), inv.ID, repository.InvoicePatch{InvoiceDate: strp("2024-03-01")})
	require.NoError(t, err)

	w := s.doJSON(http.MethodGet, "/api/invoices/export.xlsx?from_date=2024-01-01&to_date=2024-12-31", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment;")

	f, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	rows, err := f.GetRows(export.SheetInvoices)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	for _, q := range []string{"from_date=yesterday", "to_date=2024-02-30", "status=DONE"} {
		w = s.doJSON(http.MethodGet, "/api/invoices/export.xlsx?"+q, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}
}

func TestRequestID(t *testing.T) {
	s := newTestServer(t)

	w := s.doJSON(http.MethodGet, "/healthz", nil)
	_, err := uuid.Parse(w.Header().Get(headerRequestID))
	assert.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w = s.do(req)
	assert.Equal(t, "abc-123", w.Header().Get(headerRequestID))
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	w := s.doJSON(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","database":"ok"}`, w.Body.String())
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Limiter = ratelimit.NewLocalLimiter(0, 2) })

	for i := 0; i < 2; i++ {
		w := s.doJSON(http.MethodGet, "/api/invoices", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	w := s.doJSON(http.MethodGet, "/api/invoices", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", decodeError(t, w).ErrorCode)

	// health and metrics are outside the limited group
	w = s.doJSON(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

type failingLimiter struct{}

func (failingLimiter) Allow(context.Context, string) (bool, error) {
	return false, common.NewAppError(common.CodeInternal, "redis down", common.ErrInternal)
}

func TestRateLimitFailsOpen(t *testing.T) {
	s := newTestServer(t, func(d *Deps) { d.Limiter = failingLimiter{} })
	w := s.doJSON(http.MethodGet, "/api/invoices", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	s.doJSON(http.MethodGet, "/api/invoices", nil)
	s.doJSON(http.MethodGet, "/api/invoices/"+uuid.NewString(), nil)

	w := s.doJSON(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `invoice_http_requests_total{method="GET",route="/api/invoices",status="200"} 1`)
	assert.Contains(t, body, `invoice_http_requests_total{method="GET",route="/api/invoices/:id",status="404"} 1`)
}

func TestNoRoute(t *testing.T) {
	s := newTestServer(t)
	w := s.doJSON(http.MethodGet, "/api/nothing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, common.CodeNotFound, decodeError(t, w).ErrorCode)
}

func strp(s string) *string { return &s }
