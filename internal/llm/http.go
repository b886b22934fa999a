package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/invoice-extractor/internal/common"
)

// maxErrorBody caps the backend diagnostic carried by a ModelCallError.
const maxErrorBody = 2048

// SendJSON posts body as JSON to url and returns the raw response body.
// It does not assume any provider; callers decide the URL and headers.
// Transport failures and non-2xx statuses come back as ModelCallError.
func SendJSON(ctx context.Context, client *http.Client, backend, url string, body any, headers map[string]string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if client == nil {
		client = &http.Client{Timeout: 45 * time.Second}
	}

	reqID := common.RequestIDFromContext(ctx)
	if reqID == "" {
		reqID = uuid.New().String()
	}
	start := time.Now()

	bs, err := json.Marshal(body)
	if err != nil {
		logger.Error("llm.http.encode_error", "req_id", reqID, "backend", backend, "error", err)
		return nil, common.ModelCallError(backend, 0, "encode request", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bs))
	if err != nil {
		logger.Error("llm.http.build_request_error", "req_id", reqID, "backend", backend, "error", err)
		return nil, common.ModelCallError(backend, 0, "build request", err)
	}

	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	logger.Info("llm.http.request",
		"req_id", reqID,
		"invoice_id", common.InvoiceIDFromContext(ctx),
		"backend", backend,
		"content_length", len(bs),
	)

	resp, err := client.Do(req)
	if err != nil {
		logger.Error("llm.http.send_error", "req_id", reqID, "backend", backend, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return nil, common.ModelCallError(backend, 0, "", err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			logger.Warn("llm.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		logger.Error("llm.http.read_error", "req_id", reqID, "backend", backend, "error", err)
		return nil, common.ModelCallError(backend, resp.StatusCode, "read response", err)
	}

	logger.Info("llm.http.response",
		"req_id", reqID,
		"backend", backend,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		detail := string(raw)
		if len(detail) > maxErrorBody {
			detail = detail[:maxErrorBody] + "...(truncated)"
		}
		return raw, common.ModelCallError(backend, resp.StatusCode, detail, nil)
	}
	return raw, nil
}
