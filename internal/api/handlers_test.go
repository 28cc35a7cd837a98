package api

import (
	"bytes"
	"context"
	"encoding/json"
	"image/color"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bosocmputer/invoice_scanner/internal/ai"
	"github.com/bosocmputer/invoice_scanner/internal/common"
	"github.com/bosocmputer/invoice_scanner/internal/metrics"
	"github.com/bosocmputer/invoice_scanner/internal/processor"
	"github.com/bosocmputer/invoice_scanner/internal/scanner"
	"github.com/bosocmputer/invoice_scanner/internal/storage"
	"github.com/bosocmputer/invoice_scanner/internal/workpool"
)

const rawResponse = `<language>British English</language>
<document><document-transaction-category>SALE</document-transaction-category></document>
<invoice-details><number>INV-9</number><totals><total-amount>50.00</total-amount></totals>
<account><account-code>200</account-code></account></invoice-details>
<invoice-paid>TRUE</invoice-paid>`

type staticProvider struct {
	name string
	text string
	err  error
}

func (p staticProvider) GetProviderName() string { return p.name }

func (p staticProvider) Generate(ctx context.Context, req ai.Request) (*ai.Response, error) {
	if p.err != nil {
		return nil, ai.Classify(p.name, p.err)
	}
	return &ai.Response{Text: p.text, Provider: p.name, Usage: common.NewTokenUsage(5, 5)}, nil
}

type testServer struct {
	router    http.Handler
	baseDir   string
	uploadDir string
}

func newTestServer(t *testing.T, providers ...ai.Provider) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	baseDir := t.TempDir()
	uploadDir := filepath.Join(t.TempDir(), "uploads")
	m := metrics.New()

	if len(providers) == 0 {
		providers = []ai.Provider{staticProvider{name: ai.ProviderAnthropic, text: rawResponse}}
	}
	s := scanner.New(scanner.Config{BaseDir: baseDir}, scanner.Deps{
		Normalizer:   processor.NewNormalizer(processor.DefaultOptions(), workpool.New(1), nil, nil),
		Orchestrator: ai.NewOrchestrator(providers, ai.OrchestratorConfig{Metrics: m}),
		Repo:         storage.NewMemoryStore(),
		Metrics:      m,
	})
	h := NewHandler(s, uploadDir, nil)
	return &testServer{router: NewRouter(h, m, []string{"*"}), baseDir: baseDir, uploadDir: uploadDir}
}

func (ts *testServer) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	img := imaging.New(60, 40, color.NRGBA{R: 255, A: 255})
	require.NoError(t, imaging.Encode(&buf, img, imaging.PNG))
	return buf.Bytes()
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode(t, rec)["status"])
}

func TestScanAndLookup(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.baseDir, "inv.png"), pngBytes(t), 0o644))

	rec := ts.do(jsonRequest(t, http.MethodPost, "/api/v1/scan", ScanRequest{File: "inv.png", ClientName: "Acme"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decode(t, rec)
	result := body["result"].(map[string]any)
	details := result["extraction"].(map[string]any)["record"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "SALE", details["documentType"])
	assert.Equal(t, true, details["invoicePaid"])
	assert.Equal(t, rawResponse, result["scan"].(map[string]any)["rawText"])
	assert.Equal(t, true, result["persisted"])

	id := result["id"].(string)
	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/scans/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Acme", decode(t, rec)["clientName"])

	rec = ts.do(httptest.NewRequest(http.MethodGet, "/api/v1/scans/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestScanErrors(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, os.WriteFile(filepath.Join(ts.baseDir, "inv.png"), pngBytes(t), 0o644))

	outside := filepath.Join(t.TempDir(), "outside.png")
	require.NoError(t, os.WriteFile(outside, pngBytes(t), 0o644))

	tests := []struct {
		name   string
		body   any
		status int
		code   string
	}{
		{"missing file", ScanRequest{File: "missing.pdf", ClientName: "X"}, http.StatusNotFound, "INPUT_002"},
		{"empty client", ScanRequest{File: "inv.png"}, http.StatusBadRequest, "INPUT_001"},
		{"unknown provider", ScanRequest{File: "inv.png", ClientName: "X", Provider: "openai"}, http.StatusBadRequest, "PROV_004"},
		{"parent traversal", ScanRequest{File: "../outside.png", ClientName: "X"}, http.StatusBadRequest, "INPUT_004"},
		{"absolute outside base", ScanRequest{File: outside, ClientName: "X"}, http.StatusBadRequest, "INPUT_004"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := ts.do(jsonRequest(t, http.MethodPost, "/api/v1/scan", tt.body))
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decode(t, rec)["code"])
		})
	}

	rec := ts.do(jsonRequest(t, http.MethodPost, "/api/v1/scan", map[string]string{"clientName": "X"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestScanAllProvidersFailed(t *testing.T) {
	ts := newTestServer(t,
		staticProvider{name: ai.ProviderAnthropic, err: &ai.StatusError{StatusCode: 500, Message: "down"}},
		staticProvider{name: ai.ProviderBedrock, err: &ai.StatusError{StatusCode: 503, Message: "also down"}},
	)
	require.NoError(t, os.WriteFile(filepath.Join(ts.baseDir, "inv.png"), pngBytes(t), 0o644))

	rec := ts.do(jsonRequest(t, http.MethodPost, "/api/v1/scan", ScanRequest{File: "inv.png", ClientName: "X"}))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "PROV_003", body["code"])
	assert.Contains(t, body["error"], "also down")
}

func TestUploadCleansUp(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "Invoice.PNG")
	require.NoError(t, err)
	_, err = part.Write(pngBytes(t))
	require.NoError(t, err)
	require.NoError(t, w.WriteField("clientName", "Acme"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := ts.do(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "Invoice.PNG", decode(t, rec)["result"].(map[string]any)["file"])

	entries, err := os.ReadDir(ts.uploadDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	ts := newTestServer(t)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", "notes.txt")
	require.NoError(t, err)
	_, _ = part.Write([]byte("hello"))
	require.NoError(t, w.WriteField("clientName", "Acme"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/scan/upload", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := ts.do(req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INPUT_003", decode(t, rec)["code"])
}

func TestExtractEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(jsonRequest(t, http.MethodPost, "/api/v1/extract", ExtractRequest{RawText: ""}))
	require.Equal(t, http.StatusOK, rec.Code)

	body := decode(t, rec)
	details := body["record"].(map[string]any)["details"].(map[string]any)
	assert.Equal(t, "UNKNOWN", details["documentType"])
	assert.Equal(t, 0.0, details["confidenceScore"])
	totals := details["invoiceDetails"].(map[string]any)["totals"].(map[string]any)
	assert.Equal(t, "0.0", totals["totalAmount"])
}

func TestMetricsAndCORS(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	rec = ts.do(httptest.NewRequest(http.MethodOptions, "/api/v1/scan", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
