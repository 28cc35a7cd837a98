// handlers.go - HTTP handlers for scanning, uploading, extraction and lookup.

package api

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/bosocmputer/invoice_scanner/internal/common"
	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
	"github.com/bosocmputer/invoice_scanner/internal/processor"
	"github.com/bosocmputer/invoice_scanner/internal/scanner"
	"github.com/bosocmputer/invoice_scanner/internal/storage"
)

// ScanRequest is the body of POST /api/v1/scan.
type ScanRequest struct {
	File       string `json:"file" binding:"required"`
	ClientName string `json:"clientName"`
	Provider   string `json:"provider"`
}

// ExtractRequest is the body of POST /api/v1/extract.
type ExtractRequest struct {
	RawText string `json:"rawText"`
}

// Handler serves the scanner over HTTP.
type Handler struct {
	scanner   *scanner.Scanner
	uploadDir string
	logger    *zap.Logger
}

// NewHandler creates a Handler. Uploaded files are written to uploadDir.
func NewHandler(s *scanner.Scanner, uploadDir string, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{scanner: s, uploadDir: uploadDir, logger: logger}
}

// statusFor maps an application error code to an HTTP status.
func statusFor(err error) int {
	switch code := apperrors.GetCode(err); {
	case code == apperrors.ErrEmptyClientName.Code,
		code == apperrors.ErrUnsupportedFile.Code,
		code == apperrors.ErrFileOutsideBase.Code,
		code == apperrors.ErrUnknownProvider.Code:
		return http.StatusBadRequest
	case code == apperrors.ErrFileNotFound.Code:
		return http.StatusNotFound
	case strings.HasPrefix(code, "NORM_"):
		return http.StatusUnprocessableEntity
	case code == apperrors.ErrProviderNotConfigured.Code:
		return http.StatusServiceUnavailable
	case code == apperrors.ErrProviderCall.Code, code == apperrors.ErrAllProvidersFailed.Code:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, rc *common.RequestContext, err error) {
	status := statusFor(err)
	body := gin.H{
		"status":     "error",
		"code":       apperrors.GetCode(err),
		"error":      err.Error(),
		"request_id": rc.RequestID,
	}
	if status >= http.StatusInternalServerError {
		body["processing"] = rc.GetPartialSummary()
	}
	c.JSON(status, body)
}

// ScanHandler scans a file under BASE_DIR and extracts the record.
func (h *Handler) ScanHandler(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":    "Invalid request format",
			"details":  err.Error(),
			"expected": "JSON with file, clientName and optional provider",
		})
		return
	}

	rc := common.NewRequestContext(h.logger, req.ClientName)
	ctx := common.WithRequestContext(c.Request.Context(), rc)

	report, err := h.scanner.ScanAndExtract(ctx, req.File, req.ClientName, req.Provider)
	if err != nil {
		h.fail(c, rc, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"request_id": rc.RequestID,
		"result":     report,
		"processing": rc.GetSummary(),
	})
}

// UploadHandler stores a multipart file, scans it, and removes the upload and
// every file derived from it before returning.
func (h *Handler) UploadHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file is required", "details": err.Error()})
		return
	}
	clientName := c.PostForm("clientName")
	provider := c.PostForm("provider")

	rc := common.NewRequestContext(h.logger, clientName)
	ctx := common.WithRequestContext(c.Request.Context(), rc)

	ext := strings.ToLower(filepath.Ext(file.Filename))
	if _, err := processor.KindOf(file.Filename); err != nil {
		h.fail(c, rc, err)
		return
	}

	if err := os.MkdirAll(h.uploadDir, 0o755); err != nil {
		h.fail(c, rc, err)
		return
	}
	dst, err := filepath.Abs(filepath.Join(h.uploadDir, uuid.NewString()+ext))
	if err != nil {
		h.fail(c, rc, err)
		return
	}
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.fail(c, rc, err)
		return
	}
	defer h.cleanup(dst)

	report, err := h.scanner.ScanAndExtract(ctx, dst, clientName, provider, scanner.WithTrustedPath())
	if err != nil {
		h.fail(c, rc, err)
		return
	}
	report.File = file.Filename
	c.JSON(http.StatusOK, gin.H{
		"status":     "success",
		"request_id": rc.RequestID,
		"result":     report,
		"processing": rc.GetSummary(),
	})
}

// cleanup removes path and the page and processed images written next to it.
func (h *Handler) cleanup(path string) {
	matches, err := filepath.Glob(path + "*")
	if err != nil {
		matches = []string{path}
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			h.logger.Warn("failed to remove temporary file", zap.String("file", m), zap.Error(err))
		}
	}
}

// ExtractHandler converts raw model text into a record.
func (h *Handler) ExtractHandler(c *gin.Context) {
	var req ExtractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Invalid request format",
			"details": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, h.scanner.Extract(req.RawText))
}

// GetScanHandler returns a persisted scan.
func (h *Handler) GetScanHandler(c *gin.Context) {
	rec, err := h.scanner.Lookup(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrScanNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "scan not found", "id": c.Param("id")})
			return
		}
		h.logger.Error("failed to load scan", zap.String("id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load scan"})
		return
	}
	c.JSON(http.StatusOK, rec)
}
