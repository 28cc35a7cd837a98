// scanner.go - Scan facade: input checks, prompt, normalization, provider fallback

// Package scanner is the entry point that turns an invoice file into raw
// model text and, as a separate step, into an extraction record.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bosocmputer/invoice_scanner/internal/accounts"
	"github.com/bosocmputer/invoice_scanner/internal/ai"
	"github.com/bosocmputer/invoice_scanner/internal/common"
	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
	"github.com/bosocmputer/invoice_scanner/internal/extract"
	"github.com/bosocmputer/invoice_scanner/internal/metrics"
	"github.com/bosocmputer/invoice_scanner/internal/processor"
	"github.com/bosocmputer/invoice_scanner/internal/prompt"
	"github.com/bosocmputer/invoice_scanner/internal/storage"
)

// Normalizer turns a document into ordered image attachments.
type Normalizer interface {
	Normalize(ctx context.Context, path string) ([]processor.Attachment, error)
}

// Orchestrator sends a request to the providers.
type Orchestrator interface {
	Scan(ctx context.Context, req ai.Request, preference string) (*ai.ScanResult, error)
}

// Config holds the scan parameters.
type Config struct {
	// BaseDir is joined with relative file references.
	BaseDir     string
	Temperature float64
	MaxTokens   int
}

// Deps are the collaborators of a Scanner. Cache, Repo and Metrics are optional.
type Deps struct {
	Table        *accounts.Table
	Builder      *prompt.Builder
	Normalizer   Normalizer
	Orchestrator Orchestrator
	Extractor    extract.Extractor
	Cache        *storage.ResultCache[Output]
	Repo         storage.ScanRepository
	Metrics      *metrics.Metrics
	Logger       *zap.Logger
}

// Output is the raw result of one scan.
type Output struct {
	RawText  string            `json:"rawText"`
	Provider string            `json:"provider"`
	Model    string            `json:"model"`
	Pages    int               `json:"pages"`
	Usage    common.TokenUsage `json:"tokenUsage"`
	Attempts []ai.Attempt      `json:"attempts"`
	Cached   bool              `json:"cached"`
}

// Report is a scan followed by extraction.
type Report struct {
	ID        string         `json:"id"`
	File      string         `json:"file"`
	Output    Output         `json:"scan"`
	Result    extract.Result `json:"extraction"`
	Persisted bool           `json:"persisted"`
}

// Scanner drives prompt building, normalization and provider calls.
type Scanner struct {
	cfg  Config
	deps Deps
}

// New creates a Scanner. Missing Table, Builder and Extractor get defaults.
func New(cfg Config, deps Deps) *Scanner {
	if cfg.BaseDir == "" {
		cfg.BaseDir = "."
	}
	if deps.Table == nil {
		deps.Table = accounts.MustDefault()
	}
	if deps.Builder == nil {
		deps.Builder = prompt.NewBuilder(deps.Table)
	}
	if deps.Extractor == nil {
		deps.Extractor = extract.NewLenient(nil)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Scanner{cfg: cfg, deps: deps}
}

// ScanOption adjusts how a single scan treats its file reference.
type ScanOption func(*scanOptions)

type scanOptions struct {
	trustedPath bool
}

// WithTrustedPath lets the file reference point anywhere on the host. Only
// callers that chose the path themselves (the upload handler, the CLI) use it.
func WithTrustedPath() ScanOption {
	return func(o *scanOptions) { o.trustedPath = true }
}

func applyOptions(opts []ScanOption) scanOptions {
	var o scanOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Resolve validates the inputs and returns the path of file inside BaseDir.
// References that escape BaseDir, absolute or through "..", are rejected.
func (s *Scanner) Resolve(file, clientName string) (string, error) {
	return s.resolve(file, clientName, scanOptions{})
}

func (s *Scanner) resolve(file, clientName string, o scanOptions) (string, error) {
	if strings.TrimSpace(clientName) == "" {
		return "", apperrors.ErrEmptyClientName
	}

	base, err := filepath.Abs(s.cfg.BaseDir)
	if err != nil {
		return "", apperrors.FileNotFound(file)
	}
	path := file
	if !filepath.IsAbs(path) {
		path = filepath.Join(base, file)
	}
	path = filepath.Clean(path)
	if !o.trustedPath {
		rel, err := filepath.Rel(base, path)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return "", apperrors.FileOutsideBase(file)
		}
	}

	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", apperrors.FileNotFound(path)
	}
	return path, nil
}

// Scan returns the raw model text for file. It never parses that text.
func (s *Scanner) Scan(ctx context.Context, file, clientName, preference string, opts ...ScanOption) (*Output, error) {
	rc := common.FromContext(ctx)
	logger := rc.Logger(s.deps.Logger)

	rc.StartStep("validate_input")
	path, err := s.resolve(file, clientName, applyOptions(opts))
	if err != nil {
		rc.EndStep(common.StatusFailed, nil, err)
		s.deps.Metrics.RecordScan("rejected")
		return nil, err
	}
	pref := ai.NormalizePreference(preference)

	var cacheKey string
	if s.deps.Cache.Enabled() {
		if hash, herr := storage.HashFile(path); herr == nil {
			cacheKey = storage.CacheKey(hash, clientName, pref)
			if cached, ok := s.deps.Cache.Get(cacheKey); ok {
				s.deps.Metrics.RecordCache(true)
				s.deps.Metrics.RecordScan("cached")
				rc.EndStep(common.StatusSkipped, nil, nil)
				logger.Info("returning cached scan", zap.String("file", path), zap.String("provider", cached.Provider))
				cached.Cached = true
				return &cached, nil
			}
			s.deps.Metrics.RecordCache(false)
		}
	}
	rc.EndStep(common.StatusSuccess, nil, nil)

	rc.StartStep("build_prompt")
	text := s.deps.Builder.Build(clientName)
	rc.EndStep(common.StatusSuccess, nil, nil)

	rc.StartStep("normalize_document")
	attachments, err := s.deps.Normalizer.Normalize(ctx, path)
	if err != nil {
		rc.EndStep(common.StatusFailed, nil, err)
		s.deps.Metrics.RecordScan("failed")
		logger.Error("document normalization failed", zap.String("file", path), zap.Error(err))
		return nil, err
	}
	s.deps.Metrics.RecordPages(len(attachments))
	rc.EndStep(common.StatusSuccess, nil, nil)

	images := make([]ai.Image, len(attachments))
	for i, att := range attachments {
		images[i] = ai.Image{MediaType: att.MediaType, Data: att.Data}
	}

	rc.StartStep("call_provider")
	res, err := s.deps.Orchestrator.Scan(ctx, ai.Request{
		Prompt:      text,
		Images:      images,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
	}, pref)
	if err != nil {
		rc.EndStep(common.StatusFailed, nil, err)
		s.deps.Metrics.RecordScan("failed")
		logger.Error("scan failed",
			zap.String("file", path),
			zap.String("preference", pref),
			zap.String("code", apperrors.GetCode(err)),
			zap.Error(err),
		)
		return nil, err
	}
	usage := res.Usage
	rc.EndStep(common.StatusSuccess, &usage, nil)

	out := Output{
		RawText:  res.Text,
		Provider: res.Provider,
		Model:    res.Model,
		Pages:    len(attachments),
		Usage:    res.Usage,
		Attempts: res.Attempts,
	}
	if cacheKey != "" {
		s.deps.Cache.Put(cacheKey, out)
	}
	s.deps.Metrics.RecordScan("success")
	logger.Info("scan completed",
		zap.String("file", path),
		zap.String("provider", out.Provider),
		zap.Int("pages", out.Pages),
		zap.Int("attempts", len(out.Attempts)),
		zap.Int("cached_scans", s.deps.Cache.Len()),
	)
	return &out, nil
}

// Extract converts raw model text into a validated record. It never fails.
func (s *Scanner) Extract(raw string) extract.Result {
	result := extract.Run(s.deps.Extractor, raw, s.deps.Table)
	s.deps.Metrics.RecordExtraction(result.Record.Details.DocumentType)
	return result
}

// ScanAndExtract scans, extracts and persists the outcome when a repository
// is configured. A persistence failure is logged and does not fail the scan.
func (s *Scanner) ScanAndExtract(ctx context.Context, file, clientName, preference string, opts ...ScanOption) (*Report, error) {
	out, err := s.Scan(ctx, file, clientName, preference, opts...)
	if err != nil {
		return nil, err
	}

	rc := common.FromContext(ctx)
	rc.StartStep("extract")
	result := s.Extract(out.RawText)
	rc.EndStep(common.StatusSuccess, nil, nil)

	report := &Report{
		ID:     storage.NewScanID(),
		File:   file,
		Output: *out,
		Result: result,
	}
	if s.deps.Repo == nil {
		return report, nil
	}

	rec := &storage.ScanRecord{
		ID:         report.ID,
		File:       file,
		ClientName: clientName,
		Preference: ai.NormalizePreference(preference),
		Provider:   out.Provider,
		Model:      out.Model,
		RawText:    out.RawText,
		Record:     result.Record,
		Warnings:   result.Warnings,
		Attempts:   attemptRecords(out.Attempts),
		TokenUsage: out.Usage,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.deps.Repo.SaveScan(ctx, rec); err != nil {
		rc.Logger(s.deps.Logger).Warn("failed to persist scan", zap.String("id", report.ID), zap.Error(err))
		return report, nil
	}
	report.Persisted = true
	return report, nil
}

// Lookup returns a persisted scan.
func (s *Scanner) Lookup(ctx context.Context, id string) (*storage.ScanRecord, error) {
	if s.deps.Repo == nil {
		return nil, storage.ErrScanNotFound
	}
	return s.deps.Repo.GetScan(ctx, id)
}

func attemptRecords(attempts []ai.Attempt) []storage.AttemptRecord {
	out := make([]storage.AttemptRecord, 0, len(attempts))
	for _, a := range attempts {
		rec := storage.AttemptRecord{Provider: a.Provider, DurationMS: a.Duration.Milliseconds()}
		if a.Err != nil {
			rec.Category = a.Err.Category
			rec.Error = a.Err.Message
		}
		out = append(out, rec)
	}
	return out
}
