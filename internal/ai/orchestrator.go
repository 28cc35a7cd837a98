// orchestrator.go - Provider selection with ordered fallback

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/bosocmputer/invoice_scanner/internal/common"
	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
	"github.com/bosocmputer/invoice_scanner/internal/metrics"
	"github.com/bosocmputer/invoice_scanner/internal/ratelimit"
)

// Attempt records one provider call made during a scan.
type Attempt struct {
	Provider string         `json:"provider"`
	Duration time.Duration  `json:"duration_ns"`
	Err      *ProviderError `json:"error,omitempty"`
}

// ScanResult is the outcome of a successful scan call.
type ScanResult struct {
	Text     string
	Provider string
	Model    string
	Usage    common.TokenUsage
	Attempts []Attempt
}

// OrchestratorConfig configures an Orchestrator.
type OrchestratorConfig struct {
	// Order is the auto-mode sequence. Empty means the order providers were given.
	Order   []string
	Timeout time.Duration
	Limiter *ratelimit.RateLimiter
	Metrics *metrics.Metrics
	Logger  *zap.Logger
}

// Orchestrator sends a request to one provider, or walks the configured
// order until one succeeds.
type Orchestrator struct {
	providers map[string]Provider
	order     []string
	timeout   time.Duration
	limiter   *ratelimit.RateLimiter
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewOrchestrator builds an Orchestrator over providers.
func NewOrchestrator(providers []Provider, cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		providers: make(map[string]Provider, len(providers)),
		timeout:   cfg.Timeout,
		limiter:   cfg.Limiter,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	var given []string
	for _, p := range providers {
		name := p.GetProviderName()
		if _, dup := o.providers[name]; !dup {
			given = append(given, name)
		}
		o.providers[name] = p
	}
	if len(cfg.Order) == 0 {
		o.order = given
	} else {
		for _, name := range cfg.Order {
			if _, ok := o.providers[name]; ok {
				o.order = append(o.order, name)
			}
		}
	}
	return o
}

// Order returns the auto-mode provider sequence.
func (o *Orchestrator) Order() []string {
	return append([]string(nil), o.order...)
}

// NormalizePreference lowercases pref, maps "" to auto and the legacy
// force_use_bedrock flag to bedrock.
func NormalizePreference(pref string) string {
	pref = strings.ToLower(strings.TrimSpace(pref))
	switch pref {
	case "":
		return PreferenceAuto
	case "force_use_bedrock":
		return ProviderBedrock
	}
	return pref
}

// Scan runs req against the provider chosen by preference. In auto mode each
// provider in the order is tried at most once and the first success wins. The
// returned result carries the attempts even when err is non-nil.
func (o *Orchestrator) Scan(ctx context.Context, req Request, preference string) (*ScanResult, error) {
	pref := NormalizePreference(preference)

	var candidates []string
	if pref == PreferenceAuto {
		candidates = o.order
	} else {
		if _, ok := o.providers[pref]; !ok {
			return nil, apperrors.New(apperrors.ErrUnknownProvider.Code,
				fmt.Sprintf("Unknown provider %q. Use auto or one of: %s", preference, strings.Join(o.order, ", ")))
		}
		candidates = []string{pref}
	}
	if len(candidates) == 0 {
		return nil, apperrors.New(apperrors.ErrProviderNotConfigured.Code, "no providers are configured")
	}

	result := &ScanResult{}
	for i, name := range candidates {
		if err := ctx.Err(); err != nil {
			result.Attempts = append(result.Attempts, Attempt{Provider: name, Err: Classify(name, err)})
			break
		}

		resp, attempt := o.try(ctx, name, req)
		result.Attempts = append(result.Attempts, attempt)
		if attempt.Err == nil {
			result.Text = resp.Text
			result.Provider = resp.Provider
			result.Model = resp.Model
			result.Usage = resp.Usage
			return result, nil
		}

		if i < len(candidates)-1 && ctx.Err() == nil {
			next := candidates[i+1]
			o.logger.Warn("provider failed, falling back",
				zap.String("provider", name),
				zap.String("next", next),
				zap.String("category", attempt.Err.Category),
				zap.Error(attempt.Err),
			)
			o.metrics.RecordFallback()
		}
	}

	return result, o.failure(pref, result.Attempts)
}

func (o *Orchestrator) try(ctx context.Context, name string, req Request) (*Response, Attempt) {
	provider := o.providers[name]
	attempt := Attempt{Provider: name}
	start := time.Now()

	end := common.FromContext(ctx).StartSubStep("provider_" + name)
	defer func() {
		if attempt.Err != nil {
			end(attempt.Err.Category)
			return
		}
		end("success")
	}()

	if err := o.limiter.Wait(ctx, name); err != nil {
		attempt.Err = Classify(name, err)
		attempt.Duration = time.Since(start)
		o.metrics.RecordProviderAttempt(name, attempt.Err.Category, attempt.Duration)
		return nil, attempt
	}

	callCtx := ctx
	if o.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	resp, err := provider.Generate(callCtx, req)
	attempt.Duration = time.Since(start)
	if err == nil && resp == nil {
		err = errEmptyResponse
	}
	if err != nil {
		attempt.Err = Classify(name, err)
		o.metrics.RecordProviderAttempt(name, attempt.Err.Category, attempt.Duration)
		return nil, attempt
	}

	if resp.Provider == "" {
		resp.Provider = name
	}
	o.metrics.RecordProviderAttempt(name, "success", attempt.Duration)
	o.logger.Info("provider call succeeded",
		zap.String("provider", name),
		zap.String("model", resp.Model),
		zap.Duration("duration", attempt.Duration),
		zap.Int("input_tokens", resp.Usage.InputTokens),
		zap.Int("output_tokens", resp.Usage.OutputTokens),
	)
	return resp, attempt
}

func (o *Orchestrator) failure(pref string, attempts []Attempt) error {
	causes := make([]error, 0, len(attempts))
	parts := make([]string, 0, len(attempts))
	for _, a := range attempts {
		causes = append(causes, a.Err)
		parts = append(parts, a.Err.Error())
	}
	cause := errors.Join(causes...)

	if pref != PreferenceAuto && len(attempts) == 1 {
		pe := attempts[0].Err
		code := apperrors.ErrProviderCall.Code
		if pe.Category == CategoryNotConfigured {
			code = apperrors.ErrProviderNotConfigured.Code
		}
		return apperrors.New(code, fmt.Sprintf("Provider %s failed: %s", pref, pe.Message), cause)
	}
	return apperrors.New(apperrors.ErrAllProvidersFailed.Code,
		"All providers failed: "+strings.Join(parts, "; "), cause)
}
