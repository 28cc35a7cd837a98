// breaker.go - Circuit breaker decorator for providers

package ai

import (
	"context"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerSettings tunes the per-provider breaker.
type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before a trial request.
	OpenTimeout time.Duration
}

// DefaultBreakerSettings trips after 5 consecutive failures and lets a trial request through after 30s.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{ConsecutiveFailures: 5, OpenTimeout: 30 * time.Second}
}

// BreakerProvider wraps a Provider so that a failing backend is skipped
// immediately while open. An open breaker surfaces as CategoryCircuitOpen.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker[*Response]
}

// WithBreaker decorates p.
func WithBreaker(p Provider, settings BreakerSettings, logger *zap.Logger) *BreakerProvider {
	if settings.ConsecutiveFailures == 0 {
		settings = DefaultBreakerSettings()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	name := p.GetProviderName()
	cb := gobreaker.NewCircuitBreaker[*Response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= settings.ConsecutiveFailures
		},
		IsSuccessful: countsAsHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("provider circuit breaker state changed",
				zap.String("provider", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return &BreakerProvider{inner: p, cb: cb}
}

// countsAsHealthy reports whether err says nothing about backend health.
func countsAsHealthy(err error) bool {
	if err == nil {
		return true
	}
	switch Classify("", err).Category {
	case CategoryNotConfigured, CategoryCanceled, CategoryBadRequest:
		return true
	}
	return false
}

// GetProviderName returns the wrapped provider's name.
func (b *BreakerProvider) GetProviderName() string {
	return b.inner.GetProviderName()
}

// State exposes the breaker state.
func (b *BreakerProvider) State() gobreaker.State {
	return b.cb.State()
}

// Generate implements Provider.
func (b *BreakerProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	resp, err := b.cb.Execute(func() (*Response, error) {
		return b.inner.Generate(ctx, req)
	})
	if err != nil {
		return nil, Classify(b.inner.GetProviderName(), err)
	}
	return resp, nil
}
