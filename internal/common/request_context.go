// request_context.go - Per-scan tracking: request id, step timings, token usage, logging

package common

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusSkipped = "skipped"
)

// RequestContext tracks one scan from start to finish.
type RequestContext struct {
	RequestID  string
	ClientName string
	StartTime  time.Time

	logger   *zap.Logger
	detached bool

	mu               sync.Mutex
	steps            []StepLog
	totalTokens      TokenUsage
	currentStep      string
	currentStepStart time.Time
	currentSubSteps  []SubStepLog
}

// StepLog represents a single processing step
type StepLog struct {
	Name      string       `json:"name"`
	StartTime time.Time    `json:"start_time"`
	Duration  int64        `json:"duration_ms"`
	Status    string       `json:"status"`
	Tokens    *TokenUsage  `json:"tokens,omitempty"`
	Error     string       `json:"error,omitempty"`
	SubSteps  []SubStepLog `json:"sub_steps,omitempty"`
}

// SubStepLog represents a detailed sub-operation within a step
type SubStepLog struct {
	Name      string    `json:"name"`
	StartTime time.Time `json:"start_time"`
	Duration  int64     `json:"duration_ms"`
	Details   string    `json:"details,omitempty"`
}

// TokenUsage tracks model token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens" bson:"input_tokens"`
	OutputTokens int `json:"output_tokens" bson:"output_tokens"`
	TotalTokens  int `json:"total_tokens" bson:"total_tokens"`
}

// NewTokenUsage fills in the total.
func NewTokenUsage(input, output int) TokenUsage {
	return TokenUsage{InputTokens: input, OutputTokens: output, TotalTokens: input + output}
}

// NewRequestContext creates a new request tracking context
func NewRequestContext(logger *zap.Logger, clientName string) *RequestContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	reqID := uuid.New().String()
	rc := &RequestContext{
		RequestID:  reqID,
		ClientName: clientName,
		StartTime:  time.Now(),
		logger:     logger.With(zap.String("request_id", reqID)),
	}
	rc.logger.Info("scan request started", zap.String("client", clientName))
	return rc
}

// Logger returns the request-scoped logger. A context that was never attached
// to a request has none, so fallback is returned instead.
func (rc *RequestContext) Logger(fallback *zap.Logger) *zap.Logger {
	if rc.detached {
		if fallback == nil {
			return zap.NewNop()
		}
		return fallback
	}
	return rc.logger
}

type ctxKey struct{}

// WithRequestContext stores rc in ctx.
func WithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, rc)
}

// FromContext returns the RequestContext in ctx, or a detached one with a
// no-op logger so callers never need a nil check.
func FromContext(ctx context.Context) *RequestContext {
	if rc, ok := ctx.Value(ctxKey{}).(*RequestContext); ok && rc != nil {
		return rc
	}
	return &RequestContext{
		RequestID: "none",
		StartTime: time.Now(),
		logger:    zap.NewNop(),
		detached:  true,
	}
}

// StartStep begins tracking a new processing step
func (rc *RequestContext) StartStep(stepName string) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.currentStep = stepName
	rc.currentStepStart = time.Now()
	rc.logger.Debug("step started", zap.String("step", stepName))
}

// EndStep completes the current step and records timing
func (rc *RequestContext) EndStep(status string, tokens *TokenUsage, err error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	duration := time.Since(rc.currentStepStart)
	stepLog := StepLog{
		Name:      rc.currentStep,
		StartTime: rc.currentStepStart,
		Duration:  duration.Milliseconds(),
		Status:    status,
		Tokens:    tokens,
		SubSteps:  rc.currentSubSteps,
	}

	fields := []zap.Field{
		zap.String("step", rc.currentStep),
		zap.String("status", status),
		zap.Duration("duration", duration),
	}
	if len(rc.currentSubSteps) > 0 {
		fields = append(fields, zap.Int("sub_steps", len(rc.currentSubSteps)))
	}

	if err != nil {
		stepLog.Error = err.Error()
		rc.logger.Error("step failed", append(fields, zap.Error(err))...)
	} else {
		if tokens != nil {
			rc.totalTokens.InputTokens += tokens.InputTokens
			rc.totalTokens.OutputTokens += tokens.OutputTokens
			rc.totalTokens.TotalTokens += tokens.TotalTokens
			fields = append(fields,
				zap.Int("input_tokens", tokens.InputTokens),
				zap.Int("output_tokens", tokens.OutputTokens),
			)
		}
		rc.logger.Info("step finished", fields...)
	}

	rc.steps = append(rc.steps, stepLog)
	rc.currentStep = ""
	rc.currentSubSteps = nil
}

// StartSubStep begins timing a sub-operation of the current step and returns
// the func that ends it. Sub-steps may run concurrently.
func (rc *RequestContext) StartSubStep(name string) func(details string) {
	start := time.Now()
	return func(details string) {
		duration := time.Since(start)
		rc.mu.Lock()
		defer rc.mu.Unlock()
		rc.currentSubSteps = append(rc.currentSubSteps, SubStepLog{
			Name:      name,
			StartTime: start,
			Duration:  duration.Milliseconds(),
			Details:   details,
		})
		rc.logger.Debug("sub-step finished",
			zap.String("step", rc.currentStep),
			zap.String("sub_step", name),
			zap.Duration("duration", duration),
			zap.String("details", details),
		)
	}
}

// Steps returns a copy of the completed steps.
func (rc *RequestContext) Steps() []StepLog {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	out := make([]StepLog, len(rc.steps))
	copy(out, rc.steps)
	return out
}

// TotalTokens returns the tokens recorded across successful steps.
func (rc *RequestContext) TotalTokens() TokenUsage {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.totalTokens
}

// GetSummary returns a final summary of the entire request
func (rc *RequestContext) GetSummary() map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	totalDuration := time.Since(rc.StartTime).Milliseconds()
	stepBreakdown := make(map[string]int64, len(rc.steps))
	for _, step := range rc.steps {
		stepBreakdown[step.Name] = step.Duration
	}

	rc.logger.Info("scan request finished",
		zap.Int64("total_duration_ms", totalDuration),
		zap.Int("steps", len(rc.steps)),
		zap.Int("total_tokens", rc.totalTokens.TotalTokens),
	)

	return map[string]interface{}{
		"request_id":         rc.RequestID,
		"client":             rc.ClientName,
		"total_duration_ms":  totalDuration,
		"total_duration_sec": float64(totalDuration) / 1000,
		"step_breakdown":     stepBreakdown,
		"total_steps":        len(rc.steps),
		"token_usage": map[string]interface{}{
			"input_tokens":  rc.totalTokens.InputTokens,
			"output_tokens": rc.totalTokens.OutputTokens,
			"total_tokens":  rc.totalTokens.TotalTokens,
		},
	}
}

// GetPartialSummary returns a summary of completed steps (for timeout scenarios)
func (rc *RequestContext) GetPartialSummary() map[string]interface{} {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	completedSteps := []string{}
	for _, step := range rc.steps {
		if step.Status == StatusSuccess {
			completedSteps = append(completedSteps, step.Name)
		}
	}
	return map[string]interface{}{
		"completed_steps": completedSteps,
		"total_steps":     len(rc.steps),
		"current_step":    rc.currentStep,
	}
}
