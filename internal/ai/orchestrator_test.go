package ai

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/bosocmputer/invoice_scanner/internal/common"
	apperrors "github.com/bosocmputer/invoice_scanner/internal/errors"
	"github.com/bosocmputer/invoice_scanner/internal/metrics"
)

// fakeProvider returns a fixed text or error and records calls.
type fakeProvider struct {
	name string
	text string
	err  error
	wait bool

	mu    sync.Mutex
	calls int
	reqs  []Request
}

func (f *fakeProvider) GetProviderName() string { return f.name }

func (f *fakeProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	f.mu.Lock()
	f.calls++
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.wait {
		<-ctx.Done()
		return nil, Classify(f.name, ctx.Err())
	}
	if f.err != nil {
		return nil, Classify(f.name, f.err)
	}
	return &Response{Text: f.text, Provider: f.name, Model: f.name + "-model", Usage: common.NewTokenUsage(10, 2)}, nil
}

func (f *fakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func scrape(t *testing.T, m *metrics.Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	return rec.Body.String()
}

func TestScanAutoUsesFirstProvider(t *testing.T) {
	primary := &fakeProvider{name: ProviderAnthropic, text: "primary"}
	secondary := &fakeProvider{name: ProviderBedrock, text: "secondary"}
	o := NewOrchestrator([]Provider{primary, secondary}, OrchestratorConfig{})

	res, err := o.Scan(context.Background(), Request{Prompt: "p"}, "auto")
	require.NoError(t, err)
	assert.Equal(t, "primary", res.Text)
	assert.Equal(t, ProviderAnthropic, res.Provider)
	assert.Equal(t, 12, res.Usage.TotalTokens)
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, 0, secondary.Calls())
}

func TestScanAutoFallsBackWithSameRequest(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	m := metrics.New()
	primary := &fakeProvider{name: ProviderAnthropic, err: &StatusError{StatusCode: 500, Message: "boom"}}
	secondary := &fakeProvider{name: ProviderBedrock, text: "from bedrock"}
	o := NewOrchestrator([]Provider{primary, secondary}, OrchestratorConfig{Logger: zap.New(core), Metrics: m})

	req := Request{Prompt: "p", Images: []Image{{MediaType: "image/jpeg", Data: []byte("a")}}}
	res, err := o.Scan(context.Background(), req, "")
	require.NoError(t, err)
	assert.Equal(t, "from bedrock", res.Text)
	assert.Equal(t, ProviderBedrock, res.Provider)
	require.Len(t, res.Attempts, 2)
	assert.Equal(t, CategoryServerError, res.Attempts[0].Err.Category)
	assert.Nil(t, res.Attempts[1].Err)

	assert.Equal(t, primary.reqs[0], secondary.reqs[0])
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "provider failed, falling back", entry.Message)
	assert.Equal(t, ProviderAnthropic, entry.ContextMap()["provider"])
	assert.Equal(t, ProviderBedrock, entry.ContextMap()["next"])

	body := scrape(t, m)
	assert.Contains(t, body, "invoice_scanner_provider_fallbacks_total 1")
	assert.Contains(t, body, `invoice_scanner_provider_attempts_total{outcome="server_error",provider="anthropic"} 1`)
	assert.Contains(t, body, `invoice_scanner_provider_attempts_total{outcome="success",provider="bedrock"} 1`)
}

func TestScanAutoAllFail(t *testing.T) {
	first := &fakeProvider{name: ProviderAnthropic, err: &StatusError{StatusCode: 401, Message: "invalid x-api-key"}}
	second := &fakeProvider{name: ProviderBedrock, err: errors.New("connection refused")}
	third := &fakeProvider{name: ProviderGemini, err: errNotConfigured(ProviderGemini, "GEMINI_API_KEY is not set")}
	o := NewOrchestrator([]Provider{first, second, third}, OrchestratorConfig{})

	res, err := o.Scan(context.Background(), Request{Prompt: "p"}, "auto")
	require.Error(t, err)
	assert.Equal(t, "PROV_003", apperrors.GetCode(err))
	assert.ErrorIs(t, err, apperrors.ErrAllProvidersFailed)
	assert.Contains(t, err.Error(), "invalid x-api-key")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Contains(t, err.Error(), "GEMINI_API_KEY")

	require.NotNil(t, res)
	require.Len(t, res.Attempts, 3)
	for _, f := range []*fakeProvider{first, second, third} {
		assert.Equal(t, 1, f.Calls())
	}
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, ProviderAnthropic, pe.Provider)
}

func TestScanPinnedDoesNotFallBack(t *testing.T) {
	primary := &fakeProvider{name: ProviderAnthropic, text: "primary"}
	bedrock := &fakeProvider{name: ProviderBedrock, err: &StatusError{StatusCode: 503, Message: "unavailable"}}
	o := NewOrchestrator([]Provider{primary, bedrock}, OrchestratorConfig{})

	res, err := o.Scan(context.Background(), Request{Prompt: "p"}, "Bedrock")
	require.Error(t, err)
	assert.Equal(t, "PROV_002", apperrors.GetCode(err))
	assert.Contains(t, err.Error(), "unavailable")
	assert.Len(t, res.Attempts, 1)
	assert.Equal(t, 0, primary.Calls())

	_, err = o.Scan(context.Background(), Request{Prompt: "p"}, "force_use_bedrock")
	assert.Equal(t, "PROV_002", apperrors.GetCode(err))
	assert.Equal(t, 2, bedrock.Calls())
}

func TestScanPinnedNotConfigured(t *testing.T) {
	p := NewAnthropicProvider(AnthropicConfig{})
	o := NewOrchestrator([]Provider{p}, OrchestratorConfig{})

	_, err := o.Scan(context.Background(), Request{Prompt: "p"}, ProviderAnthropic)
	assert.Equal(t, "PROV_001", apperrors.GetCode(err))
	assert.ErrorIs(t, err, apperrors.ErrProviderNotConfigured)
}

func TestScanUnknownPreference(t *testing.T) {
	p := &fakeProvider{name: ProviderAnthropic, text: "x"}
	o := NewOrchestrator([]Provider{p}, OrchestratorConfig{})

	res, err := o.Scan(context.Background(), Request{Prompt: "p"}, "openai")
	assert.Nil(t, res)
	assert.Equal(t, "PROV_004", apperrors.GetCode(err))
	assert.Equal(t, 0, p.Calls())
}

func TestScanPerAttemptTimeout(t *testing.T) {
	slow := &fakeProvider{name: ProviderAnthropic, wait: true}
	fast := &fakeProvider{name: ProviderBedrock, text: "ok"}
	o := NewOrchestrator([]Provider{slow, fast}, OrchestratorConfig{Timeout: 20 * time.Millisecond})

	res, err := o.Scan(context.Background(), Request{Prompt: "p"}, "auto")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Text)
	assert.Equal(t, CategoryTimeout, res.Attempts[0].Err.Category)
}

func TestScanStopsWhenCallerCancels(t *testing.T) {
	first := &fakeProvider{name: ProviderAnthropic, wait: true}
	second := &fakeProvider{name: ProviderBedrock, text: "never"}
	o := NewOrchestrator([]Provider{first, second}, OrchestratorConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := o.Scan(ctx, Request{Prompt: "p"}, "auto")
	require.Error(t, err)
	assert.Equal(t, 0, second.Calls())
}

func TestOrderFollowsConfig(t *testing.T) {
	a := &fakeProvider{name: ProviderAnthropic, text: "a"}
	b := &fakeProvider{name: ProviderBedrock, text: "b"}
	o := NewOrchestrator([]Provider{a, b}, OrchestratorConfig{Order: []string{ProviderBedrock, ProviderAnthropic}})
	assert.Equal(t, []string{ProviderBedrock, ProviderAnthropic}, o.Order())

	res, err := o.Scan(context.Background(), Request{Prompt: "p"}, "auto")
	require.NoError(t, err)
	assert.Equal(t, "b", res.Text)
}

func TestNormalizePreference(t *testing.T) {
	assert.Equal(t, PreferenceAuto, NormalizePreference(""))
	assert.Equal(t, PreferenceAuto, NormalizePreference(" AUTO "))
	assert.Equal(t, ProviderBedrock, NormalizePreference("force_use_bedrock"))
	assert.Equal(t, ProviderGemini, NormalizePreference("Gemini"))
}
