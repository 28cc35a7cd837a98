// interface.go - Vision model provider interface shared by every backend

package ai

import (
	"context"

	"github.com/bosocmputer/invoice_scanner/internal/common"
)

// Provider names.
const (
	ProviderAnthropic = "anthropic"
	ProviderBedrock   = "bedrock"
	ProviderGemini    = "gemini"
)

// PreferenceAuto walks the configured provider order.
const PreferenceAuto = "auto"

// Image is one base64-able attachment.
type Image struct {
	MediaType string
	Data      []byte
}

// Request is the provider-neutral model request. The same value is sent to
// every provider tried during a scan.
type Request struct {
	Prompt      string
	Images      []Image
	Temperature float64
	MaxTokens   int
}

// Response is the generated text plus call metadata.
type Response struct {
	Text       string
	Provider   string
	Model      string
	StopReason string
	Usage      common.TokenUsage
}

// Provider defines the interface that all vision model backends must implement
type Provider interface {
	// Generate sends one request. Failures are returned as *ProviderError.
	Generate(ctx context.Context, req Request) (*Response, error)

	// GetProviderName returns the name of the provider (e.g., "anthropic", "bedrock")
	GetProviderName() string
}
