// gemini.go - Google Gemini vision provider

package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/bosocmputer/invoice_scanner/internal/common"
)

// GeminiConfig configures the Gemini provider.
type GeminiConfig struct {
	APIKey    string
	Model     string
	MaxTokens int
}

// generateFunc sends parts to the named model with the given generation config.
type generateFunc func(ctx context.Context, model string, cfg genai.GenerationConfig, parts ...genai.Part) (*genai.GenerateContentResponse, error)

// GeminiProvider implements Provider for Gemini
type GeminiProvider struct {
	apiKey    string
	model     string
	maxTokens int
	generate  generateFunc
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(cfg GeminiConfig) *GeminiProvider {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-pro"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	g := &GeminiProvider{
		apiKey:    cfg.APIKey,
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}
	g.generate = g.callGemini
	return g
}

// GetProviderName returns "gemini"
func (g *GeminiProvider) GetProviderName() string {
	return ProviderGemini
}

// callGemini opens a client for one request, as the SDK client is cheap and
// holds a connection that must be closed.
func (g *GeminiProvider) callGemini(ctx context.Context, name string, cfg genai.GenerationConfig, parts ...genai.Part) (*genai.GenerateContentResponse, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(g.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	defer client.Close()

	model := client.GenerativeModel(name)
	model.GenerationConfig = cfg
	return model.GenerateContent(ctx, parts...)
}

// Generate implements Provider.
func (g *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if g.apiKey == "" {
		return nil, Classify(ProviderGemini, errNotConfigured(ProviderGemini, "GEMINI_API_KEY is not set"))
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}
	var cfg genai.GenerationConfig
	cfg.SetTemperature(float32(req.Temperature))
	cfg.SetMaxOutputTokens(int32(maxTokens))

	parts := make([]genai.Part, 0, len(req.Images)+1)
	parts = append(parts, genai.Text(req.Prompt))
	for _, img := range req.Images {
		parts = append(parts, genai.Blob{MIMEType: img.MediaType, Data: img.Data})
	}

	resp, err := g.generate(ctx, g.model, cfg, parts...)
	if err != nil {
		return nil, Classify(ProviderGemini, err)
	}

	text, stop := geminiText(resp)
	if strings.TrimSpace(text) == "" {
		return nil, Classify(ProviderGemini, errEmptyResponse)
	}

	out := &Response{
		Text:       text,
		Provider:   ProviderGemini,
		Model:      g.model,
		StopReason: stop,
	}
	if resp.UsageMetadata != nil {
		out.Usage = common.NewTokenUsage(
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
		)
	}
	return out, nil
}

// geminiText concatenates the text parts of the first candidate.
func geminiText(resp *genai.GenerateContentResponse) (string, string) {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", ""
	}
	cand := resp.Candidates[0]
	var sb strings.Builder
	for _, part := range cand.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			sb.WriteString(string(text))
		}
	}
	var stop string
	switch cand.FinishReason {
	case genai.FinishReasonUnspecified:
	case genai.FinishReasonStop:
		stop = "stop"
	case genai.FinishReasonMaxTokens:
		stop = "max_tokens"
	case genai.FinishReasonSafety:
		stop = "safety"
	default:
		stop = "other"
	}
	return sb.String(), stop
}
