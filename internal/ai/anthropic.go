// anthropic.go - Claude through the Anthropic Messages API, shared by the direct and Bedrock providers

package ai

import (
	"context"
	"encoding/base64"
	"net/http"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/bosocmputer/invoice_scanner/internal/common"
)

// AnthropicConfig configures the direct API provider.
type AnthropicConfig struct {
	APIKey    string
	Model     string
	BaseURL   string
	Version   string
	MaxTokens int
	// HTTPClient overrides the SDK's default client (tests).
	HTTPClient *http.Client
}

// messageCreator is the slice of the SDK message service the providers use.
type messageCreator interface {
	New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicProvider implements Provider against api.anthropic.com
type AnthropicProvider struct {
	model     string
	maxTokens int
	messages  messageCreator
}

// NewAnthropicProvider creates a new direct API provider. Without an API key
// every call reports the provider as not configured.
func NewAnthropicProvider(cfg AnthropicConfig) *AnthropicProvider {
	if cfg.Model == "" {
		cfg.Model = "claude-3-5-sonnet-20240620"
	}
	if cfg.Version == "" {
		cfg.Version = "2023-06-01"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	p := &AnthropicProvider{model: cfg.Model, maxTokens: cfg.MaxTokens}
	if cfg.APIKey == "" {
		return p
	}

	// Fallback and the breaker decide what happens after a failure.
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHeader("anthropic-version", cfg.Version),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := anthropic.NewClient(opts...)
	p.messages = &client.Messages
	return p
}

// GetProviderName returns "anthropic"
func (a *AnthropicProvider) GetProviderName() string {
	return ProviderAnthropic
}

// Generate implements Provider.
func (a *AnthropicProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if a.messages == nil {
		return nil, Classify(ProviderAnthropic, errNotConfigured(ProviderAnthropic, "ANTHROPIC_API_KEY is not set"))
	}
	return createMessage(ctx, ProviderAnthropic, a.messages, a.model, a.maxTokens, req)
}

// buildSDKContent puts the prompt first, then images in page order.
func buildSDKContent(req Request) []anthropic.ContentBlockParamUnion {
	blocks := make([]anthropic.ContentBlockParamUnion, 0, len(req.Images)+1)
	blocks = append(blocks, anthropic.NewTextBlock(req.Prompt))
	for _, img := range req.Images {
		blocks = append(blocks, anthropic.NewImageBlockBase64(
			img.MediaType,
			base64.StdEncoding.EncodeToString(img.Data),
		))
	}
	return blocks
}

// createMessage sends one user turn and maps the reply. The first text block
// is the answer; a reply without one is an empty response.
func createMessage(ctx context.Context, provider string, messages messageCreator, model string, defaultMaxTokens int, req Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	message, err := messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(model),
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(req.Temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(buildSDKContent(req)...),
		},
	})
	if err != nil {
		return nil, Classify(provider, err)
	}

	var text string
	for _, block := range message.Content {
		if block.Type == "text" {
			text = block.Text
			break
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, Classify(provider, errEmptyResponse)
	}

	replyModel := string(message.Model)
	if replyModel == "" {
		replyModel = model
	}
	return &Response{
		Text:       text,
		Provider:   provider,
		Model:      replyModel,
		StopReason: string(message.StopReason),
		Usage:      common.NewTokenUsage(int(message.Usage.InputTokens), int(message.Usage.OutputTokens)),
	}, nil
}
