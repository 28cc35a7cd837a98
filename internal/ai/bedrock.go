// bedrock.go - Claude on AWS Bedrock through the Anthropic SDK

package ai

import (
	"context"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/bedrock"
	"github.com/anthropics/anthropic-sdk-go/option"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
)

// BedrockConfig configures the Bedrock provider.
type BedrockConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Model           string
	MaxTokens       int
}

// BedrockProvider implements Provider for Claude hosted on Bedrock
type BedrockProvider struct {
	model     string
	maxTokens int
	messages  messageCreator
	// notConfigured is set when credentials or region are missing.
	notConfigured string
}

// NewBedrockProvider builds the SDK client. Missing credentials do not fail
// construction; every call then reports the provider as not configured.
func NewBedrockProvider(ctx context.Context, cfg BedrockConfig) (*BedrockProvider, error) {
	p := newBedrockProvider(cfg, nil)
	var missing []string
	if cfg.AccessKeyID == "" {
		missing = append(missing, "AWS_ACCESS_KEY_ID")
	}
	if cfg.SecretAccessKey == "" {
		missing = append(missing, "AWS_SECRET_ACCESS_KEY")
	}
	if cfg.Region == "" {
		missing = append(missing, "AWS_REGION")
	}
	if len(missing) > 0 {
		p.notConfigured = strings.Join(missing, ", ") + " not set"
		return p, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, err
	}
	client := anthropic.NewClient(bedrock.WithConfig(awsCfg), option.WithMaxRetries(0))
	p.messages = &client.Messages
	return p, nil
}

func newBedrockProvider(cfg BedrockConfig, messages messageCreator) *BedrockProvider {
	if cfg.Model == "" {
		cfg.Model = "anthropic.claude-3-sonnet-20240229-v1:0"
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}
	return &BedrockProvider{
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		messages:  messages,
	}
}

// GetProviderName returns "bedrock"
func (b *BedrockProvider) GetProviderName() string {
	return ProviderBedrock
}

// Generate implements Provider.
func (b *BedrockProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	if b.notConfigured != "" || b.messages == nil {
		return nil, Classify(ProviderBedrock, errNotConfigured(ProviderBedrock, b.notConfigured))
	}
	return createMessage(ctx, ProviderBedrock, b.messages, b.model, b.maxTokens, req)
}
