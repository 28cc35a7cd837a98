package ai

import (
	"context"
	"testing"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessages struct {
	params anthropic.MessageNewParams
	msg    *anthropic.Message
	err    error
}

func (f *fakeMessages) New(ctx context.Context, body anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error) {
	f.params = body
	return f.msg, f.err
}

func TestBedrockGenerate(t *testing.T) {
	fake := &fakeMessages{msg: &anthropic.Message{
		Content: []anthropic.ContentBlockUnion{{Type: "text", Text: "<details>x</details>"}},
		Usage:   anthropic.Usage{InputTokens: 40, OutputTokens: 2},
	}}
	p := newBedrockProvider(BedrockConfig{}, fake)

	resp, err := p.Generate(context.Background(), Request{
		Prompt: "prompt",
		Images: []Image{{MediaType: "image/jpeg", Data: []byte{1, 2, 3}}},
	})
	require.NoError(t, err)
	assert.Equal(t, "<details>x</details>", resp.Text)
	assert.Equal(t, ProviderBedrock, resp.Provider)
	assert.Equal(t, "anthropic.claude-3-sonnet-20240229-v1:0", resp.Model)
	assert.Equal(t, 42, resp.Usage.TotalTokens)

	assert.Equal(t, anthropic.Model("anthropic.claude-3-sonnet-20240229-v1:0"), fake.params.Model)
	assert.Equal(t, int64(4096), fake.params.MaxTokens)
	require.Len(t, fake.params.Messages, 1)
	assert.Len(t, fake.params.Messages[0].Content, 2)
}

func TestBedrockEmptyContent(t *testing.T) {
	p := newBedrockProvider(BedrockConfig{}, &fakeMessages{msg: &anthropic.Message{}})
	_, err := p.Generate(context.Background(), Request{Prompt: "p"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CategoryEmptyResponse, pe.Category)
}

func TestBedrockMissingCredentials(t *testing.T) {
	p, err := NewBedrockProvider(context.Background(), BedrockConfig{Region: "eu-west-2"})
	require.NoError(t, err)

	_, err = p.Generate(context.Background(), Request{Prompt: "p"})
	var pe *ProviderError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, CategoryNotConfigured, pe.Category)
	assert.Contains(t, pe.Message, "AWS_ACCESS_KEY_ID")
	assert.Contains(t, pe.Message, "AWS_SECRET_ACCESS_KEY")
	assert.NotContains(t, pe.Message, "AWS_REGION")
}
