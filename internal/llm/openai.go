package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const systemPrompt = "You are a cybersecurity analyst. Respond with a single JSON object and nothing else."

const temperature float32 = 0.1

// ChatProvider adapts an eino chat model to Provider.
type ChatProvider struct {
	Model string
	chat  model.BaseChatModel
}

// NewChatProvider wraps an existing chat model.
func NewChatProvider(chat model.BaseChatModel, modelName string) *ChatProvider {
	return &ChatProvider{Model: modelName, chat: chat}
}

// NewOpenAIProvider connects to an OpenAI-compatible endpoint such as DeepSeek.
func NewOpenAIProvider(ctx context.Context, baseURL, apiKey, modelName string, timeout time.Duration) (*ChatProvider, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	chat, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Model:   modelName,
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating chat model: %w", err)
	}
	return NewChatProvider(chat, modelName), nil
}

// IsConfigured reports whether a chat model is attached.
func (p *ChatProvider) IsConfigured() bool {
	return p != nil && p.chat != nil
}

// Generate sends the prompt as a single user turn and returns the reply text.
func (p *ChatProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if !p.IsConfigured() {
		return "", ErrNotConfigured
	}
	messages := []*schema.Message{
		{Role: schema.System, Content: systemPrompt},
		{Role: schema.User, Content: prompt},
	}
	opts := []model.Option{model.WithTemperature(temperature)}
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}

	resp, err := p.chat.Generate(ctx, messages, opts...)
	if err != nil {
		return "", classifyTransport(err)
	}
	if resp == nil {
		return "", fmt.Errorf("%w: empty reply from %s", ErrTransport, p.Model)
	}
	return resp.Content, nil
}
