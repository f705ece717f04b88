package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/switchboard/internal/failure"
	"github.com/haasonsaas/switchboard/internal/observability"
)

// OpenAIGenerator generates replies with the chat completions API.
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	system      string
	temperature float32
	maxTokens   int
	logger      *slog.Logger
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates an OpenAI-backed generator.
func NewOpenAIGenerator(cfg Config) (*OpenAIGenerator, error) {
	cfg.applyDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("reply: OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.GPT4o
	}
	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientCfg),
		model:       model,
		system:      cfg.SystemPrompt,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		logger:      cfg.Logger.With("component", component, "provider", "openai", "model", model),
	}, nil
}

// Generate performs one chat completion.
func (g *OpenAIGenerator) Generate(ctx context.Context, req Request) (string, error) {
	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: g.system},
			{Role: openai.ChatMessageRoleUser, Content: userText(req.Transcript)},
		},
		Temperature: g.temperature,
		MaxTokens:   g.maxTokens,
	})
	if err != nil {
		return "", failure.FromOpenAI(component, "generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", failure.New(failure.KindEmptyResponse, component, "generate", fmt.Errorf("no choices in response"))
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", failure.New(failure.KindEmptyResponse, component, "generate", fmt.Errorf("empty reply text"))
	}

	g.logger.InfoContext(ctx, "reply generated",
		"call_id", req.CallID,
		"reply", observability.Excerpt(text),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens)
	return text, nil
}
