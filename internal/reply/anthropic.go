package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/haasonsaas/switchboard/internal/failure"
	"github.com/haasonsaas/switchboard/internal/observability"
)

// AnthropicGenerator generates replies with the Messages API.
type AnthropicGenerator struct {
	client      anthropic.Client
	model       string
	system      string
	temperature float64
	maxTokens   int64
	logger      *slog.Logger
}

var _ Generator = (*AnthropicGenerator)(nil)

// NewAnthropicGenerator creates an Anthropic-backed generator. SDK retries
// are disabled; a turn makes a single generation attempt.
func NewAnthropicGenerator(cfg Config) (*AnthropicGenerator, error) {
	cfg.applyDefaults()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("reply: Anthropic API key is required")
	}
	options := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	model := cfg.Model
	if model == "" {
		model = "claude-sonnet-4-20250514"
	}
	return &AnthropicGenerator{
		client:      anthropic.NewClient(options...),
		model:       model,
		system:      cfg.SystemPrompt,
		temperature: float64(cfg.Temperature),
		maxTokens:   int64(cfg.MaxTokens),
		logger:      cfg.Logger.With("component", component, "provider", "anthropic", "model", model),
	}, nil
}

// Generate performs one message request.
func (g *AnthropicGenerator) Generate(ctx context.Context, req Request) (string, error) {
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.model),
		MaxTokens:   g.maxTokens,
		Temperature: anthropic.Float(g.temperature),
		System:      []anthropic.TextBlockParam{{Text: g.system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(userText(req.Transcript))),
		},
	})
	if err != nil {
		return "", failure.FromAnthropic(component, "generate", err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", failure.New(failure.KindEmptyResponse, component, "generate", fmt.Errorf("no text content in response"))
	}

	g.logger.InfoContext(ctx, "reply generated",
		"call_id", req.CallID,
		"reply", observability.Excerpt(text),
		"input_tokens", msg.Usage.InputTokens,
		"output_tokens", msg.Usage.OutputTokens)
	return text, nil
}
