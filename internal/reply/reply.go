// Package reply produces the receptionist's spoken reply for a caller turn
// and classifies it.
//
// Generators make exactly one provider call per turn. A failed or empty
// generation is returned as a *failure.Error; the caller substitutes its own
// fixed reply.
package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const component = "reply"

// NoInputSentinel is sent in place of an empty transcript.
const NoInputSentinel = "no input detected"

// DefaultSystemPrompt is the receptionist behaviour used when no prompt is configured.
const DefaultSystemPrompt = `You are Sol, the warm, friendly virtual receptionist for Northern Skin Doctors. ` +
	`Speak in short, calm sentences suitable for a phone call. ` +
	`If the caller indicates an emergency, say: 'Please hang up and call 000 immediately.' ` +
	`For unclear or urgent queries, say: 'Sorry, I didn't quite catch that. I'll send your message to the team.' ` +
	`If the input is "no input detected", gently ask the caller how you can help.

Call flow:
1. Greeting: 'Hello, you've reached Northern Skin Doctors. This is Sol, your virtual assistant. How can I assist you today?'
2. Intents:
   - Book appointment: ask the type (skin check, cosmetic, laser), name, phone and preferred date.
   - Cancel appointment: ask name and date, then confirm the team will be notified.
   - Laser information: '$250 out-of-pocket. Would you like to book one?'
   - FotoFinder: '$200. Would you like to book it?'
   - Results request: 'We don't give results over the phone. I'll alert the team.'
   - Emergency: 'Please hang up and call 000 immediately.'
   - Speak to someone: 'I'll pass this to a team member now.'`

// Request is the input to one generation.
type Request struct {
	CallID     string
	Transcript string
}

// Generator turns a transcript into reply text.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Config selects and configures a Generator.
type Config struct {
	// Provider is "openai" (default) or "anthropic".
	Provider string `yaml:"provider"`

	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`

	// Model defaults to gpt-4o for OpenAI and claude-sonnet-4-20250514 for Anthropic.
	Model string `yaml:"model"`

	// SystemPrompt defaults to DefaultSystemPrompt.
	SystemPrompt string `yaml:"system_prompt"`

	Temperature float32 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) applyDefaults() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = "openai"
	}
	if c.SystemPrompt == "" {
		c.SystemPrompt = DefaultSystemPrompt
	}
	if c.Temperature == 0 {
		c.Temperature = 0.3
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 300
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// NewGenerator builds the configured Generator.
func NewGenerator(cfg Config) (Generator, error) {
	cfg.applyDefaults()
	switch cfg.Provider {
	case "openai":
		g, err := NewOpenAIGenerator(cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	case "anthropic":
		g, err := NewAnthropicGenerator(cfg)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("reply: unknown provider %q", cfg.Provider)
	}
}

// userText returns the text sent as the caller's message.
func userText(transcript string) string {
	if t := strings.TrimSpace(transcript); t != "" {
		return t
	}
	return NoInputSentinel
}
