package tts

import (
	"strings"
	"testing"
)

func TestApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Provider != ProviderElevenLabs {
		t.Errorf("Provider = %s, want elevenlabs", cfg.Provider)
	}
	if cfg.MaxTextLength != 4096 {
		t.Errorf("MaxTextLength = %d", cfg.MaxTextLength)
	}
	if cfg.ElevenLabs.BaseURL != "https://api.elevenlabs.io" {
		t.Errorf("ElevenLabs.BaseURL = %s", cfg.ElevenLabs.BaseURL)
	}
	if cfg.OpenAI.Model != "tts-1" || cfg.OpenAI.ResponseFormat != "mp3" {
		t.Errorf("OpenAI defaults = %+v", cfg.OpenAI)
	}
	if len(cfg.FallbackChain) != 0 {
		t.Errorf("FallbackChain should default to empty, got %v", cfg.FallbackChain)
	}
	if cfg.Logger == nil {
		t.Error("Logger should default")
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() Config {
		c := DefaultConfig()
		c.ElevenLabs.APIKey = "xi"
		c.OpenAI.APIKey = "sk"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"valid with fallback", func(c *Config) { c.FallbackChain = []ProviderName{ProviderOpenAI} }, ""},
		{"unknown provider", func(c *Config) { c.Provider = "edge" }, "invalid provider"},
		{"missing elevenlabs key", func(c *Config) { c.ElevenLabs.APIKey = "" }, "ElevenLabs API key"},
		{"missing fallback key", func(c *Config) {
			c.OpenAI.APIKey = ""
			c.FallbackChain = []ProviderName{ProviderOpenAI}
		}, "OpenAI API key"},
		{"duplicate", func(c *Config) { c.FallbackChain = []ProviderName{ProviderElevenLabs} }, "listed twice"},
		{"bad speed", func(c *Config) { c.OpenAI.Speed = 5 }, "speed"},
		{"bad stability", func(c *Config) { c.ElevenLabs.Stability = 2 }, "stability"},
		{"unplayable format", func(c *Config) { c.OpenAI.ResponseFormat = "opus" }, "response_format"},
		{"elevenlabs pcm", func(c *Config) { c.ElevenLabs.OutputFormat = "pcm_16000" }, "output_format"},
		{"elevenlabs ulaw", func(c *Config) { c.ElevenLabs.OutputFormat = "ulaw_8000" }, "output_format"},
		{"elevenlabs mp3 variant", func(c *Config) { c.ElevenLabs.OutputFormat = "mp3_22050_32" }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := ValidateConfig(&cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}

	if err := ValidateConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNewFromConfig(t *testing.T) {
	cfg := Config{
		FallbackChain: []ProviderName{ProviderOpenAI},
		ElevenLabs:    ElevenLabsConfig{APIKey: "xi"},
		OpenAI:        OpenAIConfig{APIKey: "sk"},
	}
	s, err := NewFromConfig(cfg)
	if err != nil {
		t.Fatalf("NewFromConfig: %v", err)
	}
	if s.primary.Name() != "elevenlabs" {
		t.Errorf("primary = %s", s.primary.Name())
	}
	if len(s.fallbacks) != 1 || s.fallbacks[0].Name() != "openai" {
		t.Errorf("fallbacks = %v", s.fallbacks)
	}

	if _, err := NewFromConfig(Config{}); err == nil {
		t.Error("expected error without credentials")
	}
}
