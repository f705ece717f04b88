// Package tts converts reply text into audio through an ordered chain of
// providers.
//
// The primary provider is tried first. A provider succeeds only when it
// returns a success status and a non-empty body; a 200 with zero bytes is a
// failure. When every configured provider fails the result carries no audio
// (SourceNone) and the caller delivers the reply as text instead.
package tts

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

const component = "tts"

// ProviderName identifies a TTS provider.
type ProviderName string

const (
	// ProviderElevenLabs uses ElevenLabs' TTS API.
	ProviderElevenLabs ProviderName = "elevenlabs"

	// ProviderOpenAI uses OpenAI's TTS API.
	ProviderOpenAI ProviderName = "openai"
)

// Config holds TTS configuration.
type Config struct {
	// Provider is the primary TTS provider.
	// Default: elevenlabs
	Provider ProviderName `yaml:"provider"`

	// FallbackChain lists secondary providers tried in order after the
	// primary fails. Empty by default.
	FallbackChain []ProviderName `yaml:"fallback_chain"`

	// MaxTextLength is the longest reply, in characters, sent for synthesis.
	// Longer replies are not truncated; synthesis is skipped instead.
	// Default: 4096
	MaxTextLength int `yaml:"max_text_length"`

	// OpenAI configures the OpenAI TTS provider.
	OpenAI OpenAIConfig `yaml:"openai"`

	// ElevenLabs configures the ElevenLabs TTS provider.
	ElevenLabs ElevenLabsConfig `yaml:"elevenlabs"`

	Logger *slog.Logger `yaml:"-"`
}

// OpenAIConfig configures OpenAI TTS.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key.
	APIKey string `yaml:"api_key"`

	// Model is the TTS model to use.
	// Options: "tts-1", "tts-1-hd", "gpt-4o-mini-tts"
	// Default: "tts-1"
	Model string `yaml:"model"`

	// Voice is the voice to use.
	// Default: "onyx"
	Voice string `yaml:"voice"`

	// ResponseFormat is the audio format ("mp3" or "wav").
	// Default: "mp3"
	ResponseFormat string `yaml:"response_format"`

	// Speed is the speech speed (0.25 to 4.0).
	// Default: 1.0
	Speed float64 `yaml:"speed"`

	// BaseURL is the API base URL (optional).
	BaseURL string `yaml:"base_url"`
}

// ElevenLabsConfig configures ElevenLabs TTS.
type ElevenLabsConfig struct {
	// APIKey is the ElevenLabs API key.
	APIKey string `yaml:"api_key"`

	// VoiceID is the voice ID to use.
	// Default: "nPczCjzI2devNBz1zQrb" (Brian)
	VoiceID string `yaml:"voice_id"`

	// ModelID is the model to use.
	// Default: "eleven_multilingual_v2"
	ModelID string `yaml:"model_id"`

	// OutputFormat is the audio format.
	// Default: "mp3_44100_128"
	OutputFormat string `yaml:"output_format"`

	// Stability controls voice stability (0.0 to 1.0).
	// Default: 0.5
	Stability float64 `yaml:"stability"`

	// SimilarityBoost controls voice similarity (0.0 to 1.0).
	// Default: 0.75
	SimilarityBoost float64 `yaml:"similarity_boost"`

	// BaseURL overrides https://api.elevenlabs.io.
	BaseURL string `yaml:"base_url"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Provider:      ProviderElevenLabs,
		MaxTextLength: 4096,
		OpenAI: OpenAIConfig{
			Model:          "tts-1",
			Voice:          "onyx",
			ResponseFormat: "mp3",
			Speed:          1.0,
		},
		ElevenLabs: ElevenLabsConfig{
			VoiceID:         "nPczCjzI2devNBz1zQrb",
			ModelID:         "eleven_multilingual_v2",
			OutputFormat:    "mp3_44100_128",
			Stability:       0.5,
			SimilarityBoost: 0.75,
			BaseURL:         "https://api.elevenlabs.io",
		},
	}
}

// ApplyDefaults applies default values to empty config fields.
func (c *Config) ApplyDefaults() {
	defaults := DefaultConfig()

	if c.Provider == "" {
		c.Provider = defaults.Provider
	}
	if c.MaxTextLength <= 0 {
		c.MaxTextLength = defaults.MaxTextLength
	}

	if c.OpenAI.Model == "" {
		c.OpenAI.Model = defaults.OpenAI.Model
	}
	if c.OpenAI.Voice == "" {
		c.OpenAI.Voice = defaults.OpenAI.Voice
	}
	if c.OpenAI.ResponseFormat == "" {
		c.OpenAI.ResponseFormat = defaults.OpenAI.ResponseFormat
	}
	if c.OpenAI.Speed == 0 {
		c.OpenAI.Speed = defaults.OpenAI.Speed
	}

	if c.ElevenLabs.VoiceID == "" {
		c.ElevenLabs.VoiceID = defaults.ElevenLabs.VoiceID
	}
	if c.ElevenLabs.ModelID == "" {
		c.ElevenLabs.ModelID = defaults.ElevenLabs.ModelID
	}
	if c.ElevenLabs.OutputFormat == "" {
		c.ElevenLabs.OutputFormat = defaults.ElevenLabs.OutputFormat
	}
	if c.ElevenLabs.Stability == 0 {
		c.ElevenLabs.Stability = defaults.ElevenLabs.Stability
	}
	if c.ElevenLabs.SimilarityBoost == 0 {
		c.ElevenLabs.SimilarityBoost = defaults.ElevenLabs.SimilarityBoost
	}
	if c.ElevenLabs.BaseURL == "" {
		c.ElevenLabs.BaseURL = defaults.ElevenLabs.BaseURL
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// ValidateConfig validates the TTS configuration. Every provider in the
// chain must have credentials.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return errors.New("tts: config is nil")
	}

	seen := map[ProviderName]bool{}
	for _, p := range append([]ProviderName{cfg.Provider}, cfg.FallbackChain...) {
		switch p {
		case ProviderOpenAI:
			if cfg.OpenAI.APIKey == "" {
				return errors.New("tts: OpenAI API key is required")
			}
		case ProviderElevenLabs:
			if cfg.ElevenLabs.APIKey == "" {
				return errors.New("tts: ElevenLabs API key is required")
			}
		default:
			return fmt.Errorf("tts: invalid provider: %q", p)
		}
		if seen[p] {
			return fmt.Errorf("tts: provider %s listed twice", p)
		}
		seen[p] = true
	}

	if cfg.MaxTextLength < 0 {
		return errors.New("tts: max_text_length must be >= 0")
	}
	if cfg.OpenAI.Speed < 0 || cfg.OpenAI.Speed > 4.0 {
		return errors.New("tts: OpenAI speed must be between 0 and 4.0")
	}
	if cfg.ElevenLabs.Stability < 0 || cfg.ElevenLabs.Stability > 1.0 {
		return errors.New("tts: ElevenLabs stability must be between 0 and 1.0")
	}
	if cfg.ElevenLabs.SimilarityBoost < 0 || cfg.ElevenLabs.SimilarityBoost > 1.0 {
		return errors.New("tts: ElevenLabs similarity_boost must be between 0 and 1.0")
	}
	switch strings.ToLower(cfg.OpenAI.ResponseFormat) {
	case "", "mp3", "wav":
	default:
		return fmt.Errorf("tts: OpenAI response_format %q is not playable by the telephony provider", cfg.OpenAI.ResponseFormat)
	}
	return validateElevenLabsFormat(cfg.ElevenLabs.OutputFormat)
}

// validateElevenLabsFormat accepts the mp3_* output formats only. PCM, u-law
// and opus streams are headerless or unsupported by <Play>.
func validateElevenLabsFormat(format string) error {
	if format == "" || strings.HasPrefix(strings.ToLower(format), "mp3_") {
		return nil
	}
	return fmt.Errorf("tts: ElevenLabs output_format %q is not playable by the telephony provider", format)
}

// NewProvider builds a single provider from cfg.
func NewProvider(name ProviderName, cfg Config) (Provider, error) {
	switch name {
	case ProviderElevenLabs:
		p, err := NewElevenLabsProvider(cfg.ElevenLabs, nil)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderOpenAI:
		p, err := NewOpenAIProvider(cfg.OpenAI)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("tts: unknown provider: %s", name)
	}
}

// NewFromConfig validates cfg and builds the Synthesizer it describes.
func NewFromConfig(cfg Config) (*Synthesizer, error) {
	cfg.ApplyDefaults()
	if err := ValidateConfig(&cfg); err != nil {
		return nil, err
	}

	primary, err := NewProvider(cfg.Provider, cfg)
	if err != nil {
		return nil, err
	}
	fallbacks := make([]Provider, 0, len(cfg.FallbackChain))
	for _, name := range cfg.FallbackChain {
		p, err := NewProvider(name, cfg)
		if err != nil {
			return nil, err
		}
		fallbacks = append(fallbacks, p)
	}
	return NewSynthesizer(primary, fallbacks, Options{MaxTextLength: cfg.MaxTextLength, Logger: cfg.Logger}), nil
}
