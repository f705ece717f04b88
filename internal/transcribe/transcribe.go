// Package transcribe converts fetched caller audio into text.
package transcribe

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/switchboard/internal/failure"
	"github.com/haasonsaas/switchboard/internal/observability"
	"github.com/haasonsaas/switchboard/internal/recording"
)

const component = "transcribe"

// Transcriber converts audio to text. An empty transcript with a nil error
// means no speech was detected.
type Transcriber interface {
	Transcribe(ctx context.Context, callID string, audio recording.Audio, language string) (string, error)
}

// Config holds configuration for the Whisper transcriber.
type Config struct {
	// APIKey is the OpenAI API key (required)
	APIKey string `yaml:"api_key"`

	// BaseURL is an optional custom base URL for the API
	BaseURL string `yaml:"base_url"`

	// Model is the transcription model to use (default: whisper-1)
	Model string `yaml:"model"`

	// Language is the default language hint, e.g. "en" or "en-AU"
	Language string `yaml:"language"`

	// Logger is an optional structured logger
	Logger *slog.Logger `yaml:"-"`
}

// WhisperTranscriber calls the OpenAI transcription endpoint.
type WhisperTranscriber struct {
	client   *openai.Client
	model    string
	language string
	logger   *slog.Logger
}

var _ Transcriber = (*WhisperTranscriber)(nil)

// NewWhisperTranscriber creates a transcriber.
func NewWhisperTranscriber(cfg Config) (*WhisperTranscriber, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("transcribe: OpenAI API key is required")
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &WhisperTranscriber{
		client:   openai.NewClientWithConfig(clientCfg),
		model:    model,
		language: cfg.Language,
		logger:   logger.With("component", component, "model", model),
	}, nil
}

// Transcribe makes a single transcription request. It never retries.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, callID string, audio recording.Audio, language string) (string, error) {
	if len(audio.Data) == 0 {
		return "", failure.New(failure.KindMalformedInput, component, "transcribe", fmt.Errorf("audio data is empty"))
	}
	if language == "" {
		language = t.language
	}

	resp, err := t.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    t.model,
		FilePath: filenameForMimeType(audio.MimeType),
		Reader:   bytes.NewReader(audio.Data),
		Language: isoLanguage(language),
	})
	if err != nil {
		classified := failure.FromOpenAI(component, "transcribe", err)
		if failure.IsClientRejection(classified) {
			classified.Kind = failure.KindMalformedInput
		}
		return "", classified
	}

	text := strings.TrimSpace(resp.Text)
	t.logger.InfoContext(ctx, "transcription complete",
		"call_id", callID,
		"bytes", len(audio.Data),
		"transcript", observability.Excerpt(text))
	return text, nil
}

// isoLanguage reduces a locale such as "en-AU" to the ISO 639-1 code Whisper expects.
func isoLanguage(language string) string {
	language = strings.TrimSpace(language)
	if i := strings.IndexAny(language, "-_"); i > 0 {
		language = language[:i]
	}
	return strings.ToLower(language)
}

func filenameForMimeType(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])) {
	case "audio/mpeg", "audio/mp3":
		return "recording.mp3"
	case "audio/ogg", "audio/opus":
		return "recording.ogg"
	case "audio/webm":
		return "recording.webm"
	case "audio/mp4", "audio/m4a", "audio/x-m4a":
		return "recording.m4a"
	case "audio/flac":
		return "recording.flac"
	default:
		return "recording.wav"
	}
}
