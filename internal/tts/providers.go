package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/haasonsaas/switchboard/internal/failure"
)

// maxAudioBytes bounds a provider response body.
const maxAudioBytes = 20 << 20

// Provider synthesizes speech with one backend.
type Provider interface {
	Name() string
	// Synthesize returns audio bytes and their MIME type. An empty body is
	// reported as a failure, never as success.
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

// ElevenLabsProvider calls the ElevenLabs text-to-speech endpoint.
type ElevenLabsProvider struct {
	cfg    ElevenLabsConfig
	client *http.Client
}

// NewElevenLabsProvider creates the provider. A nil client uses a default
// client; the caller's context bounds each request.
func NewElevenLabsProvider(cfg ElevenLabsConfig, client *http.Client) (*ElevenLabsProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("tts: ElevenLabs API key not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultConfig().ElevenLabs.BaseURL
	}
	if cfg.VoiceID == "" {
		cfg.VoiceID = DefaultConfig().ElevenLabs.VoiceID
	}
	if err := validateElevenLabsFormat(cfg.OutputFormat); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{}
	}
	return &ElevenLabsProvider{cfg: cfg, client: client}, nil
}

// Name implements Provider.
func (p *ElevenLabsProvider) Name() string { return string(ProviderElevenLabs) }

// Synthesize implements Provider.
func (p *ElevenLabsProvider) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	requestBody := map[string]interface{}{
		"text":     text,
		"model_id": p.cfg.ModelID,
		"voice_settings": map[string]interface{}{
			"stability":        p.cfg.Stability,
			"similarity_boost": p.cfg.SimilarityBoost,
		},
	}
	jsonBody, err := json.Marshal(requestBody)
	if err != nil {
		return nil, "", failure.New(failure.KindMalformedInput, component, "elevenlabs", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s", strings.TrimSuffix(p.cfg.BaseURL, "/"), url.PathEscape(p.cfg.VoiceID))
	if p.cfg.OutputFormat != "" {
		endpoint += "?output_format=" + url.QueryEscape(p.cfg.OutputFormat)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonBody))
	if err != nil {
		return nil, "", failure.New(failure.KindMalformedInput, component, "elevenlabs", err)
	}
	req.Header.Set("xi-api-key", p.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, "", failure.FromTransport(component, "elevenlabs", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, "", failure.FromHTTPStatus(component, "elevenlabs", resp.StatusCode, body)
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, "", failure.FromTransport(component, "elevenlabs", err)
	}
	if len(audio) == 0 {
		return nil, "", failure.New(failure.KindEmptyResponse, component, "elevenlabs", errors.New("200 response with zero-byte body"))
	}

	return audio, "audio/mpeg", nil
}

// OpenAIProvider calls the OpenAI speech endpoint.
type OpenAIProvider struct {
	client *openai.Client
	cfg    OpenAIConfig
}

// NewOpenAIProvider creates the provider.
func NewOpenAIProvider(cfg OpenAIConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("tts: OpenAI API key not configured")
	}
	defaults := DefaultConfig().OpenAI
	if cfg.Model == "" {
		cfg.Model = defaults.Model
	}
	if cfg.Voice == "" {
		cfg.Voice = defaults.Voice
	}
	if cfg.ResponseFormat == "" {
		cfg.ResponseFormat = defaults.ResponseFormat
	}
	if cfg.Speed == 0 {
		cfg.Speed = defaults.Speed
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	}
	return &OpenAIProvider{client: openai.NewClientWithConfig(clientCfg), cfg: cfg}, nil
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return string(ProviderOpenAI) }

// Synthesize implements Provider.
func (p *OpenAIProvider) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	resp, err := p.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.cfg.Model),
		Input:          text,
		Voice:          openai.SpeechVoice(p.cfg.Voice),
		ResponseFormat: openai.SpeechResponseFormat(p.cfg.ResponseFormat),
		Speed:          p.cfg.Speed,
	})
	if err != nil {
		return nil, "", failure.FromOpenAI(component, "openai", err)
	}
	defer resp.Close()

	audio, err := io.ReadAll(io.LimitReader(resp, maxAudioBytes))
	if err != nil {
		return nil, "", failure.FromTransport(component, "openai", err)
	}
	if len(audio) == 0 {
		return nil, "", failure.New(failure.KindEmptyResponse, component, "openai", errors.New("200 response with zero-byte body"))
	}

	mimeType := "audio/mpeg"
	if strings.EqualFold(p.cfg.ResponseFormat, "wav") {
		mimeType = "audio/wav"
	}
	return audio, mimeType, nil
}
