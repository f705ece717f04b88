package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/haasonsaas/switchboard/internal/failure"
)

func newElevenLabs(t *testing.T, handler http.HandlerFunc) *ElevenLabsProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := DefaultConfig().ElevenLabs
	cfg.APIKey = "xi-key"
	cfg.BaseURL = srv.URL
	p, err := NewElevenLabsProvider(cfg, srv.Client())
	if err != nil {
		t.Fatalf("NewElevenLabsProvider: %v", err)
	}
	return p
}

func TestNewElevenLabsProvider_RejectsUnplayableFormat(t *testing.T) {
	cfg := DefaultConfig().ElevenLabs
	cfg.APIKey = "xi-key"
	cfg.OutputFormat = "pcm_24000"
	if _, err := NewElevenLabsProvider(cfg, nil); err == nil {
		t.Fatal("expected pcm output to be rejected")
	}
}

func TestElevenLabsProvider_Success(t *testing.T) {
	longText := ""
	for i := 0; i < 200; i++ {
		longText += "word "
	}
	var gotText, gotFormat, gotKey string
	p := newElevenLabs(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/text-to-speech/nPczCjzI2devNBz1zQrb" {
			t.Errorf("path = %s", r.URL.Path)
		}
		gotFormat = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		var body struct {
			Text string `json:"text"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotText = body.Text
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3audio"))
	})

	audio, mimeType, err := p.Synthesize(context.Background(), longText)
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "ID3audio" || mimeType != "audio/mpeg" {
		t.Errorf("audio=%q mime=%q", audio, mimeType)
	}
	if gotText != longText {
		t.Error("text sent for synthesis must not be truncated")
	}
	if gotFormat != "mp3_44100_128" || gotKey != "xi-key" {
		t.Errorf("format=%q key=%q", gotFormat, gotKey)
	}
}

func TestElevenLabsProvider_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   failure.Kind
	}{
		{"zero bytes with 200", http.StatusOK, "", failure.KindEmptyResponse},
		{"bad key", http.StatusUnauthorized, `{"detail":"invalid api key"}`, failure.KindAuth},
		{"quota", http.StatusTooManyRequests, "", failure.KindTransientNetwork},
		{"validation", http.StatusUnprocessableEntity, `{"detail":"text too long"}`, failure.KindDownstreamProvider},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := newElevenLabs(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			_, _, err := p.Synthesize(context.Background(), "hello")
			if got := failure.KindOf(err); got != tt.want {
				t.Errorf("kind = %s, want %s (err=%v)", got, tt.want, err)
			}
		})
	}
}

func TestElevenLabsProvider_Timeout(t *testing.T) {
	p := newElevenLabs(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, _, err := p.Synthesize(ctx, "hello")
	if got := failure.KindOf(err); got != failure.KindTimeout {
		t.Errorf("kind = %s, want timeout (err=%v)", got, err)
	}
}

func TestOpenAIProvider(t *testing.T) {
	var got struct {
		Model string `json:"model"`
		Input string `json:"input"`
		Voice string `json:"voice"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/speech" {
			t.Errorf("path = %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("mp3bytes"))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "sk", BaseURL: srv.URL + "/v1"})
	if err != nil {
		t.Fatal(err)
	}
	audio, mimeType, err := p.Synthesize(context.Background(), "Hello there")
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(audio) != "mp3bytes" || mimeType != "audio/mpeg" {
		t.Errorf("audio=%q mime=%q", audio, mimeType)
	}
	if got.Model != "tts-1" || got.Voice != "onyx" || got.Input != "Hello there" {
		t.Errorf("request = %+v", got)
	}
}

func TestOpenAIProvider_EmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p, _ := NewOpenAIProvider(OpenAIConfig{APIKey: "sk", BaseURL: srv.URL + "/v1"})
	_, _, err := p.Synthesize(context.Background(), "Hello")
	if !failure.Is(err, failure.KindEmptyResponse) {
		t.Errorf("expected empty_response, got %v", err)
	}
}
