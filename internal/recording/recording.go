// Package recording retrieves caller recordings from the telephony
// provider's storage.
//
// TwilioFetcher performs exactly one authenticated GET per call and
// classifies the outcome; RetryingFetcher layers the backoff policy on top.
// Zero-length bodies are reported as empty_response, which the retry layer
// treats like a recording that is still processing.
package recording

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/haasonsaas/switchboard/internal/failure"
)

const component = "recording"

// maxRecordingBytes matches the largest upload the transcription API accepts.
const maxRecordingBytes = 25 * 1024 * 1024

// Audio is a fetched recording.
type Audio struct {
	Data     []byte
	MimeType string
}

// Fetcher retrieves one recording.
type Fetcher interface {
	Fetch(ctx context.Context, callID, ref string) (Audio, error)
}

// TwilioConfig configures the Twilio recording fetcher.
type TwilioConfig struct {
	// AccountSID and AuthToken authenticate the GET with HTTP basic auth.
	AccountSID string
	AuthToken  string

	// Format is appended as an extension when the reference has none
	// ("wav" or "mp3"). Defaults to "wav".
	Format string

	// AllowedHosts restricts which hosts credentials are sent to.
	// Defaults to api.twilio.com.
	AllowedHosts []string

	// Timeout bounds a single GET (default: 10s).
	Timeout time.Duration

	HTTPClient *http.Client
	Logger     *slog.Logger
}

// TwilioFetcher downloads recordings from Twilio.
type TwilioFetcher struct {
	accountSID string
	authToken  string
	format     string
	hosts      map[string]bool
	client     *http.Client
	logger     *slog.Logger
}

var _ Fetcher = (*TwilioFetcher)(nil)

// NewTwilioFetcher creates a fetcher. Credentials are required.
func NewTwilioFetcher(cfg TwilioConfig) (*TwilioFetcher, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, fmt.Errorf("recording: twilio account sid and auth token are required")
	}
	format := strings.TrimPrefix(strings.ToLower(cfg.Format), ".")
	if format == "" {
		format = "wav"
	}
	if format != "wav" && format != "mp3" {
		return nil, fmt.Errorf("recording: unsupported format %q", cfg.Format)
	}
	hosts := cfg.AllowedHosts
	if len(hosts) == 0 {
		hosts = []string{"api.twilio.com"}
	}
	allowed := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(h)] = true
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TwilioFetcher{
		accountSID: cfg.AccountSID,
		authToken:  cfg.AuthToken,
		format:     format,
		hosts:      allowed,
		client:     client,
		logger:     logger.With("component", component),
	}, nil
}

// Fetch performs a single GET of the recording.
func (f *TwilioFetcher) Fetch(ctx context.Context, callID, ref string) (Audio, error) {
	target, err := f.resolve(ref)
	if err != nil {
		return Audio{}, failure.New(failure.KindMalformedInput, component, "fetch", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Audio{}, failure.New(failure.KindMalformedInput, component, "fetch", err)
	}
	req.SetBasicAuth(f.accountSID, f.authToken)

	resp, err := f.client.Do(req)
	if err != nil {
		return Audio{}, failure.FromTransport(component, "fetch", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return Audio{}, failure.FromHTTPStatus(component, "fetch", resp.StatusCode, body)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRecordingBytes+1))
	if err != nil {
		return Audio{}, failure.FromTransport(component, "read", err)
	}
	if len(data) > maxRecordingBytes {
		return Audio{}, failure.New(failure.KindMalformedInput, component, "read",
			fmt.Errorf("recording exceeds %d bytes", maxRecordingBytes))
	}
	if len(data) == 0 {
		return Audio{}, failure.New(failure.KindEmptyResponse, component, "read",
			fmt.Errorf("recording body is empty"))
	}

	f.logger.DebugContext(ctx, "recording fetched", "call_id", callID, "bytes", len(data))
	return Audio{Data: data, MimeType: mimeTypeFor(resp.Header.Get("Content-Type"), target)}, nil
}

// resolve validates ref and appends the media extension when it has none.
func (f *TwilioFetcher) resolve(ref string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parse recording reference: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return "", fmt.Errorf("recording reference must be an http(s) URL")
	}
	if !f.hosts[strings.ToLower(u.Hostname())] {
		return "", fmt.Errorf("recording host %q is not allowed", u.Hostname())
	}
	if path.Ext(u.Path) == "" {
		u.Path += "." + f.format
	}
	return u.String(), nil
}

func mimeTypeFor(contentType, target string) string {
	if ct := strings.TrimSpace(strings.Split(contentType, ";")[0]); strings.HasPrefix(ct, "audio/") {
		return ct
	}
	u, err := url.Parse(target)
	if err == nil && strings.EqualFold(path.Ext(u.Path), ".mp3") {
		return "audio/mpeg"
	}
	return "audio/wav"
}
