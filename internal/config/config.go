// Package config loads the switchboard configuration file.
//
// A file is YAML (or JSON/JSON5 by extension). ${VAR} references are expanded
// from the environment, $include entries are merged depth first, and unknown
// fields are rejected. Secrets left empty in the file fall back to well-known
// environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/haasonsaas/switchboard/internal/backoff"
	"github.com/haasonsaas/switchboard/internal/calllog"
	"github.com/haasonsaas/switchboard/internal/notify"
	"github.com/haasonsaas/switchboard/internal/observability"
	"github.com/haasonsaas/switchboard/internal/publish"
	"github.com/haasonsaas/switchboard/internal/reply"
	"github.com/haasonsaas/switchboard/internal/sessions"
	"github.com/haasonsaas/switchboard/internal/transcribe"
	"github.com/haasonsaas/switchboard/internal/tts"
	"github.com/haasonsaas/switchboard/internal/turn"
	"github.com/haasonsaas/switchboard/internal/voice"
)

// Config is the main configuration structure for switchboard.
type Config struct {
	Version int `yaml:"version"`

	Server        ServerConfig            `yaml:"server"`
	Twilio        TwilioConfig            `yaml:"twilio"`
	Recording     RecordingConfig         `yaml:"recording"`
	Transcription transcribe.Config       `yaml:"transcription"`
	Reply         ReplyConfig             `yaml:"reply"`
	TTS           tts.Config              `yaml:"tts"`
	Publish       publish.Config          `yaml:"publish"`
	Notify        notify.Config           `yaml:"notify"`
	Turn          turn.Config             `yaml:"turn"`
	Sessions      sessions.Config         `yaml:"sessions"`
	CallLog       calllog.Config          `yaml:"calllog"`
	Logging       observability.LogConfig `yaml:"logging"`
	Observability ObservabilityConfig     `yaml:"observability"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// TwilioConfig holds account credentials and webhook settings.
type TwilioConfig struct {
	AccountSID string `yaml:"account_sid"`
	AuthToken  string `yaml:"auth_token"`

	// VerifySignatures checks X-Twilio-Signature on every webhook.
	VerifySignatures bool `yaml:"verify_signatures"`

	// PublicURL is the externally visible base URL used for signature
	// checks behind a proxy, e.g. https://switchboard.example.com.
	PublicURL string `yaml:"public_url"`

	Capture voice.CaptureConfig `yaml:"capture"`

	// MaxBodyBytes limits webhook bodies (default 64KiB).
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// RecordingConfig configures recording downloads.
type RecordingConfig struct {
	// Format is "wav" (default) or "mp3".
	Format       string         `yaml:"format"`
	AllowedHosts []string       `yaml:"allowed_hosts"`
	Timeout      time.Duration  `yaml:"timeout"`
	MaxAttempts  int            `yaml:"max_attempts"`
	Backoff      backoff.Policy `yaml:"backoff"`
}

// ReplyConfig configures the reply generator and classification patterns.
type ReplyConfig struct {
	reply.Config `yaml:",inline"`

	// EmergencyPatterns and FallbackPatterns override the defaults when set.
	// An explicit empty list disables the flag.
	EmergencyPatterns []string `yaml:"emergency_patterns"`
	FallbackPatterns  []string `yaml:"fallback_patterns"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	Tracing observability.TraceConfig `yaml:"tracing"`
	Metrics MetricsConfig             `yaml:"metrics"`
}

// MetricsConfig controls the /metrics endpoint.
type MetricsConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// On reports whether metrics are served. Metrics are on unless disabled.
func (m MetricsConfig) On() bool {
	return m.Enabled == nil || *m.Enabled
}

// Load reads, defaults and validates the configuration file at path.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	cfg.applyEnv(os.LookupEnv)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// secretEnv maps each secret to its environment fallback.
func (c *Config) secretEnv() []struct {
	field *string
	env   string
} {
	return []struct {
		field *string
		env   string
	}{
		{&c.Transcription.APIKey, "OPENAI_API_KEY"},
		{&c.TTS.OpenAI.APIKey, "OPENAI_API_KEY"},
		{&c.TTS.ElevenLabs.APIKey, "ELEVENLABS_API_KEY"},
		{&c.Twilio.AccountSID, "TWILIO_ACCOUNT_SID"},
		{&c.Twilio.AuthToken, "TWILIO_AUTH_TOKEN"},
		{&c.Notify.SMTP.Username, "SMTP_USERNAME"},
		{&c.Notify.SMTP.Password, "SMTP_PASSWORD"},
		{&c.Notify.Slack.WebhookURL, "SLACK_WEBHOOK_URL"},
	}
}

// applyEnv fills empty secrets from the environment.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	for _, s := range c.secretEnv() {
		if strings.TrimSpace(*s.field) != "" {
			continue
		}
		if v, ok := lookup(s.env); ok {
			*s.field = strings.TrimSpace(v)
		}
	}
	if strings.TrimSpace(c.Reply.APIKey) == "" {
		env := "OPENAI_API_KEY"
		if strings.EqualFold(strings.TrimSpace(c.Reply.Provider), "anthropic") {
			env = "ANTHROPIC_API_KEY"
		}
		if v, ok := lookup(env); ok {
			c.Reply.APIKey = strings.TrimSpace(v)
		}
	}
}

// ApplyDefaults fills unset fields across every section.
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 10 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		// A turn may take the sum of its stage timeouts.
		c.Server.WriteTimeout = 2 * time.Minute
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 30 * time.Second
	}

	c.Twilio.Capture.ApplyDefaults()
	if c.Twilio.MaxBodyBytes <= 0 {
		c.Twilio.MaxBodyBytes = 64 << 10
	}
	c.Twilio.PublicURL = strings.TrimSuffix(strings.TrimSpace(c.Twilio.PublicURL), "/")

	if c.Recording.MaxAttempts <= 0 {
		c.Recording.MaxAttempts = 3
	}
	if c.Recording.Backoff == (backoff.Policy{}) {
		c.Recording.Backoff = backoff.RecordingPolicy()
	}

	c.Turn.ApplyDefaults()
	if c.Transcription.Language == "" {
		c.Transcription.Language = c.Turn.Language
	}

	c.Reply.Provider = strings.ToLower(strings.TrimSpace(c.Reply.Provider))
	if c.Reply.Provider == "" {
		c.Reply.Provider = "openai"
	}
	c.TTS.ApplyDefaults()

	c.Publish.ApplyDefaults()
	if c.Publish.BaseURL == "" && c.Publish.Backend == "local" && c.Twilio.PublicURL != "" {
		c.Publish.BaseURL = c.Twilio.PublicURL + "/audio"
	}

	c.CallLog.ApplyDefaults()

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Observability.Tracing.ServiceName == "" {
		c.Observability.Tracing.ServiceName = "switchboard"
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
}

// Validate reports every configuration problem at once. Call it after
// ApplyDefaults.
func (c *Config) Validate() error {
	if err := ValidateVersion(c.Version); err != nil {
		return err
	}

	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if c.Server.Port < 0 || c.Server.Port > 65535 {
		add(fmt.Errorf("server.port %d out of range", c.Server.Port))
	}

	if c.Twilio.AccountSID == "" || c.Twilio.AuthToken == "" {
		add(errors.New("twilio.account_sid and twilio.auth_token are required (or TWILIO_ACCOUNT_SID/TWILIO_AUTH_TOKEN)"))
	}
	if c.Twilio.PublicURL != "" {
		if u, err := url.Parse(c.Twilio.PublicURL); err != nil || u.Scheme == "" || u.Host == "" {
			add(fmt.Errorf("twilio.public_url %q must be an absolute URL", c.Twilio.PublicURL))
		}
	}
	add(c.Twilio.Capture.Validate())

	switch strings.TrimPrefix(strings.ToLower(c.Recording.Format), ".") {
	case "", "wav", "mp3":
	default:
		add(fmt.Errorf("recording.format %q must be wav or mp3", c.Recording.Format))
	}

	if c.Twilio.Capture.Mode == voice.CaptureRecord && c.Transcription.APIKey == "" {
		add(errors.New("transcription.api_key is required in record mode (or OPENAI_API_KEY)"))
	}

	switch c.Reply.Provider {
	case "openai", "anthropic":
	default:
		add(fmt.Errorf("reply.provider %q must be openai or anthropic", c.Reply.Provider))
	}
	if c.Reply.APIKey == "" {
		add(fmt.Errorf("reply.api_key is required for provider %s", c.Reply.Provider))
	}

	add(tts.ValidateConfig(&c.TTS))
	add(c.Publish.Validate())
	add(c.Notify.Validate())
	add(c.Turn.Validate())
	add(c.Sessions.Validate())

	switch c.CallLog.Driver {
	case calllog.DriverSQLite, calllog.DriverPostgres:
	default:
		add(fmt.Errorf("calllog.driver %q must be sqlite or postgres", c.CallLog.Driver))
	}
	if c.CallLog.Enabled && c.CallLog.DSN == "" {
		add(errors.New("calllog.dsn is required"))
	}

	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		add(fmt.Errorf("logging.format %q must be json or text", c.Logging.Format))
	}
	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		add(fmt.Errorf("observability.tracing.sampling_rate %v must be within [0, 1]", r))
	}
	if !strings.HasPrefix(c.Observability.Metrics.Path, "/") {
		add(fmt.Errorf("observability.metrics.path %q must start with /", c.Observability.Metrics.Path))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
