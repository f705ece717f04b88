package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/haasonsaas/switchboard/internal/voice"
)

const minimalConfig = `
version: 1
twilio:
  account_sid: AC123
  auth_token: tok
  public_url: https://switchboard.example.com/
transcription:
  api_key: sk-transcribe
reply:
  api_key: sk-reply
tts:
  elevenlabs:
    api_key: el-key
`

func TestLoadValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, "switchboard.yaml", minimalConfig))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:8080" {
		t.Errorf("Addr() = %q", cfg.Server.Addr())
	}
	if cfg.Twilio.PublicURL != "https://switchboard.example.com" {
		t.Errorf("PublicURL = %q", cfg.Twilio.PublicURL)
	}
	if cfg.Publish.BaseURL != "https://switchboard.example.com/audio" {
		t.Errorf("Publish.BaseURL = %q", cfg.Publish.BaseURL)
	}
	if cfg.Twilio.Capture.Mode != voice.CaptureRecord {
		t.Errorf("Capture.Mode = %q", cfg.Twilio.Capture.Mode)
	}
	if cfg.Reply.Provider != "openai" {
		t.Errorf("Reply.Provider = %q", cfg.Reply.Provider)
	}
	if cfg.Turn.Voice != "Polly.Brian" || cfg.Turn.Language != "en-AU" {
		t.Errorf("Turn voice/language = %q/%q", cfg.Turn.Voice, cfg.Turn.Language)
	}
	if cfg.Transcription.Language != "en-AU" {
		t.Errorf("Transcription.Language = %q", cfg.Transcription.Language)
	}
	if cfg.Turn.Timeouts.Synthesis != 25*time.Second {
		t.Errorf("Synthesis timeout = %s", cfg.Turn.Timeouts.Synthesis)
	}
	if cfg.Recording.MaxAttempts != 3 || cfg.Recording.Backoff.Base != 2*time.Second {
		t.Errorf("Recording = %+v", cfg.Recording)
	}
	if !cfg.Observability.Metrics.On() || cfg.Observability.Metrics.Path != "/metrics" {
		t.Errorf("Metrics = %+v", cfg.Observability.Metrics)
	}
	if cfg.Reply.EmergencyPatterns != nil {
		t.Errorf("EmergencyPatterns = %v, want nil for defaults", cfg.Reply.EmergencyPatterns)
	}
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "switchboard.yaml", minimalConfig+`
server:
  host: 0.0.0.0
  extra: true
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestLoadDecodesSections(t *testing.T) {
	path := writeConfig(t, "switchboard.yaml", mergeYAML(minimalConfig, `
turn:
  voice: Polly.Olivia
  notify_emergency: true
  timeouts:
    generation: 20s
reply:
  provider: anthropic
  api_key: sk-ant
  model: claude-sonnet-4-20250514
  emergency_patterns: ["000", "ambulance"]
  fallback_patterns: []
notify:
  slack:
    enabled: true
    webhook_url: https://hooks.slack.com/services/T/B/X
  dispatcher:
    workers: 4
    backoff:
      base: 500ms
      max: 5s
      factor: 2
sessions:
  ttl: 30m
calllog:
  enabled: true
  driver: postgres
  dsn: postgres://localhost/switchboard
observability:
  metrics:
    enabled: false
`))
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Turn.Voice != "Polly.Olivia" || !cfg.Turn.NotifyEmergency {
		t.Errorf("Turn = %+v", cfg.Turn)
	}
	if cfg.Turn.Timeouts.Generation != 20*time.Second {
		t.Errorf("Generation timeout = %s", cfg.Turn.Timeouts.Generation)
	}
	if cfg.Reply.Provider != "anthropic" || cfg.Reply.Model != "claude-sonnet-4-20250514" {
		t.Errorf("Reply = %+v", cfg.Reply.Config)
	}
	if len(cfg.Reply.EmergencyPatterns) != 2 || cfg.Reply.FallbackPatterns == nil || len(cfg.Reply.FallbackPatterns) != 0 {
		t.Errorf("patterns = %v / %v", cfg.Reply.EmergencyPatterns, cfg.Reply.FallbackPatterns)
	}
	if cfg.Notify.Dispatcher.Workers != 4 || cfg.Notify.Dispatcher.Policy.Base != 500*time.Millisecond {
		t.Errorf("Dispatcher = %+v", cfg.Notify.Dispatcher)
	}
	if cfg.Sessions.TTL != 30*time.Minute {
		t.Errorf("Sessions.TTL = %s", cfg.Sessions.TTL)
	}
	if cfg.CallLog.MaxOpenConns != 10 {
		t.Errorf("CallLog.MaxOpenConns = %d", cfg.CallLog.MaxOpenConns)
	}
	if cfg.Observability.Metrics.On() {
		t.Error("metrics should be disabled")
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name    string
		extra   string
		wantErr string
	}{
		{
			name:    "missing version",
			extra:   "version: 0",
			wantErr: "config version 0",
		},
		{
			name:    "unknown capture mode",
			extra:   "twilio:\n  account_sid: AC123\n  auth_token: tok\n  public_url: https://switchboard.example.com\n  capture:\n    mode: stream",
			wantErr: "capture mode",
		},
		{
			name:    "relative public url",
			extra:   "twilio:\n  account_sid: AC123\n  auth_token: tok\n  public_url: switchboard.example.com",
			wantErr: "public_url",
		},
		{
			name:    "unknown reply provider",
			extra:   "reply:\n  provider: gemini\n  api_key: x",
			wantErr: "reply.provider",
		},
		{
			name:    "fallback chain without key",
			extra:   "tts:\n  elevenlabs:\n    api_key: el-key\n  fallback_chain: [openai]",
			wantErr: "OpenAI API key",
		},
		{
			name:    "smtp without recipients",
			extra:   "notify:\n  smtp:\n    enabled: true\n    host: smtp.example.com\n    from: a@example.com",
			wantErr: "smtp",
		},
		{
			name:    "bad calllog driver",
			extra:   "calllog:\n  driver: mysql",
			wantErr: "calllog.driver",
		},
		{
			name:    "timeouts too long",
			extra:   "turn:\n  timeouts:\n    synthesis: 10m",
			wantErr: "5m limit",
		},
		{
			name:    "unplayable elevenlabs format",
			extra:   "tts:\n  elevenlabs:\n    api_key: el-key\n    output_format: pcm_16000",
			wantErr: "output_format",
		},
		{
			name:    "bad session prune schedule",
			extra:   "sessions:\n  prune_schedule: every minute",
			wantErr: "sessions.prune_schedule",
		},
		{
			name:    "bad log format",
			extra:   "logging:\n  format: xml",
			wantErr: "logging.format",
		},
	}

	clearSecretEnv(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, "switchboard.yaml", mergeYAML(minimalConfig, tt.extra))
			_, err := Load(path)
			if err == nil {
				t.Fatalf("expected validation error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadReportsAllProblems(t *testing.T) {
	clearSecretEnv(t)
	path := writeConfig(t, "switchboard.yaml", "version: 1\n")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"twilio.account_sid", "transcription.api_key", "reply.api_key", "ElevenLabs API key"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error missing %q: %v", want, err)
		}
	}
}

func TestLoadSecretsFromEnvironment(t *testing.T) {
	t.Setenv("TWILIO_ACCOUNT_SID", "AC-env")
	t.Setenv("TWILIO_AUTH_TOKEN", "tok-env")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-env")
	t.Setenv("ELEVENLABS_API_KEY", "el-env")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.com/services/T/B/env")

	path := writeConfig(t, "switchboard.yaml", `
version: 1
twilio:
  public_url: https://switchboard.example.com
reply:
  provider: anthropic
notify:
  slack:
    enabled: true
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Twilio.AccountSID != "AC-env" || cfg.Twilio.AuthToken != "tok-env" {
		t.Errorf("Twilio = %+v", cfg.Twilio)
	}
	if cfg.Transcription.APIKey != "sk-env" || cfg.TTS.OpenAI.APIKey != "sk-env" {
		t.Error("OPENAI_API_KEY not applied")
	}
	if cfg.Reply.APIKey != "sk-ant-env" {
		t.Errorf("Reply.APIKey = %q, want anthropic key", cfg.Reply.APIKey)
	}
	if cfg.TTS.ElevenLabs.APIKey != "el-env" {
		t.Error("ELEVENLABS_API_KEY not applied")
	}
	if cfg.Notify.Slack.WebhookURL != "https://hooks.slack.com/services/T/B/env" {
		t.Error("SLACK_WEBHOOK_URL not applied")
	}
}

func TestApplyEnvKeepsFileValues(t *testing.T) {
	cfg := &Config{}
	cfg.Twilio.AuthToken = "from-file"
	cfg.applyEnv(func(key string) (string, bool) { return "from-env", true })
	if cfg.Twilio.AuthToken != "from-file" {
		t.Errorf("AuthToken = %q, file value should win", cfg.Twilio.AuthToken)
	}
	if cfg.Twilio.AccountSID != "from-env" {
		t.Errorf("AccountSID = %q", cfg.Twilio.AccountSID)
	}
}

func TestLoadExpandsEnvReferences(t *testing.T) {
	t.Setenv("SWITCHBOARD_PORT", "9191")
	path := writeConfig(t, "switchboard.yaml", minimalConfig+`
server:
  port: ${SWITCHBOARD_PORT}
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 9191 {
		t.Errorf("Port = %d", cfg.Server.Port)
	}
}

func TestLoadIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "secrets.yaml"), `
twilio:
  account_sid: AC123
  auth_token: tok
transcription:
  api_key: sk-transcribe
reply:
  api_key: sk-reply
tts:
  elevenlabs:
    api_key: el-key
`)
	main := filepath.Join(dir, "switchboard.yaml")
	writeFile(t, main, `
version: 1
$include: secrets.yaml
twilio:
  public_url: https://switchboard.example.com
  verify_signatures: true
`)
	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Twilio.AuthToken != "tok" || !cfg.Twilio.VerifySignatures {
		t.Errorf("included and local twilio fields not merged: %+v", cfg.Twilio)
	}
}

func TestLoadIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.yaml"), "$include: b.yaml\n")
	writeFile(t, filepath.Join(dir, "b.yaml"), "$include: a.yaml\n")
	_, err := Load(filepath.Join(dir, "a.yaml"))
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("expected include cycle error, got %v", err)
	}
}

func TestLoadJSON5(t *testing.T) {
	path := writeConfig(t, "switchboard.json5", `{
  // comments are allowed
  version: 1,
  twilio: {account_sid: "AC123", auth_token: "tok", public_url: "https://switchboard.example.com"},
  transcription: {api_key: "sk-transcribe"},
  reply: {api_key: "sk-reply"},
  tts: {provider: "openai", openai: {api_key: "sk-tts"}},
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.TTS.Provider != "openai" {
		t.Errorf("TTS.Provider = %q", cfg.TTS.Provider)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(" "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func clearSecretEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"OPENAI_API_KEY", "ANTHROPIC_API_KEY", "ELEVENLABS_API_KEY",
		"TWILIO_ACCOUNT_SID", "TWILIO_AUTH_TOKEN",
		"SMTP_USERNAME", "SMTP_PASSWORD", "SLACK_WEBHOOK_URL",
	} {
		t.Setenv(key, "")
	}
}

// mergeYAML appends extra to base, replacing any top-level section extra
// redefines.
func mergeYAML(base, extra string) string {
	redefined := map[string]bool{}
	for _, line := range strings.Split(extra, "\n") {
		if line != "" && !strings.HasPrefix(line, " ") {
			redefined[strings.SplitN(line, ":", 2)[0]] = true
		}
	}
	var out []string
	skip := false
	for _, line := range strings.Split(strings.TrimSpace(base), "\n") {
		if !strings.HasPrefix(line, " ") {
			skip = redefined[strings.SplitN(line, ":", 2)[0]]
		}
		if !skip {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n") + "\n" + extra + "\n"
}

func writeConfig(t *testing.T, name, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	writeFile(t, path, contents)
	return path
}

func writeFile(t *testing.T, path, contents string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(strings.TrimSpace(contents)), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}
