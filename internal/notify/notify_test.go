package notify

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	n := New(KindFallback, "CA123", "Fallback\r\nBcc: evil@example.com", "body")
	if n.ID == "" {
		t.Error("expected an ID")
	}
	if strings.ContainsAny(n.Subject, "\r\n") {
		t.Errorf("subject not sanitized: %q", n.Subject)
	}
	if n.CreatedAt.IsZero() {
		t.Error("expected CreatedAt")
	}
	if n.Kind != KindFallback || n.CallID != "CA123" {
		t.Errorf("unexpected notification: %+v", n)
	}
}

func TestMulti(t *testing.T) {
	var calls []string
	ok := NotifierFunc(func(ctx context.Context, n Notification) error {
		calls = append(calls, "ok")
		return nil
	})
	bad := NotifierFunc(func(ctx context.Context, n Notification) error {
		calls = append(calls, "bad")
		return errors.New("boom")
	})

	err := Multi{bad, ok}.Notify(context.Background(), New(KindFailure, "CA1", "s", "b"))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if strings.Join(calls, ",") != "bad,ok" {
		t.Errorf("calls = %v, want every notifier invoked", calls)
	}

	if err := (Multi{ok}).Notify(context.Background(), Notification{}); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"nothing enabled", Config{}, false},
		{"smtp complete", Config{SMTP: SMTPConfig{Enabled: true, Host: "smtp.example.com", From: "a@x", To: []string{"b@x"}}}, false},
		{"smtp missing to", Config{SMTP: SMTPConfig{Enabled: true, Host: "smtp.example.com", From: "a@x"}}, true},
		{"smtp bad tls mode", Config{SMTP: SMTPConfig{Enabled: true, Host: "h", From: "a@x", To: []string{"b@x"}, TLSMode: "ssl3"}}, true},
		{"slack missing url", Config{Slack: SlackConfig{Enabled: true}}, true},
		{"mqtt missing topic", Config{MQTT: MQTTConfig{Enabled: true, Broker: "tcp://localhost:1883"}}, true},
		{"disabled sections ignored", Config{Slack: SlackConfig{Enabled: false}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
