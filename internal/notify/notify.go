// Package notify delivers best-effort operator notifications.
//
// Notifiers deliver one Notification synchronously. The Dispatcher wraps a
// Notifier so callers on the response path never wait: Enqueue returns
// immediately and delivery is retried in the background. Delivery failures
// are logged, never returned to the caller.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Kind classifies why the operator is being told.
type Kind string

const (
	// KindFailure covers component failures that forced a fallback reply.
	KindFailure Kind = "failure"
	// KindFallback means the reply itself said the receptionist could not help.
	KindFallback Kind = "fallback"
	// KindEmergency means the caller was redirected to emergency services.
	KindEmergency Kind = "emergency"
)

// Notification is one operator message.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Subject   string    `json:"subject"`
	CallID    string    `json:"call_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// New builds a Notification with a fresh ID.
func New(kind Kind, callID, subject, body string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		Subject:   sanitizeHeader(subject),
		CallID:    callID,
		Body:      body,
		CreatedAt: time.Now().UTC(),
	}
}

// Notifier delivers a notification.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, n Notification) error { return f(ctx, n) }

// Multi fans a notification out to every notifier. It returns the joined
// errors of the notifiers that failed.
type Multi []Notifier

// Notify implements Notifier.
func (m Multi) Notify(ctx context.Context, n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Config configures the notification channels and the dispatcher.
type Config struct {
	SMTP  SMTPConfig  `yaml:"smtp"`
	Slack SlackConfig `yaml:"slack"`
	MQTT  MQTTConfig  `yaml:"mqtt"`

	Dispatcher DispatcherConfig `yaml:"dispatcher"`
}

// Validate reports missing settings for enabled channels.
func (c *Config) Validate() error {
	if c.SMTP.Enabled {
		if c.SMTP.Host == "" || c.SMTP.From == "" || len(c.SMTP.To) == 0 {
			return fmt.Errorf("notify: smtp host, from and to are required")
		}
		switch c.SMTP.TLSMode {
		case "", "starttls", "tls", "none":
		default:
			return fmt.Errorf("notify: unknown smtp tls_mode %q", c.SMTP.TLSMode)
		}
	}
	if c.Slack.Enabled && c.Slack.WebhookURL == "" {
		return fmt.Errorf("notify: slack webhook_url is required")
	}
	if c.MQTT.Enabled && (c.MQTT.Broker == "" || c.MQTT.Topic == "") {
		return fmt.Errorf("notify: mqtt broker and topic are required")
	}
	return nil
}

// Enabled reports whether any channel is configured.
func (c *Config) Enabled() bool {
	return c.SMTP.Enabled || c.Slack.Enabled || c.MQTT.Enabled
}

func sanitizeHeader(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
