package notify

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/slack-go/slack"

	"github.com/haasonsaas/switchboard/internal/failure"
)

// SlackConfig configures a Slack incoming webhook.
type SlackConfig struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhook_url"`
	Channel    string `yaml:"channel"`
}

// SlackNotifier posts notifications to an incoming webhook.
type SlackNotifier struct {
	cfg    SlackConfig
	client *http.Client
}

var _ Notifier = (*SlackNotifier)(nil)

// NewSlackNotifier creates the notifier. A nil client uses http.DefaultClient.
func NewSlackNotifier(cfg SlackConfig, client *http.Client) (*SlackNotifier, error) {
	if cfg.WebhookURL == "" {
		return nil, fmt.Errorf("notify: slack webhook URL is required")
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &SlackNotifier{cfg: cfg, client: client}, nil
}

// Notify posts one message.
func (s *SlackNotifier) Notify(ctx context.Context, n Notification) error {
	header := slack.NewTextBlockObject(slack.PlainTextType, n.Subject, false, false)
	body := slack.NewTextBlockObject(slack.MarkdownType, "```"+n.Body+"```", false, false)
	footer := slack.NewContextBlock("",
		slack.NewTextBlockObject(slack.MarkdownType, fmt.Sprintf("call `%s` · %s · %s", n.CallID, n.Kind, n.ID), false, false),
	)

	msg := &slack.WebhookMessage{
		Channel: s.cfg.Channel,
		Text:    fmt.Sprintf("%s (call %s)", n.Subject, n.CallID),
		Blocks: &slack.Blocks{BlockSet: []slack.Block{
			slack.NewHeaderBlock(header),
			slack.NewSectionBlock(body, nil, nil),
			footer,
		}},
	}

	if err := slack.PostWebhookCustomHTTPContext(ctx, s.cfg.WebhookURL, s.client, msg); err != nil {
		var statusErr slack.StatusCodeError
		if errors.As(err, &statusErr) {
			return failure.FromHTTPStatus("notify", "slack", statusErr.Code, []byte(statusErr.Status))
		}
		var rateErr *slack.RateLimitedError
		if errors.As(err, &rateErr) {
			return failure.New(failure.KindTransientNetwork, "notify", "slack", err)
		}
		return failure.FromTransport("notify", "slack", err)
	}
	return nil
}
