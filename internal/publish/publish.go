// Package publish stores synthesized audio where the telephony provider can
// fetch it.
//
// Object names are generated from a random UUID and the MIME type only, so
// nothing the caller says or sends can influence a storage path.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

const component = "publish"

// Publisher persists audio and returns a publicly fetchable URL.
type Publisher interface {
	Publish(ctx context.Context, callID string, audio []byte, mimeType string) (string, error)
}

// Pruner removes published audio older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, olderThan time.Time) (int, error)
}

// Config selects and configures a Publisher.
type Config struct {
	// Backend is "local" (default) or "s3".
	Backend string `yaml:"backend"`

	// BaseURL is the public URL prefix audio is served under, e.g.
	// https://switchboard.example.com/audio for local storage.
	BaseURL string `yaml:"base_url"`

	Local LocalConfig `yaml:"local"`
	S3    S3Config    `yaml:"s3"`

	// Retention removes published audio older than MaxAge on Schedule.
	Retention RetentionConfig `yaml:"retention"`

	Logger *slog.Logger `yaml:"-"`
}

// RetentionConfig configures the Sweeper.
type RetentionConfig struct {
	// Schedule is a cron expression or descriptor (default "@every 15m").
	Schedule string `yaml:"schedule"`
	// MaxAge defaults to one hour.
	MaxAge time.Duration `yaml:"max_age"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	if c.Backend == "" {
		c.Backend = "local"
	}
	if c.Local.Dir == "" {
		c.Local.Dir = "data/audio"
	}
	if c.S3.Region == "" {
		c.S3.Region = "us-east-1"
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "@every 15m"
	}
	if c.Retention.MaxAge <= 0 {
		c.Retention.MaxAge = time.Hour
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Validate reports configuration errors.
func (c *Config) Validate() error {
	switch c.Backend {
	case "local":
		if c.BaseURL == "" {
			return fmt.Errorf("publish: base_url is required for local storage")
		}
	case "s3":
		if strings.TrimSpace(c.S3.Bucket) == "" {
			return fmt.Errorf("publish: s3 bucket is required")
		}
	default:
		return fmt.Errorf("publish: unknown backend %q", c.Backend)
	}
	if _, err := cronParser.Parse(c.Retention.Schedule); err != nil {
		return fmt.Errorf("publish: retention schedule: %w", err)
	}
	return nil
}

// New builds the configured Publisher.
func New(ctx context.Context, cfg Config) (Publisher, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "s3":
		p, err := NewS3Publisher(ctx, cfg.S3, cfg.BaseURL, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		p, err := NewLocalPublisher(cfg.Local.Dir, cfg.BaseURL, cfg.Logger)
		if err != nil {
			return nil, err
		}
		return p, nil
	}
}

// objectName returns a collision-resistant file name for audio of mimeType.
func objectName(mimeType string) string {
	return uuid.NewString() + extensionForMime(mimeType)
}

func extensionForMime(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0])) {
	case "audio/wav", "audio/x-wav", "audio/wave":
		return ".wav"
	case "audio/ogg":
		return ".ogg"
	case "audio/l16":
		return ".pcm"
	default:
		return ".mp3"
	}
}

func joinURL(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + name
}
