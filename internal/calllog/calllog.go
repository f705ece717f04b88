// Package calllog keeps an audit trail of completed turns.
package calllog

import (
	"context"
	"time"
)

// Entry is one completed turn.
type Entry struct {
	ID              string
	CallID          string
	Turn            int
	Transcript      string
	Reply           string
	IsEmergency     bool
	IsFallback      bool
	SynthesisSource string
	Delivery        string
	Continuation    string
	Failures        []string
	DurationMs      int64
	CreatedAt       time.Time
}

// Store persists entries.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, callID string, limit int) ([]Entry, error)
	Close() error
}

// Config selects the backing database.
type Config struct {
	Enabled bool `yaml:"enabled"`
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	// DSN is a file path for sqlite or a connection string for postgres.
	DSN string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	ConnectTimeout  time.Duration `yaml:"connect_timeout"`

	// QueueSize bounds pending asynchronous writes (default 512).
	QueueSize int `yaml:"queue_size"`
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if c.DSN == "" && c.Driver == DriverSQLite {
		c.DSN = "data/calllog.db"
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 10
		if c.Driver == DriverSQLite {
			c.MaxOpenConns = 1
		}
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 5 * time.Minute
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.QueueSize == 0 {
		c.QueueSize = 512
	}
}

// Nop discards entries.
type Nop struct{}

// Append implements Store.
func (Nop) Append(context.Context, Entry) error { return nil }

// List implements Store.
func (Nop) List(context.Context, string, int) ([]Entry, error) { return nil, nil }

// Close implements Store.
func (Nop) Close() error { return nil }
