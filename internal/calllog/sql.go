package calllog

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

var schema = map[string][]string{
	DriverSQLite: {
		`CREATE TABLE IF NOT EXISTS call_turns (
			id TEXT PRIMARY KEY,
			call_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			transcript TEXT NOT NULL,
			reply TEXT NOT NULL,
			is_emergency BOOLEAN NOT NULL,
			is_fallback BOOLEAN NOT NULL,
			synthesis_source TEXT NOT NULL,
			delivery TEXT NOT NULL,
			continuation TEXT NOT NULL,
			failures TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_turns_call ON call_turns (call_id, turn)`,
	},
	DriverPostgres: {
		`CREATE TABLE IF NOT EXISTS call_turns (
			id UUID PRIMARY KEY,
			call_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			transcript TEXT NOT NULL,
			reply TEXT NOT NULL,
			is_emergency BOOLEAN NOT NULL,
			is_fallback BOOLEAN NOT NULL,
			synthesis_source TEXT NOT NULL,
			delivery TEXT NOT NULL,
			continuation TEXT NOT NULL,
			failures TEXT NOT NULL,
			duration_ms BIGINT NOT NULL,
			created_at BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_call_turns_call ON call_turns (call_id, turn)`,
	},
}

// SQLStore implements Store on database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
}

var _ Store = (*SQLStore)(nil)

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg Config) (*SQLStore, error) {
	cfg.ApplyDefaults()
	if _, ok := schema[cfg.Driver]; !ok {
		return nil, fmt.Errorf("calllog: unsupported driver %q", cfg.Driver)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("calllog: dsn is required")
	}

	db, err := sql.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLStore{db: db, driver: cfg.Driver}
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates the schema if it does not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schema[s.driver] {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate call log: %w", err)
		}
	}
	return nil
}

// Append inserts one entry. Missing IDs and timestamps are generated.
func (s *SQLStore) Append(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO call_turns (id, call_id, turn, transcript, reply, is_emergency, is_fallback,
			synthesis_source, delivery, continuation, failures, duration_ms, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)
	`),
		e.ID,
		e.CallID,
		e.Turn,
		e.Transcript,
		e.Reply,
		e.IsEmergency,
		e.IsFallback,
		e.SynthesisSource,
		e.Delivery,
		e.Continuation,
		strings.Join(e.Failures, ","),
		e.DurationMs,
		e.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append call log: %w", err)
	}
	return nil
}

// List returns the turns of a call in order. A non-positive limit means 100.
func (s *SQLStore) List(ctx context.Context, callID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, call_id, turn, transcript, reply, is_emergency, is_fallback,
			synthesis_source, delivery, continuation, failures, duration_ms, created_at
		FROM call_turns
		WHERE call_id = ?
		ORDER BY turn ASC, created_at ASC
		LIMIT ?
	`), callID, limit)
	if err != nil {
		return nil, fmt.Errorf("list call log: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e         Entry
			failures  string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.CallID, &e.Turn, &e.Transcript, &e.Reply, &e.IsEmergency, &e.IsFallback,
			&e.SynthesisSource, &e.Delivery, &e.Continuation, &failures, &e.DurationMs, &createdAt); err != nil {
			return nil, fmt.Errorf("scan call log: %w", err)
		}
		if failures != "" {
			e.Failures = strings.Split(failures, ",")
		}
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list call log: %w", err)
	}
	return entries, nil
}

// Close releases database resources.
func (s *SQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders to $n for postgres.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
