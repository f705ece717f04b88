package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/haasonsaas/switchboard/internal/failure"
)

// LocalConfig configures LocalPublisher.
type LocalConfig struct {
	// Dir is where audio files are written (default "data/audio").
	Dir string `yaml:"dir"`
}

// LocalPublisher writes audio into a directory served over HTTP.
type LocalPublisher struct {
	dir     string
	baseURL string
	logger  *slog.Logger
}

var (
	_ Publisher = (*LocalPublisher)(nil)
	_ Pruner    = (*LocalPublisher)(nil)
)

// NewLocalPublisher creates the directory if needed.
func NewLocalPublisher(dir, baseURL string, logger *slog.Logger) (*LocalPublisher, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("publish: base URL is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("publish: create audio directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalPublisher{
		dir:     dir,
		baseURL: baseURL,
		logger:  logger.With("component", component, "backend", "local"),
	}, nil
}

// Publish writes audio atomically and returns its URL.
func (p *LocalPublisher) Publish(ctx context.Context, callID string, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", failure.New(failure.KindMalformedInput, component, "publish", errors.New("audio is empty"))
	}
	if err := ctx.Err(); err != nil {
		return "", failure.FromTransport(component, "publish", err)
	}

	name := objectName(mimeType)
	path := filepath.Join(p.dir, name)
	tmp, err := os.CreateTemp(p.dir, ".upload-*")
	if err != nil {
		return "", failure.New(failure.KindStorage, component, "publish", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(audio); err != nil {
		tmp.Close()
		os.Remove(tmpPath) //nolint:errcheck
		return "", failure.New(failure.KindStorage, component, "publish", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", failure.New(failure.KindStorage, component, "publish", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", failure.New(failure.KindStorage, component, "publish", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath) //nolint:errcheck
		return "", failure.New(failure.KindStorage, component, "publish", err)
	}

	url := joinURL(p.baseURL, name)
	p.logger.DebugContext(ctx, "audio published", "call_id", callID, "bytes", len(audio), "url", url)
	return url, nil
}

// Prune deletes published files modified before olderThan.
func (p *LocalPublisher) Prune(ctx context.Context, olderThan time.Time) (int, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return 0, fmt.Errorf("publish: read audio directory: %w", err)
	}
	removed := 0
	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(olderThan) {
			continue
		}
		if err := os.Remove(filepath.Join(p.dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.logger.Warn("failed to prune audio file", "file", entry.Name(), "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

// Handler serves published files. Directory listings and dotfiles are not served.
func (p *LocalPublisher) Handler() http.Handler {
	files := http.FileServer(http.Dir(p.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || strings.Contains(name, "/") || strings.HasPrefix(name, ".") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}
