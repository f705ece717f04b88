package calllog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AsyncWriter appends entries in the background. When the queue is full
// entries are dropped with a warning; the audit log never slows a turn.
type AsyncWriter struct {
	store   Store
	queue   chan Entry
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
}

// NewAsyncWriter starts a single writer goroutine.
func NewAsyncWriter(store Store, queueSize int, logger *slog.Logger) *AsyncWriter {
	if queueSize <= 0 {
		queueSize = 512
	}
	if logger == nil {
		logger = slog.Default()
	}
	w := &AsyncWriter{
		store:   store,
		queue:   make(chan Entry, queueSize),
		timeout: 5 * time.Second,
		logger:  logger.With("component", "calllog"),
	}
	w.wg.Add(1)
	go w.run()
	return w
}

// Record queues e and reports whether it was accepted.
func (w *AsyncWriter) Record(e Entry) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if w.closed {
		return false
	}
	select {
	case w.queue <- e:
		return true
	default:
		w.logger.Warn("call log queue full, dropping entry", "call_id", e.CallID, "turn", e.Turn)
		return false
	}
}

// Close flushes pending entries, then closes the store.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return w.store.Close()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AsyncWriter) run() {
	defer w.wg.Done()
	for e := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
		if err := w.store.Append(ctx, e); err != nil {
			w.logger.Error("call log append failed", "call_id", e.CallID, "turn", e.Turn, "error", err)
		}
		cancel()
	}
}
