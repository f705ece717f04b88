package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/haasonsaas/switchboard/internal/backoff"
	"github.com/haasonsaas/switchboard/internal/failure"
	"github.com/haasonsaas/switchboard/internal/retry"
)

// DispatcherConfig configures background delivery.
type DispatcherConfig struct {
	// QueueSize bounds buffered notifications (default 256). When the queue
	// is full a notification is delivered on its own goroutine instead of
	// being dropped.
	QueueSize int `yaml:"queue_size"`
	// Workers is the number of delivery goroutines (default 2).
	Workers int `yaml:"workers"`
	// MaxAttempts per notification (default 3).
	MaxAttempts int `yaml:"max_attempts"`
	// AttemptTimeout bounds one delivery attempt (default 20s).
	AttemptTimeout time.Duration `yaml:"attempt_timeout"`
	// Policy defaults to backoff.NotificationPolicy().
	Policy backoff.Policy `yaml:"backoff"`

	// OnResult observes the final outcome of each notification.
	OnResult func(n Notification, err error) `yaml:"-"`
	// Sleep replaces backoff.Sleep in tests.
	Sleep  func(ctx context.Context, d time.Duration) error `yaml:"-"`
	Logger *slog.Logger                                     `yaml:"-"`
}

func (c *DispatcherConfig) applyDefaults() {
	if c.QueueSize <= 0 {
		c.QueueSize = 256
	}
	if c.Workers <= 0 {
		c.Workers = 2
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 20 * time.Second
	}
	if c.Policy == (backoff.Policy{}) {
		c.Policy = backoff.NotificationPolicy()
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Dispatcher delivers notifications in the background.
type Dispatcher struct {
	next   Notifier
	cfg    DispatcherConfig
	queue  chan Notification
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
	logger *slog.Logger
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher starts the workers.
func NewDispatcher(next Notifier, cfg DispatcherConfig) *Dispatcher {
	cfg.applyDefaults()
	d := &Dispatcher{
		next:   next,
		cfg:    cfg,
		queue:  make(chan Notification, cfg.QueueSize),
		logger: cfg.Logger.With("component", "notify"),
	}
	for i := 0; i < cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Notify enqueues n and returns nil. It never blocks on delivery.
func (d *Dispatcher) Notify(_ context.Context, n Notification) error {
	d.Enqueue(n)
	return nil
}

// Enqueue schedules n for delivery.
func (d *Dispatcher) Enqueue(n Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.logger.Error("notification dropped after shutdown",
			"notification_id", n.ID, "call_id", n.CallID, "subject", n.Subject)
		return
	}

	select {
	case d.queue <- n:
	default:
		d.logger.Warn("notification queue full, delivering out of band", "call_id", n.CallID)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(n)
		}()
	}
}

// Close stops accepting notifications and waits for queued ones to be
// delivered, or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for n := range d.queue {
		d.deliver(n)
	}
}

// deliver is detached from any request context so a finished turn cannot
// cancel its notifications.
func (d *Dispatcher) deliver(n Notification) {
	_, result := retry.Do(context.Background(), retry.Config{
		MaxAttempts: d.cfg.MaxAttempts,
		Policy:      d.cfg.Policy,
		Sleep:       d.cfg.Sleep,
		Retryable: func(err error) bool {
			return !retry.IsPermanent(err) && failure.KindOf(err) != failure.KindAuth
		},
	}, func(ctx context.Context, attempt int) (struct{}, error) {
		ctx, cancel := context.WithTimeout(ctx, d.cfg.AttemptTimeout)
		defer cancel()
		return struct{}{}, d.next.Notify(ctx, n)
	})

	if result.Err != nil {
		d.logger.Error("notification delivery failed",
			"notification_id", n.ID,
			"call_id", n.CallID,
			"kind", n.Kind,
			"attempts", result.Attempts,
			"error", result.Err)
	} else {
		d.logger.Info("notification delivered",
			"notification_id", n.ID,
			"call_id", n.CallID,
			"kind", n.Kind,
			"attempts", result.Attempts)
	}
	if d.cfg.OnResult != nil {
		d.cfg.OnResult(n, result.Err)
	}
}
