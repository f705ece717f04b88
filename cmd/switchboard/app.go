package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/haasonsaas/switchboard/internal/calllog"
	"github.com/haasonsaas/switchboard/internal/config"
	"github.com/haasonsaas/switchboard/internal/notify"
	"github.com/haasonsaas/switchboard/internal/observability"
	"github.com/haasonsaas/switchboard/internal/publish"
	"github.com/haasonsaas/switchboard/internal/recording"
	"github.com/haasonsaas/switchboard/internal/reply"
	"github.com/haasonsaas/switchboard/internal/sessions"
	"github.com/haasonsaas/switchboard/internal/transcribe"
	"github.com/haasonsaas/switchboard/internal/tts"
	"github.com/haasonsaas/switchboard/internal/turn"
)

// app holds the wired pipeline and everything that must be closed on exit.
type app struct {
	cfg          *config.Config
	logger       *slog.Logger
	registry     *prometheus.Registry
	metrics      *observability.Metrics
	tracer       *observability.Tracer
	sessions     *sessions.Registry
	orchestrator *turn.Orchestrator

	// audio is set when published audio is served from local disk.
	audio   *publish.LocalPublisher
	sweeper *publish.Sweeper
	janitor *sessions.Janitor

	closers []func(context.Context) error
}

// appOptions adjust wiring for commands other than serve.
type appOptions struct {
	// notifier replaces the configured notification channels.
	notifier notify.Notifier
	// withoutCallLog skips opening the call log database.
	withoutCallLog bool
}

// buildApp constructs every component from cfg. On error, anything already
// started is closed.
func buildApp(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts appOptions) (a *app, err error) {
	a = &app{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	a.metrics = observability.NewMetrics(a.registry)

	traceCfg := cfg.Observability.Tracing
	traceCfg.ServiceVersion = version
	tracer, shutdownTracer := observability.NewTracer(traceCfg)
	a.tracer = tracer
	a.closers = append(a.closers, shutdownTracer)

	fetcher, err := recording.NewTwilioFetcher(recording.TwilioConfig{
		AccountSID:   cfg.Twilio.AccountSID,
		AuthToken:    cfg.Twilio.AuthToken,
		Format:       cfg.Recording.Format,
		AllowedHosts: cfg.Recording.AllowedHosts,
		Timeout:      cfg.Recording.Timeout,
		Logger:       logger,
	})
	if err != nil {
		return nil, err
	}
	retrying := recording.NewRetryingFetcher(fetcher, recording.RetryConfig{
		MaxAttempts: cfg.Recording.MaxAttempts,
		Policy:      cfg.Recording.Backoff,
		Observe: func(attempts int, _ error) {
			a.metrics.RecordFetchAttempts(attempts)
		},
		Logger: logger,
	})

	transcribeCfg := cfg.Transcription
	transcribeCfg.Logger = logger
	transcriber, err := transcribe.NewWhisperTranscriber(transcribeCfg)
	if err != nil {
		return nil, err
	}

	replyCfg := cfg.Reply.Config
	replyCfg.Logger = logger
	generator, err := reply.NewGenerator(replyCfg)
	if err != nil {
		return nil, err
	}

	ttsCfg := cfg.TTS
	ttsCfg.Logger = logger
	synthesizer, err := tts.NewFromConfig(ttsCfg)
	if err != nil {
		return nil, err
	}

	publishCfg := cfg.Publish
	publishCfg.Logger = logger
	publisher, err := publish.New(ctx, publishCfg)
	if err != nil {
		return nil, err
	}
	if local, ok := publisher.(*publish.LocalPublisher); ok {
		a.audio = local
	}
	if pruner, ok := publisher.(publish.Pruner); ok {
		a.sweeper, err = publish.NewSweeper(pruner, cfg.Publish.Retention, logger)
		if err != nil {
			return nil, err
		}
	}

	notifier := opts.notifier
	if notifier == nil {
		notifier, err = a.buildNotifier(cfg.Notify, logger)
		if err != nil {
			return nil, err
		}
	}

	a.sessions = sessions.NewRegistry(cfg.Sessions)
	a.sessions.OnEnd = func(s sessions.Session) {
		a.metrics.CallEnded()
		logger.Info("call ended", "call_id", s.CallID, "turns", s.Turns, "reason", s.EndReason)
	}
	a.janitor, err = sessions.NewJanitor(a.sessions, cfg.Sessions.PruneSchedule, logger)
	if err != nil {
		return nil, err
	}

	deps := turn.Deps{
		Fetcher:     retrying,
		Transcriber: transcriber,
		Generator:   generator,
		Classifier:  reply.NewClassifier(cfg.Reply.EmergencyPatterns, cfg.Reply.FallbackPatterns),
		Synthesizer: synthesizer,
		Publisher:   publisher,
		Notifier:    notifier,
		Sessions:    a.sessions,
		Metrics:     a.metrics,
		Tracer:      a.tracer,
		Logger:      logger,
	}

	if cfg.CallLog.Enabled && !opts.withoutCallLog {
		store, err := calllog.Open(ctx, cfg.CallLog)
		if err != nil {
			return nil, err
		}
		writer := calllog.NewAsyncWriter(store, cfg.CallLog.QueueSize, logger)
		a.closers = append(a.closers, writer.Close)
		deps.CallLog = writer
	}

	a.orchestrator, err = turn.New(cfg.Turn, deps)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// buildNotifier fans out to every enabled channel behind a Dispatcher so
// turns never wait on delivery.
func (a *app) buildNotifier(cfg notify.Config, logger *slog.Logger) (notify.Notifier, error) {
	var channels notify.Multi

	if cfg.SMTP.Enabled {
		n, err := notify.NewSMTPNotifier(cfg.SMTP, logger)
		if err != nil {
			return nil, err
		}
		channels = append(channels, n)
	}
	if cfg.Slack.Enabled {
		n, err := notify.NewSlackNotifier(cfg.Slack, &http.Client{Timeout: 10 * time.Second})
		if err != nil {
			return nil, err
		}
		channels = append(channels, n)
	}
	if cfg.MQTT.Enabled {
		pub, err := notify.NewPahoPublisher(cfg.MQTT)
		if err != nil {
			return nil, err
		}
		n := notify.NewMQTTNotifier(pub, cfg.MQTT.Topic)
		a.closers = append(a.closers, func(context.Context) error { return n.Close() })
		channels = append(channels, n)
	}

	if len(channels) == 0 {
		logger.Warn("no notification channels enabled; operator notifications are only logged")
		return logNotifier(logger), nil
	}

	dispatcherCfg := cfg.Dispatcher
	dispatcherCfg.Logger = logger
	dispatcherCfg.OnResult = func(n notify.Notification, err error) {
		status := "sent"
		if err != nil {
			status = "failed"
		}
		a.metrics.RecordNotification(string(n.Kind), status)
	}
	dispatcher := notify.NewDispatcher(channels, dispatcherCfg)
	// Drain queued notifications before any channel is closed.
	a.closers = append(a.closers, dispatcher.Close)
	return dispatcher, nil
}

// logNotifier records notifications in the log only.
func logNotifier(logger *slog.Logger) notify.Notifier {
	return notify.NotifierFunc(func(ctx context.Context, n notify.Notification) error {
		logger.WarnContext(ctx, "operator notification",
			"kind", n.Kind,
			"call_id", n.CallID,
			"subject", n.Subject,
		)
		return nil
	})
}

// Close releases resources in reverse order of creation.
func (a *app) Close(ctx context.Context) error {
	if a.sweeper != nil {
		a.sweeper.Stop(ctx)
	}
	if a.janitor != nil {
		a.janitor.Stop(ctx)
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}
	return nil
}
