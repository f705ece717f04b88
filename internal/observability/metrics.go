package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the turn pipeline.
//
//	metrics := observability.NewMetrics(prometheus.DefaultRegisterer)
//	metrics.RecordStage("transcribe", "success", elapsed.Seconds())
type Metrics struct {
	// TurnCounter counts completed turns.
	// Labels: delivery (play-audio|say-text), continuation (record-next-turn|terminate)
	TurnCounter *prometheus.CounterVec

	// TurnDuration measures end-to-end turn latency in seconds.
	TurnDuration prometheus.Histogram

	// StageDuration measures per-stage latency in seconds.
	// Labels: stage (fetch|transcribe|generate|synthesize|publish), status (success|error)
	StageDuration *prometheus.HistogramVec

	// FailureCounter counts classified stage failures.
	// Labels: stage, kind
	FailureCounter *prometheus.CounterVec

	// FetchAttempts observes how many attempts a recording fetch needed.
	FetchAttempts prometheus.Histogram

	// SynthesisSource counts synthesis outcomes.
	// Labels: source (primary|fallback-voice|none)
	SynthesisSource *prometheus.CounterVec

	// NotificationCounter counts operator notifications.
	// Labels: kind (emergency|fallback|failure), status (sent|failed)
	NotificationCounter *prometheus.CounterVec

	// ActiveCalls tracks calls that have not terminated.
	ActiveCalls prometheus.Gauge

	// HTTPRequestCounter counts webhook requests.
	// Labels: path, status_code
	HTTPRequestCounter *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		TurnCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_turns_total",
				Help: "Total number of caller turns handled",
			},
			[]string{"delivery", "continuation"},
		),
		TurnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "switchboard_turn_duration_seconds",
				Help:    "End-to-end duration of a caller turn",
				Buckets: []float64{0.5, 1, 2, 4, 8, 15, 30, 60},
			},
		),
		StageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "switchboard_stage_duration_seconds",
				Help:    "Duration of individual pipeline stages",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"stage", "status"},
		),
		FailureCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_stage_failures_total",
				Help: "Classified stage failures",
			},
			[]string{"stage", "kind"},
		),
		FetchAttempts: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "switchboard_recording_fetch_attempts",
				Help:    "Number of attempts needed to fetch a recording",
				Buckets: []float64{1, 2, 3, 4, 5, 6},
			},
		),
		SynthesisSource: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_synthesis_total",
				Help: "Speech synthesis outcomes by source",
			},
			[]string{"source"},
		),
		NotificationCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_notifications_total",
				Help: "Operator notifications by kind and delivery status",
			},
			[]string{"kind", "status"},
		),
		ActiveCalls: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "switchboard_active_calls",
				Help: "Calls with at least one turn that have not terminated",
			},
		),
		HTTPRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "switchboard_http_requests_total",
				Help: "Webhook requests by path and status code",
			},
			[]string{"path", "status_code"},
		),
	}
}

// RecordTurn records a completed turn.
func (m *Metrics) RecordTurn(delivery, continuation string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.TurnCounter.WithLabelValues(delivery, continuation).Inc()
	m.TurnDuration.Observe(durationSeconds)
}

// RecordStage records a stage duration and outcome.
func (m *Metrics) RecordStage(stage, status string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage, status).Observe(durationSeconds)
}

// RecordFailure counts a classified failure.
func (m *Metrics) RecordFailure(stage, kind string) {
	if m == nil {
		return
	}
	m.FailureCounter.WithLabelValues(stage, kind).Inc()
}

// RecordFetchAttempts observes the attempt count of a recording fetch.
func (m *Metrics) RecordFetchAttempts(attempts int) {
	if m == nil {
		return
	}
	m.FetchAttempts.Observe(float64(attempts))
}

// RecordSynthesis counts a synthesis outcome.
func (m *Metrics) RecordSynthesis(source string) {
	if m == nil {
		return
	}
	m.SynthesisSource.WithLabelValues(source).Inc()
}

// RecordNotification counts an operator notification delivery.
func (m *Metrics) RecordNotification(kind, status string) {
	if m == nil {
		return
	}
	m.NotificationCounter.WithLabelValues(kind, status).Inc()
}

// CallStarted increments the active call gauge.
func (m *Metrics) CallStarted() {
	if m == nil {
		return
	}
	m.ActiveCalls.Inc()
}

// CallEnded decrements the active call gauge.
func (m *Metrics) CallEnded() {
	if m == nil {
		return
	}
	m.ActiveCalls.Dec()
}

// RecordHTTPRequest counts a webhook request.
func (m *Metrics) RecordHTTPRequest(path, statusCode string) {
	if m == nil {
		return
	}
	m.HTTPRequestCounter.WithLabelValues(path, statusCode).Inc()
}
