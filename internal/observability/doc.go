// Package observability provides logging, metrics and tracing for the turn
// pipeline.
//
// # Logging
//
// NewLogger returns a *slog.Logger whose handler redacts secrets (API keys,
// bearer tokens, passwords) from messages and string attributes and adds the
// call identifier carried by the context:
//
//	logger := observability.NewLogger(observability.LogConfig{Level: "info", Format: "json"})
//	ctx = observability.WithCallID(ctx, callSID)
//	logger.InfoContext(ctx, "turn started") // includes call_id
//
// Caller speech and generated replies are logged through Excerpt so log lines
// stay bounded; the full text is never truncated on its way to a provider.
//
// # Metrics
//
// Metrics registers the Prometheus collectors for turns, stages, recording
// fetch attempts, synthesis sources and operator notifications. Pass a
// dedicated registry in tests and prometheus.DefaultRegisterer in production.
//
// # Tracing
//
// NewTracer configures an OTLP/gRPC exporter when an endpoint is set and a
// no-op tracer otherwise. The orchestrator opens one span per turn and one
// child span per stage.
package observability
