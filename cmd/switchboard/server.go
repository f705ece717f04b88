package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/haasonsaas/switchboard/internal/voice"
)

// newMux mounts the webhook, audio, health and metrics routes.
func newMux(a *app) *http.ServeMux {
	mux := http.NewServeMux()

	voice.NewHandler(a.orchestrator, voice.HandlerConfig{
		Capture:          a.cfg.Twilio.Capture,
		VerifySignatures: a.cfg.Twilio.VerifySignatures,
		AuthToken:        a.cfg.Twilio.AuthToken,
		PublicURL:        a.cfg.Twilio.PublicURL,
		MaxBodyBytes:     a.cfg.Twilio.MaxBodyBytes,
		Sessions:         a.sessions,
		Metrics:          a.metrics,
		Logger:           a.logger,
	}).Register(mux)

	if a.audio != nil {
		mux.Handle("GET /audio/", http.StripPrefix("/audio", a.audio.Handler()))
	}

	if a.cfg.Observability.Metrics.On() {
		mux.Handle("GET "+a.cfg.Observability.Metrics.Path, promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{}))
	}

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status":          "ok",
			"version":         version,
			"active_sessions": a.sessions.Len(),
		})
	})

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		fmt.Fprintln(w, "switchboard is running")
	})

	return mux
}
