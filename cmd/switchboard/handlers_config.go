package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/haasonsaas/switchboard/internal/calllog"
	"github.com/haasonsaas/switchboard/internal/config"
)

// runConfigValidate loads path and prints a summary of what it enables.
func runConfigValidate(out io.Writer, path string) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	var channels []string
	if cfg.Notify.SMTP.Enabled {
		channels = append(channels, "smtp")
	}
	if cfg.Notify.Slack.Enabled {
		channels = append(channels, "slack")
	}
	if cfg.Notify.MQTT.Enabled {
		channels = append(channels, "mqtt")
	}
	if len(channels) == 0 {
		channels = append(channels, "log only")
	}
	tts := string(cfg.TTS.Provider)
	for _, p := range cfg.TTS.FallbackChain {
		tts += " -> " + string(p)
	}

	fmt.Fprintf(out, "config %s is valid\n", path)
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "  listen\t%s\n", cfg.Server.Addr())
	fmt.Fprintf(w, "  capture\t%s (action %s)\n", cfg.Twilio.Capture.Mode, cfg.Twilio.Capture.Action)
	fmt.Fprintf(w, "  signatures\t%t\n", cfg.Twilio.VerifySignatures)
	fmt.Fprintf(w, "  reply\t%s\n", cfg.Reply.Provider)
	fmt.Fprintf(w, "  speech\t%s\n", tts)
	fmt.Fprintf(w, "  publish\t%s\n", cfg.Publish.Backend)
	fmt.Fprintf(w, "  notify\t%s\n", strings.Join(channels, ", "))
	fmt.Fprintf(w, "  calllog\t%t (%s)\n", cfg.CallLog.Enabled, cfg.CallLog.Driver)
	return w.Flush()
}

// runCallsList prints the logged turns of one call.
func runCallsList(ctx context.Context, out io.Writer, path, callID string, limit int, asJSON bool) error {
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if !cfg.CallLog.Enabled {
		return fmt.Errorf("calllog is not enabled in %s", path)
	}
	store, err := calllog.Open(ctx, cfg.CallLog)
	if err != nil {
		return err
	}
	defer store.Close()

	entries, err := store.List(ctx, callID, limit)
	if err != nil {
		return err
	}
	return printEntries(out, entries, asJSON)
}

func printEntries(out io.Writer, entries []calllog.Entry, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(out)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}
	if len(entries) == 0 {
		fmt.Fprintln(out, "no turns logged")
		return nil
	}
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TURN\tTIME\tDELIVERY\tSOURCE\tFLAGS\tFAILURES\tREPLY")
	for _, e := range entries {
		var flags []string
		if e.IsEmergency {
			flags = append(flags, "emergency")
		}
		if e.IsFallback {
			flags = append(flags, "fallback")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.Turn,
			e.CreatedAt.Format(time.RFC3339),
			e.Delivery,
			e.SynthesisSource,
			dash(strings.Join(flags, ",")),
			dash(strings.Join(e.Failures, ",")),
			truncate(e.Reply, 60),
		)
	}
	return w.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
