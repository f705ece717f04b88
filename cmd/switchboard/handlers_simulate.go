package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/switchboard/internal/config"
	"github.com/haasonsaas/switchboard/internal/notify"
	"github.com/haasonsaas/switchboard/internal/observability"
	"github.com/haasonsaas/switchboard/internal/turn"
	"github.com/haasonsaas/switchboard/internal/voice"
)

type simulateOptions struct {
	configPath   string
	callID       string
	transcript   string
	recordingURL string
	duration     int
	notify       bool
}

// runSimulate runs one turn and prints the outcome to out.
func runSimulate(ctx context.Context, out io.Writer, opts simulateOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logCfg := cfg.Logging
	logCfg.Format = "text"
	logCfg.Output = os.Stderr
	logger := observability.NewLogger(logCfg)

	appOpts := appOptions{withoutCallLog: true}
	if !opts.notify {
		appOpts.notifier = printNotifier(out)
	}
	a, err := buildApp(ctx, cfg, logger, appOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline: %w", err)
	}
	defer func() {
		if err := a.Close(context.Background()); err != nil {
			logger.Error("pipeline shutdown failed", "error", err)
		}
	}()

	callID := opts.callID
	if callID == "" {
		callID = "SIM" + strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	outcome := a.orchestrator.HandleTurn(ctx, turn.Event{
		CallID:             callID,
		RecordingURL:       opts.recordingURL,
		RecordingDuration:  opts.duration,
		ProviderTranscript: opts.transcript,
	})

	printOutcome(out, outcome)
	fmt.Fprintln(out)
	fmt.Fprintln(out, voice.RenderTwiML(outcome.Instruction, cfg.Twilio.Capture))
	return nil
}

func printOutcome(out io.Writer, o turn.Outcome) {
	fmt.Fprintf(out, "call:          %s (turn %d)\n", o.CallID, o.Turn)
	fmt.Fprintf(out, "transcript:    %q\n", o.Utterance.Transcript)
	fmt.Fprintf(out, "reply:         %q\n", o.Reply.Text)
	fmt.Fprintf(out, "emergency:     %t\n", o.Reply.IsEmergency)
	fmt.Fprintf(out, "fallback:      %t\n", o.Reply.IsFallback)
	fmt.Fprintf(out, "synthesis:     %s\n", o.Synthesis.Source)
	fmt.Fprintf(out, "delivery:      %s\n", o.Instruction.Delivery)
	fmt.Fprintf(out, "payload:       %s\n", o.Instruction.Payload)
	fmt.Fprintf(out, "continuation:  %s\n", o.Instruction.Continuation)
	for _, f := range o.Failures {
		fmt.Fprintf(out, "failure:       %s [%s] %v\n", f.Stage, f.Kind, f.Err)
	}
	fmt.Fprintf(out, "notifications: %d\n", o.Notified)
	fmt.Fprintf(out, "duration:      %s\n", o.Duration.Round(time.Millisecond))
}

// printNotifier writes notifications to out instead of delivering them.
func printNotifier(out io.Writer) notify.Notifier {
	return notify.NotifierFunc(func(_ context.Context, n notify.Notification) error {
		fmt.Fprintf(out, "--- notification (%s): %s\n%s\n", n.Kind, n.Subject, strings.TrimRight(n.Body, "\n"))
		return nil
	})
}
