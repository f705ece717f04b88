// Package main provides the CLI entry point for switchboard, a voice
// receptionist that answers phone calls turn by turn.
//
// # Basic Usage
//
// Start the webhook server:
//
//	switchboard serve --config switchboard.yaml
//
// Run one turn against the configured providers without a phone call:
//
//	switchboard simulate --transcript "Can I book a skin check?"
//
// Check a configuration file:
//
//	switchboard config validate --config switchboard.yaml
//
// # Environment Variables
//
// Secrets left empty in the configuration file are read from:
//
//   - SWITCHBOARD_CONFIG: Path to configuration file (default: switchboard.yaml)
//   - TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN: recording downloads and webhook signatures
//   - OPENAI_API_KEY: transcription, OpenAI replies and OpenAI speech
//   - ANTHROPIC_API_KEY: Anthropic replies
//   - ELEVENLABS_API_KEY: ElevenLabs speech
//   - SMTP_USERNAME, SMTP_PASSWORD, SLACK_WEBHOOK_URL: operator notifications
package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Build information - populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "switchboard.yaml"

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "switchboard",
		Short: "switchboard - voice receptionist turn pipeline",
		Long: `switchboard answers inbound phone calls. Each caller turn is recorded,
transcribed, answered by an LLM, spoken back with text-to-speech and followed
by a prompt for the next turn. Failures fall back to spoken text and notify
an operator by email, Slack or MQTT.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildSimulateCmd(),
		buildConfigCmd(),
		buildCallsCmd(),
		buildVersionCmd(),
	)
	return rootCmd
}

// resolveConfigPath prefers an explicit path, then SWITCHBOARD_CONFIG.
func resolveConfigPath(path string) string {
	if p := strings.TrimSpace(path); p != "" && p != defaultConfigPath {
		return p
	}
	if env := strings.TrimSpace(os.Getenv("SWITCHBOARD_CONFIG")); env != "" {
		return env
	}
	return defaultConfigPath
}
