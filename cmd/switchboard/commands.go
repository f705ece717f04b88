package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// buildServeCmd creates the "serve" command that runs the webhook server.
func buildServeCmd() *cobra.Command {
	var (
		configPath string
		debug      bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the voice webhook server",
		Long: `Start the HTTP server that answers telephony webhooks.

The server will:
1. Load and validate configuration
2. Connect the recording, transcription, reply, speech and publish providers
3. Start the notification dispatcher and the call log writer
4. Serve /voice, /voice/status, /audio/, /healthz and /metrics

Graceful shutdown is handled on SIGINT/SIGTERM signals. Pending
notifications and call log entries are flushed before exit.`,
		Example: `  # Start with default config
  switchboard serve

  # Start with a custom config and debug logging
  switchboard serve --config /etc/switchboard/production.yaml --debug`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath), debug)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().BoolVarP(&debug, "debug", "d", false, "Enable debug logging")
	return cmd
}

// buildSimulateCmd creates the "simulate" command.
func buildSimulateCmd() *cobra.Command {
	var (
		configPath   string
		callID       string
		transcript   string
		recordingURL string
		duration     int
		notify       bool
	)

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run one caller turn through the configured pipeline",
		Long: `Run a single turn without a phone call and print the resulting
instruction and TwiML.

With --transcript the recording fetch and transcription stages are skipped.
With --recording-url the recording is downloaded and transcribed as in a live
call. Operator notifications are printed instead of sent unless --notify is set.`,
		Example: `  switchboard simulate --transcript "Do you bulk bill?"
  switchboard simulate --recording-url https://api.twilio.com/2010-04-01/Accounts/AC.../Recordings/RE... --duration 4`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if transcript == "" && recordingURL == "" && duration == 0 {
				return fmt.Errorf("one of --transcript or --recording-url is required")
			}
			return runSimulate(cmd.Context(), cmd.OutOrStdout(), simulateOptions{
				configPath:   resolveConfigPath(configPath),
				callID:       callID,
				transcript:   transcript,
				recordingURL: recordingURL,
				duration:     duration,
				notify:       notify,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().StringVar(&callID, "call-id", "", "Call identifier (default: random)")
	cmd.Flags().StringVarP(&transcript, "transcript", "t", "", "What the caller said")
	cmd.Flags().StringVar(&recordingURL, "recording-url", "", "Recording URL to fetch and transcribe")
	cmd.Flags().IntVar(&duration, "duration", 0, "Recording duration in seconds")
	cmd.Flags().BoolVar(&notify, "notify", false, "Deliver operator notifications through the configured channels")
	return cmd
}

// buildConfigCmd creates the "config" command group.
func buildConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration files",
	}
	cmd.AddCommand(buildConfigValidateCmd())
	return cmd
}

func buildConfigValidateCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigValidate(cmd.OutOrStdout(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	return cmd
}

// buildCallsCmd creates the "calls" command group over the call log.
func buildCallsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "calls",
		Short: "Inspect the turn call log",
	}
	cmd.AddCommand(buildCallsListCmd())
	return cmd
}

func buildCallsListCmd() *cobra.Command {
	var (
		configPath string
		limit      int
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "list <call-id>",
		Short: "List the logged turns of a call in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCallsList(cmd.Context(), cmd.OutOrStdout(), resolveConfigPath(configPath), args[0], limit, asJSON)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Path to configuration file")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum turns to show")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON lines")
	return cmd
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "switchboard %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
