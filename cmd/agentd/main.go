// Command agentd is the local-first conversational agent runtime's
// process entry point: it loads one instance's configuration, wires the
// eleven runtime components together, and runs the turn loop either on
// a schedule (cron) or behind a local event-stream server.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	// Before config is loaded, process-level diagnostics (flag parsing,
	// config load failure) use a plain slog default; once a config is
	// loaded, buildInstance constructs the redacting observability.Logger
	// that the orchestrator and tool executor actually log through.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached,
// separated from main() so it can be exercised directly in tests.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "agentd",
		Short:   "agentd - local-first conversational agent runtime",
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Long: `agentd runs one conversational-agent instance: an event-sourced
session log, a capability-gated tool executor, prompt injection, an
adaptive-termination turn loop, and a cron scheduler for unattended runs.`,
		SilenceUsage: true,
	}
	rootCmd.AddCommand(buildServeCmd(), buildRunCmd())
	return rootCmd
}
