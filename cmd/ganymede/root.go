package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "ganymede",
	Short: "Ganymede - OpenAI-compatible broker for browser executor pools",
	Long: `Ganymede bridges OpenAI chat completion clients to a pool of live
browser executors connected over WebSocket.

It accepts standard /v1/chat/completions requests, dispatches each one to a
ready executor holding an authenticated upstream session, and translates the
executor's response frames back into OpenAI streaming or non-streaming form:
  - Round-robin dispatch across connected executors
  - Per-model session credential pools with hot reload
  - FIFO queueing with bounded wait when all executors are busy
  - Usage accounting with SQLite persistence and scheduled pruning
  - Prometheus metrics and OpenTelemetry tracing

For more information, visit: https://github.com/mercator-hq/ganymede`,
	Version: Version,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	// Global persistent flags (available to all subcommands)
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.CompletionOptions.DisableDefaultCmd = false
}
