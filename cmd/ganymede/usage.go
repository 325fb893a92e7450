package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/usage"
)

var usageFlags struct {
	since     string
	model     string
	principal string
	limit     int
	records   bool
	format    string
}

var usageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Summarize recorded usage",
	Long: `Query the usage store and print an aggregate summary or raw records.

The command opens the SQLite usage database named in the configuration.
It is safe to run while the broker is serving: the store uses WAL journaling,
so readers do not block the broker's writes.

Examples:
  # Requests in the last 24 hours, grouped by model
  ganymede usage --since 24h

  # One model only
  ganymede usage --since 7d --model gpt-4o

  # Raw records for one client, as JSON
  ganymede usage --principal team-a --records --format json`,
	RunE: queryUsage,
}

func init() {
	rootCmd.AddCommand(usageCmd)

	usageCmd.Flags().StringVar(&usageFlags.since, "since", "24h", "window to report on (Go duration, or Nd for days)")
	usageCmd.Flags().StringVar(&usageFlags.model, "model", "", "restrict to one model")
	usageCmd.Flags().StringVar(&usageFlags.principal, "principal", "", "restrict to one client principal")
	usageCmd.Flags().IntVar(&usageFlags.limit, "limit", 100, "max records to print with --records")
	usageCmd.Flags().BoolVar(&usageFlags.records, "records", false, "print raw records instead of a summary")
	usageCmd.Flags().StringVar(&usageFlags.format, "format", "text", "output format: text, json")
}

func queryUsage(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}
	if cfg.Usage.Backend != "sqlite" {
		return cli.NewConfigError("usage.backend", "usage queries need the sqlite backend")
	}

	since, err := parseWindow(usageFlags.since)
	if err != nil {
		return cli.NewCommandError("usage", fmt.Errorf("invalid --since value: %w", err))
	}

	store, err := usage.NewSQLiteStore(&usage.SQLiteConfig{
		Path:        cfg.Usage.SQLite.Path,
		BusyTimeout: cfg.Usage.SQLite.BusyTimeout,
		JournalMode: cfg.Usage.SQLite.JournalMode,
	})
	if err != nil {
		return cli.NewCommandError("usage", fmt.Errorf("failed to open usage store: %w", err))
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	filter := usage.Filter{
		Model:     usageFlags.model,
		Principal: usageFlags.principal,
		Since:     time.Now().Add(-since),
		Limit:     usageFlags.limit,
	}

	if usageFlags.records {
		return printRecords(ctx, store, filter)
	}
	return printSummary(ctx, store, filter)
}

func printSummary(ctx context.Context, store usage.Store, filter usage.Filter) error {
	summary, err := store.Summarize(ctx, filter)
	if err != nil {
		return cli.NewCommandError("usage", err)
	}

	if usageFlags.format == string(cli.FormatJSON) {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, summary)
	}

	fmt.Printf("Requests: %d\n", summary.Requests)
	fmt.Printf("Errors:   %d\n", summary.Errors)
	if len(summary.ByModel) > 0 {
		fmt.Println("By model:")
		models := make([]string, 0, len(summary.ByModel))
		for m := range summary.ByModel {
			models = append(models, m)
		}
		sort.Strings(models)
		for _, m := range models {
			fmt.Printf("  %-40s %d\n", m, summary.ByModel[m])
		}
	}
	return nil
}

func printRecords(ctx context.Context, store usage.Store, filter usage.Filter) error {
	records, err := store.Query(ctx, filter)
	if err != nil {
		return cli.NewCommandError("usage", err)
	}

	if usageFlags.format == string(cli.FormatJSON) {
		return cli.NewFormatter(cli.FormatJSON).FormatTo(os.Stdout, records)
	}

	for _, rec := range records {
		fmt.Printf("%s  %-12s %-30s %3d  %s\n",
			rec.CreatedAt.Format(time.RFC3339),
			rec.Principal,
			rec.Model,
			rec.StatusCode,
			rec.Latency.Round(time.Millisecond),
		)
	}
	fmt.Printf("%d record(s)\n", len(records))
	return nil
}

// parseWindow accepts Go durations plus a day suffix, so "7d" works the way
// operators expect.
func parseWindow(s string) (time.Duration, error) {
	if n := len(s); n > 1 && s[n-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s[:n-1], "%d", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}
