package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"mercator-hq/ganymede/pkg/bridge"
	"mercator-hq/ganymede/pkg/cli"
	"mercator-hq/ganymede/pkg/config"
	"mercator-hq/ganymede/pkg/credentials"
	"mercator-hq/ganymede/pkg/server"
	"mercator-hq/ganymede/pkg/telemetry/logging"
	"mercator-hq/ganymede/pkg/telemetry/metrics"
	"mercator-hq/ganymede/pkg/telemetry/tracing"
	"mercator-hq/ganymede/pkg/usage"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the Ganymede broker",
	Long: `Start the Ganymede broker with the specified configuration.

The broker listens on the configured address, accepts OpenAI-compatible
chat completion requests, and dispatches them over WebSocket to connected
executors.

Examples:
  # Start with default config
  ganymede run

  # Start with custom config
  ganymede run --config /etc/ganymede/config.yaml

  # Override listen address
  ganymede run --listen 0.0.0.0:8080

  # Validate config without starting the broker
  ganymede run --dry-run`,
	RunE: runBroker,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the broker")
}

func runBroker(cmd *cobra.Command, args []string) error {
	// Load configuration
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile)
	if err != nil {
		return cli.NewConfigError("", fmt.Sprintf("failed to load config: %v", err))
	}

	// Apply flag overrides
	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}

	logger, err := logging.Setup(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
		Output: cfg.Telemetry.Logging.Output,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	defer logger.Shutdown()

	if runFlags.dryRun {
		fmt.Println("✓ Configuration valid")
		return nil
	}

	printBanner(cfg)

	ctx := cli.SetupSignalHandler()

	// Tracing
	tracer, err := tracing.New(cfg.Telemetry.Tracing)
	if err != nil {
		return cli.NewCommandError("run", fmt.Errorf("failed to initialize tracing: %w", err))
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			slog.Warn("tracer shutdown failed", "error", err)
		}
	}()
	if tracer.Enabled() {
		fmt.Printf("✓ Tracing enabled (endpoint %s)\n", cfg.Telemetry.Tracing.Endpoint)
	}

	// Session credential pool with hot reload
	pool := bridge.NewCredentialPool(nil, nil)
	pool.SetFallbackModel(cfg.Models.FallbackModel)
	credMgr := credentials.NewManager(pool, cfg.Models.CredentialFile)
	if err := credMgr.Load(); err != nil {
		slog.Warn("credential file not loaded, executors can still capture sessions",
			"path", cfg.Models.CredentialFile,
			"error", err,
		)
	} else {
		fmt.Printf("✓ Credentials loaded (%d models)\n", len(pool.Models()))
	}
	if cfg.Models.Watch && cfg.Models.CredentialFile != "" {
		go func() {
			if err := credMgr.Watch(ctx); err != nil && ctx.Err() == nil {
				slog.Warn("credential file watcher stopped", "error", err)
			}
		}()
	}

	// Executor registry
	registry := bridge.NewRegistry(bridge.RegistryConfig{
		Tokens:           cfg.Executors.Tokens,
		RequireAuth:      cfg.Executors.RequireAuth,
		MaxExecutors:     cfg.Executors.MaxExecutors,
		HeartbeatTimeout: cfg.Executors.HeartbeatTimeout,
	})

	// Usage accounting
	var (
		store    usage.Store
		recorder *usage.Recorder
		pruner   *usage.Pruner
	)
	if cfg.Usage.Enabled {
		switch cfg.Usage.Backend {
		case "sqlite":
			store, err = usage.NewSQLiteStore(&usage.SQLiteConfig{
				Path:        cfg.Usage.SQLite.Path,
				BusyTimeout: cfg.Usage.SQLite.BusyTimeout,
				JournalMode: cfg.Usage.SQLite.JournalMode,
			})
			if err != nil {
				return cli.NewCommandError("run", fmt.Errorf("failed to open usage store: %w", err))
			}
		case "memory":
			store = usage.NewMemoryStore()
		default:
			return cli.NewConfigError("usage.backend", fmt.Sprintf("unsupported backend: %s", cfg.Usage.Backend))
		}
		defer store.Close()

		recorder = usage.NewRecorder(store, &usage.RecorderConfig{
			Enabled:    true,
			BufferSize: cfg.Usage.BufferSize,
		})
		defer recorder.Close()

		if cfg.Usage.Retention.Enabled {
			pruner = usage.NewPruner(store, &usage.RetentionConfig{
				Days:     cfg.Usage.Retention.Days,
				Schedule: cfg.Usage.Retention.Schedule,
			})
			if err := pruner.Start(ctx); err != nil {
				slog.Warn("failed to start usage retention scheduler", "error", err)
			} else {
				defer pruner.Stop()
				if next := pruner.NextRun(); next != nil {
					slog.Debug("usage retention scheduler started", "next_prune", next)
				}
			}
		}

		fmt.Printf("✓ Usage store initialized (%s)\n", cfg.Usage.Backend)
	}

	// Metrics
	var collector *metrics.Collector
	if cfg.Telemetry.Metrics.Enabled {
		collector = metrics.NewCollector(metrics.Config{})
	}

	// Broker
	var (
		usageRec bridge.UsageRecorder
		observer bridge.Observer
	)
	if recorder != nil {
		usageRec = recorder
	}
	if collector != nil {
		observer = collector
	}
	broker := bridge.NewBroker(bridge.Config{
		MaxQueueWait:        cfg.Broker.MaxQueueWait,
		RejectWhenNoWorkers: cfg.Broker.RejectWhenNoWorkers,
		StreamInactivity:    cfg.Broker.StreamInactivity,
		StreamDuration:      cfg.Broker.StreamDuration,
	}, pool, registry, usageRec, observer)
	go broker.Run(ctx)

	if collector != nil {
		collector.ObserveBridge(broker)
	}

	srv := server.New(cfg, server.Deps{
		Broker:      broker,
		Credentials: credMgr,
		Usage:       store,
		Metrics:     collector,
	})

	fmt.Println()
	fmt.Printf("✓ Broker listening on %s\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Executor endpoint: ws://%s/ws/executor\n", cfg.Server.ListenAddress)
	fmt.Printf("✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if cfg.Telemetry.Metrics.Enabled {
		fmt.Printf("✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Println("\nPress Ctrl+C to stop")

	// Start blocks until the context is cancelled or the listener fails.
	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}

	fmt.Println("✓ Broker stopped")
	return nil
}

func printBanner(cfg *config.Config) {
	fmt.Printf("Ganymede v%s\n", Version)
	fmt.Printf("Loading configuration from: %s\n", cfgFile)
	fmt.Println("✓ Configuration loaded")

	slog.Debug("executor channel configured",
		"require_auth", cfg.Executors.RequireAuth,
		"max_executors", cfg.Executors.MaxExecutors,
	)
	if cfg.Models.CredentialFile != "" {
		slog.Debug("credential file configured",
			"path", cfg.Models.CredentialFile,
			"watch", cfg.Models.Watch,
		)
	}
	if cfg.Usage.Enabled {
		slog.Debug("usage accounting enabled", "backend", cfg.Usage.Backend)
	}
}
