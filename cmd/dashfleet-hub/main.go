// Package main is the entry point for the dashfleet-hub binary.
// It wires every hub component together and blocks until SIGINT/SIGTERM.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Assemble the Hub (state, collector, control publisher, leader
//     selector, exposition aggregator, supervisor, API server)
//  4. Run, blocking until a shutdown signal arrives
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/hub"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	metricsPullAddr   string
	controlPubAddr    string
	expositionAddr    string
	apiAddr           string
	supervisorSocket  string
	registryPath      string
	pidFilePath       string
	leaderRotateSecs  int
	aggregationSecs   int
	metricPrefix      string
	logLevel          string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}
	defaults := hub.DefaultConfig()

	root := &cobra.Command{
		Use:   "dashfleet-hub",
		Short: "dashfleet hub — central aggregator for the dashfleet observability fabric",
		Long: `dashfleet hub receives metrics pushed by dashfleet agents, aggregates
worker and request statistics, elects a leader worker per agent, exposes
state as JSON and as Prometheus metrics, and supervises the applications
it is told to run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.metricsPullAddr, "metrics-pull-addr", envOrDefault("DASHFLEET_METRICS_PULL_ADDRESS", defaults.MetricsPullAddress), "Address agents push metrics to")
	root.PersistentFlags().StringVar(&cfg.controlPubAddr, "control-pub-addr", envOrDefault("DASHFLEET_CONTROL_PUB_ADDRESS", defaults.ControlPubAddress), "Address agents subscribe to for leader announcements")
	root.PersistentFlags().StringVar(&cfg.expositionAddr, "exposition-addr", envOrDefault("DASHFLEET_EXPOSITION_ADDR", defaults.ExpositionAddr), "Prometheus /metrics listen address")
	root.PersistentFlags().StringVar(&cfg.apiAddr, "api-addr", envOrDefault("DASHFLEET_API_ADDR", defaults.APIAddr), "JSON state API listen address")
	root.PersistentFlags().StringVar(&cfg.supervisorSocket, "supervisor-socket", envOrDefault("DASHFLEET_SUPERVISOR_SOCKET", defaults.SupervisorSocketPath), "Unix domain socket for the process supervisor")
	root.PersistentFlags().StringVar(&cfg.registryPath, "registry-path", envOrDefault("DASHFLEET_REGISTRY_PATH", defaults.RegistryPath), "Path to the supervised-process registry file")
	root.PersistentFlags().StringVar(&cfg.pidFilePath, "pid-file", envOrDefault("DASHFLEET_PID_FILE", defaults.PIDFilePath), "Path to the hub's own PID file")
	root.PersistentFlags().IntVar(&cfg.leaderRotateSecs, "leader-rotate-seconds", int(defaults.LeaderRotateInterval.Seconds()), "Leader election interval in seconds")
	root.PersistentFlags().IntVar(&cfg.aggregationSecs, "aggregation-seconds", int(defaults.AggregationInterval.Seconds()), "Metrics aggregation interval in seconds")
	root.PersistentFlags().StringVar(&cfg.metricPrefix, "metric-prefix", envOrDefault("DASHFLEET_METRIC_PREFIX", defaults.MetricPrefix), "Prefix applied to every exposed Prometheus metric name")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("DASHFLEET_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dashfleet-hub %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting dashfleet hub",
		zap.String("version", version),
		zap.String("metrics_pull_addr", cfg.metricsPullAddr),
		zap.String("control_pub_addr", cfg.controlPubAddr),
		zap.String("exposition_addr", cfg.expositionAddr),
		zap.String("api_addr", cfg.apiAddr),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	hubCfg := hub.Config{
		MetricsPullProtocol:  "tcp",
		MetricsPullAddress:   cfg.metricsPullAddr,
		ControlPubProtocol:   "tcp",
		ControlPubAddress:    cfg.controlPubAddr,
		ExpositionAddr:       cfg.expositionAddr,
		APIAddr:              cfg.apiAddr,
		SupervisorSocketPath: cfg.supervisorSocket,
		RegistryPath:         cfg.registryPath,
		PIDFilePath:          cfg.pidFilePath,
		LeaderRotateInterval: time.Duration(cfg.leaderRotateSecs) * time.Second,
		AggregationInterval:  time.Duration(cfg.aggregationSecs) * time.Second,
		MetricPrefix:         cfg.metricPrefix,
	}

	h, err := hub.New(hubCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to assemble hub: %w", err)
	}

	if err := h.Run(ctx); err != nil {
		return fmt.Errorf("hub exited with error: %w", err)
	}

	logger.Info("dashfleet hub stopped")
	return nil
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
