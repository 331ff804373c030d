// Package main is a minimal demonstration binary for the dashfleet agent.
// Real adopters import internal/agent directly and call agent.Start from
// inside their own worker process; this binary exists so the agent runtime
// can be exercised and inspected standalone, serving a trivial HTTP handler
// instrumented with the same interceptor a real worker would use.
//
// Startup sequence:
//  1. Parse CLI flags / environment variables
//  2. Build logger
//  3. Start the agent singleton (subscriber, publisher, reporter)
//  4. Serve HTTP behind the agent's interceptor
//  5. Block until SIGINT/SIGTERM, then graceful shutdown
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/agent"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr            string
	metricsPushAddr     string
	controlSubAddr      string
	reportIntervalSecs  int
	logLevel            string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}
	defaults := agent.DefaultConfig()

	root := &cobra.Command{
		Use:   "dashfleet-agent",
		Short: "dashfleet agent demo — a worker process instrumented with the dashfleet agent runtime",
		Long: `dashfleet-agent runs a minimal HTTP server instrumented with the
dashfleet in-process agent: it reports worker and process metrics to a hub
and serves HTTP requests wrapped by the agent's interceptor.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("DASHFLEET_HTTP_ADDR", ":8000"), "HTTP listen address for the demo server")
	root.PersistentFlags().StringVar(&cfg.metricsPushAddr, "metrics-push-addr", envOrDefault("DASHFLEET_METRICS_PUSH_ADDRESS", defaults.MetricsPushAddress), "Hub address metrics are pushed to")
	root.PersistentFlags().StringVar(&cfg.controlSubAddr, "control-sub-addr", envOrDefault("DASHFLEET_CONTROL_SUB_ADDRESS", defaults.ControlSubAddress), "Hub address leader announcements are subscribed from")
	root.PersistentFlags().IntVar(&cfg.reportIntervalSecs, "report-interval-seconds", int(defaults.ReportInterval.Seconds()), "Worker status report interval in seconds")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("DASHFLEET_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dashfleet-agent %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting dashfleet agent demo",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("metrics_push_addr", cfg.metricsPushAddr),
	)

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	agentCfg := agent.Config{
		MetricsPushProtocol: "tcp",
		MetricsPushAddress:  cfg.metricsPushAddr,
		ControlSubProtocol:  "tcp",
		ControlSubAddress:   cfg.controlSubAddr,
		ReportInterval:      time.Duration(cfg.reportIntervalSecs) * time.Second,
		LeaderTTL:           3 * time.Duration(cfg.reportIntervalSecs) * time.Second,
		InjectRequestID:     true,
	}

	a := agent.Start(agentCfg, logger)
	defer a.Stop()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "dashfleet agent %s demo worker, pid %d\n", a.AgentID(), os.Getpid())
	})
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      a.Interceptor(mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down dashfleet agent demo")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("dashfleet agent demo stopped")
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
