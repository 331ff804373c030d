package hub

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/transport"
)

// Hub is the fully assembled set of hub components, wired and started in
// the order the distilled design requires and torn down in reverse.
type Hub struct {
	cfg    Config
	logger *zap.Logger

	State      *State
	Collector  *Collector
	ControlPub *ControlPublisher
	Leader     *LeaderSelector
	Exposition *Exposition
	ExpoSrv    *ExpositionServer
	APISrv     *APIServer
	Supervisor *Supervisor

	cancel context.CancelFunc
}

// New assembles a Hub from cfg without starting anything.
func New(cfg Config, logger *zap.Logger) (*Hub, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("hub")

	state := NewState()
	controlPub := NewControlPublisher(logger)

	leader, err := NewLeaderSelector(state, controlPub, cfg.LeaderRotateInterval, logger)
	if err != nil {
		return nil, fmt.Errorf("hub: building leader selector: %w", err)
	}

	exposition, err := NewExposition(state, cfg.MetricPrefix, logger)
	if err != nil {
		return nil, fmt.Errorf("hub: building exposition aggregator: %w", err)
	}
	expoSrv, err := NewExpositionServer(cfg.ExpositionAddr, exposition, logger)
	if err != nil {
		return nil, fmt.Errorf("hub: building exposition server: %w", err)
	}

	supervisor, err := NewSupervisor(cfg.SupervisorSocketPath, cfg.RegistryPath, logger)
	if err != nil {
		return nil, fmt.Errorf("hub: building supervisor: %w", err)
	}

	return &Hub{
		cfg:        cfg,
		logger:     logger,
		State:      state,
		Collector:  NewCollector(state, logger),
		ControlPub: controlPub,
		Leader:     leader,
		Exposition: exposition,
		ExpoSrv:    expoSrv,
		APISrv:     NewAPIServer(cfg.APIAddr, state, logger),
		Supervisor: supervisor,
	}, nil
}

// Run claims the PID file, starts every component in order, blocks until
// ctx is cancelled, then shuts everything down in reverse order.
func (h *Hub) Run(ctx context.Context) error {
	if err := h.claimPIDFile(); err != nil {
		return err
	}
	defer os.Remove(h.cfg.PIDFilePath)

	ctx, cancel := context.WithCancel(ctx)
	h.cancel = cancel

	go h.ControlPub.Run(ctx)

	if err := h.Supervisor.Start(); err != nil {
		return fmt.Errorf("hub: starting supervisor: %w", err)
	}
	defer h.Supervisor.Stop()

	h.APISrv.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.APISrv.Stop(shutdownCtx)
	}()

	h.ExpoSrv.Start()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.ExpoSrv.Stop(shutdownCtx)
	}()

	if err := h.Exposition.StartAggregation(h.cfg.AggregationInterval); err != nil {
		return fmt.Errorf("hub: starting exposition aggregation: %w", err)
	}
	defer h.Exposition.StopAggregation()

	if err := h.Leader.Start(); err != nil {
		return fmt.Errorf("hub: starting leader selector: %w", err)
	}
	defer h.Leader.Stop()

	collectorSrv := &http.Server{Addr: h.cfg.MetricsPullAddress, Handler: h.Collector}
	go func() {
		if err := collectorSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("metrics collector server stopped unexpectedly", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = collectorSrv.Shutdown(shutdownCtx)
	}()

	controlSrv := &http.Server{Addr: h.cfg.ControlPubAddress, Handler: h.ControlPub}
	go func() {
		if err := controlSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("control publisher server stopped unexpectedly", zap.Error(err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = controlSrv.Shutdown(shutdownCtx)
	}()

	h.logger.Info("hub started",
		zap.String("metrics_pull", h.cfg.MetricsPullAddress),
		zap.String("control_pub", h.cfg.ControlPubAddress),
		zap.String("exposition", h.cfg.ExpositionAddr),
		zap.String("api", h.cfg.APIAddr),
	)

	<-ctx.Done()
	h.logger.Info("hub shutting down")
	return nil
}

// Stop cancels the running Hub's context, unwinding Run's deferred shutdown.
func (h *Hub) Stop() {
	if h.cancel != nil {
		h.cancel()
	}
}

// claimPIDFile refuses to start if a live hub process already owns the PID
// file, and otherwise writes the current PID.
func (h *Hub) claimPIDFile() error {
	if data, err := os.ReadFile(h.cfg.PIDFilePath); err == nil {
		if pid, err := strconv.Atoi(strings.TrimSpace(string(data))); err == nil {
			if proc, err := os.FindProcess(pid); err == nil && proc.Signal(syscall.Signal(0)) == nil {
				return fmt.Errorf("hub: another instance is already running (pid %d)", pid)
			}
		}
	}

	if err := transport.SanitizeUnixSocket(h.cfg.SupervisorSocketPath); err != nil {
		return err
	}

	return os.WriteFile(h.cfg.PIDFilePath, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
