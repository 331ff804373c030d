// Package agent is the runtime embedded in every worker process. It wires
// together the metrics publisher, control subscriber, settings store,
// periodic reporter, and HTTP interceptor behind a single idempotent
// Start entry point, mirroring the ordered startup the teacher's own
// connection manager performs for its gRPC channel.
package agent

import (
	"context"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/agentid"
	"github.com/dashfleet-io/dashfleet/internal/procinspect"
)

// Agent is the assembled runtime for a single worker process.
type Agent struct {
	agentID   string
	parentPID int32
	cfg       Config
	logger    *zap.Logger

	publisher  *Publisher
	subscriber *Subscriber
	settings   *Settings
	reporter   *Reporter

	cancel context.CancelFunc
	stopOnce sync.Once
}

var (
	bootOnce  sync.Once
	singleton *Agent
)

// Start assembles and starts the agent singleton. Calling it more than
// once returns the already-running instance; only the first call's config
// takes effect, matching the teacher's bootstrap-once idiom for components
// that must not be double-initialized inside a single worker process.
func Start(cfg Config, logger *zap.Logger) *Agent {
	bootOnce.Do(func() {
		singleton = newAgent(cfg, logger)
	})
	return singleton
}

// Current returns the running singleton, or nil if Start has not been called.
func Current() *Agent {
	return singleton
}

func newAgent(cfg Config, logger *zap.Logger) *Agent {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.AgentID == "" {
		cfg.AgentID = agentid.Get()
	}

	ctx, cancel := context.WithCancel(context.Background())

	a := &Agent{
		agentID:   cfg.AgentID,
		parentPID: int32(os.Getppid()),
		cfg:       cfg,
		logger:    logger.Named("agent"),
		cancel:    cancel,
	}

	// Ordered startup: subscriber and settings first (so a control packet
	// arriving immediately after connect is never missed), then the
	// publisher, then the reporter that depends on all three.
	a.settings = NewSettings(a.agentID)
	a.subscriber = NewSubscriber(
		"ws://"+cfg.ControlSubAddress+"/control",
		a.settings.Update,
		logger,
	)
	a.subscriber.Start(ctx)

	a.publisher = NewPublisher(ctx, "ws://"+cfg.MetricsPushAddress+"/metrics", logger)

	inspector := procinspect.New(logger)
	reporter, err := NewReporter(a.agentID, inspector, a.settings, a.publisher, cfg.ReportInterval, logger)
	if err != nil {
		a.logger.Error("failed to build periodic reporter", zap.Error(err))
	} else {
		a.reporter = reporter
		if err := reporter.Start(ctx); err != nil {
			a.logger.Error("failed to start periodic reporter", zap.Error(err))
		}
	}

	a.logger.Info("agent started", zap.String("agent_id", a.agentID))
	return a
}

// Stop tears the agent down in reverse startup order. Idempotent.
func (a *Agent) Stop() {
	a.stopOnce.Do(func() {
		if a.reporter != nil {
			_ = a.reporter.Stop()
		}
		a.publisher.Close()
		a.subscriber.Stop()
		a.cancel()
		a.logger.Info("agent stopped")
	})
}

// AgentID returns the agent's stable identifier.
func (a *Agent) AgentID() string { return a.agentID }
