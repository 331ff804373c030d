package agent

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/procinspect"
	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

// Reporter ticks on a fixed interval, composes a WorkerStatus from the
// process inspector and the current settings snapshot, and hands it to the
// Publisher. It uses gocron the same way the hub's leader selector and
// exposition aggregator do, so every periodic loop in this module follows
// one scheduling idiom.
type Reporter struct {
	agentID   string
	inspector *procinspect.Inspector
	settings  *Settings
	publisher *Publisher
	interval  time.Duration
	logger    *zap.Logger

	cron gocron.Scheduler
}

// NewReporter builds a Reporter. Call Start to begin ticking.
func NewReporter(agentID string, inspector *procinspect.Inspector, settings *Settings, publisher *Publisher, interval time.Duration, logger *zap.Logger) (*Reporter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &Reporter{
		agentID:   agentID,
		inspector: inspector,
		settings:  settings,
		publisher: publisher,
		interval:  interval,
		logger:    logger.Named("reporter"),
		cron:      cron,
	}, nil
}

// Start schedules the periodic tick and starts the underlying scheduler.
func (r *Reporter) Start(ctx context.Context) error {
	_, err := r.cron.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(func() { r.tick(ctx) }),
	)
	if err != nil {
		return err
	}
	r.cron.Start()
	return nil
}

// Stop shuts down the scheduler, waiting for any in-flight tick to finish.
func (r *Reporter) Stop() error {
	return r.cron.Shutdown()
}

func (r *Reporter) tick(ctx context.Context) {
	leaderPID, _ := r.settings.Leader(0) // freshness doesn't gate whether we report as leader
	heartbeat := r.settings.Heartbeat()

	master, workers := r.inspector.WorkerMetrics(ctx, leaderPID, heartbeat)
	status := protocol.NewWorkerStatus(r.agentID, float64(time.Now().UnixNano())/1e9, master, workers, heartbeat)
	r.publisher.Send(status)
}
