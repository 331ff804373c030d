package hub

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// LeaderSelector periodically advances round-robin leader election for
// every tracked agent and broadcasts the result over the control
// publisher.
type LeaderSelector struct {
	state    *State
	pub      *ControlPublisher
	interval time.Duration
	logger   *zap.Logger

	cron gocron.Scheduler
}

// NewLeaderSelector builds a LeaderSelector. Call Start to begin ticking.
func NewLeaderSelector(state *State, pub *ControlPublisher, interval time.Duration, logger *zap.Logger) (*LeaderSelector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	return &LeaderSelector{state: state, pub: pub, interval: interval, logger: logger.Named("leader"), cron: cron}, nil
}

// Start schedules the election tick and starts the underlying scheduler.
func (l *LeaderSelector) Start() error {
	_, err := l.cron.NewJob(
		gocron.DurationJob(l.interval),
		gocron.NewTask(l.tick),
	)
	if err != nil {
		return err
	}
	l.cron.Start()
	return nil
}

// Stop shuts down the scheduler.
func (l *LeaderSelector) Stop() error {
	return l.cron.Shutdown()
}

func (l *LeaderSelector) tick() {
	packets := l.state.ElectLeaders()
	for _, p := range packets {
		l.pub.Publish(p)
	}
	if len(packets) > 0 {
		l.logger.Debug("leaders elected", zap.Int("count", len(packets)))
	}
}
