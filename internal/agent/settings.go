package agent

import (
	"sync"
	"time"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

// Settings is the agent-local view of leader election state, refreshed by
// every control packet the Subscriber receives for this agent's id.
type Settings struct {
	agentID string

	mu          sync.RWMutex
	leader      int32
	leaderSince time.Time
	heartbeat   int64
}

// NewSettings creates a Settings store scoped to agentID. Control packets
// addressed to a different agent id are ignored by Update.
func NewSettings(agentID string) *Settings {
	return &Settings{agentID: agentID}
}

// Update applies packet if it is addressed to this agent.
func (s *Settings) Update(packet protocol.ControlPacket) {
	if packet.AgentID != s.agentID {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.leader = packet.Leader
	s.leaderSince = time.Now()
	s.heartbeat = packet.Heartbeat
}

// Leader returns the most recently announced leader PID and whether it is
// still considered fresh given ttl.
func (s *Settings) Leader(ttl time.Duration) (pid int32, fresh bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.leaderSince.IsZero() {
		return 0, false
	}
	return s.leader, time.Since(s.leaderSince) < ttl
}

// Heartbeat returns the last heartbeat counter value observed.
func (s *Settings) Heartbeat() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.heartbeat
}
