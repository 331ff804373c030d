// Package hub is the central aggregation and control-plane process: it
// ingests metrics from every connected agent, holds a short time-bounded
// view of their state, elects a leader worker per agent, exposes that state
// as JSON and Prometheus text, and supervises served child processes.
package hub

import (
	"sort"
	"sync"
	"time"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
	"github.com/dashfleet-io/dashfleet/internal/ttlcache"
)

const (
	agentMasterTTL    = 5 * time.Second
	agentWorkersTTL   = 5 * time.Second
	agentWorkersMax   = 100
	httpEventsTTL     = 60 * time.Second
	httpEventsMax     = 10000
	refreshCleanEvery = time.Second
)

// agentState is the per-agent realtime view: a master slot that vanishes
// as a whole once idle, and a worker map whose entries expire individually.
type agentState struct {
	master    *ttlcache.IdleExpiringDict[string, any]
	workers   *ttlcache.RefreshMap[string, protocol.ProcInfo]
	lastIndex int // round-robin cursor for leader election; -1 until the first pick
	heartbeat int64
}

func newAgentState() *agentState {
	return &agentState{
		master:    ttlcache.NewIdleExpiringDict[string, any](agentMasterTTL),
		workers:   ttlcache.NewRefreshMap[string, protocol.ProcInfo](agentWorkersTTL, agentWorkersMax, refreshCleanEvery),
		lastIndex: -1,
	}
}

// AgentSnapshot is a point-in-time, lock-free view of one agent's state,
// returned by GetAllServers.
type AgentSnapshot struct {
	Master  map[string]any
	Workers map[string]protocol.ProcInfo
}

// State is the hub's realtime aggregation store. A single RWMutex guards
// the per-agent map — the teacher's websocket Hub and agent manager both
// favor one coarse lock over a component this size rather than per-entity
// locks, and the distilled design agrees.
type State struct {
	mu       sync.RWMutex
	agents   map[string]*agentState
	http     *ttlcache.ExpiringFifo[protocol.HTTPEvent]
}

// NewState creates an empty State.
func NewState() *State {
	return &State{
		agents: make(map[string]*agentState),
		http:   ttlcache.NewExpiringFifo[protocol.HTTPEvent](httpEventsTTL, httpEventsMax),
	}
}

// UpdateHTTP records a single HttpEvent.
func (s *State) UpdateHTTP(event protocol.HTTPEvent) {
	s.http.Push(event)
}

// UpdateServer records a WorkerStatus sample: the master slot (if the
// reporting worker currently holds the leader role) and every worker entry
// it carries.
func (s *State) UpdateServer(status protocol.WorkerStatus) {
	st := s.agentStateFor(status.AgentID)

	if len(status.Master) > 0 {
		st.master.Set(status.Master)
	}
	for pid, info := range status.Workers {
		st.workers.Set(pid, info)
	}
}

func (s *State) agentStateFor(agentID string) *agentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.agents[agentID]
	if !ok {
		st = newAgentState()
		s.agents[agentID] = st
	}
	return st
}

// GetHTTPEvents returns the currently live HTTP events. When cleancut is
// true, the underlying fifo is drained so each event is only ever returned
// once — used by the exposition aggregator.
func (s *State) GetHTTPEvents(cleancut bool) []protocol.HTTPEvent {
	if cleancut {
		return s.http.Drain()
	}
	return s.http.Snapshot()
}

// GetAllServers returns a snapshot of every agent currently tracked.
func (s *State) GetAllServers() map[string]AgentSnapshot {
	s.mu.RLock()
	agentIDs := make([]string, 0, len(s.agents))
	states := make([]*agentState, 0, len(s.agents))
	for id, st := range s.agents {
		agentIDs = append(agentIDs, id)
		states = append(states, st)
	}
	s.mu.RUnlock()

	out := make(map[string]AgentSnapshot, len(agentIDs))
	for i, id := range agentIDs {
		st := states[i]
		master := st.master.Get()
		masterTyped := make(map[string]any, len(master))
		for k, v := range master {
			masterTyped[k] = v
		}
		out[id] = AgentSnapshot{
			Master:  masterTyped,
			Workers: st.workers.Snapshot(),
		}
	}
	return out
}

// ElectLeaders picks the current round-robin candidate for every agent that
// has live workers and returns the resulting control packets, advancing
// each agent's cursor afterward. An agent with no live workers is skipped —
// there is nothing to elect. lastIndex starts at -1 so the first pick for a
// freshly seen agent is the last candidate by ascending PID, matching the
// original selector's negative-index convention.
func (s *State) ElectLeaders() []protocol.ControlPacket {
	s.mu.Lock()
	agentIDs := make([]string, 0, len(s.agents))
	states := make([]*agentState, 0, len(s.agents))
	for id, st := range s.agents {
		agentIDs = append(agentIDs, id)
		states = append(states, st)
	}
	s.mu.Unlock()

	packets := make([]protocol.ControlPacket, 0, len(agentIDs))
	for i, id := range agentIDs {
		st := states[i]
		workers := st.workers.Snapshot()
		if len(workers) == 0 {
			continue
		}

		pids := make([]int32, 0, len(workers))
		for _, w := range workers {
			pids = append(pids, w.PID)
		}
		sort.Slice(pids, func(i, j int) bool { return pids[i] < pids[j] })

		n := len(pids)
		idx := ((st.lastIndex % n) + n) % n
		leader := pids[idx]
		heartbeat := st.heartbeat

		st.lastIndex = (st.lastIndex + 1) % n
		st.heartbeat++

		packets = append(packets, protocol.ControlPacket{
			AgentID:   id,
			Leader:    leader,
			Heartbeat: heartbeat,
		})
	}
	return packets
}

// Dict renders the entire hub state as a JSON-ready map, for the hub's
// GET /state endpoint.
func (s *State) Dict() map[string]any {
	servers := s.GetAllServers()
	out := make(map[string]any, len(servers))
	for id, snap := range servers {
		out[id] = map[string]any{
			"master":  snap.Master,
			"workers": snap.Workers,
		}
	}
	return map[string]any{
		"servers":     out,
		"http_events": s.GetHTTPEvents(false),
	}
}
