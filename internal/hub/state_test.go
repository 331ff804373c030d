package hub

import (
	"testing"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

func TestUpdateServerAndSnapshot(t *testing.T) {
	s := NewState()
	s.UpdateServer(protocol.WorkerStatus{
		AgentID: "host-a",
		Workers: map[string]protocol.ProcInfo{
			"10": {PID: 10},
			"11": {PID: 11},
		},
	})

	servers := s.GetAllServers()
	snap, ok := servers["host-a"]
	if !ok {
		t.Fatal("expected host-a to be tracked")
	}
	if len(snap.Workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(snap.Workers))
	}
}

func TestElectLeadersRoundRobin(t *testing.T) {
	s := NewState()
	s.UpdateServer(protocol.WorkerStatus{
		AgentID: "host-a",
		Workers: map[string]protocol.ProcInfo{
			"10": {PID: 10},
			"20": {PID: 20},
		},
	})

	// The first pick is the last candidate by ascending pid (last_index
	// starts at -1), then rotation advances from there.
	first := s.ElectLeaders()
	if len(first) != 1 || first[0].AgentID != "host-a" {
		t.Fatalf("expected one packet for host-a, got %+v", first)
	}
	if first[0].Leader != 20 || first[0].Heartbeat != 0 {
		t.Fatalf("expected {leader:20, heartbeat:0} first, got %+v", first[0])
	}

	second := s.ElectLeaders()
	if len(second) != 1 || second[0].Leader != 10 || second[0].Heartbeat != 1 {
		t.Fatalf("expected {leader:10, heartbeat:1} second, got %+v", second)
	}
}

func TestElectLeadersRotationSequence(t *testing.T) {
	s := NewState()
	s.UpdateServer(protocol.WorkerStatus{
		AgentID: "host-a",
		Workers: map[string]protocol.ProcInfo{
			"0": {PID: 0},
			"1": {PID: 1},
			"2": {PID: 2},
		},
	})

	want := []int32{2, 0, 1, 2, 0, 1}
	for i, w := range want {
		got := s.ElectLeaders()
		if len(got) != 1 || got[0].Leader != w {
			t.Fatalf("pick %d: expected leader %d, got %+v", i, w, got)
		}
		if got[0].Heartbeat != int64(i) {
			t.Fatalf("pick %d: expected heartbeat %d, got %d", i, i, got[0].Heartbeat)
		}
	}
}

func TestElectLeadersSkipsEmptyAgents(t *testing.T) {
	s := NewState()
	s.UpdateServer(protocol.WorkerStatus{AgentID: "host-empty", Workers: map[string]protocol.ProcInfo{}})

	packets := s.ElectLeaders()
	if len(packets) != 0 {
		t.Fatalf("expected no packets for an agent with no live workers, got %+v", packets)
	}
}

func TestGetHTTPEventsCleancutDrains(t *testing.T) {
	s := NewState()
	s.UpdateHTTP(protocol.NewHTTPEvent("a", "GET", "/x", 200, 0.01, 1, 1, 1, ""))

	drained := s.GetHTTPEvents(true)
	if len(drained) != 1 {
		t.Fatalf("expected 1 event, got %d", len(drained))
	}

	again := s.GetHTTPEvents(true)
	if len(again) != 0 {
		t.Fatalf("expected drain to empty the fifo, got %d", len(again))
	}
}
