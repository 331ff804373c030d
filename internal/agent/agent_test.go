package agent

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

func TestSettingsUpdateIgnoresOtherAgents(t *testing.T) {
	s := NewSettings("agent-a")
	s.Update(protocol.ControlPacket{AgentID: "agent-b", Leader: 99, Heartbeat: 1})

	if pid, fresh := s.Leader(time.Minute); pid != 0 || fresh {
		t.Fatalf("expected update for a different agent id to be ignored, got pid=%d fresh=%v", pid, fresh)
	}
}

func TestSettingsUpdateAppliesMatchingAgent(t *testing.T) {
	s := NewSettings("agent-a")
	s.Update(protocol.ControlPacket{AgentID: "agent-a", Leader: 42, Heartbeat: 3})

	pid, fresh := s.Leader(time.Minute)
	if pid != 42 || !fresh {
		t.Fatalf("expected leader=42 fresh=true, got pid=%d fresh=%v", pid, fresh)
	}
	if s.Heartbeat() != 3 {
		t.Fatalf("expected heartbeat 3, got %d", s.Heartbeat())
	}
}

func TestSettingsLeaderGoesStale(t *testing.T) {
	s := NewSettings("agent-a")
	s.Update(protocol.ControlPacket{AgentID: "agent-a", Leader: 42, Heartbeat: 1})

	time.Sleep(15 * time.Millisecond)
	if _, fresh := s.Leader(10 * time.Millisecond); fresh {
		t.Fatal("expected leader to be considered stale past its TTL")
	}
}

func TestInterceptorPassesStatusAndInjectsRequestID(t *testing.T) {
	captured := make(chan any, 1)
	a := &Agent{
		agentID:   "agent-a",
		parentPID: 1,
		cfg:       DefaultConfig(),
		logger:    zap.NewNop(),
		publisher: &Publisher{logger: zap.NewNop()}, // Send will no-op (conn is nil); we intercept differently below
	}

	// Swap emitHTTPEvent's sink by using a publisher whose Send we can
	// observe: since Publisher.Send only writes to a live conn, assert
	// instead on the response headers the interceptor sets, which is
	// verifiable without a network connection.
	_ = captured

	handler := a.Interceptor(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	req := httptest.NewRequest(http.MethodGet, "/brew", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Fatalf("expected status 418, got %d", rec.Code)
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Fatal("expected interceptor to inject a request id header")
	}
}
