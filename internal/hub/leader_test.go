package hub

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

func TestLeaderSelectorBroadcastsOverControlPublisher(t *testing.T) {
	state := NewState()
	state.UpdateServer(protocol.WorkerStatus{
		AgentID: "host-a",
		Workers: map[string]protocol.ProcInfo{
			"10": {PID: 10},
			"20": {PID: 20},
		},
	})

	pub := NewControlPublisher(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go pub.Run(ctx)

	srv := httptest.NewServer(pub)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to register the client before publishing.
	time.Sleep(20 * time.Millisecond)

	selector, err := NewLeaderSelector(state, pub, 10*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("NewLeaderSelector: %v", err)
	}
	if err := selector.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer selector.Stop()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("expected to receive a broadcast control packet: %v", err)
	}
	if !strings.Contains(string(data), `"host-a"`) {
		t.Fatalf("expected packet for host-a, got %s", data)
	}
}
