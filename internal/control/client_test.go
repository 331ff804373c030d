package control

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

func serveOnce(t *testing.T, socketPath string, reply protocol.SupervisorReply) {
	t.Helper()
	l, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		defer l.Close()

		if _, err := bufio.NewReader(conn).ReadBytes('\n'); err != nil {
			return
		}
		data, _ := json.Marshal(reply)
		data = append(data, '\n')
		_, _ = conn.Write(data)
	}()
}

func TestClientDoRoundTrips(t *testing.T) {
	dir := t.TempDir()
	socketPath := filepath.Join(dir, "pm.sock")
	serveOnce(t, socketPath, protocol.SupervisorReply{Status: "ok", Message: "started app1"})

	c := New(socketPath)
	reply := c.Start("app1", "/bin/app1", nil)
	if reply.Status != "ok" || reply.Message != "started app1" {
		t.Fatalf("unexpected reply: %+v", reply)
	}
}

func TestClientDoReportsDialFailureAsErrorReply(t *testing.T) {
	dir := t.TempDir()
	c := &Client{SocketPath: filepath.Join(dir, "nonexistent.sock"), Timeout: 200 * time.Millisecond}

	reply := c.List()
	if reply.Status != "error" {
		t.Fatalf("expected error status for an unreachable socket, got %+v", reply)
	}
}
