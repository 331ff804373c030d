package hub

import (
	"bufio"
	"encoding/json"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

func sendRequest(t *testing.T, socketPath string, req protocol.SupervisorRequest) protocol.SupervisorReply {
	t.Helper()

	conn, err := net.DialTimeout("unix", socketPath, 2*time.Second)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	data, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		t.Fatalf("write: %v", err)
	}

	reader := bufio.NewReader(conn)
	line, err := reader.ReadBytes('\n')
	if err != nil {
		t.Fatalf("read reply: %v", err)
	}

	var reply protocol.SupervisorReply
	if err := json.Unmarshal(line, &reply); err != nil {
		t.Fatalf("unmarshal reply: %v", err)
	}
	return reply
}

func TestSupervisorUnknownCommand(t *testing.T) {
	dir := t.TempDir()
	sup, err := NewSupervisor(filepath.Join(dir, "pm.sock"), filepath.Join(dir, "running.json"), nil)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	reply := sendRequest(t, filepath.Join(dir, "pm.sock"), protocol.SupervisorRequest{Cmd: "fly-to-the-moon"})
	if reply.Status != "error" {
		t.Fatalf("expected error status for unknown command, got %+v", reply)
	}
}

func TestSupervisorListEmpty(t *testing.T) {
	dir := t.TempDir()
	sup, err := NewSupervisor(filepath.Join(dir, "pm.sock"), filepath.Join(dir, "running.json"), nil)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	reply := sendRequest(t, filepath.Join(dir, "pm.sock"), protocol.SupervisorRequest{Cmd: "list"})
	if reply.Status != "ok" {
		t.Fatalf("expected ok status, got %+v", reply)
	}
}

func TestSupervisorStopUntrackedName(t *testing.T) {
	dir := t.TempDir()
	sup, err := NewSupervisor(filepath.Join(dir, "pm.sock"), filepath.Join(dir, "running.json"), nil)
	if err != nil {
		t.Fatalf("NewSupervisor: %v", err)
	}
	if err := sup.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer sup.Stop()

	args, _ := json.Marshal(protocol.NamedArgs{Name: "ghost"})
	reply := sendRequest(t, filepath.Join(dir, "pm.sock"), protocol.SupervisorRequest{Cmd: "stop", Args: args})
	if reply.Status != "error" {
		t.Fatalf("expected error for an untracked name, got %+v", reply)
	}
}
