package procinspect

import (
	"context"
	"os"
	"testing"
)

func TestSelfInfo(t *testing.T) {
	ins := New(nil)
	info, err := ins.SelfInfo(context.Background())
	if err != nil {
		t.Fatalf("SelfInfo: %v", err)
	}
	if info.PID != int32(os.Getpid()) {
		t.Fatalf("expected pid %d, got %d", os.Getpid(), info.PID)
	}
}

func TestWorkerMetricsNotLeader(t *testing.T) {
	ins := New(nil)
	master, workers := ins.WorkerMetrics(context.Background(), -1, 3)
	if len(master) != 0 {
		t.Fatalf("expected empty master when not leader, got %v", master)
	}
	if len(workers) != 1 {
		t.Fatalf("expected exactly one worker entry, got %d", len(workers))
	}
}

func TestWorkerMetricsLeader(t *testing.T) {
	ins := New(nil)
	self, err := ins.SelfInfo(context.Background())
	if err != nil {
		t.Fatalf("SelfInfo: %v", err)
	}

	master, workers := ins.WorkerMetrics(context.Background(), self.PID, 5)
	if len(workers) != 1 {
		t.Fatalf("expected exactly one worker entry, got %d", len(workers))
	}
	// master may be empty if the parent process is inaccessible in this
	// sandbox, but it must never be nil.
	if master == nil {
		t.Fatal("expected non-nil master map")
	}
}
