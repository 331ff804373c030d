package protocol

import (
	"encoding/json"
	"testing"
)

func TestDecodeMetricsMessageHTTP(t *testing.T) {
	evt := NewHTTPEvent("host-abc", "GET", "/widgets", 200, 0.012, 1700000000.5, 42, 1, "req-1")
	raw, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	gotEvent, gotStatus, err := DecodeMetricsMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotStatus != nil {
		t.Fatalf("expected nil status, got %+v", gotStatus)
	}
	if gotEvent == nil || gotEvent.AgentID != "host-abc" || gotEvent.Path != "/widgets" {
		t.Fatalf("unexpected event: %+v", gotEvent)
	}
}

func TestDecodeMetricsMessageWorkerStatus(t *testing.T) {
	ws := NewWorkerStatus("host-abc", 1700000000, nil, map[string]ProcInfo{
		"42": {PID: 42, Name: "worker"},
	}, 7)
	raw, err := json.Marshal(ws)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	gotEvent, gotStatus, err := DecodeMetricsMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if gotEvent != nil {
		t.Fatalf("expected nil event, got %+v", gotEvent)
	}
	if gotStatus == nil || gotStatus.Heartbeat != 7 || len(gotStatus.Workers) != 1 {
		t.Fatalf("unexpected status: %+v", gotStatus)
	}
}

func TestDecodeMetricsMessageUnknownType(t *testing.T) {
	_, _, err := DecodeMetricsMessage([]byte(`{"type":"bogus"}`))
	if err != ErrUnknownMessageType {
		t.Fatalf("expected ErrUnknownMessageType, got %v", err)
	}
}

func TestDecodeMetricsMessageMalformed(t *testing.T) {
	_, _, err := DecodeMetricsMessage([]byte(`not json`))
	if err == nil {
		t.Fatal("expected decode error for malformed JSON")
	}
}
