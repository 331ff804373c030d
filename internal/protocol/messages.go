// Package protocol defines the wire messages exchanged between agents and
// the hub, and between the operator CLI and the hub's process supervisor.
//
// All messages are JSON objects. Messages flowing over the metrics
// websocket channel share a "type" discriminator field so a single receive
// loop can dispatch on it without a second round trip; control packets
// carry no discriminator, as they are the only message on their channel.
package protocol

import "encoding/json"

// Message types used as the "type" discriminator on the metrics channel.
const (
	TypeHTTP          = "http"
	TypeWorkerStatus  = "worker_status"
)

// ProcInfo describes a single OS process as observed by the process
// inspector. Heartbeat is populated on the reporting worker's own entry
// with the last control heartbeat its agent observed, leader or not.
type ProcInfo struct {
	PID             int32    `json:"pid"`
	ParentPID       int32    `json:"parent_pid"`
	Name            string   `json:"name"`
	Cmdline         []string `json:"cmdline,omitempty"`
	CPUPercent      float64  `json:"cpu_percent"`
	MemoryRSSBytes  uint64   `json:"memory_rss_bytes"`
	StartTimeUnix   int64    `json:"start_time_unix"`
	NumThreads      int32    `json:"num_threads"`
	Heartbeat       int64    `json:"heartbeat,omitempty"`
}

// HTTPEvent is emitted once per completed HTTP request by the interceptor.
type HTTPEvent struct {
	Type             string  `json:"type"`
	AgentID          string  `json:"agent_id"`
	Method           string  `json:"method"`
	Path             string  `json:"path"`
	Status           int     `json:"status"`
	DurationSeconds  float64 `json:"duration_seconds"`
	TimeUnix         float64 `json:"time_unix"`
	PID              int32   `json:"pid"`
	ParentPID        int32   `json:"parent_pid"`
	RequestID        string  `json:"request_id,omitempty"`
}

// NewHTTPEvent builds an HTTPEvent with the type discriminator set.
func NewHTTPEvent(agentID, method, path string, status int, duration float64, timeUnix float64, pid, parentPID int32, requestID string) HTTPEvent {
	return HTTPEvent{
		Type:            TypeHTTP,
		AgentID:         agentID,
		Method:          method,
		Path:            path,
		Status:          status,
		DurationSeconds: duration,
		TimeUnix:        timeUnix,
		PID:             pid,
		ParentPID:       parentPID,
		RequestID:       requestID,
	}
}

// WorkerStatus is emitted periodically by the agent's reporter. Master is
// empty ({}) unless the reporting worker currently holds the leader role.
type WorkerStatus struct {
	Type      string              `json:"type"`
	AgentID   string              `json:"agent_id"`
	TimeUnix  float64             `json:"time_unix"`
	Master    map[string]any      `json:"master"`
	Workers   map[string]ProcInfo `json:"workers"`
	Heartbeat int64               `json:"heartbeat,omitempty"`
}

// NewWorkerStatus builds a WorkerStatus with the type discriminator set.
func NewWorkerStatus(agentID string, timeUnix float64, master map[string]any, workers map[string]ProcInfo, heartbeat int64) WorkerStatus {
	if master == nil {
		master = map[string]any{}
	}
	return WorkerStatus{
		Type:      TypeWorkerStatus,
		AgentID:   agentID,
		TimeUnix:  timeUnix,
		Master:    master,
		Workers:   workers,
		Heartbeat: heartbeat,
	}
}

// ControlPacket is broadcast by the hub's control publisher to announce
// which worker PID currently holds the leader role for an agent.
type ControlPacket struct {
	AgentID   string `json:"agent_id"`
	Leader    int32  `json:"leader"`
	Heartbeat int64  `json:"heartbeat"`
}

// Envelope is used to sniff the "type" field of an inbound message before
// fully decoding it into HTTPEvent or WorkerStatus.
type Envelope struct {
	Type string `json:"type"`
}

// DecodeMetricsMessage sniffs raw and decodes it into either an HTTPEvent or
// a WorkerStatus, returning whichever is non-nil. Unknown types return
// ErrUnknownMessageType.
func DecodeMetricsMessage(raw []byte) (event *HTTPEvent, status *WorkerStatus, err error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, nil, err
	}
	switch env.Type {
	case TypeHTTP:
		var e HTTPEvent
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, nil, err
		}
		return &e, nil, nil
	case TypeWorkerStatus:
		var s WorkerStatus
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, nil, err
		}
		return nil, &s, nil
	default:
		return nil, nil, ErrUnknownMessageType
	}
}

// Supervisor request/reply shapes (component O / Q), framed one JSON value
// per line over the Unix domain socket.

// SupervisorRequest is a single command sent to the process supervisor.
type SupervisorRequest struct {
	Cmd  string          `json:"cmd"`
	Args json.RawMessage `json:"args,omitempty"`
}

// StartArgs is the Args payload for a "start" request.
type StartArgs struct {
	Name    string   `json:"name"`
	AppPath string   `json:"app_path"`
	Argv    []string `json:"argv,omitempty"`
}

// NamedArgs is the Args payload for "stop", "restart", and "delete" requests.
type NamedArgs struct {
	Name string `json:"name"`
}

// SupervisorReply is the uniform reply shape for every supervisor command.
type SupervisorReply struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}
