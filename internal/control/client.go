// Package control implements the operator-facing client for the hub's
// process supervisor: dial its Unix socket, send one request, read one
// reply.
package control

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

// DefaultTimeout bounds both the dial and the round trip of a single
// request, unless overridden by DASHFLEET_CONTROL_TIMEOUT_MS.
const DefaultTimeout = 5 * time.Second

// Client sends commands to a supervisor listening on a Unix domain socket.
type Client struct {
	SocketPath string
	Timeout    time.Duration
}

// New builds a Client with DefaultTimeout, or the duration named by
// DASHFLEET_CONTROL_TIMEOUT_MS if set.
func New(socketPath string) *Client {
	timeout := DefaultTimeout
	if v := os.Getenv("DASHFLEET_CONTROL_TIMEOUT_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			timeout = time.Duration(ms) * time.Millisecond
		}
	}
	return &Client{SocketPath: socketPath, Timeout: timeout}
}

// Do sends req and returns the supervisor's reply. Dial failures, timeouts,
// and malformed replies are reported as a SupervisorReply with Status
// "error" rather than a Go error, so callers have one shape to render
// regardless of whether the failure happened locally or on the wire.
func (c *Client) Do(req protocol.SupervisorRequest) protocol.SupervisorReply {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	conn, err := net.DialTimeout("unix", c.SocketPath, timeout)
	if err != nil {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("connecting to hub supervisor: %v", err)}
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	_ = conn.SetDeadline(deadline)

	data, err := json.Marshal(req)
	if err != nil {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("encoding request: %v", err)}
	}
	data = append(data, '\n')

	if _, err := conn.Write(data); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("writing request: %v", err)}
	}

	line, err := bufio.NewReader(conn).ReadBytes('\n')
	if err != nil {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("reading reply: %v", err)}
	}

	var reply protocol.SupervisorReply
	if err := json.Unmarshal(line, &reply); err != nil {
		return protocol.SupervisorReply{Status: "error", Message: fmt.Sprintf("decoding reply: %v", err)}
	}
	return reply
}

// Start asks the supervisor to launch a new application process.
func (c *Client) Start(name, appPath string, argv []string) protocol.SupervisorReply {
	args, _ := json.Marshal(protocol.StartArgs{Name: name, AppPath: appPath, Argv: argv})
	return c.Do(protocol.SupervisorRequest{Cmd: "start", Args: args})
}

// Stop asks the supervisor to terminate a tracked process.
func (c *Client) Stop(name string) protocol.SupervisorReply {
	args, _ := json.Marshal(protocol.NamedArgs{Name: name})
	return c.Do(protocol.SupervisorRequest{Cmd: "stop", Args: args})
}

// Restart asks the supervisor to stop and relaunch a tracked process.
func (c *Client) Restart(name string) protocol.SupervisorReply {
	args, _ := json.Marshal(protocol.NamedArgs{Name: name})
	return c.Do(protocol.SupervisorRequest{Cmd: "restart", Args: args})
}

// List asks the supervisor for every tracked process and its registry entry.
func (c *Client) List() protocol.SupervisorReply {
	return c.Do(protocol.SupervisorRequest{Cmd: "list"})
}

// Delete asks the supervisor to stop (if running) and forget a tracked
// process.
func (c *Client) Delete(name string) protocol.SupervisorReply {
	args, _ := json.Marshal(protocol.NamedArgs{Name: name})
	return c.Do(protocol.SupervisorRequest{Cmd: "delete", Args: args})
}
