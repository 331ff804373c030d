// Package transport resolves the protocol/address configuration pairs used
// throughout dashfleet into concrete dial/listen targets, and sanitizes
// stale Unix socket files before binding — the realization of the socket
// transport the rest of the ZeroMQ-flavored design assumed.
package transport

import (
	"fmt"
	"net"
	"os"
)

// Protocol names recognized in *_PROTOCOL environment variables.
const (
	ProtoTCP  = "tcp"
	ProtoUnix = "unix"
	ProtoIPC  = "ipc" // alias for unix, kept for operators migrating config
)

// Endpoint is a resolved protocol/address pair ready to dial or listen on.
type Endpoint struct {
	Protocol string
	Address  string
}

// NewEndpoint normalizes protocol (treating "ipc" as "unix") and returns an
// Endpoint, or an error if protocol is not recognized.
func NewEndpoint(protocol, address string) (Endpoint, error) {
	switch protocol {
	case ProtoTCP:
		return Endpoint{Protocol: ProtoTCP, Address: address}, nil
	case ProtoUnix, ProtoIPC:
		return Endpoint{Protocol: ProtoUnix, Address: address}, nil
	default:
		return Endpoint{}, fmt.Errorf("transport: unknown protocol %q", protocol)
	}
}

// WebSocketURL renders the endpoint as a ws:// URL suitable for a
// gorilla/websocket client dial, for tcp endpoints only.
func (e Endpoint) WebSocketURL(path string) string {
	return fmt.Sprintf("ws://%s%s", e.Address, path)
}

// ListenAddr returns the address suitable for net.Listen / http.Server.Addr.
func (e Endpoint) ListenAddr() string {
	return e.Address
}

// SanitizeUnixSocket prepares path for a fresh net.Listen("unix", path)
// call: it removes a stale socket file left behind by a crashed previous
// run, but refuses to touch a path that is not a socket (a regular file or
// directory there most likely means a misconfigured path, not a stale
// listener, and silently deleting user data would be far worse than
// failing loudly).
func SanitizeUnixSocket(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("transport: stat %s: %w", path, err)
	}

	if info.Mode()&os.ModeSocket == 0 {
		return fmt.Errorf("transport: refusing to remove non-socket file at %s", path)
	}

	if isListening(path) {
		return fmt.Errorf("transport: a listener is already active on %s", path)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("transport: removing stale socket %s: %w", path, err)
	}
	return nil
}

// isListening reports whether path currently has an active listener by
// attempting (and immediately abandoning) a connection to it.
func isListening(path string) bool {
	conn, err := net.Dial("unix", path)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
