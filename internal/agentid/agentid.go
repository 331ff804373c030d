// Package agentid derives the stable identifier an agent uses to tag every
// message it sends to the hub.
package agentid

import (
	"net"
	"os"
	"strings"
	"sync"
)

// envOverride lets an operator pin the agent id explicitly, bypassing
// hostname/MAC detection entirely (useful in containers where the MAC
// address is assigned per-container and not stable across restarts).
const envOverride = "DASHFLEET_AGENT_ID"

// preferredInterfaces is the order link-layer interfaces are checked for a
// hardware address when deriving an id from scratch.
var preferredInterfaces = []string{"eth0", "en0", "wlan0"}

var (
	once  sync.Once
	value string
)

// Get returns the process-wide stable agent id, computing it once.
func Get() string {
	once.Do(func() {
		value = compute()
	})
	return value
}

func compute() string {
	if v := os.Getenv(envOverride); v != "" {
		return v
	}

	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "unknown-host"
	}

	if mac := preferredMAC(); mac != "" {
		return hostname + "-" + strings.ReplaceAll(mac, ":", "")
	}
	return hostname
}

func preferredMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	byName := make(map[string]net.Interface, len(ifaces))
	for _, iface := range ifaces {
		byName[iface.Name] = iface
	}

	for _, name := range preferredInterfaces {
		if iface, ok := byName[name]; ok && len(iface.HardwareAddr) > 0 {
			return iface.HardwareAddr.String()
		}
	}

	// Fall back to the first interface with a non-empty hardware address.
	for _, iface := range ifaces {
		if len(iface.HardwareAddr) > 0 {
			return iface.HardwareAddr.String()
		}
	}
	return ""
}
