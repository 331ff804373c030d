package agentid

import (
	"os"
	"strings"
	"testing"
)

func TestComputeRespectsEnvOverride(t *testing.T) {
	t.Setenv(envOverride, "pinned-agent-id")
	if got := compute(); got != "pinned-agent-id" {
		t.Fatalf("expected env override to win, got %q", got)
	}
}

func TestComputeFallsBackToHostname(t *testing.T) {
	t.Setenv(envOverride, "")
	got := compute()
	if got == "" {
		t.Fatal("expected a non-empty agent id")
	}
	hostname, _ := os.Hostname()
	if hostname != "" && !strings.HasPrefix(got, hostname) {
		t.Fatalf("expected id to be derived from hostname %q, got %q", hostname, got)
	}
}

func TestGetIsMemoized(t *testing.T) {
	a := Get()
	b := Get()
	if a != b {
		t.Fatalf("expected Get to be stable across calls, got %q and %q", a, b)
	}
}
