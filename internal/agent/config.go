package agent

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config configures a single agent instance. DefaultConfig plus LoadFromEnv
// is the normal construction path; tests may build a Config by hand.
type Config struct {
	AgentID string

	MetricsPushProtocol string
	MetricsPushAddress  string

	ControlSubProtocol string
	ControlSubAddress  string

	// ReportInterval is how often the periodic reporter ships a
	// WorkerStatus message.
	ReportInterval time.Duration

	// LeaderTTL is carried in the configuration but not consulted: the
	// reporter treats the most recently announced leader PID as current
	// however long ago it was announced.
	LeaderTTL time.Duration

	// InjectRequestID controls whether the HTTP interceptor generates an
	// X-Request-Id header when the inbound request lacks one.
	InjectRequestID bool

	// PathNormalizer, when set, converts a raw request path into the
	// lower-cardinality label used in HttpEvent.Path (e.g. a router's
	// route pattern instead of the literal URL, to avoid a metrics
	// explosion from path parameters). It is consulted only when no chi
	// route pattern is available; when it is nil as well, the path is
	// reported as the literal "?".
	PathNormalizer func(method, path string) string

	// UseCurveAuth and CertDir are surfaced for configuration parity with
	// the transport this replaces but are not acted on: the websocket
	// transport has no CurveZMQ analogue, and connection security is left
	// to the reverse proxy in front of it.
	UseCurveAuth bool
	CertDir      string

	// EnableLogging is likewise surfaced but unused: logging is always on,
	// gated only by the logger's level rather than an on/off switch.
	EnableLogging bool
}

// DefaultConfig returns the configuration used when no environment
// variables are set.
func DefaultConfig() Config {
	return Config{
		MetricsPushProtocol: "tcp",
		MetricsPushAddress:  "127.0.0.1:5556",
		ControlSubProtocol:  "tcp",
		ControlSubAddress:   "127.0.0.1:5557",
		ReportInterval:      4 * time.Second,
		LeaderTTL:           12 * time.Second,
		InjectRequestID:     true,
	}
}

// LoadFromEnv overlays DASHFLEET_* environment variables onto DefaultConfig.
func LoadFromEnv() Config {
	cfg := DefaultConfig()

	cfg.MetricsPushProtocol = envOrDefault("DASHFLEET_METRICS_PUSH_PROTOCOL", cfg.MetricsPushProtocol)
	cfg.MetricsPushAddress = envOrDefault("DASHFLEET_METRICS_PUSH_ADDRESS", cfg.MetricsPushAddress)
	cfg.ControlSubProtocol = envOrDefault("DASHFLEET_CONTROL_SUB_PROTOCOL", cfg.ControlSubProtocol)
	cfg.ControlSubAddress = envOrDefault("DASHFLEET_CONTROL_SUB_ADDRESS", cfg.ControlSubAddress)
	cfg.AgentID = envOrDefault("DASHFLEET_AGENT_ID", cfg.AgentID)
	cfg.CertDir = envOrDefault("DASHFLEET_CERT_DIR", cfg.CertDir)
	cfg.UseCurveAuth = envBool("DASHFLEET_USE_CURVE", cfg.UseCurveAuth)
	cfg.EnableLogging = envBool("DASHFLEET_ENABLE_LOGGING", cfg.EnableLogging)

	if v := os.Getenv("DASHFLEET_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.ReportInterval = time.Duration(secs) * time.Second
		}
	}

	return cfg
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return strings.EqualFold(v, "true") || v == "1"
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
