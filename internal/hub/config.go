package hub

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Config configures a hub instance. DefaultConfig plus LoadFromEnv is the
// normal construction path.
type Config struct {
	MetricsPullProtocol string
	MetricsPullAddress  string

	ControlPubProtocol string
	ControlPubAddress  string

	ExpositionAddr string
	APIAddr        string

	SupervisorSocketPath string
	RegistryPath         string
	PIDFilePath          string

	LeaderRotateInterval time.Duration
	AggregationInterval  time.Duration
	MetricPrefix         string

	// UseCurveAuth and CertDir are surfaced for configuration parity with
	// the transport this replaces but are not acted on: the websocket
	// transport has no CurveZMQ analogue, and connection security is left
	// to the reverse proxy in front of the hub.
	UseCurveAuth bool
	CertDir      string

	// EnableLogging is likewise surfaced but unused: logging is always on,
	// gated only by the log level rather than an on/off switch.
	EnableLogging bool
}

// DefaultConfig returns the configuration used when no environment
// variables are set.
func DefaultConfig() Config {
	configDir := defaultConfigDir()
	return Config{
		MetricsPullProtocol:  "tcp",
		MetricsPullAddress:   "127.0.0.1:5556",
		ControlPubProtocol:   "tcp",
		ControlPubAddress:    "127.0.0.1:5557",
		ExpositionAddr:       "0.0.0.0:9100",
		APIAddr:              "127.0.0.1:5558",
		SupervisorSocketPath: "/tmp/dashfleet-pm.sock",
		RegistryPath:         filepath.Join(configDir, "running.json"),
		PIDFilePath:          filepath.Join(configDir, "hub.pid"),
		LeaderRotateInterval: 5 * time.Second,
		AggregationInterval:  4 * time.Second,
		MetricPrefix:         "dashfleet",
	}
}

// LoadFromEnv overlays DASHFLEET_* environment variables onto DefaultConfig.
func LoadFromEnv() Config {
	cfg := DefaultConfig()

	cfg.MetricsPullProtocol = envOrDefault("DASHFLEET_METRICS_PULL_PROTOCOL", cfg.MetricsPullProtocol)
	cfg.MetricsPullAddress = envOrDefault("DASHFLEET_METRICS_PULL_ADDRESS", cfg.MetricsPullAddress)
	cfg.ControlPubProtocol = envOrDefault("DASHFLEET_CONTROL_PUB_PROTOCOL", cfg.ControlPubProtocol)
	cfg.ControlPubAddress = envOrDefault("DASHFLEET_CONTROL_PUB_ADDRESS", cfg.ControlPubAddress)
	cfg.ExpositionAddr = envOrDefault("DASHFLEET_EXPOSITION_ADDR", cfg.ExpositionAddr)
	cfg.APIAddr = envOrDefault("DASHFLEET_API_ADDR", cfg.APIAddr)
	cfg.SupervisorSocketPath = envOrDefault("DASHFLEET_SUPERVISOR_SOCKET", cfg.SupervisorSocketPath)
	cfg.RegistryPath = envOrDefault("DASHFLEET_REGISTRY_PATH", cfg.RegistryPath)
	cfg.PIDFilePath = envOrDefault("DASHFLEET_PID_FILE", cfg.PIDFilePath)
	cfg.MetricPrefix = envOrDefault("DASHFLEET_METRIC_PREFIX", cfg.MetricPrefix)
	cfg.CertDir = envOrDefault("DASHFLEET_CERT_DIR", cfg.CertDir)
	cfg.UseCurveAuth = envBool("DASHFLEET_USE_CURVE", cfg.UseCurveAuth)
	cfg.EnableLogging = envBool("DASHFLEET_ENABLE_LOGGING", cfg.EnableLogging)

	if v := os.Getenv("DASHFLEET_LEADER_ROTATE_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.LeaderRotateInterval = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("DASHFLEET_AGGREGATION_SECONDS"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			cfg.AggregationInterval = time.Duration(secs) * time.Second
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

func defaultConfigDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "dashfleet")
	}
	return ".dashfleet"
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
