package hub

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

const (
	collectorReadLimit = 1 << 20 // 1 MiB, generous for a worker-status payload with a long cmdline
	collectorPongWait  = 60 * time.Second
)

var collectorUpgrader = websocket.Upgrader{
	// Origin validation is left to the reverse proxy in front of the hub,
	// matching the teacher's websocket upgrader.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Collector is the hub's metrics ingestion endpoint: a receive-only
// websocket server that accepts one connection per agent and dispatches
// every decoded message into State. It never writes application frames —
// the realization of a ZeroMQ PULL socket over a connection-oriented
// transport.
type Collector struct {
	state  *State
	logger *zap.Logger
}

// NewCollector creates a Collector writing into state.
func NewCollector(state *State, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Collector{state: state, logger: logger.Named("collector")}
}

// ServeHTTP upgrades the request to a websocket and reads messages from it
// until the connection closes, logging and discarding anything malformed.
func (c *Collector) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := collectorUpgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.Warn("metrics collector upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	conn.SetReadLimit(collectorReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(collectorPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(collectorPongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.logger.Debug("metrics collector connection closed", zap.Error(err))
			return
		}
		c.handle(data)
	}
}

func (c *Collector) handle(data []byte) {
	event, status, err := protocol.DecodeMetricsMessage(data)
	switch {
	case err != nil:
		c.logger.Warn("dropping malformed or unknown metrics message", zap.Error(err))
	case event != nil:
		c.state.UpdateHTTP(*event)
	case status != nil:
		c.state.UpdateServer(*status)
	}
}
