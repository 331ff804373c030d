package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

const (
	controlSendBuffer = 32
	controlWriteWait  = 10 * time.Second
	controlPingPeriod = 30 * time.Second
)

// ControlPublisher is a broadcast-only websocket hub: every connected agent
// receives every control packet. There is no per-agent topic because there
// is exactly one logical broadcast stream, matching a ZeroMQ PUB socket
// with every subscriber subscribed to the empty topic. Modeled directly on
// the teacher's websocket.Hub, reduced to a single implicit topic.
type ControlPublisher struct {
	logger *zap.Logger

	register   chan *controlClient
	unregister chan *controlClient
	broadcast  chan protocol.ControlPacket

	clients map[*controlClient]struct{}
}

type controlClient struct {
	conn *websocket.Conn
	send chan []byte
}

// NewControlPublisher creates a ControlPublisher. Call Run to start its
// event loop before serving connections.
func NewControlPublisher(logger *zap.Logger) *ControlPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ControlPublisher{
		logger:     logger.Named("controlpub"),
		register:   make(chan *controlClient),
		unregister: make(chan *controlClient),
		broadcast:  make(chan protocol.ControlPacket, 64),
		clients:    make(map[*controlClient]struct{}),
	}
}

// Run is the single-writer event loop owning the client set. It must run
// in its own goroutine for the lifetime of the hub.
func (p *ControlPublisher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			for c := range p.clients {
				close(c.send)
			}
			return
		case c := <-p.register:
			p.clients[c] = struct{}{}
		case c := <-p.unregister:
			if _, ok := p.clients[c]; ok {
				delete(p.clients, c)
				close(c.send)
			}
		case packet := <-p.broadcast:
			data, err := json.Marshal(packet)
			if err != nil {
				p.logger.Warn("failed to marshal control packet", zap.Error(err))
				continue
			}
			for c := range p.clients {
				select {
				case c.send <- data:
				default:
					// Slow subscriber: disconnect it rather than block the
					// event loop. The agent redials, and the next election
					// tick after it reconnects carries a fresher heartbeat.
					delete(p.clients, c)
					close(c.send)
				}
			}
		}
	}
}

// Publish queues packet for broadcast to every connected agent.
func (p *ControlPublisher) Publish(packet protocol.ControlPacket) {
	p.broadcast <- packet
}

// ServeHTTP upgrades the request and registers the connection as a
// broadcast recipient until it disconnects.
func (p *ControlPublisher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := collectorUpgrader.Upgrade(w, r, nil)
	if err != nil {
		p.logger.Warn("control publisher upgrade failed", zap.Error(err))
		return
	}

	c := &controlClient{conn: conn, send: make(chan []byte, controlSendBuffer)}
	p.register <- c

	go p.writePump(c)
	p.readPump(c)
}

// readPump discards inbound frames (agents never send on this channel) and
// exists solely to notice the connection closing.
func (p *ControlPublisher) readPump(c *controlClient) {
	defer func() {
		p.unregister <- c
		c.conn.Close()
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (p *ControlPublisher) writePump(c *controlClient) {
	ticker := time.NewTicker(controlPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(controlWriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(controlWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
