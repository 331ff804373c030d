package agent

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	publisherBackoffInitial = 1 * time.Second
	publisherBackoffMax     = 60 * time.Second
	publisherBackoffFactor  = 2.0
	publisherJitterFraction = 0.2
)

// Publisher is the agent's outbound, fire-and-forget metrics channel. It
// behaves like a ZeroMQ PUSH socket: Send never blocks on the network and
// never returns a transport error to the caller — a send that cannot reach
// the hub is logged and dropped, exactly as the distilled design requires,
// because losing one sample is cheaper than stalling the request path or
// the reporter tick that produced it.
type Publisher struct {
	url    string
	logger *zap.Logger

	mu   sync.Mutex
	conn *websocket.Conn

	connectedOnce chan struct{}
	closeOnce     sync.Once
	stop          chan struct{}
}

// NewPublisher creates a Publisher targeting url (a ws:// URL) and starts
// its background reconnect loop. Call Close to stop it.
func NewPublisher(ctx context.Context, url string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Publisher{
		url:           url,
		logger:        logger.Named("publisher"),
		connectedOnce: make(chan struct{}),
		stop:          make(chan struct{}),
	}
	go p.connectLoop(ctx)
	return p
}

// Send JSON-encodes payload and writes it as a single text frame. Errors
// are logged and swallowed; the caller never observes a transport failure.
func (p *Publisher) Send(payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to marshal outbound payload", zap.Error(err))
		return
	}

	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		p.logger.Debug("dropping metric, not connected")
		return
	}
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		p.logger.Warn("failed to send metric, will reconnect", zap.Error(err))
		p.dropConn(conn)
	}
}

// Close stops the reconnect loop and releases the current connection.
func (p *Publisher) Close() {
	p.closeOnce.Do(func() { close(p.stop) })
	p.mu.Lock()
	conn := p.conn
	p.conn = nil
	p.mu.Unlock()
	if conn != nil {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	}
}

func (p *Publisher) connectLoop(ctx context.Context) {
	backoff := publisherBackoffInitial
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, p.url, nil)
		if err != nil {
			p.logger.Warn("metrics publisher dial failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			if !sleepWithJitter(ctx, p.stop, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		p.logger.Info("metrics publisher connected")
		backoff = publisherBackoffInitial
		p.mu.Lock()
		p.conn = conn
		p.mu.Unlock()

		// Block until this connection is dropped (by us, or by the peer),
		// then loop around to reconnect.
		p.waitForDrop(ctx, conn)
	}
}

// waitForDrop reads (and discards) frames on conn until it errors out or
// the agent is shutting down. The hub never sends replies on this channel,
// but a read is still required to notice a closed connection promptly.
func (p *Publisher) waitForDrop(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				p.dropConn(conn)
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
	case <-p.stop:
	case <-done:
	}
}

func (p *Publisher) dropConn(conn *websocket.Conn) {
	p.mu.Lock()
	if p.conn == conn {
		p.conn = nil
	}
	p.mu.Unlock()
	conn.Close()
}

func nextBackoff(cur time.Duration) time.Duration {
	next := time.Duration(float64(cur) * publisherBackoffFactor)
	if next > publisherBackoffMax {
		next = publisherBackoffMax
	}
	return next
}

// sleepWithJitter waits for d plus up to jitterFraction*d of random jitter,
// returning false if ctx or stop fires first.
func sleepWithJitter(ctx context.Context, stop <-chan struct{}, d time.Duration) bool {
	jitter := time.Duration(rand.Int63n(int64(float64(d) * publisherJitterFraction) + 1))
	timer := time.NewTimer(d + jitter)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-stop:
		return false
	case <-timer.C:
		return true
	}
}
