package agent

import (
	"context"
	"encoding/json"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dashfleet-io/dashfleet/internal/protocol"
)

// ControlHandler is invoked for every control packet received over the
// subscriber channel.
type ControlHandler func(protocol.ControlPacket)

// Subscriber is the agent's inbound control channel. It behaves like a
// ZeroMQ SUB socket subscribed to every topic: it never writes application
// frames, only reads whatever the hub broadcasts, and reconnects with the
// same backoff policy as the Publisher.
type Subscriber struct {
	url     string
	handler ControlHandler
	logger  *zap.Logger

	stop chan struct{}
}

// NewSubscriber creates a Subscriber without connecting. Call Start to
// launch its background connect loop and begin invoking handler; Stop to
// tear down.
func NewSubscriber(url string, handler ControlHandler, logger *zap.Logger) *Subscriber {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Subscriber{
		url:     url,
		handler: handler,
		logger:  logger.Named("subscriber"),
		stop:    make(chan struct{}),
	}
}

// Start begins the reconnect/read loop in a background goroutine. Call it
// once: every call launches another loop. The given context governs the
// loop's lifetime together with Stop.
func (s *Subscriber) Start(ctx context.Context) {
	go s.connectLoop(ctx)
}

// Stop ends the subscriber's background loop. It returns without waiting
// for the loop to exit; a read already blocked on the connection ends
// only when that read returns.
func (s *Subscriber) Stop() {
	select {
	case <-s.stop:
	default:
		close(s.stop)
	}
}

func (s *Subscriber) connectLoop(ctx context.Context) {
	backoff := publisherBackoffInitial
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		default:
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, s.url, nil)
		if err != nil {
			s.logger.Warn("control subscriber dial failed, retrying", zap.Error(err), zap.Duration("backoff", backoff))
			if !sleepWithJitter(ctx, s.stop, backoff) {
				return
			}
			backoff = nextBackoff(backoff)
			continue
		}

		s.logger.Info("control subscriber connected")
		backoff = publisherBackoffInitial
		s.readLoop(ctx, conn)
		conn.Close()
	}
}

func (s *Subscriber) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			s.logger.Warn("control subscriber read failed, reconnecting", zap.Error(err))
			return
		}

		var packet protocol.ControlPacket
		if err := json.Unmarshal(data, &packet); err != nil {
			s.logger.Debug("dropping malformed control packet", zap.Error(err))
			continue
		}
		if s.handler != nil {
			s.handler(packet)
		}
	}
}
