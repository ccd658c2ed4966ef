package reload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/conneroisu/devreload/internal/logging"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Send pings to peer with this period.
	pingPeriod = 30 * time.Second

	// Maximum message size allowed from peer.
	maxMessageSize = 512

	sendBuffer = 16
)

var (
	ErrBufferFull = errors.New("send buffer full")
	ErrClosed     = errors.New("client closed")
)

// Conn is a Client backed by a WebSocket connection.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	logger logging.Logger
}

// NewConn wraps an accepted WebSocket connection.
func NewConn(ws *websocket.Conn, logger logging.Logger) *Conn {
	if logger == nil {
		logger = logging.NewNop()
	}
	ws.SetReadLimit(maxMessageSize)

	id := uuid.NewString()
	return &Conn{
		id:     id,
		ws:     ws,
		send:   make(chan []byte, sendBuffer),
		done:   make(chan struct{}),
		logger: logger.WithComponent("reload").With("client", id),
	}
}

// ID implements Client.
func (c *Conn) ID() string { return c.id }

// Deliver implements Client.
func (c *Conn) Deliver(msg []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- msg:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close implements Client. The writer closes the socket.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

// Done is closed once the client is closed.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// WritePump writes queued messages and pings until the client is closed or
// a write fails.
func (c *Conn) WritePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.Close()
			_ = c.ws.Close(websocket.StatusGoingAway, "server shutting down")
			return

		case <-c.done:
			_ = c.ws.Close(websocket.StatusNormalClosure, "")
			return

		case msg := <-c.send:
			writeCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.ws.Write(writeCtx, websocket.MessageText, msg)
			cancel()
			if err != nil {
				c.logger.Warn(ctx, err, "WebSocket write failed")
				c.Close()
				_ = c.ws.CloseNow()
				return
			}

		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, writeWait)
			err := c.ws.Ping(pingCtx)
			cancel()
			if err != nil {
				c.Close()
				_ = c.ws.CloseNow()
				return
			}
		}
	}
}

// ReadPump reads until the connection closes. Inbound messages carry no
// meaning and are only logged.
func (c *Conn) ReadPump(ctx context.Context) error {
	for {
		typ, data, err := c.ws.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				return nil
			}
			return err
		}
		c.logger.Debug(ctx, "Client message", "type", typ.String(), "bytes", len(data))
	}
}
