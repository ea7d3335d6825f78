// Package ws carries protocol messages over WebSocket, one JSON object per
// text frame, for clients that cannot open raw TCP sockets.
package ws

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/protocol"
	"github.com/cory-johannsen/harmony/internal/transport"
)

const defaultFlushWait = 5 * time.Second

// Conn adapts a WebSocket connection to transport.Conn.
type Conn struct {
	ws     *websocket.Conn
	outbox *transport.Outbox
	logger *zap.Logger

	writeTimeout time.Duration

	written   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps ws and starts its writer goroutine.
//
// Precondition: ws must be an upgraded, open connection; logger must be non-nil.
// Postcondition: Returns a Conn ready for reading and sending.
func NewConn(ws *websocket.Conn, maxLine int, writeTimeout time.Duration, outboxSize int, logger *zap.Logger) *Conn {
	addr := ws.RemoteAddr().String()
	if maxLine > 0 {
		ws.SetReadLimit(int64(maxLine))
	}
	c := &Conn{
		ws:           ws,
		outbox:       transport.NewOutbox(addr, outboxSize),
		logger:       logger.With(zap.String("remote_addr", addr)),
		writeTimeout: writeTimeout,
		written:      make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// ReadLine returns the payload of the next data frame. A normal close from the
// peer is reported as io.EOF.
func (c *Conn) ReadLine() (string, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			return "", io.EOF
		}
		if errors.Is(err, websocket.ErrReadLimit) {
			return "", fmt.Errorf("%w: %v", transport.ErrLineTooLong, err)
		}
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// Send encodes m and queues it as one text frame. A peer whose queue is full
// is disconnected.
func (c *Conn) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	if err := c.outbox.Push(data); err != nil {
		if errors.Is(err, transport.ErrOutboxFull) {
			c.logger.Warn("peer too slow, disconnecting", zap.String("type", string(m.MessageType())))
			c.abort()
		}
		return fmt.Errorf("sending %s: %w", m.MessageType(), err)
	}
	return nil
}

func (c *Conn) writeLoop() {
	defer close(c.written)
	for frame := range c.outbox.Frames() {
		if c.writeTimeout > 0 {
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
			c.logger.Debug("write failed", zap.Error(err))
			c.outbox.Close()
			_ = c.ws.Close()
			for range c.outbox.Frames() {
			}
			return
		}
	}
}

func (c *Conn) abort() {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		c.closeErr = c.ws.Close()
	})
}

// Close flushes queued frames, sends a close frame, and closes the socket.
//
// Postcondition: The connection is closed and no longer usable.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		wait := c.writeTimeout
		if wait <= 0 {
			wait = defaultFlushWait
		}
		select {
		case <-c.written:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
		case <-time.After(wait):
		}
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.ws.RemoteAddr()
}
