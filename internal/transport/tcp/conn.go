// Package tcp carries protocol messages as newline-delimited JSON over TCP.
package tcp

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/protocol"
	"github.com/cory-johannsen/harmony/internal/transport"
)

// defaultFlushWait bounds Close when no write timeout is configured.
const defaultFlushWait = 5 * time.Second

// Conn wraps a TCP connection with line framing on reads and an asynchronous,
// bounded writer on sends.
type Conn struct {
	raw    net.Conn
	reader *bufio.Reader
	outbox *transport.Outbox
	logger *zap.Logger

	maxLine      int
	writeTimeout time.Duration

	written   chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps raw and starts its writer goroutine.
//
// Precondition: raw must be a valid, open network connection; logger must be non-nil.
// Postcondition: Returns a Conn ready for reading and sending.
func NewConn(raw net.Conn, maxLine int, writeTimeout time.Duration, outboxSize int, logger *zap.Logger) *Conn {
	addr := raw.RemoteAddr().String()
	c := &Conn{
		raw:          raw,
		reader:       bufio.NewReaderSize(raw, 4096),
		outbox:       transport.NewOutbox(addr, outboxSize),
		logger:       logger.With(zap.String("remote_addr", addr)),
		maxLine:      maxLine,
		writeTimeout: writeTimeout,
		written:      make(chan struct{}),
	}
	go c.writeLoop()
	return c
}

// ReadLine reads one '\n'-terminated line, stripping the terminator and a
// trailing '\r'. A partial line cut off by EOF is discarded.
//
// Postcondition: Returns the next complete line; transport.ErrLineTooLong after
// consuming an oversized line; or the read error (including io.EOF).
func (c *Conn) ReadLine() (string, error) {
	var (
		line    []byte
		tooLong bool
	)
	for {
		frag, err := c.reader.ReadSlice('\n')
		if !tooLong {
			if c.maxLine > 0 && len(line)+len(frag) > c.maxLine+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, frag...)
			}
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		return "", err
	}
	if tooLong {
		return "", transport.ErrLineTooLong
	}
	line = bytes.TrimSuffix(line[:len(line)-1], []byte{'\r'})
	return string(line), nil
}

// Send encodes m and queues it with its '\n' terminator. A peer whose queue
// is full is disconnected.
//
// Postcondition: m is queued, or the connection is closed and a non-nil error returned.
func (c *Conn) Send(m protocol.Message) error {
	data, err := protocol.Encode(m)
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if err := c.outbox.Push(data); err != nil {
		if errors.Is(err, transport.ErrOutboxFull) {
			c.logger.Warn("peer too slow, disconnecting", zap.String("type", string(m.MessageType())))
			c.abort()
		}
		return fmt.Errorf("sending %s: %w", m.MessageType(), err)
	}
	return nil
}

// writeLoop writes queued frames in order until the outbox closes.
func (c *Conn) writeLoop() {
	defer close(c.written)
	for frame := range c.outbox.Frames() {
		if c.writeTimeout > 0 {
			_ = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout))
		}
		if _, err := c.raw.Write(frame); err != nil {
			c.logger.Debug("write failed", zap.Error(err))
			c.outbox.Close()
			_ = c.raw.Close()
			for range c.outbox.Frames() {
			}
			return
		}
	}
}

// abort drops queued frames and closes the socket without flushing.
func (c *Conn) abort() {
	c.closeOnce.Do(func() {
		c.outbox.Close()
		c.closeErr = c.raw.Close()
	})
}

// Close stops accepting sends, flushes what is queued, then closes the socket.
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
		case <-time.After(wait):
		}
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}

// RemoteAddr returns the remote network address of the client.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}
