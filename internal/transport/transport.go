// Package transport defines the connection contract shared by the TCP and
// WebSocket front doors and the bounded outbox both use for writes.
package transport

import (
	"context"
	"errors"
	"net"

	"github.com/cory-johannsen/harmony/internal/protocol"
)

// ErrLineTooLong is returned by ReadLine when an inbound line exceeds the
// configured maximum. The offending line has been consumed.
var ErrLineTooLong = errors.New("line exceeds maximum length")

// Conn is one client connection carrying protocol messages.
type Conn interface {
	// ReadLine blocks for the next complete inbound line, without its terminator.
	ReadLine() (string, error)
	// Send queues m for delivery. It never blocks on the peer.
	Send(m protocol.Message) error
	// Close flushes queued messages and releases the connection.
	Close() error
	RemoteAddr() net.Addr
}

// SessionHandler processes a connected client session.
// Implementations run the command loop for a single client.
type SessionHandler interface {
	HandleSession(ctx context.Context, conn Conn) error
}
