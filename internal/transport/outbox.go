package transport

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrOutboxClosed is returned by Push after Close.
	ErrOutboxClosed = errors.New("outbox closed")
	// ErrOutboxFull is returned by Push when the peer has fallen too far behind.
	ErrOutboxFull = errors.New("outbox full")
)

// Outbox is a bounded queue of encoded frames awaiting a connection's writer.
// Push never blocks, so a stalled peer cannot stall whoever is sending to it.
type Outbox struct {
	id     string
	frames chan []byte
	mu     sync.Mutex
	closed bool
}

// NewOutbox creates an Outbox for the connection identified by id.
//
// Postcondition: Returns an Outbox with an open frames channel.
func NewOutbox(id string, size int) *Outbox {
	if size <= 0 {
		size = 64
	}
	return &Outbox{
		id:     id,
		frames: make(chan []byte, size),
	}
}

// Push enqueues frame for the writer.
//
// Precondition: frame must be non-nil.
// Postcondition: frame is enqueued, or an error wrapping ErrOutboxClosed or ErrOutboxFull is returned.
func (o *Outbox) Push(frame []byte) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxClosed)
	}
	select {
	case o.frames <- frame:
		return nil
	default:
		return fmt.Errorf("outbox %s: %w", o.id, ErrOutboxFull)
	}
}

// Frames returns the channel the writer drains. It is closed by Close.
func (o *Outbox) Frames() <-chan []byte {
	return o.frames
}

// Close stops accepting frames. Frames already queued remain readable.
//
// Postcondition: The frames channel is closed. Further Push calls return ErrOutboxClosed.
func (o *Outbox) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.closed {
		o.closed = true
		close(o.frames)
	}
}

// IsClosed reports whether Close has been called.
func (o *Outbox) IsClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}
