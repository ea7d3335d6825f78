package testutil

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"
)

// LineClient is a newline-delimited JSON client for integration tests.
type LineClient struct {
	conn   net.Conn
	reader *bufio.Reader
	t      *testing.T
}

// NewLineClient dials addr and returns a test client closed at test cleanup.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected LineClient or fails the test.
func NewLineClient(t *testing.T, addr string) *LineClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}
	t.Cleanup(func() {
		conn.Close()
	})

	return &LineClient{
		conn:   conn,
		reader: bufio.NewReader(conn),
		t:      t,
	}
}

// SendRaw writes line followed by '\n'.
func (c *LineClient) SendRaw(line string) {
	c.t.Helper()
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		c.t.Fatalf("sending %q: %v", line, err)
	}
}

// Send encodes msg as one JSON line with its type tag.
//
// Precondition: fields must not contain the key "type".
func (c *LineClient) Send(msgType string, fields map[string]any) {
	c.t.Helper()
	obj := map[string]any{"type": msgType}
	for k, v := range fields {
		obj[k] = v
	}
	data, err := json.Marshal(obj)
	if err != nil {
		c.t.Fatalf("encoding %s: %v", msgType, err)
	}
	c.SendRaw(string(data))
}

// Next reads the next message, failing the test after timeout.
//
// Postcondition: Returns the decoded object; its "type" key holds the message type.
func (c *LineClient) Next(timeout time.Duration) map[string]any {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	line, err := c.reader.ReadString('\n')
	if err != nil {
		c.t.Fatalf("reading message: got %q, error: %v", line, err)
	}
	var msg map[string]any
	if err := json.Unmarshal([]byte(line), &msg); err != nil {
		c.t.Fatalf("decoding %q: %v", line, err)
	}
	return msg
}

// Expect reads messages until one of msgType arrives and returns it. Messages
// of other types read on the way are discarded.
func (c *LineClient) Expect(msgType string, timeout time.Duration) map[string]any {
	c.t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			c.t.Fatalf("timed out waiting for %s", msgType)
		}
		msg := c.Next(remaining)
		if msg["type"] == msgType {
			return msg
		}
	}
}

// ExpectNone asserts that no message of msgType arrives within wait.
func (c *LineClient) ExpectNone(msgType string, wait time.Duration) {
	c.t.Helper()
	deadline := time.Now().Add(wait)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(remaining))
		line, err := c.reader.ReadString('\n')
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				return
			}
			c.t.Fatalf("reading message: %v", err)
		}
		var msg map[string]any
		if err := json.Unmarshal([]byte(line), &msg); err != nil {
			c.t.Fatalf("decoding %q: %v", line, err)
		}
		if msg["type"] == msgType {
			c.t.Fatalf("unexpected %s: %s", msgType, line)
		}
	}
}

// Close closes the underlying connection.
func (c *LineClient) Close() {
	c.conn.Close()
}
