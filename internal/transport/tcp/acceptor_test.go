package tcp

import (
	"bufio"
	"context"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/cory-johannsen/harmony/internal/config"
	"github.com/cory-johannsen/harmony/internal/protocol"
	"github.com/cory-johannsen/harmony/internal/transport"
)

// echoHandler replies to every line with a save_success carrying the line.
type echoHandler struct {
	sessionCount atomic.Int32
}

func (h *echoHandler) HandleSession(_ context.Context, conn transport.Conn) error {
	h.sessionCount.Add(1)
	for {
		line, err := conn.ReadLine()
		if err != nil {
			return err
		}
		if line == "quit" {
			_ = conn.Send(protocol.GameEnded{Message: "bye", Reason: "quit"})
			return nil
		}
		_ = conn.Send(protocol.SaveSuccess{Message: line})
	}
}

func testListenerConfig() config.ListenerConfig {
	return config.ListenerConfig{
		Host:         "127.0.0.1",
		Port:         0,
		WriteTimeout: 5 * time.Second,
		MaxLineBytes: 4096,
		OutboxSize:   16,
	}
}

func startAcceptor(t *testing.T, handler transport.SessionHandler) (*Acceptor, chan error) {
	t.Helper()
	acc := NewAcceptor(testListenerConfig(), handler, zaptest.NewLogger(t))

	errCh := make(chan error, 1)
	go func() {
		errCh <- acc.ListenAndServe()
	}()

	deadline := time.After(2 * time.Second)
	for {
		if acc.IsRunning() && acc.Addr() != "" {
			return acc, errCh
		}
		select {
		case <-deadline:
			t.Fatal("acceptor did not start in time")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestAcceptorStartAndStop(t *testing.T) {
	handler := &echoHandler{}
	acc, errCh := startAcceptor(t, handler)

	conn, err := net.DialTimeout("tcp", acc.Addr(), 2*time.Second)
	require.NoError(t, err)
	reader := bufio.NewReader(conn)

	_, err = conn.Write([]byte("hello\n"))
	require.NoError(t, err)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"message":"hello"`)

	_, _ = conn.Write([]byte("quit\n"))
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"type":"game_ended"`)

	conn.Close()
	acc.Stop()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("acceptor did not stop in time")
	}

	assert.Equal(t, int32(1), handler.sessionCount.Load())
}

func TestAcceptorMultipleClients(t *testing.T) {
	handler := &echoHandler{}
	acc, _ := startAcceptor(t, handler)
	defer acc.Stop()

	const clients = 5
	for i := 0; i < clients; i++ {
		conn, err := net.DialTimeout("tcp", acc.Addr(), 2*time.Second)
		require.NoError(t, err)
		defer conn.Close()

		_, err = conn.Write([]byte("ping\n"))
		require.NoError(t, err)
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		line, err := bufio.NewReader(conn).ReadString('\n')
		require.NoError(t, err)
		assert.Contains(t, line, "ping")
	}

	assert.Equal(t, int32(clients), handler.sessionCount.Load())
}

func TestAcceptorStopUnblocksIdleSessions(t *testing.T) {
	handler := &echoHandler{}
	acc, errCh := startAcceptor(t, handler)

	conn, err := net.DialTimeout("tcp", acc.Addr(), 2*time.Second)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return handler.sessionCount.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		acc.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop blocked on an idle session")
	}
	assert.NoError(t, <-errCh)
	assert.False(t, acc.IsRunning())
}

func TestAcceptorStopBeforeStart(t *testing.T) {
	acc := NewAcceptor(testListenerConfig(), &echoHandler{}, zaptest.NewLogger(t))
	acc.Stop()
	assert.Empty(t, acc.Addr())
}
