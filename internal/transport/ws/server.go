package ws

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/config"
	"github.com/cory-johannsen/harmony/internal/transport"
)

// Server accepts WebSocket upgrades on the configured path and runs one
// session per connection.
type Server struct {
	cfg      config.WebSocketConfig
	handler  transport.SessionHandler
	logger   *zap.Logger
	upgrader websocket.Upgrader

	httpServer *http.Server
	listener   net.Listener
	wg         sync.WaitGroup
	quit       chan struct{}
	mu         sync.Mutex
	running    bool
}

// NewServer creates a WebSocket server.
//
// Precondition: cfg must be validated; handler and logger must be non-nil.
// Postcondition: Returns a Server ready to be started with ListenAndServe.
func NewServer(cfg config.WebSocketConfig, handler transport.SessionHandler, logger *zap.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		handler: handler,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		quit: make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.serveWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	s.httpServer = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe serves upgrades until Stop is called.
//
// Postcondition: The listener is closed when this method returns.
func (s *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Addr(), err)
	}

	s.mu.Lock()
	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("websocket server listening",
		zap.String("addr", listener.Addr().String()),
		zap.String("path", s.cfg.Path),
	)

	if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving websocket: %w", err)
	}
	return nil
}

func (s *Server) serveWS(w http.ResponseWriter, r *http.Request) {
	raw, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.String("remote_addr", r.RemoteAddr), zap.Error(err))
		return
	}

	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		_ = raw.Close()
		return
	}
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	start := time.Now()
	conn := NewConn(raw, s.cfg.MaxLineBytes, s.cfg.WriteTimeout, s.cfg.OutboxSize, s.logger)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-s.quit:
			cancel()
			_ = conn.Close()
		case <-ctx.Done():
		}
	}()

	s.logger.Info("websocket client connected", zap.String("remote_addr", r.RemoteAddr))
	if err := s.handler.HandleSession(ctx, conn); err != nil {
		s.logger.Debug("session ended",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

// Stop shuts down the HTTP server, closes live sessions and waits for them.
//
// Postcondition: All connections are closed and goroutines have exited.
func (s *Server) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.quit)
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Warn("websocket server shutdown", zap.Error(err))
	}
	s.wg.Wait()
	s.logger.Info("websocket server stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the server is accepting upgrades.
func (s *Server) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
