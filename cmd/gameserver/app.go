package main

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/config"
	"github.com/cory-johannsen/harmony/internal/gameserver"
	"github.com/cory-johannsen/harmony/internal/server"
	"github.com/cory-johannsen/harmony/internal/storage/postgres"
	"github.com/cory-johannsen/harmony/internal/transport/tcp"
	"github.com/cory-johannsen/harmony/internal/transport/ws"
)

const (
	stopTimeout    = 10 * time.Second
	statsInterval  = time.Minute
	dbCheckPeriod  = 30 * time.Second
	dbCheckTimeout = 5 * time.Second
)

// App is the assembled coordination server.
type App struct {
	cfg    config.Config
	logger *zap.Logger
	lobby  *gameserver.Lobby
	tcp    *tcp.Acceptor
	ws     *ws.Server
	health *server.HealthServer
	pool   *postgres.Pool
}

func newApp(
	cfg config.Config,
	logger *zap.Logger,
	lobby *gameserver.Lobby,
	acceptor *tcp.Acceptor,
	wsServer *ws.Server,
	health *server.HealthServer,
	pool *postgres.Pool,
) *App {
	return &App{
		cfg:    cfg,
		logger: logger,
		lobby:  lobby,
		tcp:    acceptor,
		ws:     wsServer,
		health: health,
		pool:   pool,
	}
}

// Run registers every enabled service and blocks until shutdown.
//
// The lobby is added after the transports so that it stops first: members
// receive game_ended before their connections are flushed and closed.
func (a *App) Run(ctx context.Context) error {
	lc := server.NewLifecycle(a.logger, stopTimeout)

	lc.Add("tcp", &server.FuncService{StartFn: a.tcp.ListenAndServe, StopFn: a.tcp.Stop})
	if a.cfg.WebSocket.Enabled {
		lc.Add("websocket", &server.FuncService{StartFn: a.ws.ListenAndServe, StopFn: a.ws.Stop})
	}
	lc.Add("lobby", server.Idle(a.lobby.Shutdown))
	lc.Add("stats", a.statsReporter())
	if a.pool != nil {
		lc.Add("postgres", a.databaseChecker(ctx))
	}
	if a.cfg.Health.Enabled {
		lc.Add("health", &server.FuncService{
			StartFn: func() error {
				a.health.SetServing(true)
				return a.health.ListenAndServe()
			},
			StopFn: func() {
				a.health.SetServing(false)
				a.health.Stop()
			},
		})
	}

	a.logger.Info("coordination server initialized",
		zap.String("tcp_addr", a.cfg.TCP.Addr()),
		zap.Bool("websocket", a.cfg.WebSocket.Enabled),
		zap.Bool("health", a.cfg.Health.Enabled),
		zap.Bool("database", a.pool != nil),
	)
	return lc.Run(ctx)
}

func (a *App) statsReporter() server.Service {
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(statsInterval)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-ticker.C:
					s := a.lobby.Stats()
					a.logger.Info("lobby stats",
						zap.Int("players", s.Players),
						zap.Int("rooms", s.Rooms),
						zap.Int("started", s.Started),
					)
				}
			}
		},
		StopFn: func() { close(done) },
	}
}

func (a *App) databaseChecker(ctx context.Context) server.Service {
	done := make(chan struct{})
	return &server.FuncService{
		StartFn: func() error {
			ticker := time.NewTicker(dbCheckPeriod)
			defer ticker.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-ticker.C:
					if err := a.pool.Health(ctx, dbCheckTimeout); err != nil {
						a.logger.Warn("database health check failed", zap.Error(err))
					}
				}
			}
		},
		StopFn: func() { close(done) },
	}
}
