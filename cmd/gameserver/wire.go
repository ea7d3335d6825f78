//go:build wireinject

package main

import (
	"context"

	"github.com/google/wire"
	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/config"
	"github.com/cory-johannsen/harmony/internal/game/dice"
	"github.com/cory-johannsen/harmony/internal/gameserver"
	"github.com/cory-johannsen/harmony/internal/server"
	"github.com/cory-johannsen/harmony/internal/transport"
	"github.com/cory-johannsen/harmony/internal/transport/tcp"
	"github.com/cory-johannsen/harmony/internal/transport/ws"
)

func initializeApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, func(), error) {
	wire.Build(
		wire.FieldsOf(new(config.Config), "Game", "TCP", "WebSocket", "Health", "Results", "Database"),
		dice.NewCryptoSource,
		providePool,
		provideFileLog,
		provideResultSink,
		gameserver.NewLobby,
		wire.Bind(new(transport.SessionHandler), new(*gameserver.Lobby)),
		tcp.NewAcceptor,
		ws.NewServer,
		server.NewHealthServer,
		newApp,
	)
	return nil, nil, nil
}
