package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/protocol"
	"github.com/cory-johannsen/harmony/internal/transport"
)

const registrationPrompt = `Please register first: {"type": "register", "username": "your_name"}`

// HandleSession runs one client connection: it prompts for registration,
// then decodes each line once and dispatches it. Malformed lines are logged
// and skipped. When the connection ends the player leaves its room and the
// username is released.
//
// Precondition: conn must be open.
// Postcondition: The player holds no username or room seat when this returns.
func (l *Lobby) HandleSession(ctx context.Context, conn transport.Conn) error {
	s := &session{
		lobby:  l,
		conn:   conn,
		logger: l.logger.With(zap.String("remote_addr", conn.RemoteAddr().String())),
	}
	defer func() {
		if s.username != "" {
			l.Disconnect(s.username)
		}
	}()

	if err := conn.Send(protocol.RegistrationRequired{Message: "Enter your name"}); err != nil {
		return fmt.Errorf("prompting for registration: %w", err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := conn.ReadLine()
		if err != nil {
			if errors.Is(err, transport.ErrLineTooLong) {
				s.logger.Warn("discarding oversized line")
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("reading: %w", err)
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		cmd, err := protocol.Decode([]byte(line))
		if err != nil {
			s.logger.Warn("discarding malformed line", zap.Error(err))
			continue
		}
		s.dispatch(ctx, cmd)
	}
}

// session is the per-connection state of HandleSession.
type session struct {
	lobby    *Lobby
	conn     transport.Conn
	logger   *zap.Logger
	username string
}

func (s *session) send(m protocol.Message) {
	if err := s.conn.Send(m); err != nil {
		s.logger.Debug("send failed", zap.String("type", string(m.MessageType())), zap.Error(err))
	}
}

func (s *session) dispatch(ctx context.Context, cmd protocol.Command) {
	if reg, ok := cmd.(protocol.Register); ok {
		s.register(reg)
		return
	}
	if s.username == "" {
		s.send(protocol.RegistrationRequired{Message: registrationPrompt})
		return
	}

	log := s.logger.With(zap.String("username", s.username))
	switch c := cmd.(type) {
	case protocol.JoinGame:
		if _, err := s.lobby.JoinOrCreate(s.username); err != nil {
			log.Debug("join ignored", zap.Error(err))
		}
	case protocol.Move:
		if err := s.lobby.Move(ctx, s.username, c.Direction); err != nil {
			log.Debug("move dropped", zap.String("direction", string(c.Direction)), zap.Error(err))
		}
	case protocol.NewRound:
		if err := s.lobby.NewRound(s.username); err != nil {
			log.Debug("new round ignored", zap.Error(err))
		}
	case protocol.SaveResult:
		if err := s.lobby.SaveResult(ctx, s.username, c.GameData); err != nil {
			log.Error("saving result", zap.Error(err))
			return
		}
		s.send(protocol.SaveSuccess{Message: "Game result saved for " + s.username})
	case protocol.ExitGame:
		s.lobby.Exit(s.username)
		s.username = ""
		s.send(protocol.RegistrationRequired{Message: "Enter your name"})
	case protocol.Unknown:
		log.Warn("unknown message type", zap.String("type", string(c.Type)))
	case protocol.Register:
		// handled above
	}
}

func (s *session) register(reg protocol.Register) {
	if s.username != "" {
		s.logger.Debug("already registered, ignoring", zap.String("username", s.username))
		return
	}
	name, err := s.lobby.Register(s.conn, reg.Username)
	if err != nil {
		s.logger.Info("registration refused", zap.String("requested", reg.Username), zap.Error(err))
		s.send(protocol.RegistrationFailed{Message: s.registrationMessage(err), Reason: registrationReason(err)})
		return
	}
	s.username = name
	s.send(protocol.RegistrationSuccess{Username: name, Message: fmt.Sprintf("Welcome, %s!", name)})
}

func registrationReason(err error) string {
	switch {
	case errors.Is(err, ErrNameEmpty):
		return protocol.ReasonEmpty
	case errors.Is(err, ErrNameTooLong):
		return protocol.ReasonTooLong
	default:
		return protocol.ReasonDuplicate
	}
}

func (s *session) registrationMessage(err error) string {
	switch {
	case errors.Is(err, ErrNameEmpty):
		return "Name must not be empty"
	case errors.Is(err, ErrNameTooLong):
		return fmt.Sprintf("Name is too long (max %d characters)", s.lobby.cfg.MaxUsernameLength)
	default:
		return "Name is already taken"
	}
}
