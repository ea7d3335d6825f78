package gameserver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/config"
	"github.com/cory-johannsen/harmony/internal/game/dice"
	"github.com/cory-johannsen/harmony/internal/game/grid"
	"github.com/cory-johannsen/harmony/internal/game/room"
	"github.com/cory-johannsen/harmony/internal/protocol"
	"github.com/cory-johannsen/harmony/internal/storage/results"
)

var (
	// ErrNameEmpty is returned by Register for a blank username.
	ErrNameEmpty = errors.New("username must not be empty")
	// ErrNameTooLong is returned by Register for a username over the configured length.
	ErrNameTooLong = errors.New("username too long")
	// ErrNameTaken is returned by Register when another connection holds the username.
	ErrNameTaken = errors.New("username already taken")
	// ErrNotRegistered is returned for operations by an unknown username.
	ErrNotRegistered = errors.New("not registered")
	// ErrNotInRoom is returned for room operations by a player without a room.
	ErrNotInRoom = errors.New("not in a room")
	// ErrAlreadyInRoom is returned by JoinOrCreate for a player who is already seated.
	ErrAlreadyInRoom = errors.New("already in a room")
)

// resultTimeout bounds a single result write.
const resultTimeout = 5 * time.Second

// ReasonShutdown is the game_ended reason sent when the server stops.
const ReasonShutdown = "server_shutdown"

// player is one registered connection.
type player struct {
	username string
	conn     room.Sender
	// room is a membership back-reference; the lobby index owns rooms.
	room *room.Room
}

// Lobby is the server context: the username registry and the room index.
// Its lock guards only those two structures and is never held while a room
// lock is taken.
type Lobby struct {
	cfg    config.GameConfig
	src    dice.Source
	sink   results.Sink
	logger *zap.Logger
	newID  func() string

	mu      sync.Mutex
	players map[string]*player
	rooms   map[string]*room.Room
	// order lists open and running rooms by creation time; matchmaking scans it first to last.
	order []*room.Room
}

// NewLobby creates an empty Lobby.
//
// Precondition: cfg must be validated; src, sink and logger must be non-nil.
// Postcondition: Returns a Lobby with no players and no rooms.
func NewLobby(cfg config.GameConfig, src dice.Source, sink results.Sink, logger *zap.Logger) *Lobby {
	return &Lobby{
		cfg:     cfg,
		src:     src,
		sink:    sink,
		logger:  logger,
		newID:   uuid.NewString,
		players: make(map[string]*player),
		rooms:   make(map[string]*room.Room),
	}
}

func (l *Lobby) roomSettings() room.Settings {
	return room.Settings{
		GridSize:         l.cfg.GridSize,
		Capacity:         l.cfg.RoomCapacity,
		MinStartDistance: l.cfg.MinStartDistance,
		CountdownSeconds: l.cfg.CountdownSeconds,
		CountdownDelay:   l.cfg.CountdownDelay(),
	}
}

// Register claims name for conn. Surrounding whitespace is ignored and length
// is counted in characters.
//
// Postcondition: Returns the claimed username, or an error wrapping ErrNameEmpty,
// ErrNameTooLong or ErrNameTaken with nothing claimed.
func (l *Lobby) Register(conn room.Sender, name string) (string, error) {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return "", ErrNameEmpty
	case utf8.RuneCountInString(name) > l.cfg.MaxUsernameLength:
		return "", fmt.Errorf("%w (max %d characters)", ErrNameTooLong, l.cfg.MaxUsernameLength)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.players[name]; ok {
		return "", fmt.Errorf("%q: %w", name, ErrNameTaken)
	}
	l.players[name] = &player{username: name, conn: conn}
	l.logger.Info("player registered", zap.String("username", name))
	return name, nil
}

// lookup returns the player and its current room.
func (l *Lobby) lookup(username string) (*player, *room.Room, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.players[username]
	if !ok {
		return nil, nil, fmt.Errorf("%s: %w", username, ErrNotRegistered)
	}
	return p, p.room, nil
}

// JoinOrCreate seats username in the first open room, in creation order, or
// in a new room when none will take it.
//
// Precondition: username is registered and not seated.
// Postcondition: The player is seated and has been sent room_joined, or an error is returned.
func (l *Lobby) JoinOrCreate(username string) (*room.Room, error) {
	p, current, err := l.lookup(username)
	if err != nil {
		return nil, err
	}
	if current != nil {
		return nil, fmt.Errorf("%s in room %s: %w", username, current.ID(), ErrAlreadyInRoom)
	}

	l.mu.Lock()
	candidates := append([]*room.Room(nil), l.order...)
	l.mu.Unlock()

	for _, r := range candidates {
		if r.Capacity() != l.cfg.RoomCapacity {
			continue
		}
		if _, err := r.Join(username, p.conn); err == nil {
			l.attach(p, r)
			return r, nil
		}
	}

	r := room.New(l.newID(), l.roomSettings(), l.src, l.logger)
	l.mu.Lock()
	l.rooms[r.ID()] = r
	l.order = append(l.order, r)
	l.mu.Unlock()
	l.logger.Info("room created", zap.String("room_id", r.ID()), zap.String("username", username))

	if _, err := r.Join(username, p.conn); err != nil {
		l.destroy(r)
		return nil, fmt.Errorf("joining new room %s: %w", r.ID(), err)
	}
	l.attach(p, r)
	return r, nil
}

func (l *Lobby) attach(p *player, r *room.Room) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p.room = r
}

// destroy removes r from the index and clears every back-reference to it.
func (l *Lobby) destroy(r *room.Room) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rooms, r.ID())
	for i, candidate := range l.order {
		if candidate == r {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	for _, p := range l.players {
		if p.room == r {
			p.room = nil
		}
	}
}

// Move applies dir on behalf of username. A winning move persists one
// victory record per member and then tears the room down.
//
// Postcondition: Returns an error wrapping room.ErrMoveRejected or ErrNotInRoom for
// moves that were dropped without effect.
func (l *Lobby) Move(ctx context.Context, username string, dir grid.Direction) error {
	_, r, err := l.lookup(username)
	if err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%s: %w", username, ErrNotInRoom)
	}

	out, err := r.ApplyMove(username, dir)
	if err != nil {
		return err
	}
	if out.State.GameWon {
		l.recordVictory(ctx, r.ID(), out)
		r.Close(nil)
		l.destroy(r)
		l.logger.Info("game won",
			zap.String("room_id", r.ID()),
			zap.Int("moves_count", out.State.MovesCount),
		)
	}
	return nil
}

func (l *Lobby) recordVictory(ctx context.Context, roomID string, out room.MoveOutcome) {
	ctx, cancel := context.WithTimeout(ctx, resultTimeout)
	defer cancel()

	now := time.Now().UTC()
	playerPos, targetPos := out.State.PlayerPos, out.State.TargetPos
	moves := out.State.MovesCount
	for _, name := range out.Players {
		rec := results.Record{
			RecordedAt: now,
			Username:   name,
			Source:     results.SourceVictory,
			RoomID:     roomID,
			Players:    out.Players,
			PlayerPos:  &playerPos,
			TargetPos:  &targetPos,
			Status:     results.StatusWon,
			MovesCount: &moves,
		}
		if err := l.sink.Append(ctx, rec); err != nil {
			l.logger.Error("recording victory",
				zap.String("room_id", roomID),
				zap.String("username", name),
				zap.Error(err),
			)
		}
	}
}

// Leave takes username out of its room and tears the room down when it ended
// or emptied. A player without a room is a no-op.
func (l *Lobby) Leave(username string) {
	l.mu.Lock()
	p, ok := l.players[username]
	var r *room.Room
	if ok {
		r = p.room
		p.room = nil
	}
	l.mu.Unlock()
	if r == nil {
		return
	}

	dep := r.Leave(username)
	if dep.Ended || dep.Empty {
		l.destroy(r)
		l.logger.Info("room torn down",
			zap.String("room_id", r.ID()),
			zap.Bool("ended", dep.Ended),
			zap.Int("remaining", len(dep.Remaining)),
		)
	}
}

func (l *Lobby) release(username string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.players, username)
}

// Exit leaves the current room and releases the username for reuse.
//
// Postcondition: username is unregistered.
func (l *Lobby) Exit(username string) {
	l.Leave(username)
	l.release(username)
	l.logger.Info("player exited", zap.String("username", username))
}

// Disconnect handles a closed connection exactly like Exit.
//
// Postcondition: username is unregistered.
func (l *Lobby) Disconnect(username string) {
	l.Leave(username)
	l.release(username)
	l.logger.Info("player disconnected", zap.String("username", username))
}

// NewRound restarts the caller's room in place. A player with no room, or
// whose room is gone, is matched as if by JoinOrCreate.
func (l *Lobby) NewRound(username string) error {
	p, r, err := l.lookup(username)
	if err != nil {
		return err
	}
	if r != nil {
		err := r.Reset(username)
		if err == nil {
			return nil
		}
		if !errors.Is(err, room.ErrRoomClosed) && !errors.Is(err, room.ErrNotMember) {
			return err
		}
		l.mu.Lock()
		if p.room == r {
			p.room = nil
		}
		l.mu.Unlock()
	}
	_, err = l.JoinOrCreate(username)
	return err
}

// SaveResult appends a client-reported result for username.
//
// Postcondition: The record was handed to the sink, or a non-nil error is returned.
func (l *Lobby) SaveResult(ctx context.Context, username string, data protocol.GameData) error {
	ctx, cancel := context.WithTimeout(ctx, resultTimeout)
	defer cancel()

	rec := results.Record{
		RecordedAt: time.Now().UTC(),
		Username:   username,
		Source:     results.SourceClient,
		PlayerPos:  data.PlayerPos,
		TargetPos:  data.TargetPos,
		Status:     data.Status,
		MovesCount: data.MovesCount,
	}
	if _, r, err := l.lookup(username); err == nil && r != nil {
		rec.RoomID = r.ID()
	}
	if err := l.sink.Append(ctx, rec); err != nil {
		return fmt.Errorf("saving result for %s: %w", username, err)
	}
	return nil
}

// Stats is a point-in-time summary of the lobby.
type Stats struct {
	Players int
	Rooms   int
	Started int
}

// Stats counts registered players and live rooms.
func (l *Lobby) Stats() Stats {
	l.mu.Lock()
	s := Stats{Players: len(l.players), Rooms: len(l.order)}
	rooms := append([]*room.Room(nil), l.order...)
	l.mu.Unlock()

	for _, r := range rooms {
		if r.Snapshot().Started {
			s.Started++
		}
	}
	return s
}

// Shutdown ends every live room, telling members the server is stopping.
//
// Postcondition: The room index is empty.
func (l *Lobby) Shutdown() {
	l.mu.Lock()
	rooms := append([]*room.Room(nil), l.order...)
	l.mu.Unlock()

	for _, r := range rooms {
		r.Close(protocol.GameEnded{Message: "Server is shutting down", Reason: ReasonShutdown})
		l.destroy(r)
	}
	l.logger.Info("lobby shut down", zap.Int("rooms", len(rooms)))
}
