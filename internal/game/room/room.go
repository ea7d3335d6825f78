// Package room holds the state of one shared game session: its members and
// their directions, the shared token and target, and the round lifecycle.
//
// Every mutation runs under the room lock and every message it produces is
// handed to members in commit order after that lock is released.
package room

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/harmony/internal/game/dice"
	"github.com/cory-johannsen/harmony/internal/game/grid"
	"github.com/cory-johannsen/harmony/internal/protocol"
)

var (
	// ErrRoomUnavailable is returned by Join when the room is full, started or closed.
	ErrRoomUnavailable = errors.New("room unavailable")
	// ErrRoomClosed is returned by operations on a torn-down room.
	ErrRoomClosed = errors.New("room closed")
	// ErrNotMember is returned when the caller does not belong to the room.
	ErrNotMember = errors.New("not a member of room")
	// ErrMoveRejected is returned by ApplyMove for moves that must be dropped silently.
	ErrMoveRejected = errors.New("move rejected")
)

// Sender delivers one message to one member without blocking on the peer.
type Sender interface {
	Send(m protocol.Message) error
}

// Settings are the fixed parameters of a room.
type Settings struct {
	GridSize         int
	Capacity         int
	MinStartDistance int
	// CountdownSeconds is the duration announced in countdown_start.
	CountdownSeconds int
	// CountdownDelay is the wall-clock delay before game_start.
	CountdownDelay time.Duration
}

// Member is one player seated in a room.
type Member struct {
	Username  string
	Direction grid.Direction
	conn      Sender
}

// Room is a bounded coordination unit hosting one shared game session.
type Room struct {
	id       string
	settings Settings
	src      dice.Source
	logger   *zap.Logger

	mu        sync.Mutex
	members   map[string]*Member
	order     []string
	dropped   map[string]bool
	playerPos grid.Position
	targetPos grid.Position
	moveCount int
	started   bool
	finished  bool
	closed    bool
	// round invalidates countdowns scheduled before the last reset or departure.
	round   int
	pending *Countdown

	fanout sync.Mutex
}

// New creates an empty room with freshly sampled positions.
//
// Precondition: settings must be validated; src and logger must be non-nil.
// Postcondition: Returns an open, unstarted room with no members.
func New(id string, settings Settings, src dice.Source, logger *zap.Logger) *Room {
	r := &Room{
		id:       id,
		settings: settings,
		src:      src,
		logger:   logger.With(zap.String("room_id", id)),
		members:  make(map[string]*Member, settings.Capacity),
		dropped:  make(map[string]bool),
	}
	r.playerPos, r.targetPos = grid.SamplePair(src, settings.GridSize, settings.MinStartDistance)
	return r
}

// ID returns the room identifier.
func (r *Room) ID() string {
	return r.id
}

// Capacity returns the number of members needed to start.
func (r *Room) Capacity() int {
	return r.settings.Capacity
}

// delivery addresses msg to one member, or to every member when to is empty.
type delivery struct {
	to  string
	msg protocol.Message
}

func toAll(msgs ...protocol.Message) []delivery {
	out := make([]delivery, len(msgs))
	for i, m := range msgs {
		out[i] = delivery{msg: m}
	}
	return out
}

// commit runs mutate under the room lock, then delivers what it returns to a
// snapshot of the membership taken in the same critical section. The fanout
// lock is acquired before the room lock is released, so deliveries from
// successive commits reach every member in commit order. Members whose
// delivery fails are removed afterwards.
func (r *Room) commit(mutate func() []delivery) {
	r.mu.Lock()
	out := mutate()
	if len(out) == 0 {
		r.mu.Unlock()
		return
	}
	targets := make([]*Member, 0, len(r.order))
	for _, name := range r.order {
		targets = append(targets, r.members[name])
	}
	r.fanout.Lock()
	r.mu.Unlock()

	failed := make(map[string]bool)
	for _, d := range out {
		for _, m := range targets {
			if failed[m.Username] || (d.to != "" && d.to != m.Username) {
				continue
			}
			if err := m.conn.Send(d.msg); err != nil {
				r.logger.Info("delivery failed, dropping member",
					zap.String("username", m.Username),
					zap.String("type", string(d.msg.MessageType())),
					zap.Error(err),
				)
				failed[m.Username] = true
			}
		}
	}
	r.fanout.Unlock()

	if len(failed) == 0 {
		return
	}
	r.mu.Lock()
	for name := range failed {
		if r.removeLocked(name) {
			r.dropped[name] = true
		}
	}
	r.mu.Unlock()
}

// Broadcast delivers msg to every current member.
func (r *Room) Broadcast(msg protocol.Message) {
	r.commit(func() []delivery {
		return toAll(msg)
	})
}

// Join seats username in the room with the first free direction. The joiner
// receives room_joined; then every member receives countdown_start when the
// room became full, or waiting_for_players otherwise.
//
// Precondition: username is not seated in any other room.
// Postcondition: Returns the assigned direction, or an error wrapping ErrRoomUnavailable
// with the room unchanged.
func (r *Room) Join(username string, conn Sender) (grid.Direction, error) {
	var (
		dir grid.Direction
		err error
	)
	r.commit(func() []delivery {
		switch {
		case r.closed:
			err = fmt.Errorf("room %s is closed: %w", r.id, ErrRoomUnavailable)
			return nil
		case r.started:
			err = fmt.Errorf("room %s already started: %w", r.id, ErrRoomUnavailable)
			return nil
		case len(r.members) >= r.settings.Capacity:
			err = fmt.Errorf("room %s is full: %w", r.id, ErrRoomUnavailable)
			return nil
		}
		if _, ok := r.members[username]; ok {
			err = fmt.Errorf("%s already seated in room %s: %w", username, r.id, ErrRoomUnavailable)
			return nil
		}

		dir = r.freeDirectionLocked()
		r.members[username] = &Member{Username: username, Direction: dir, conn: conn}
		r.order = append(r.order, username)
		delete(r.dropped, username)

		r.logger.Info("player joined room",
			zap.String("username", username),
			zap.String("direction", string(dir)),
			zap.Int("current_players", len(r.members)),
		)

		out := []delivery{{to: username, msg: protocol.RoomJoined{
			Direction:      dir,
			CurrentPlayers: len(r.members),
			TotalPlayers:   r.settings.Capacity,
		}}}
		return append(out, r.announceLocked()...)
	})
	return dir, err
}

// freeDirectionLocked returns the first direction no member holds.
func (r *Room) freeDirectionLocked() grid.Direction {
	held := make(map[grid.Direction]bool, len(r.members))
	for _, m := range r.members {
		held[m.Direction] = true
	}
	for _, d := range grid.Directions {
		if !held[d] {
			return d
		}
	}
	return grid.Directions[0]
}

// announceLocked starts the countdown when the room is full and reports
// occupancy otherwise.
func (r *Room) announceLocked() []delivery {
	if len(r.members) >= r.settings.Capacity {
		r.scheduleLocked()
		return toAll(protocol.CountdownStart{Duration: r.settings.CountdownSeconds})
	}
	return toAll(r.waitingLocked())
}

func (r *Room) waitingLocked() protocol.WaitingForPlayers {
	return protocol.WaitingForPlayers{
		CurrentPlayers: len(r.members),
		TotalPlayers:   r.settings.Capacity,
		Message:        fmt.Sprintf("Waiting for players... (%d/%d)", len(r.members), r.settings.Capacity),
	}
}

// scheduleLocked replaces any pending countdown with a new one for the next round.
func (r *Room) scheduleLocked() {
	r.cancelLocked()
	round := r.round
	r.pending = NewCountdown(r.settings.CountdownDelay, func() {
		r.begin(round)
	})
	r.logger.Info("countdown started", zap.Int("duration", r.settings.CountdownSeconds))
}

// cancelLocked stops any pending countdown and invalidates one already firing.
func (r *Room) cancelLocked() {
	r.round++
	if r.pending != nil {
		r.pending.Stop()
		r.pending = nil
	}
}

// begin marks the room started and broadcasts game_start, provided the
// countdown that called it is still current and the room is still full.
func (r *Room) begin(round int) {
	r.commit(func() []delivery {
		if r.closed || r.started || r.round != round {
			return nil
		}
		r.pending = nil
		if len(r.members) < r.settings.Capacity {
			r.logger.Info("countdown elapsed below capacity, not starting",
				zap.Int("current_players", len(r.members)))
			return nil
		}
		r.started = true
		r.logger.Info("game started",
			zap.Any("player_pos", r.playerPos),
			zap.Any("target_pos", r.targetPos),
		)
		return toAll(protocol.GameStart{
			PlayerPos: r.playerPos,
			TargetPos: r.targetPos,
			GridSize:  r.settings.GridSize,
		})
	})
}

// MoveOutcome is the committed result of an applied move.
type MoveOutcome struct {
	State protocol.GameState
	// Players is the roster at the instant of the move, in join order.
	Players []string
}

// ApplyMove pushes the shared token one cell along dir on behalf of username
// and broadcasts the resulting game_state. Boundary-blocked moves are applied
// without changing position or move count.
//
// Postcondition: On success the room state reflects the move and every member has
// been handed the game_state. Otherwise returns an error wrapping ErrMoveRejected
// and nothing changed or was sent.
func (r *Room) ApplyMove(username string, dir grid.Direction) (MoveOutcome, error) {
	var (
		outcome MoveOutcome
		err     error
	)
	r.commit(func() []delivery {
		m, ok := r.members[username]
		switch {
		case !ok:
			err = fmt.Errorf("%s not in room %s: %w", username, r.id, ErrMoveRejected)
		case r.closed:
			err = fmt.Errorf("room %s is closed: %w", r.id, ErrMoveRejected)
		case !r.started:
			err = fmt.Errorf("room %s has not started: %w", r.id, ErrMoveRejected)
		case r.finished:
			err = fmt.Errorf("room %s is already won: %w", r.id, ErrMoveRejected)
		case m.Direction != dir:
			err = fmt.Errorf("%s holds %s, not %s: %w", username, m.Direction, dir, ErrMoveRejected)
		}
		if err != nil {
			return nil
		}

		next := r.playerPos.Step(dir, r.settings.GridSize)
		changed := next != r.playerPos
		if changed {
			r.playerPos = next
			r.moveCount++
		}
		won := r.playerPos == r.targetPos
		if won {
			r.finished = true
		}

		outcome = MoveOutcome{
			State: protocol.GameState{
				PlayerPos:       r.playerPos,
				TargetPos:       r.targetPos,
				MovedBy:         username,
				Direction:       dir,
				PositionChanged: changed,
				GameWon:         won,
				MovesCount:      r.moveCount,
			},
			Players: append([]string(nil), r.order...),
		}
		return toAll(outcome.State)
	})
	return outcome, err
}

// Departure describes the room after a member left.
type Departure struct {
	// WasMember is false when username was never seated or the room had already closed.
	WasMember bool
	Remaining []string
	// Ended is true when a started game fell below capacity and the room closed.
	Ended bool
	// Empty is true when nobody remains and the room closed.
	Empty bool
}

// Leave removes username and re-evaluates the room. Remaining members receive
// player_left; then game_ended if a started game can no longer continue, or an
// updated waiting_for_players if the game had not started. A pending countdown
// is cancelled. Leaving a won room only removes the member.
//
// Postcondition: username is not a member. If Ended or Empty is reported the room is closed.
func (r *Room) Leave(username string) Departure {
	var dep Departure
	r.commit(func() []delivery {
		if r.closed {
			return nil
		}
		dep.WasMember = r.removeLocked(username) || r.dropped[username]
		delete(r.dropped, username)
		dep.Remaining = append([]string{}, r.order...)
		if !dep.WasMember {
			return nil
		}
		r.cancelLocked()

		r.logger.Info("player left room",
			zap.String("username", username),
			zap.Int("remaining", len(r.members)),
		)

		if len(r.members) == 0 {
			r.closed = true
			dep.Empty = true
			return nil
		}

		if r.finished {
			// The winning game_state was the room's last word; teardown follows.
			return nil
		}

		out := toAll(protocol.PlayerLeft{
			Username:         username,
			RemainingPlayers: dep.Remaining,
			Message:          fmt.Sprintf("%s left the game", username),
		})
		switch {
		case r.started && len(r.members) < r.settings.Capacity:
			r.closed = true
			dep.Ended = true
			out = append(out, toAll(protocol.GameEnded{
				Message: fmt.Sprintf("Game over: not enough players (remaining: %d)", len(r.members)),
				Reason:  protocol.ReasonNotEnoughPlayers,
			})...)
		case !r.started:
			out = append(out, toAll(r.waitingLocked())...)
		}
		return out
	})
	return dep
}

// removeLocked deletes username from the membership, reporting whether it was present.
func (r *Room) removeLocked(username string) bool {
	if _, ok := r.members[username]; !ok {
		return false
	}
	delete(r.members, username)
	for i, name := range r.order {
		if name == username {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// Reset starts a new round in place on behalf of username: positions are
// resampled, the move count cleared and the room unstarted, keeping members
// and their directions. A full room runs the countdown again; otherwise
// members receive waiting_for_players.
//
// Postcondition: On success the new positions satisfy the start distance and move count is 0.
func (r *Room) Reset(username string) error {
	var err error
	r.commit(func() []delivery {
		if r.closed {
			err = fmt.Errorf("resetting room %s: %w", r.id, ErrRoomClosed)
			return nil
		}
		if _, ok := r.members[username]; !ok {
			err = fmt.Errorf("resetting room %s for %s: %w", r.id, username, ErrNotMember)
			return nil
		}
		r.cancelLocked()
		r.playerPos, r.targetPos = grid.SamplePair(r.src, r.settings.GridSize, r.settings.MinStartDistance)
		r.moveCount = 0
		r.started = false
		r.finished = false

		r.logger.Info("round reset", zap.String("username", username))
		return r.announceLocked()
	})
	return err
}

// Close tears the room down, optionally telling members why, and returns the
// usernames that were seated. Closing twice returns nil the second time.
//
// Postcondition: The room is closed; no countdown will fire.
func (r *Room) Close(final protocol.Message) []string {
	var seated []string
	r.commit(func() []delivery {
		if r.closed {
			return nil
		}
		r.closed = true
		r.cancelLocked()
		seated = append([]string(nil), r.order...)
		r.logger.Info("room closed", zap.Int("members", len(seated)))
		if final == nil {
			return nil
		}
		return toAll(final)
	})
	return seated
}

// Snapshot is a point-in-time copy of room state.
type Snapshot struct {
	ID        string
	Capacity  int
	Members   []Member
	PlayerPos grid.Position
	TargetPos grid.Position
	MoveCount int
	Started   bool
	Finished  bool
	Closed    bool
	Counting  bool
}

// Snapshot copies the current room state.
func (r *Room) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	members := make([]Member, 0, len(r.order))
	for _, name := range r.order {
		m := r.members[name]
		members = append(members, Member{Username: m.Username, Direction: m.Direction})
	}
	return Snapshot{
		ID:        r.id,
		Capacity:  r.settings.Capacity,
		Members:   members,
		PlayerPos: r.playerPos,
		TargetPos: r.targetPos,
		MoveCount: r.moveCount,
		Started:   r.started,
		Finished:  r.finished,
		Closed:    r.closed,
		Counting:  r.pending != nil,
	}
}
