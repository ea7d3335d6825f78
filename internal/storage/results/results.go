// Package results records finished or client-reported games to append-only
// per-player logs.
package results

import (
	"context"
	"errors"
	"time"

	"github.com/cory-johannsen/harmony/internal/game/grid"
)

// Source says who produced a record.
type Source string

const (
	// SourceVictory records are written by the server when a room reaches its target.
	SourceVictory Source = "victory"
	// SourceClient records are submitted by a client with save_result.
	SourceClient Source = "client"
)

// StatusWon is the status of a victory record.
const StatusWon = "won"

// Record is one entry in a player's result log. Optional fields are nil when
// the client did not report them.
type Record struct {
	RecordedAt time.Time      `yaml:"recorded_at"`
	Username   string         `yaml:"username"`
	Source     Source         `yaml:"source"`
	RoomID     string         `yaml:"room_id,omitempty"`
	Players    []string       `yaml:"players,omitempty,flow"`
	PlayerPos  *grid.Position `yaml:"player_pos,omitempty,flow"`
	TargetPos  *grid.Position `yaml:"target_pos,omitempty,flow"`
	Status     string         `yaml:"status,omitempty"`
	MovesCount *int           `yaml:"moves_count,omitempty"`
}

// Sink appends result records.
type Sink interface {
	Append(ctx context.Context, rec Record) error
}

// Multi appends every record to each of its sinks, continuing past failures.
type Multi []Sink

// Append writes rec to every sink.
//
// Postcondition: Every sink was attempted; the returned error joins all failures.
func (m Multi) Append(ctx context.Context, rec Record) error {
	var errs []error
	for _, s := range m {
		if err := s.Append(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
