package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cory-johannsen/harmony/internal/game/grid"
	"github.com/cory-johannsen/harmony/internal/storage/results"
)

// ResultRepository stores game results in the game_results table.
type ResultRepository struct {
	db *pgxpool.Pool
}

// NewResultRepository creates a ResultRepository backed by the given pool.
//
// Precondition: db must be a valid, open connection pool.
func NewResultRepository(db *pgxpool.Pool) *ResultRepository {
	return &ResultRepository{db: db}
}

// Append inserts rec.
//
// Precondition: rec.Username must be non-empty.
// Postcondition: One row is inserted, or a non-nil error is returned.
func (r *ResultRepository) Append(ctx context.Context, rec results.Record) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO game_results
		   (username, source, room_id, players, player_pos, target_pos, status, moves_count, recorded_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		rec.Username, string(rec.Source), rec.RoomID, rec.Players,
		positionArray(rec.PlayerPos), positionArray(rec.TargetPos),
		rec.Status, rec.MovesCount, rec.RecordedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting result for %s: %w", rec.Username, err)
	}
	return nil
}

// ListByUsername returns username's results, oldest first.
//
// Postcondition: Returns the records (possibly empty) or a non-nil error.
func (r *ResultRepository) ListByUsername(ctx context.Context, username string) ([]results.Record, error) {
	rows, err := r.db.Query(ctx,
		`SELECT username, source, COALESCE(room_id, ''), players, player_pos, target_pos,
		        COALESCE(status, ''), moves_count, recorded_at
		 FROM game_results
		 WHERE username = $1
		 ORDER BY recorded_at, id`,
		username,
	)
	if err != nil {
		return nil, fmt.Errorf("querying results for %s: %w", username, err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (results.Record, error) {
		var (
			rec                  results.Record
			source               string
			playerPos, targetPos []int32
		)
		if err := row.Scan(
			&rec.Username, &source, &rec.RoomID, &rec.Players, &playerPos, &targetPos,
			&rec.Status, &rec.MovesCount, &rec.RecordedAt,
		); err != nil {
			return results.Record{}, err
		}
		rec.Source = results.Source(source)
		rec.PlayerPos = positionFrom(playerPos)
		rec.TargetPos = positionFrom(targetPos)
		return rec, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning results for %s: %w", username, err)
	}
	return out, nil
}

func positionArray(p *grid.Position) []int32 {
	if p == nil {
		return nil
	}
	return []int32{int32(p.X()), int32(p.Y())}
}

func positionFrom(v []int32) *grid.Position {
	if len(v) != 2 {
		return nil
	}
	return &grid.Position{int(v[0]), int(v[1])}
}
