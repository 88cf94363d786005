// Package database keeps the cross-session score history in Postgres.
// It feeds the monthly-loss handicap into dealing and records every
// finished game.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"triwhist/internal/engine"
)

const schema = `
CREATE TABLE IF NOT EXISTS games (
	id          BIGSERIAL PRIMARY KEY,
	played_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	score_one   INT NOT NULL,
	score_two   INT NOT NULL,
	score_three INT NOT NULL,
	loser       INT NOT NULL
);
CREATE INDEX IF NOT EXISTS games_played_at_idx ON games (played_at);
`

// DB wraps the connection pool.
type DB struct {
	pool *pgxpool.Pool
	log  *logrus.Entry
}

// Connect opens the pool and ensures the schema.
func Connect(ctx context.Context, dsn string, logger *logrus.Logger) (*DB, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init database schema: %w", err)
	}
	return &DB{pool: pool, log: logger.WithField("component", "database")}, nil
}

// Close releases the pool.
func (d *DB) Close() { d.pool.Close() }

// MonthlyLosses counts, per seat, the games lost since the start of
// the current calendar month.
func (d *DB) MonthlyLosses(ctx context.Context) (map[engine.Seat]int, error) {
	now := time.Now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	rows, err := d.pool.Query(ctx,
		`SELECT loser, count(*) FROM games WHERE played_at >= $1 GROUP BY loser`, monthStart)
	if err != nil {
		return nil, fmt.Errorf("query monthly losses: %w", err)
	}
	defer rows.Close()
	losses := make(map[engine.Seat]int, engine.NumSeats)
	for rows.Next() {
		var loser, n int
		if err := rows.Scan(&loser, &n); err != nil {
			return nil, fmt.Errorf("scan monthly losses: %w", err)
		}
		seat := engine.Seat(loser)
		if seat.Valid() {
			losses[seat] = n
		}
	}
	return losses, rows.Err()
}

// RecordGame stores one finished game. The loser is the lowest final
// score; on a tie for lowest, the first seat in seat order is
// recorded, matching how places break ties at equal standing.
func (d *DB) RecordGame(ctx context.Context, scores map[engine.Seat]int) error {
	loser := engine.SeatOne
	for _, seat := range engine.Seats() {
		if scores[seat] < scores[loser] {
			loser = seat
		}
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO games (score_one, score_two, score_three, loser) VALUES ($1, $2, $3, $4)`,
		scores[engine.SeatOne], scores[engine.SeatTwo], scores[engine.SeatThree], int(loser))
	if err != nil {
		return fmt.Errorf("record game: %w", err)
	}
	d.log.WithFields(logrus.Fields{"scores": scores, "loser": loser}).Info("game recorded")
	return nil
}
