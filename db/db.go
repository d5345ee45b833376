package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq" // postgres driver
)

func Connect(dsn string, timeout time.Duration, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create database handle: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err = db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logger.Error("failed to close database handle after ping error", slog.Any("error", closeErr))
		}
		return nil, fmt.Errorf("failed to ping database within %v: %w", timeout, err)
	}

	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS match_results (
	id              BIGSERIAL PRIMARY KEY,
	match_id        TEXT        NOT NULL,
	tournament_id   TEXT,
	home_user_id    TEXT        NOT NULL,
	visitor_user_id TEXT        NOT NULL,
	home_score      INTEGER     NOT NULL,
	visitor_score   INTEGER     NOT NULL,
	winner_user_id  TEXT,
	reason          TEXT        NOT NULL,
	finished_at     TIMESTAMPTZ NOT NULL,
	CONSTRAINT match_results_match_id_key UNIQUE (match_id)
);
CREATE INDEX IF NOT EXISTS match_results_home_idx ON match_results (home_user_id, finished_at DESC);
CREATE INDEX IF NOT EXISTS match_results_visitor_idx ON match_results (visitor_user_id, finished_at DESC);
`

// EnsureSchema creates the match_results table when it does not exist yet.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
