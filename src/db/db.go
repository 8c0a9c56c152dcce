package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

func Connect(url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(context.Background(), url)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := pool.Ping(context.Background()); err != nil {
		return nil, err
	}

	return pool, nil
}

// EnsureSchema creates the engine's tables if they do not exist. The trigger
// log is append-only; nothing in the codebase updates or deletes its rows.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	schema := `
		CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			condition JSONB NOT NULL,
			action JSONB NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS dispatch_ledger (
			rule_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'in_flight',
			outcome TEXT NOT NULL DEFAULT '',
			claimed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			processed_at TIMESTAMPTZ,
			PRIMARY KEY (rule_id, event_id)
		);

		CREATE TABLE IF NOT EXISTS trigger_log (
			seq BIGSERIAL UNIQUE,
			id TEXT PRIMARY KEY,
			rule_id TEXT NOT NULL,
			event_id TEXT NOT NULL,
			matched_at TIMESTAMPTZ NOT NULL,
			status TEXT NOT NULL,
			attempts INT NOT NULL,
			last_error TEXT NOT NULL DEFAULT '',
			dispatched_at TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS trigger_log_rule_seq_idx ON trigger_log (rule_id, seq);
	`
	_, err := pool.Exec(ctx, schema)
	return err
}
