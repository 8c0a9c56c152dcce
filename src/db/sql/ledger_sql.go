package db

import (
	"context"
	"errors"
	"time"

	"ruleflow-server/src/engine"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DispatchLedger is the Postgres-backed idempotency store. The claim is a
// single INSERT ... ON CONFLICT, so exactly one of any number of concurrent
// dispatchers wins the (rule_id, event_id) key. An in-flight row older than
// StaleClaimAge is treated as orphaned (its owner crashed before settling)
// and gets reclaimed by the next Claim.
type DispatchLedger struct {
	Pool          *pgxpool.Pool
	StaleClaimAge time.Duration
}

func NewDispatchLedger(pool *pgxpool.Pool, staleClaimAge time.Duration) *DispatchLedger {
	if staleClaimAge <= 0 {
		staleClaimAge = 5 * time.Minute
	}
	return &DispatchLedger{Pool: pool, StaleClaimAge: staleClaimAge}
}

func (l *DispatchLedger) Claim(ctx context.Context, ruleID, eventID string) (engine.ClaimResult, error) {
	cmd, err := l.Pool.Exec(ctx, `
		INSERT INTO dispatch_ledger (rule_id, event_id, status)
		VALUES ($1, $2, 'in_flight')
		ON CONFLICT (rule_id, event_id) DO UPDATE
		SET status = 'in_flight', claimed_at = NOW()
		WHERE dispatch_ledger.status = 'in_flight'
		  AND dispatch_ledger.claimed_at < NOW() - make_interval(secs => $3)
	`, ruleID, eventID, l.StaleClaimAge.Seconds())
	if err != nil {
		return engine.ClaimInFlight, err
	}
	if cmd.RowsAffected() == 1 {
		return engine.ClaimAcquired, nil
	}

	var status string
	err = l.Pool.QueryRow(ctx, `
		SELECT status FROM dispatch_ledger WHERE rule_id = $1 AND event_id = $2
	`, ruleID, eventID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		// The conflicting claim was released between our insert and this
		// read. Treat it as in flight; a later re-ingestion will claim it.
		return engine.ClaimInFlight, nil
	}
	if err != nil {
		return engine.ClaimInFlight, err
	}
	if status == "processed" {
		return engine.ClaimAlreadyProcessed, nil
	}
	return engine.ClaimInFlight, nil
}

func (l *DispatchLedger) MarkProcessed(ctx context.Context, ruleID, eventID, outcome string) error {
	_, err := l.Pool.Exec(ctx, `
		UPDATE dispatch_ledger
		SET status = 'processed', outcome = $3, processed_at = NOW()
		WHERE rule_id = $1 AND event_id = $2
	`, ruleID, eventID, outcome)
	return err
}

// Release drops an in-flight claim after transient retries exhaust, leaving
// the pair eligible for dispatch on the next ingestion of the same event.
func (l *DispatchLedger) Release(ctx context.Context, ruleID, eventID string) error {
	_, err := l.Pool.Exec(ctx, `
		DELETE FROM dispatch_ledger
		WHERE rule_id = $1 AND event_id = $2 AND status = 'in_flight'
	`, ruleID, eventID)
	return err
}

func (l *DispatchLedger) HasProcessed(ctx context.Context, ruleID, eventID string) (bool, error) {
	var exists bool
	err := l.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM dispatch_ledger
			WHERE rule_id = $1 AND event_id = $2 AND status = 'processed'
		)
	`, ruleID, eventID).Scan(&exists)
	return exists, err
}

// ProcessedOutcome returns the status a processed pair settled with, or ""
// when the pair has no processed row.
func (l *DispatchLedger) ProcessedOutcome(ctx context.Context, ruleID, eventID string) (string, error) {
	var outcome string
	err := l.Pool.QueryRow(ctx, `
		SELECT outcome FROM dispatch_ledger
		WHERE rule_id = $1 AND event_id = $2 AND status = 'processed'
	`, ruleID, eventID).Scan(&outcome)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return outcome, nil
}
