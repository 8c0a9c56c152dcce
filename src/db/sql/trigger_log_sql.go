package db

import (
	"context"
	"errors"

	"ruleflow-server/src/engine"
	"ruleflow-server/src/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TriggerLog is the Postgres-backed append-only execution log.
type TriggerLog struct {
	Pool *pgxpool.Pool
}

func NewTriggerLog(pool *pgxpool.Pool) *TriggerLog {
	return &TriggerLog{Pool: pool}
}

func (t *TriggerLog) Append(ctx context.Context, record models.TriggerRecord) error {
	_, err := t.Pool.Exec(ctx, `
		INSERT INTO trigger_log (id, rule_id, event_id, matched_at, status, attempts, last_error, dispatched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, record.ID, record.RuleID, record.EventID, record.MatchedAt,
		record.Outcome.Status, record.Outcome.Attempts, record.Outcome.LastError, record.DispatchedAt)
	return err
}

// LastProcessed returns the most recent settled record for the pair, or nil
// when none exists. The dispatcher uses it for the short-circuit return after
// the ledger reports the pair as already processed.
func (t *TriggerLog) LastProcessed(ctx context.Context, ruleID, eventID string) (*models.TriggerRecord, error) {
	row := t.Pool.QueryRow(ctx, `
		SELECT id, rule_id, event_id, matched_at, status, attempts, last_error, dispatched_at
		FROM trigger_log
		WHERE rule_id = $1 AND event_id = $2
		ORDER BY seq DESC
		LIMIT 1
	`, ruleID, eventID)
	record, err := scanTriggerRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return record, nil
}

// QueryByRule pages through a rule's trigger records in append order. Passing
// the last record's id as afterID resumes the sequence from that point, so a
// consumer can restart from any cursor it has seen. An afterID that names no
// record returns engine.ErrUnknownCursor rather than an empty page, so a bad
// cursor is distinguishable from a caught-up one.
func (t *TriggerLog) QueryByRule(ctx context.Context, ruleID, afterID string, limit int) ([]models.TriggerRecord, error) {
	if limit < 1 || limit > 500 {
		limit = 100
	}

	var afterSeq int64
	if afterID != "" {
		err := t.Pool.QueryRow(ctx, `SELECT seq FROM trigger_log WHERE id = $1`, afterID).Scan(&afterSeq)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, engine.ErrUnknownCursor
		}
		if err != nil {
			return nil, err
		}
	}

	query := `
		SELECT id, rule_id, event_id, matched_at, status, attempts, last_error, dispatched_at
		FROM trigger_log
		WHERE rule_id = $1 AND seq > $2
		ORDER BY seq
		LIMIT $3
	`
	rows, err := t.Pool.Query(ctx, query, ruleID, afterSeq, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []models.TriggerRecord
	for rows.Next() {
		record, err := scanTriggerRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, rows.Err()
}

func scanTriggerRecord(row pgx.Row) (*models.TriggerRecord, error) {
	var r models.TriggerRecord
	err := row.Scan(&r.ID, &r.RuleID, &r.EventID, &r.MatchedAt,
		&r.Outcome.Status, &r.Outcome.Attempts, &r.Outcome.LastError, &r.DispatchedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
