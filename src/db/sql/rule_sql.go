package db

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ruleflow-server/src/db"
	"ruleflow-server/src/engine"
	"ruleflow-server/src/models"
	"ruleflow-server/src/util"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const activeRulesCacheKey = "rules:active"

// RuleStore is the Postgres-backed rule collection. Every mutation validates
// the rule first and runs as a single statement, so a partial write is never
// observable. The active-rule list is cached in ristretto and the cache is
// cleared synchronously on every mutation.
type RuleStore struct {
	Pool *pgxpool.Pool
}

func NewRuleStore(pool *pgxpool.Pool) *RuleStore {
	return &RuleStore{Pool: pool}
}

func (s *RuleStore) Create(ctx context.Context, rule *models.Rule) (*models.Rule, error) {
	if err := util.ValidateRule(rule); err != nil {
		return nil, &engine.ValidationError{Reason: err.Error()}
	}
	condition, action, err := encodeRule(rule)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO rules (id, name, description, condition, action, is_active)
		VALUES ($1, $2, $3, $4, $5, TRUE)
		RETURNING id, name, description, condition, action, is_active, created_at, updated_at
	`
	row := s.Pool.QueryRow(ctx, query, uuid.NewString(), rule.Name, rule.Description, condition, action)
	created, err := scanRule(row)
	if err != nil {
		return nil, err
	}
	db.ClearAllRuleCaches()
	return created, nil
}

func (s *RuleStore) Get(ctx context.Context, id string) (*models.Rule, error) {
	query := `
		SELECT id, name, description, condition, action, is_active, created_at, updated_at
		FROM rules
		WHERE id = $1
	`
	rule, err := scanRule(s.Pool.QueryRow(ctx, query, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrRuleNotFound
	}
	return rule, err
}

func (s *RuleStore) ListActive(ctx context.Context) ([]models.Rule, error) {
	gen := db.RuleCacheGeneration()
	if cached, found := db.Cache.Get(activeRulesCacheKey); found {
		if rules, ok := cached.([]models.Rule); ok {
			return rules, nil
		}
	}
	rules, err := s.list(ctx, `WHERE is_active = TRUE`)
	if err != nil {
		return nil, err
	}
	// Dropped if a mutation cleared the cache while we were reading, so a
	// pre-mutation rule set can never be re-cached over the invalidation.
	db.SetRuleCacheIfCurrent(activeRulesCacheKey, rules, gen)
	return rules, nil
}

func (s *RuleStore) ListAll(ctx context.Context) ([]models.Rule, error) {
	return s.list(ctx, ``)
}

func (s *RuleStore) list(ctx context.Context, where string) ([]models.Rule, error) {
	query := `
		SELECT id, name, description, condition, action, is_active, created_at, updated_at
		FROM rules ` + where + `
		ORDER BY created_at
	`
	rows, err := s.Pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		rule, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, *rule)
	}
	return rules, rows.Err()
}

func (s *RuleStore) Update(ctx context.Context, rule *models.Rule) (*models.Rule, error) {
	if err := util.ValidateRule(rule); err != nil {
		return nil, &engine.ValidationError{Reason: err.Error()}
	}
	condition, action, err := encodeRule(rule)
	if err != nil {
		return nil, err
	}

	query := `
		UPDATE rules
		SET name = $1, description = $2, condition = $3, action = $4, is_active = $5, updated_at = NOW()
		WHERE id = $6
		RETURNING id, name, description, condition, action, is_active, created_at, updated_at
	`
	row := s.Pool.QueryRow(ctx, query, rule.Name, rule.Description, condition, action, rule.IsActive, rule.ID)
	updated, err := scanRule(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	db.ClearAllRuleCaches()
	return updated, nil
}

// Deactivate is the logical delete: the rule stops being evaluated but its
// trigger log references stay intact.
func (s *RuleStore) Deactivate(ctx context.Context, id string) error {
	cmd, err := s.Pool.Exec(ctx, `UPDATE rules SET is_active = FALSE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return engine.ErrRuleNotFound
	}
	db.ClearAllRuleCaches()
	return nil
}

func encodeRule(rule *models.Rule) ([]byte, []byte, error) {
	condition, err := json.Marshal(rule.Condition)
	if err != nil {
		return nil, nil, err
	}
	action, err := json.Marshal(rule.Action)
	if err != nil {
		return nil, nil, err
	}
	return condition, action, nil
}

func scanRule(row pgx.Row) (*models.Rule, error) {
	var r models.Rule
	var condition, action []byte
	var createdAt, updatedAt time.Time
	err := row.Scan(&r.ID, &r.Name, &r.Description, &condition, &action, &r.IsActive, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(condition, &r.Condition); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(action, &r.Action); err != nil {
		return nil, err
	}
	r.CreatedAt = createdAt
	r.UpdatedAt = updatedAt
	return &r, nil
}
