package engine

import (
	"context"
	"errors"

	"ruleflow-server/src/models"

	"github.com/shopspring/decimal"
)

// ErrRuleNotFound is returned by RuleStore implementations when no rule
// exists for the given id.
var ErrRuleNotFound = errors.New("rule not found")

// ErrDispatchInFlight means another worker currently holds the ledger claim
// for the same (rule, event) pair. The caller skips; the owner will settle it.
var ErrDispatchInFlight = errors.New("dispatch already in flight")

// ErrRetryScheduled means the first attempt failed transiently and the
// remaining attempts were handed to the retrier. The dispatch settles in the
// background; the trigger record appears in the log once it does.
var ErrRetryScheduled = errors.New("dispatch retries scheduled")

// ErrUnknownCursor is returned by TriggerLog.QueryByRule when afterID does
// not name a known trigger record.
var ErrUnknownCursor = errors.New("unknown trigger cursor")

// ClaimResult is the outcome of the ledger's atomic test-and-set.
type ClaimResult int

const (
	ClaimAcquired ClaimResult = iota
	ClaimAlreadyProcessed
	ClaimInFlight
)

// RuleStore is the durable collection of rule definitions.
type RuleStore interface {
	Get(ctx context.Context, id string) (*models.Rule, error)
	ListActive(ctx context.Context) ([]models.Rule, error)
}

// Ledger is the idempotency store gating dispatch per (rule, event) pair.
// Claim is the single atomic step that decides which worker dispatches.
// ProcessedOutcome reports the status a processed pair settled with, "" when
// the pair is not processed.
type Ledger interface {
	Claim(ctx context.Context, ruleID, eventID string) (ClaimResult, error)
	MarkProcessed(ctx context.Context, ruleID, eventID, status string) error
	Release(ctx context.Context, ruleID, eventID string) error
	HasProcessed(ctx context.Context, ruleID, eventID string) (bool, error)
	ProcessedOutcome(ctx context.Context, ruleID, eventID string) (string, error)
}

// TriggerLog is the append-only execution log.
type TriggerLog interface {
	Append(ctx context.Context, record models.TriggerRecord) error
	LastProcessed(ctx context.Context, ruleID, eventID string) (*models.TriggerRecord, error)
	QueryByRule(ctx context.Context, ruleID, afterID string, limit int) ([]models.TriggerRecord, error)
}

// Notifier delivers notification actions.
type Notifier interface {
	Send(ctx context.Context, target, message string) error
}

// TransferService executes account-to-account transfer actions.
type TransferService interface {
	Transfer(ctx context.Context, sourceAccount, destinationAccount string, amount decimal.Decimal) error
}
