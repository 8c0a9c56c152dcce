package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"ruleflow-server/src/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Dispatcher executes a matched rule's action against the external effectors,
// gated by the ledger so each (rule, event) pair fires at most once.
type Dispatcher struct {
	Rules     RuleStore
	Ledger    Ledger
	Log       TriggerLog
	Notifier  Notifier
	Transfers TransferService

	// Retrier runs deferred retry attempts after a transient first failure so
	// the caller never blocks on backoff. Without one the retries run inline.
	Retrier *Retrier

	// MaxAttempts bounds retries for transient failures; BackoffBase doubles
	// between attempts; Timeout bounds each individual effector call.
	MaxAttempts int
	BackoffBase time.Duration
	Timeout     time.Duration

	Metrics *Metrics
}

// Dispatch runs the rule's action for the event.
//
// The ledger claim happens before any external work. On success or permanent
// failure the ledger is marked processed and the settled record is returned.
// A transient first failure hands the remaining attempts to the retrier and
// returns ErrRetryScheduled; the dispatch then settles in the background.
// On transient exhaustion the claim is released so a later re-ingestion of
// the same event may retry. Retries stop early if the owning rule is
// deactivated while a backoff is pending.
func (d *Dispatcher) Dispatch(ctx context.Context, rule models.Rule, event models.TransactionEvent) (models.TriggerRecord, error) {
	claim, err := d.Ledger.Claim(ctx, rule.ID, event.ID)
	if err != nil {
		return models.TriggerRecord{}, storage("ledger claim", err)
	}

	switch claim {
	case ClaimAlreadyProcessed:
		record, err := d.Log.LastProcessed(ctx, rule.ID, event.ID)
		if err != nil {
			return models.TriggerRecord{}, storage("execution log lookup", err)
		}
		if record != nil {
			return *record, nil
		}
		// Ledger row exists but the log entry is gone (hard-deleted rule
		// cleanup). Still a short-circuit: the effector must not run again,
		// and the ledger remembers which way the pair settled.
		status, err := d.Ledger.ProcessedOutcome(ctx, rule.ID, event.ID)
		if err != nil {
			return models.TriggerRecord{}, storage("ledger outcome lookup", err)
		}
		if status == "" {
			status = models.OutcomeSuccess
		}
		return models.TriggerRecord{
			RuleID:  rule.ID,
			EventID: event.ID,
			Outcome: models.ActionOutcome{Status: status},
		}, nil
	case ClaimInFlight:
		return models.TriggerRecord{}, ErrDispatchInFlight
	}

	matchedAt := time.Now().UTC()
	maxAttempts := d.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	err = d.perform(ctx, rule, event)
	if err == nil {
		return d.settle(ctx, rule, event, matchedAt, models.ActionOutcome{
			Status:   models.OutcomeSuccess,
			Attempts: 1,
		}, true)
	}
	if IsPermanent(err) {
		return d.settle(ctx, rule, event, matchedAt, models.ActionOutcome{
			Status:    models.OutcomeFailed,
			Attempts:  1,
			LastError: err.Error(),
		}, true)
	}
	if maxAttempts == 1 {
		return d.settle(ctx, rule, event, matchedAt, models.ActionOutcome{
			Status:    models.OutcomeFailed,
			Attempts:  1,
			LastError: err.Error(),
		}, false)
	}

	log.Printf("INFO: Transient failure dispatching rule %s for event %s (attempt 1/%d): %v", rule.ID, event.ID, maxAttempts, err)
	if d.Retrier == nil {
		return d.runRetries(ctx, rule, event, matchedAt, maxAttempts, err)
	}

	firstErr := err
	d.Retrier.Schedule(func(rctx context.Context) {
		if _, err := d.runRetries(rctx, rule, event, matchedAt, maxAttempts, firstErr); err != nil {
			log.Printf("ERROR: Deferred retries for rule %s event %s aborted: %v", rule.ID, event.ID, err)
		}
	})
	return models.TriggerRecord{}, ErrRetryScheduled
}

// runRetries continues a dispatch whose first attempt failed transiently,
// from attempt 2 through exhaustion. Abort paths (cancellation, rule store
// failure) release the ledger claim so the pair stays eligible.
func (d *Dispatcher) runRetries(ctx context.Context, rule models.Rule, event models.TransactionEvent, matchedAt time.Time, maxAttempts int, lastErr error) (models.TriggerRecord, error) {
	for attempt := 2; attempt <= maxAttempts; attempt++ {
		d.Metrics.observeRetry(rule.Action.Type)
		if err := d.waitBackoff(ctx, attempt); err != nil {
			d.releaseClaim(ctx, rule, event)
			return models.TriggerRecord{}, err
		}
		active, err := d.ruleStillActive(ctx, rule.ID)
		if err != nil {
			d.releaseClaim(ctx, rule, event)
			return models.TriggerRecord{}, err
		}
		if !active {
			return d.settle(ctx, rule, event, matchedAt, models.ActionOutcome{
				Status:    models.OutcomeFailed,
				Attempts:  attempt - 1,
				LastError: "rule deactivated before retry",
			}, false)
		}

		err = d.perform(ctx, rule, event)
		if err == nil {
			return d.settle(ctx, rule, event, matchedAt, models.ActionOutcome{
				Status:   models.OutcomeSuccess,
				Attempts: attempt,
			}, true)
		}
		if IsPermanent(err) {
			return d.settle(ctx, rule, event, matchedAt, models.ActionOutcome{
				Status:    models.OutcomeFailed,
				Attempts:  attempt,
				LastError: err.Error(),
			}, true)
		}
		lastErr = err
		log.Printf("INFO: Transient failure dispatching rule %s for event %s (attempt %d/%d): %v", rule.ID, event.ID, attempt, maxAttempts, err)
	}

	return d.settle(ctx, rule, event, matchedAt, models.ActionOutcome{
		Status:    models.OutcomeFailed,
		Attempts:  maxAttempts,
		LastError: lastErr.Error(),
	}, false)
}

// perform runs one effector call with the per-attempt timeout. Errors the
// effector did not classify default to transient, which also covers raw
// context deadline errors from a timed-out call.
func (d *Dispatcher) perform(ctx context.Context, rule models.Rule, event models.TransactionEvent) error {
	callCtx, cancel := context.WithTimeout(ctx, d.Timeout)
	defer cancel()

	var err error
	switch rule.Action.Type {
	case models.ActionNotify:
		err = d.Notifier.Send(callCtx, rule.Action.Target, notifyMessage(rule, event))
	case models.ActionTransfer:
		var amount decimal.Decimal
		amount, err = decimal.NewFromString(rule.Action.Value)
		if err != nil {
			return PermanentEffector(fmt.Sprintf("transfer amount %q is not numeric", rule.Action.Value), err)
		}
		err = d.Transfers.Transfer(callCtx, event.AccountID, rule.Action.Target, amount)
	default:
		return PermanentEffector(fmt.Sprintf("unknown action type %q", rule.Action.Type), nil)
	}

	if err == nil {
		return nil
	}
	if IsPermanent(err) || IsTransient(err) {
		return err
	}
	return TransientEffector("effector call failed", err)
}

// settle writes the ledger and log for a finished dispatch. markProcessed is
// true for success and permanent failure; transient exhaustion releases the
// claim instead so re-ingestion can retry.
func (d *Dispatcher) settle(ctx context.Context, rule models.Rule, event models.TransactionEvent, matchedAt time.Time, outcome models.ActionOutcome, markProcessed bool) (models.TriggerRecord, error) {
	if markProcessed {
		if err := d.Ledger.MarkProcessed(ctx, rule.ID, event.ID, outcome.Status); err != nil {
			d.releaseClaim(ctx, rule, event)
			return models.TriggerRecord{}, storage("ledger mark processed", err)
		}
	} else {
		if err := d.Ledger.Release(ctx, rule.ID, event.ID); err != nil {
			return models.TriggerRecord{}, storage("ledger release", err)
		}
	}

	record := models.TriggerRecord{
		ID:           uuid.NewString(),
		RuleID:       rule.ID,
		EventID:      event.ID,
		MatchedAt:    matchedAt,
		Outcome:      outcome,
		DispatchedAt: time.Now().UTC(),
	}
	if err := d.Log.Append(ctx, record); err != nil {
		return models.TriggerRecord{}, storage("execution log append", err)
	}

	d.Metrics.observeDispatch(rule.Action.Type, outcome.Status)
	return record, nil
}

// releaseClaim frees an in-flight claim on an abort path so the pair stays
// eligible for re-ingestion. Runs outside the caller's cancellation because
// the abort is often the cancellation itself.
func (d *Dispatcher) releaseClaim(ctx context.Context, rule models.Rule, event models.TransactionEvent) {
	if err := d.Ledger.Release(context.WithoutCancel(ctx), rule.ID, event.ID); err != nil {
		log.Printf("ERROR: Failed to release ledger claim for rule %s event %s: %v", rule.ID, event.ID, err)
	}
}

func (d *Dispatcher) ruleStillActive(ctx context.Context, ruleID string) (bool, error) {
	rule, err := d.Rules.Get(ctx, ruleID)
	if err == ErrRuleNotFound {
		return false, nil
	}
	if err != nil {
		return false, storage("rule lookup", err)
	}
	return rule.IsActive, nil
}

func (d *Dispatcher) waitBackoff(ctx context.Context, attempt int) error {
	delay := d.BackoffBase << (attempt - 2)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func notifyMessage(rule models.Rule, event models.TransactionEvent) string {
	return fmt.Sprintf("Rule %q matched transaction %s: %s for %s", rule.Name, event.ID, event.Amount.StringFixed(2), event.Description)
}

func storage(op string, err error) error {
	if IsStorage(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
