package engine

import (
	"context"
	"testing"
	"time"

	"ruleflow-server/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineFixture struct {
	*dispatcherFixture
	engine *Engine
}

func newEngineFixture(t *testing.T, rules ...models.Rule) *engineFixture {
	t.Helper()
	f := newDispatcherFixture(t, rules...)
	return &engineFixture{
		dispatcherFixture: f,
		engine:            New(f.rules, f.d, nil, 4),
	}
}

func rawTransaction(externalID, amount string) models.RawTransaction {
	return models.RawTransaction{
		ExternalID:  externalID,
		AccountID:   "checking",
		Amount:      amount,
		Description: "Electronics Store",
		Category:    "shopping",
		Date:        "2026-08-30",
	}
}

func TestProcessBatchDispatchesMatches(t *testing.T) {
	rule := notifyRule()
	f := newEngineFixture(t, rule)

	result, err := f.engine.ProcessBatch(context.Background(), []models.RawTransaction{
		rawTransaction("txn-1", "150.00"),
		rawTransaction("txn-2", "50.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Received)
	assert.Equal(t, 2, result.Normalized)
	assert.Equal(t, 1, result.Matched, "only the 150.00 event matches amount > 100")
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 1, f.notifier.callCount())
	assert.Len(t, f.log.all(), 1, "the unmatched event must produce no trigger record")
}

func TestProcessBatchSkipsMalformedRecords(t *testing.T) {
	rule := notifyRule()
	f := newEngineFixture(t, rule)

	bad := rawTransaction("txn-bad", "150.00")
	bad.Date = "not a date"

	result, err := f.engine.ProcessBatch(context.Background(), []models.RawTransaction{
		bad,
		rawTransaction("txn-ok", "150.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Malformed)
	assert.Equal(t, 1, result.Normalized)
	assert.Equal(t, 1, result.Succeeded)
}

func TestProcessBatchIgnoresInactiveRules(t *testing.T) {
	rule := notifyRule()
	rule.IsActive = false
	f := newEngineFixture(t, rule)

	result, err := f.engine.ProcessBatch(context.Background(), []models.RawTransaction{
		rawTransaction("txn-1", "150.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Matched)
	assert.Equal(t, 0, f.notifier.callCount())
	assert.Empty(t, f.log.all(), "an inactive rule must never produce a trigger record")
}

func TestProcessBatchReingestionIsIdempotent(t *testing.T) {
	rule := notifyRule()
	f := newEngineFixture(t, rule)
	batch := []models.RawTransaction{rawTransaction("txn-1", "150.00")}

	first, err := f.engine.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 1, first.Succeeded)

	second, err := f.engine.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)

	assert.Equal(t, 1, second.Matched)
	assert.Equal(t, 1, f.notifier.callCount(), "re-ingestion must not fire the effector again")
	assert.Len(t, f.log.all(), 1)
}

func TestProcessBatchMultipleRulesAreIndependent(t *testing.T) {
	notify := notifyRule()
	transfer := transferRule()
	f := newEngineFixture(t, notify, transfer)

	result, err := f.engine.ProcessBatch(context.Background(), []models.RawTransaction{
		rawTransaction("txn-1", "150.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Matched, "both active rules match and dispatch independently")
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, f.notifier.callCount())
	assert.Equal(t, 1, f.transfers.callCount())
}

func TestProcessBatchRecordsFailedOutcomes(t *testing.T) {
	rule := transferRule()
	f := newEngineFixture(t, rule)
	f.transfers.script = []error{
		PermanentEffector("insufficient funds in account \"checking\"", nil),
	}

	result, err := f.engine.ProcessBatch(context.Background(), []models.RawTransaction{
		rawTransaction("txn-1", "150.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	records := f.log.all()
	require.Len(t, records, 1)
	assert.Equal(t, models.OutcomeFailed, records[0].Outcome.Status)
	assert.Contains(t, records[0].Outcome.LastError, "insufficient funds")
}

func TestEngineReturnsToIdle(t *testing.T) {
	f := newEngineFixture(t, notifyRule())
	require.Equal(t, StateIdle, f.engine.State())

	_, err := f.engine.ProcessBatch(context.Background(), []models.RawTransaction{
		rawTransaction("txn-1", "150.00"),
	})
	require.NoError(t, err)

	assert.Equal(t, StateIdle, f.engine.State())
}

func TestProcessBatchSettlesWhileRetriesPending(t *testing.T) {
	rule := notifyRule()
	f := newEngineFixture(t, rule)
	f.d.BackoffBase = 20 * time.Millisecond
	f.notifier.script = []error{TransientEffector("network error", nil)}

	raw := rawTransaction("txn-1", "150.00")
	result, err := f.engine.ProcessBatch(context.Background(), []models.RawTransaction{raw})
	require.NoError(t, err)

	// The batch settles after the first attempt; the retry runs on its own.
	assert.Equal(t, 1, result.Retrying)
	assert.Equal(t, 0, result.Succeeded)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, StateIdle, f.engine.State())

	f.retrier.Wait()
	event, err := Normalize(raw)
	require.NoError(t, err)
	record := f.settledRecord(t, rule.ID, event.ID)
	assert.Equal(t, models.OutcomeSuccess, record.Outcome.Status)
	assert.Equal(t, 2, record.Outcome.Attempts)
	assert.Equal(t, 2, f.notifier.callCount())
}

func TestProcessBatchSkipsPairWhileRetryInFlight(t *testing.T) {
	rule := notifyRule()
	f := newEngineFixture(t, rule)
	f.d.BackoffBase = time.Hour
	f.notifier.script = []error{TransientEffector("network error", nil)}
	batch := []models.RawTransaction{rawTransaction("txn-1", "150.00")}

	first, err := f.engine.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	require.Equal(t, 1, first.Retrying)

	// The pair's claim is held by the pending retry, so re-ingestion skips it.
	second, err := f.engine.ProcessBatch(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 1, second.Skipped)
	assert.Equal(t, 0, second.Retrying)
	assert.Equal(t, 1, f.notifier.callCount())
}
