package engine

import (
	"context"
	"log"
	"sync"

	"ruleflow-server/src/models"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is the orchestrator's position in its processing loop. The engine is
// long-lived; there is no terminal state.
type State string

const (
	StateIdle        State = "idle"
	StateIngesting   State = "ingesting"
	StateEvaluating  State = "evaluating"
	StateDispatching State = "dispatching"
)

// BatchResult summarizes one batch run for the caller.
type BatchResult struct {
	BatchID    string `json:"batch_id"`
	Received   int    `json:"received"`
	Normalized int    `json:"normalized"`
	Malformed  int    `json:"malformed"`
	Matched    int    `json:"matched"`
	Succeeded  int    `json:"succeeded"`
	Failed     int    `json:"failed"`
	Retrying   int    `json:"retrying"`
	Skipped    int    `json:"skipped"`
	Errors     int    `json:"errors"`
}

// Engine drives batches through normalize, evaluate and dispatch. Batches run
// one at a time end-to-end; within a batch, independent (rule, event) pairs
// run concurrently. The ledger claim inside the dispatcher is the only
// serialization point between pairs.
type Engine struct {
	rules       RuleStore
	dispatcher  *Dispatcher
	metrics     *Metrics
	parallelism int

	batchMu sync.Mutex
	stateMu sync.Mutex
	state   State
}

func New(rules RuleStore, dispatcher *Dispatcher, metrics *Metrics, parallelism int) *Engine {
	if parallelism < 1 {
		parallelism = 1
	}
	return &Engine{
		rules:       rules,
		dispatcher:  dispatcher,
		metrics:     metrics,
		parallelism: parallelism,
		state:       StateIdle,
	}
}

// State reports the current orchestrator state for observability.
func (e *Engine) State() State {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.state
}

func (e *Engine) setState(s State) {
	e.stateMu.Lock()
	e.state = s
	e.stateMu.Unlock()
}

type match struct {
	rule  models.Rule
	event models.TransactionEvent
}

// ProcessBatch runs one batch of raw transactions through the engine and
// returns once every dispatch has run its first attempt. Dispatches that hit
// a transient failure continue as deferred retry work and are counted in
// Retrying; the engine returns to idle without waiting for them. Malformed
// records and per-item storage failures are logged and counted; only a
// failure to read the active rule set aborts the whole batch.
func (e *Engine) ProcessBatch(ctx context.Context, raws []models.RawTransaction) (BatchResult, error) {
	e.batchMu.Lock()
	defer e.batchMu.Unlock()
	defer e.setState(StateIdle)

	result := BatchResult{BatchID: uuid.NewString(), Received: len(raws)}
	e.metrics.observeBatch()

	e.setState(StateIngesting)
	events := make([]models.TransactionEvent, 0, len(raws))
	for _, raw := range raws {
		event, err := Normalize(raw)
		if err != nil {
			log.Printf("INFO: Skipping malformed transaction in batch %s: %v", result.BatchID, err)
			e.metrics.observeMalformed()
			result.Malformed++
			continue
		}
		events = append(events, event)
	}
	result.Normalized = len(events)

	e.setState(StateEvaluating)
	rules, err := e.rules.ListActive(ctx)
	if err != nil {
		return result, storage("list active rules", err)
	}

	var mu sync.Mutex
	var matches []match

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for _, rule := range rules {
		for _, event := range events {
			rule, event := rule, event
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				matched := Evaluate(rule, event)
				e.metrics.observeEvaluation(matched)
				if matched {
					mu.Lock()
					matches = append(matches, match{rule: rule, event: event})
					mu.Unlock()
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return result, err
	}
	result.Matched = len(matches)

	e.setState(StateDispatching)
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for _, m := range matches {
		m := m
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			record, err := e.dispatcher.Dispatch(gctx, m.rule, m.event)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == ErrDispatchInFlight:
				result.Skipped++
			case err == ErrRetryScheduled:
				result.Retrying++
			case err != nil && IsStorage(err):
				// Fatal to this batch item only; the rest of the batch
				// continues.
				log.Printf("ERROR: Storage failure dispatching rule %s for event %s: %v", m.rule.ID, m.event.ID, err)
				result.Errors++
			case err != nil:
				log.Printf("ERROR: Dispatch aborted for rule %s event %s: %v", m.rule.ID, m.event.ID, err)
				result.Errors++
			case record.Outcome.Status == models.OutcomeSuccess:
				result.Succeeded++
			default:
				result.Failed++
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	log.Printf("INFO: Batch %s settled: %d received, %d normalized, %d matched, %d succeeded, %d failed, %d retrying, %d skipped, %d errors",
		result.BatchID, result.Received, result.Normalized, result.Matched, result.Succeeded, result.Failed, result.Retrying, result.Skipped, result.Errors)
	return result, nil
}
