package engine

import (
	"context"
	"errors"
	"sync"

	"ruleflow-server/src/models"

	"github.com/shopspring/decimal"
)

// In-memory collaborators for engine tests. They honor the same contracts as
// the Postgres-backed stores, including the ledger's atomic claim.

type memRules struct {
	mu       sync.Mutex
	rules    map[string]models.Rule
	failGets bool
}

func newMemRules(rules ...models.Rule) *memRules {
	m := &memRules{rules: make(map[string]models.Rule)}
	for _, r := range rules {
		m.rules[r.ID] = r
	}
	return m
}

func (m *memRules) Get(_ context.Context, id string) (*models.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failGets {
		return nil, errors.New("rule store unavailable")
	}
	rule, ok := m.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return &rule, nil
}

func (m *memRules) setFailGets(fail bool) {
	m.mu.Lock()
	m.failGets = fail
	m.mu.Unlock()
}

func (m *memRules) ListActive(_ context.Context) ([]models.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var active []models.Rule
	for _, rule := range m.rules {
		if rule.IsActive {
			active = append(active, rule)
		}
	}
	return active, nil
}

func (m *memRules) deactivate(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rule := m.rules[id]
	rule.IsActive = false
	m.rules[id] = rule
}

type memClaim struct {
	state   string
	outcome string
}

type memLedger struct {
	mu   sync.Mutex
	rows map[string]memClaim
}

func newMemLedger() *memLedger {
	return &memLedger{rows: make(map[string]memClaim)}
}

func ledgerKey(ruleID, eventID string) string { return ruleID + "|" + eventID }

func (m *memLedger) Claim(_ context.Context, ruleID, eventID string) (ClaimResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.rows[ledgerKey(ruleID, eventID)].state {
	case "":
		m.rows[ledgerKey(ruleID, eventID)] = memClaim{state: "in_flight"}
		return ClaimAcquired, nil
	case "processed":
		return ClaimAlreadyProcessed, nil
	default:
		return ClaimInFlight, nil
	}
}

func (m *memLedger) MarkProcessed(_ context.Context, ruleID, eventID, outcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[ledgerKey(ruleID, eventID)] = memClaim{state: "processed", outcome: outcome}
	return nil
}

func (m *memLedger) Release(_ context.Context, ruleID, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rows[ledgerKey(ruleID, eventID)].state == "in_flight" {
		delete(m.rows, ledgerKey(ruleID, eventID))
	}
	return nil
}

func (m *memLedger) HasProcessed(_ context.Context, ruleID, eventID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[ledgerKey(ruleID, eventID)].state == "processed", nil
}

func (m *memLedger) ProcessedOutcome(_ context.Context, ruleID, eventID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[ledgerKey(ruleID, eventID)]
	if row.state != "processed" {
		return "", nil
	}
	return row.outcome, nil
}

func (m *memLedger) inFlight(ruleID, eventID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rows[ledgerKey(ruleID, eventID)].state == "in_flight"
}

type memLog struct {
	mu      sync.Mutex
	records []models.TriggerRecord
}

func newMemLog() *memLog { return &memLog{} }

func (m *memLog) Append(_ context.Context, record models.TriggerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memLog) LastProcessed(_ context.Context, ruleID, eventID string) (*models.TriggerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.records) - 1; i >= 0; i-- {
		if m.records[i].RuleID == ruleID && m.records[i].EventID == eventID {
			record := m.records[i]
			return &record, nil
		}
	}
	return nil, nil
}

func (m *memLog) QueryByRule(_ context.Context, ruleID, afterID string, limit int) ([]models.TriggerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if limit < 1 {
		limit = 100
	}
	start := 0
	if afterID != "" {
		found := false
		for i, record := range m.records {
			if record.ID == afterID {
				start = i + 1
				found = true
				break
			}
		}
		if !found {
			return nil, ErrUnknownCursor
		}
	}
	var out []models.TriggerRecord
	for _, record := range m.records[start:] {
		if record.RuleID != ruleID {
			continue
		}
		out = append(out, record)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memLog) all() []models.TriggerRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.TriggerRecord(nil), m.records...)
}

func (m *memLog) successCount(ruleID, eventID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, record := range m.records {
		if record.RuleID == ruleID && record.EventID == eventID && record.Outcome.Status == models.OutcomeSuccess {
			n++
		}
	}
	return n
}

// fakeEffector scripts one error per call; once the script runs out, calls
// succeed. It backs both the notifier and transfer contracts.
type fakeEffector struct {
	mu     sync.Mutex
	script []error
	calls  int

	// onCall runs under the lock with the 1-based call number, before the
	// scripted result is returned.
	onCall func(call int)

	lastSource      string
	lastDestination string
	lastAmount      decimal.Decimal
}

func (f *fakeEffector) next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.onCall != nil {
		f.onCall(f.calls)
	}
	if len(f.script) == 0 {
		return nil
	}
	err := f.script[0]
	f.script = f.script[1:]
	return err
}

func (f *fakeEffector) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeEffector) Send(_ context.Context, _, _ string) error { return f.next() }

func (f *fakeEffector) Transfer(_ context.Context, source, destination string, amount decimal.Decimal) error {
	f.mu.Lock()
	f.lastSource = source
	f.lastDestination = destination
	f.lastAmount = amount
	f.mu.Unlock()
	return f.next()
}
