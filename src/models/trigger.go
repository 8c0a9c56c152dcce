package models

import "time"

// Trigger record outcome statuses.
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

type ActionOutcome struct {
	Status    string `json:"status"`
	Attempts  int    `json:"attempts"`
	LastError string `json:"last_error,omitempty"`
}

// TriggerRecord is one append-only execution log entry: a rule matched an
// event and the dispatch settled with the recorded outcome.
type TriggerRecord struct {
	ID           string        `json:"id"`
	RuleID       string        `json:"rule_id"`
	EventID      string        `json:"event_id"`
	MatchedAt    time.Time     `json:"matched_at"`
	Outcome      ActionOutcome `json:"outcome"`
	DispatchedAt time.Time     `json:"dispatched_at"`
}
