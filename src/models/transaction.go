package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawTransaction is the wire shape the transaction source posts to the ingest
// endpoint. Amount and Date stay strings until normalization.
type RawTransaction struct {
	ExternalID  string `json:"external_id"`
	AccountID   string `json:"account_id"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Date        string `json:"date"`
}

// TransactionEvent is the canonical, normalized form of one transaction.
// It is immutable after normalization and passed by value through the engine.
// ID is a stable hash of the source identifiers, so re-ingesting the same
// upstream record always yields the same ID.
type TransactionEvent struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Category    string          `json:"category"`
	Date        time.Time       `json:"date"`
}
