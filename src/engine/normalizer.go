package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"ruleflow-server/src/models"

	"github.com/shopspring/decimal"
)

// Normalize converts one raw source record into the canonical event shape.
// Pure and deterministic: the same raw record always yields the same event,
// including its ID, so the ledger can dedupe across re-ingestion.
func Normalize(raw models.RawTransaction) (models.TransactionEvent, error) {
	if raw.ExternalID == "" {
		return models.TransactionEvent{}, &MalformedInputError{Reason: "missing external_id"}
	}
	if raw.AccountID == "" {
		return models.TransactionEvent{}, &MalformedInputError{ExternalID: raw.ExternalID, Reason: "missing account_id"}
	}

	amount, err := decimal.NewFromString(raw.Amount)
	if err != nil {
		return models.TransactionEvent{}, &MalformedInputError{ExternalID: raw.ExternalID, Reason: "invalid amount " + raw.Amount}
	}

	date, err := parseDate(raw.Date)
	if err != nil {
		return models.TransactionEvent{}, &MalformedInputError{ExternalID: raw.ExternalID, Reason: "invalid date " + raw.Date}
	}

	return models.TransactionEvent{
		ID:          eventID(raw.ExternalID, raw.AccountID),
		AccountID:   raw.AccountID,
		Amount:      amount,
		Description: raw.Description,
		Category:    raw.Category,
		Date:        date,
	}, nil
}

// eventID derives a stable event identity from the source identifiers.
func eventID(externalID, accountID string) string {
	sum := sha256.Sum256([]byte(externalID + "|" + accountID))
	return hex.EncodeToString(sum[:])
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}
