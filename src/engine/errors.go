package engine

import (
	"errors"
	"fmt"
)

// ValidationError means a rule or request failed schema validation. Never
// retried; surfaced to the caller immediately.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation failed: " + e.Reason
}

// MalformedInputError means a single raw transaction could not be normalized.
// The record is skipped; the batch continues.
type MalformedInputError struct {
	ExternalID string
	Reason     string
}

func (e *MalformedInputError) Error() string {
	return fmt.Sprintf("malformed transaction %q: %s", e.ExternalID, e.Reason)
}

// EffectorError is a failure from an external effector call, classified as
// transient (retry with backoff) or permanent (record and never retry).
type EffectorError struct {
	Transient bool
	Reason    string
	Err       error
}

func (e *EffectorError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("effector: %s: %v", e.Reason, e.Err)
	}
	return "effector: " + e.Reason
}

func (e *EffectorError) Unwrap() error { return e.Err }

// TransientEffector wraps a network/timeout class failure.
func TransientEffector(reason string, err error) error {
	return &EffectorError{Transient: true, Reason: reason, Err: err}
}

// PermanentEffector wraps a validation/authorization class failure. Reason is
// shown to users on the trigger record, so keep it human-readable.
func PermanentEffector(reason string, err error) error {
	return &EffectorError{Transient: false, Reason: reason, Err: err}
}

// StorageError means the rule store, ledger or execution log failed. Fatal to
// the current batch item, propagated to the orchestrator.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func IsTransient(err error) bool {
	var ee *EffectorError
	return errors.As(err, &ee) && ee.Transient
}

func IsPermanent(err error) bool {
	var ee *EffectorError
	return errors.As(err, &ee) && !ee.Transient
}

func IsStorage(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}
