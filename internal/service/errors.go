package service

import (
	"errors"
	"fmt"

	"github.com/xtm888/medflow-clinic-sub003/pkg/validator"
)

// Business refusals return as typed errors; only ErrIntegrity and
// infrastructure faults are treated as server-side failures.
var (
	// ErrInsufficientStock is a refusal, not a fault; callers may retry.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidState marks a transition the entity's current state forbids.
	// It is always reported, never absorbed into a silent no-op.
	ErrInvalidState = errors.New("invalid state transition")
	// ErrNotFound covers both missing entities and entities outside the
	// caller's clinic scope.
	ErrNotFound = errors.New("not found")
	// ErrIntegrity means ledger and batch totals disagree. Fatal to the
	// operation and never auto-corrected.
	ErrIntegrity = errors.New("ledger/batch integrity violation")

	ErrAlreadyOpened    = errors.New("container already opened")
	ErrNoDosesRemaining = errors.New("no doses remaining")
	ErrBeyondUseDate    = errors.New("beyond-use date exceeded")
)

// ValidationError rejects malformed input before any transaction starts.
type ValidationError struct {
	Field string
	Tag   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: field '%s' failed on tag '%s'", e.Field, e.Tag)
}

func validateInput(data interface{}) error {
	if fe := validator.First(data); fe != nil {
		return &ValidationError{Field: fe.FailedField, Tag: fe.Tag}
	}
	return nil
}

// IsValidation reports whether err is a pre-transaction input rejection.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
