/*
errors.go - Centralized error types for the ingestion engine

PURPOSE:
  All error types in one place. Callers match with errors.Is on the
  sentinels or errors.As on the structured types.

ERROR CATEGORIES:
  1. Caller errors - validation, locked window, duplicate submission.
     These are the only errors a client ever sees.
  2. Award errors - persisted record, failed unlock or points update.
     Logged by the coordinator, never returned to the caller.
  3. Store errors - lookups and infrastructure failures.

SEE ALSO:
  - ingest.go: Produces these errors
  - api/handlers.go: Maps them to HTTP status codes
*/
package insights

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is returned for malformed input (revenue <= 0, month out of range).
	ErrValidation = errors.New("validation failed")

	// ErrWindowLocked is returned when the period is not currently submittable.
	ErrWindowLocked = errors.New("submission window locked")

	// ErrDuplicateSubmission is returned when the store already holds a record
	// for the client and period. The store's unique constraint is the authority.
	ErrDuplicateSubmission = errors.New("period already recorded")

	// ErrAlreadyUnlocked is returned by the store when the (client, achievement)
	// pair already exists. Expected under concurrent evaluation.
	ErrAlreadyUnlocked = errors.New("achievement already unlocked")

	// ErrAwardPersistence wraps unlock or points failures after the record is stored.
	ErrAwardPersistence = errors.New("award persistence failed")

	// ErrClientNotFound is returned when the submitting client does not exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrUnknownAchievement is returned when a code is not in the catalog.
	ErrUnknownAchievement = errors.New("unknown achievement")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// IneligibleWindowError is a normal business rejection, not a system fault.
type IneligibleWindowError struct {
	Period Period
	Reason string
}

func (e *IneligibleWindowError) Error() string {
	return fmt.Sprintf("period %s is locked: %s", e.Period, e.Reason)
}

func (e *IneligibleWindowError) Unwrap() error { return ErrWindowLocked }

// DuplicateSubmissionError reports which (client, period) already exists.
type DuplicateSubmissionError struct {
	ClientID ClientID
	Period   Period
}

func (e *DuplicateSubmissionError) Error() string {
	return fmt.Sprintf("record for %s already exists for client %s", e.Period, e.ClientID)
}

func (e *DuplicateSubmissionError) Unwrap() error { return ErrDuplicateSubmission }

// AwardPersistenceError carries the achievement that failed to persist.
type AwardPersistenceError struct {
	ClientID ClientID
	Code     AchievementCode
	Err      error
}

func (e *AwardPersistenceError) Error() string {
	return fmt.Sprintf("persist %s for client %s: %v", e.Code, e.ClientID, e.Err)
}

func (e *AwardPersistenceError) Unwrap() []error { return []error{ErrAwardPersistence, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error should be shown to the caller.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrWindowLocked) ||
		errors.Is(err, ErrDuplicateSubmission)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrUnknownAchievement)
}
