// Package apperr implements the error taxonomy every component in this
// repository surfaces: validation, not-found, conflict, precondition-failed,
// transient-upstream, permanent-upstream and internal.
package apperr

import (
	"errors"
	"fmt"
)

// ValidationError indicates the caller supplied bad input.
type ValidationError struct {
	EntityType string
	Code       string
	Message    string
	Err        error
}

func (e ValidationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s - %s", e.Code, e.Message)
	}

	return e.Message
}

func (e ValidationError) Unwrap() error { return e.Err }

// NotFoundError indicates the referenced entity does not exist.
type NotFoundError struct {
	EntityType string
	ID         string
	Err        error
}

func (e NotFoundError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("%s %s not found", e.EntityType, e.ID)
	}

	return fmt.Sprintf("%s not found", e.EntityType)
}

func (e NotFoundError) Unwrap() error { return e.Err }

// ConflictError covers idempotency collisions, optimistic-version
// mismatches and unique-constraint violations.
type ConflictError struct {
	EntityType string
	Code       string
	Message    string
	Retryable  bool
	Err        error
}

func (e ConflictError) Error() string {
	if e.Message != "" {
		return e.Message
	}

	return fmt.Sprintf("%s conflict (%s)", e.EntityType, e.Code)
}

func (e ConflictError) Unwrap() error { return e.Err }

// PreconditionFailedError covers business rules that block an action
// (KYC not approved, deposit already made, policy outside its free-look
// window, and similar).
type PreconditionFailedError struct {
	EntityType string
	Code       string
	Message    string
}

func (e PreconditionFailedError) Error() string {
	return fmt.Sprintf("%s - %s", e.Code, e.Message)
}

// TransientUpstreamError covers provider network/5xx/rate-limit failures
// that are safe to retry with backoff.
type TransientUpstreamError struct {
	Provider string
	Message  string
	Err      error
}

func (e TransientUpstreamError) Error() string {
	return fmt.Sprintf("transient upstream error from %s: %s", e.Provider, e.Message)
}

func (e TransientUpstreamError) Unwrap() error { return e.Err }

// PermanentUpstreamError covers provider rejections that must not be
// retried (invalid phone, blacklisted recipient, invalid sender, auth
// failed).
type PermanentUpstreamError struct {
	Provider string
	Category string
	Message  string
}

func (e PermanentUpstreamError) Error() string {
	return fmt.Sprintf("permanent upstream error from %s (%s): %s", e.Provider, e.Category, e.Message)
}

// InternalError wraps a bug or resource exhaustion. Callers surface it as
// a 500-class failure; identifiers embedded in Message must already be
// masked by the caller (see platform/log.Redact).
type InternalError struct {
	Message string
	Err     error
}

func (e InternalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Message, e.Err.Error())
	}

	return e.Message
}

func (e InternalError) Unwrap() error { return e.Err }

// ValidateBusinessError normalizes an already-typed sentinel error (one
// of the Err* vars declared by a domain package) into the richer
// PreconditionFailedError/ValidationError carrying the entity type,
// at the point where a repository or command surfaces it.
func ValidateBusinessError(err error, entityType string) error {
	var code string

	switch {
	case errors.Is(err, ErrKYCNotApproved),
		errors.Is(err, ErrDepositAlreadyMade),
		errors.Is(err, ErrDailyCycleAlreadyComplete),
		errors.Is(err, ErrFreeLookExpired),
		errors.Is(err, ErrPolicyNotCancellable),
		errors.Is(err, ErrDailyPaymentExceedsCap):
		code = err.Error()

		return PreconditionFailedError{EntityType: entityType, Code: code, Message: err.Error()}
	case errors.Is(err, ErrInvalidPhone),
		errors.Is(err, ErrInvalidDaysCount),
		errors.Is(err, ErrInvalidAmount):
		code = err.Error()

		return ValidationError{EntityType: entityType, Code: code, Message: err.Error(), Err: err}
	default:
		return err
	}
}

// Sentinel business-rule errors referenced by ValidateBusinessError and
// compared directly by callers/tests.
var (
	ErrKYCNotApproved            = errors.New("KYC_NOT_APPROVED")
	ErrDepositAlreadyMade         = errors.New("DEPOSIT_ALREADY_MADE")
	ErrDailyCycleAlreadyComplete  = errors.New("DAILY_CYCLE_ALREADY_COMPLETE")
	ErrDailyPaymentExceedsCap     = errors.New("DAILY_PAYMENT_EXCEEDS_CAP")
	ErrInvalidPhone               = errors.New("INVALID_PHONE")
	ErrInvalidDaysCount           = errors.New("INVALID_DAYS_COUNT")
	ErrInvalidAmount              = errors.New("INVALID_AMOUNT")
	ErrFreeLookExpired            = errors.New("FREE_LOOK_EXPIRED")
	ErrPolicyNotCancellable       = errors.New("POLICY_NOT_CANCELLABLE")
	ErrDuplicateIdempotencyKey    = errors.New("DUPLICATE_IDEMPOTENCY_KEY")
	ErrProviderUnavailable        = errors.New("PROVIDER_UNAVAILABLE")
)

// IsRetryableConflict reports whether err is a ConflictError the caller
// should retry locally (optimistic-version mismatch), as opposed to one
// that should be surfaced (idempotency replay, unique violation).
func IsRetryableConflict(err error) bool {
	var ce ConflictError
	if errors.As(err, &ce) {
		return ce.Retryable
	}

	return false
}
