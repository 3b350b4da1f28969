package apperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateBusinessErrorMapsPreconditionFailures(t *testing.T) {
	err := ValidateBusinessError(ErrFreeLookExpired, "Policy")

	var pf PreconditionFailedError
	assert.True(t, errors.As(err, &pf))
	assert.Equal(t, "Policy", pf.EntityType)
	assert.Equal(t, ErrFreeLookExpired.Error(), pf.Code)
}

func TestValidateBusinessErrorMapsValidationFailures(t *testing.T) {
	err := ValidateBusinessError(ErrInvalidPhone, "Rider")

	var ve ValidationError
	assert.True(t, errors.As(err, &ve))
	assert.Equal(t, "Rider", ve.EntityType)
}

func TestValidateBusinessErrorPassesThroughUnknownErrors(t *testing.T) {
	other := errors.New("boom")
	assert.Equal(t, other, ValidateBusinessError(other, "Rider"))
}

func TestIsRetryableConflict(t *testing.T) {
	assert.True(t, IsRetryableConflict(ConflictError{Retryable: true}))
	assert.False(t, IsRetryableConflict(ConflictError{Retryable: false}))
	assert.False(t, IsRetryableConflict(errors.New("not a conflict")))
}
