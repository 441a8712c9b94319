package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageWithoutWrappedErr(t *testing.T) {
	e := New(Validation, "V1", "bad input")
	assert.Equal(t, "V1: bad input", e.Error())
	assert.Nil(t, e.Unwrap())
}

func TestErrorMessageWithWrappedErr(t *testing.T) {
	inner := errors.New("connection refused")
	e := Wrap(Transient, "T1", "network failure", inner)
	assert.Equal(t, "T1: network failure: connection refused", e.Error())
	assert.Equal(t, inner, e.Unwrap())
}

func TestConstructorsSetExpectedKind(t *testing.T) {
	assert.Equal(t, Validation, NewValidation("C", "m").Kind)
	assert.Equal(t, InvalidState, NewInvalidState("C", "m").Kind)
	assert.Equal(t, NotFound, NewNotFound("C", "m").Kind)
	assert.Equal(t, CapacityExhausted, NewCapacityExhausted("C", "m").Kind)
	assert.Equal(t, Transient, NewTransient("C", "m", nil).Kind)
	assert.Equal(t, Fatal, NewFatal("C", "m", nil).Kind)
}

func TestKindOfUnwrapsWrappedErrors(t *testing.T) {
	base := NewNotFound("N1", "uav not found")
	wrapped := fmt.Errorf("lookup failed: %w", base)
	assert.Equal(t, NotFound, KindOf(wrapped))
}

func TestKindOfDefaultsToFatalForUnknownErrors(t *testing.T) {
	assert.Equal(t, Fatal, KindOf(errors.New("boom")))
}

func TestKindOfNilIsFatal(t *testing.T) {
	assert.Equal(t, Fatal, KindOf(nil))
}
