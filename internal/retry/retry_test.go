package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/falconmind/clustercenter/pkg/errs"
	"github.com/stretchr/testify/assert"
)

func TestClassifyErr(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"validation", errs.NewValidation("C1", "bad"), ClassValidation},
		{"transient", errs.NewTransient("C2", "down", nil), ClassNetwork},
		{"capacity", errs.NewCapacityExhausted("C3", "full"), ClassRateLimit},
		{"invalid state", errs.NewInvalidState("C4", "bad state"), ClassClient},
		{"fatal", errs.NewFatal("C5", "boom", nil), ClassServer},
		{"plain error", errors.New("boom"), ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ClassifyErr(tc.err))
		})
	}
}

func TestManagerNextRetriesUpToMaxThenStops(t *testing.T) {
	m := NewManager()
	err := errs.NewTransient("NET", "connection reset", nil)

	d1 := m.Next(err, "SINGLE_UAV", 1)
	assert.True(t, d1.ShouldRetry)
	assert.Equal(t, 500*time.Millisecond, d1.Delay)

	d2 := m.Next(err, "SINGLE_UAV", 2)
	assert.True(t, d2.ShouldRetry)
	assert.Equal(t, time.Second, d2.Delay)

	d6 := m.Next(err, "SINGLE_UAV", 6)
	assert.False(t, d6.ShouldRetry)
}

func TestManagerNextValidationNeverRetries(t *testing.T) {
	m := NewManager()
	validationErr := errs.NewValidation("V1", "missing field")
	d := m.Next(validationErr, "SINGLE_UAV", 1)
	assert.False(t, d.ShouldRetry)
}

func TestManagerNextRateLimitFloorsDelay(t *testing.T) {
	m := NewManager()
	err := errs.NewCapacityExhausted("CAP", "no uavs available")

	d := m.Next(err, "SINGLE_UAV", 1)
	assert.True(t, d.ShouldRetry)
	assert.GreaterOrEqual(t, d.Delay, rateLimitFloor)
}

func TestManagerSetOverrideTakesPrecedence(t *testing.T) {
	m := NewManager()
	m.SetOverride("CLUSTER", ClassNetwork, Policy{MaxRetries: 0, ShouldRetry: false})

	err := errs.NewTransient("NET", "reset", nil)
	d := m.Next(err, "CLUSTER", 1)
	assert.False(t, d.ShouldRetry)

	// A different mission type is unaffected by the override.
	d2 := m.Next(err, "SINGLE_UAV", 1)
	assert.True(t, d2.ShouldRetry)
}

func TestManagerRetryStatisticsAccumulates(t *testing.T) {
	m := NewManager()
	err := errs.NewTransient("NET", "reset", nil)

	m.Next(err, "SINGLE_UAV", 1)
	m.Next(err, "SINGLE_UAV", 2)
	m.RecordSuccessAfterRetry(err)

	stats := m.RetryStatistics()
	found := false
	for _, s := range stats {
		if s.Class == string(ClassNetwork) {
			found = true
			assert.Equal(t, 2, s.Seen)
			assert.Equal(t, 2, s.Retried)
			assert.Equal(t, 1, s.SucceededAfterRetry)
		}
	}
	assert.True(t, found, "expected to find NETWORK class stats in %+v", stats)
}
