package retry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

var errTaken = errors.New("taken")

func TestFixedDelay_StopsOnFirstSuccess(t *testing.T) {
	calls := 0
	policy := NewFixedDelay(&Config{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return errors.Is(err, errTaken) },
	})

	err := policy.Execute(func() error {
		calls++
		if calls < 3 {
			return errTaken
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestFixedDelay_NonRetryableErrorIsReturnedAsIs(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	policy := NewFixedDelay(&Config{
		MaxAttempts: 1,
		Retryable:   func(err error) bool { return errors.Is(err, errTaken) },
	})

	err := policy.Execute(func() error {
		calls++
		return boom
	})

	assert.Same(t, boom, err)
	assert.False(t, IsMaxRetriesExceeded(err))
	assert.Equal(t, 1, calls)
}

func TestFixedDelay_ExhaustionWrapsLastError(t *testing.T) {
	calls := 0
	policy := NewFixedDelay(&Config{
		MaxAttempts: 5,
		Retryable:   func(err error) bool { return errors.Is(err, errTaken) },
	})

	err := policy.Execute(func() error {
		calls++
		return errTaken
	})

	assert.True(t, IsMaxRetriesExceeded(err))
	assert.ErrorIs(t, err, errTaken)
	assert.Equal(t, 5, calls)
}

func TestExponentialBackoff_DefaultRetryableMatchesTransientErrors(t *testing.T) {
	calls := 0
	policy := NewExponentialBackoff(&Config{MaxAttempts: 2, Multiplier: 2})

	err := policy.Execute(func() error {
		calls++
		return errors.New("dial tcp: connection refused")
	})

	assert.True(t, IsMaxRetriesExceeded(err))
	assert.Equal(t, 2, calls)
}

func TestExponentialBackoff_CalculateDelayIsCapped(t *testing.T) {
	policy := NewExponentialBackoff(nil)

	assert.Equal(t, DefaultConfig().BaseDelay, policy.calculateDelay(1))
	assert.Equal(t, 2*DefaultConfig().BaseDelay, policy.calculateDelay(2))
	assert.Equal(t, DefaultConfig().MaxDelay, policy.calculateDelay(40))
}
