package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteSucceedsFirstAttempt(t *testing.T) {
	policy := NewPolicy(3, time.Millisecond)

	calls := 0
	err := policy.Execute(context.Background(), func() error {
		calls++
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestExecuteRetriesUntilSuccess(t *testing.T) {
	policy := NewPolicy(5, time.Millisecond)

	calls := 0
	err := policy.Execute(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestExecuteExhaustsAttempts(t *testing.T) {
	policy := NewPolicy(3, time.Millisecond)

	failure := errors.New("still broken")
	calls := 0
	err := policy.Execute(context.Background(), func() error {
		calls++
		return failure
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, failure)
	assert.Contains(t, err.Error(), "all 3 attempts failed")
}

func TestExecuteWithConditionStopsOnPermanentError(t *testing.T) {
	policy := NewPolicy(5, time.Millisecond)

	permanent := errors.New("permanent")
	calls := 0
	err := policy.ExecuteWithCondition(context.Background(), func() error {
		calls++
		return permanent
	}, func(err error) bool {
		return false
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, permanent)
}

func TestExecuteRespectsContextCancellation(t *testing.T) {
	policy := NewPolicy(10, time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := policy.Execute(ctx, func() error {
		return errors.New("transient")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelayBackoff(t *testing.T) {
	policy := &Policy{
		MaxAttempts:  5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}

	assert.Equal(t, 100*time.Millisecond, policy.calculateDelay(0))
	assert.Equal(t, 200*time.Millisecond, policy.calculateDelay(1))
	assert.Equal(t, 400*time.Millisecond, policy.calculateDelay(2))
	// Capped at MaxDelay.
	assert.Equal(t, time.Second, policy.calculateDelay(5))
}

func TestCalculateDelayJitterBounds(t *testing.T) {
	policy := &Policy{
		MaxAttempts:     3,
		InitialDelay:    100 * time.Millisecond,
		MaxDelay:        time.Minute,
		Multiplier:      2.0,
		RandomizeFactor: 0.25,
	}

	for i := 0; i < 50; i++ {
		delay := policy.calculateDelay(0)
		assert.GreaterOrEqual(t, delay, 75*time.Millisecond)
		assert.LessOrEqual(t, delay, 125*time.Millisecond)
	}
}
