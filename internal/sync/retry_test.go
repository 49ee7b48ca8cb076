package sync

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_NextDelay(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, MaxDelay: time.Minute, BackoffFactor: 2}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 32*time.Second, policy.NextDelay(6))

	// Clamped at the ceiling no matter how many attempts accumulate.
	assert.Equal(t, time.Minute, policy.NextDelay(7))
	assert.Equal(t, time.Minute, policy.NextDelay(100))

	// Out-of-range attempts fall back to the first delay.
	assert.Equal(t, time.Second, policy.NextDelay(0))
	assert.Equal(t, time.Second, policy.NextDelay(-3))
}

func TestRetryPolicy_ZeroValueDefaults(t *testing.T) {
	var policy RetryPolicy
	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
}

func TestIsTransport(t *testing.T) {
	transport := &TransportError{Err: errors.New("connection reset")}
	assert.True(t, IsTransport(transport))
	assert.True(t, IsTransport(fmt.Errorf("upload batch: %w", transport)))
	assert.False(t, IsTransport(errors.New("connection reset")))
	assert.False(t, IsTransport(&RejectedError{Reason: "tenant mismatch"}))

	// The wrapped cause stays reachable.
	assert.ErrorContains(t, transport, "connection reset")
}
