package errors

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDetail_DoesNotMutateSentinel(t *testing.T) {
	first := ErrRateLimited.WithRetryAfter(5 * time.Second)
	d, ok := RetryAfter(first)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, d)

	// A later rate limit without a hint must not inherit the earlier delay.
	second := ErrRateLimited.WithDetail("message", "throttled, no hint")
	_, ok = RetryAfter(second)
	assert.False(t, ok)

	assert.Empty(t, ErrRateLimited.Details)
}

func TestWithDetail_CopiesExistingDetails(t *testing.T) {
	base := ErrPermanentReject.WithDetail("status", 404)
	derived := base.WithDetail("message", "unknown webhook")

	assert.Equal(t, 404, derived.Details["status"])
	assert.Equal(t, "unknown webhook", derived.Details["message"])
	_, ok := base.Details["message"]
	assert.False(t, ok, "derived detail must not leak into the base error")
}

func TestWithDetails_MergesWithoutSharing(t *testing.T) {
	base := ErrValidation.WithDetail("field", "webhook_url")
	merged := base.WithDetails(map[string]interface{}{"message": "bad prefix"})

	assert.Equal(t, "webhook_url", merged.Details["field"])
	assert.Equal(t, "bad prefix", merged.Details["message"])
	assert.Len(t, base.Details, 1)
}

func TestWithDetail_ConcurrentDerivationsFromOneSentinel(t *testing.T) {
	const goroutines = 8
	const perGoroutine = 1000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for g := 0; g < goroutines; g++ {
		go func(id int) {
			defer wg.Done()
			for i := 0; i < perGoroutine; i++ {
				err := ErrRateLimited.WithDetail("worker", id)
				if i%2 == 0 {
					err = err.WithRetryAfter(time.Duration(i) * time.Millisecond)
				}
				_ = err.Error()
			}
		}(g)
	}
	wg.Wait()

	assert.Empty(t, ErrRateLimited.Details)
}

func TestIsCircuitOpen(t *testing.T) {
	err := ErrCircuitOpen.WithCause(errors.New("breaker open"))
	assert.True(t, IsCircuitOpen(err))
	assert.False(t, IsCircuitOpen(ErrQueueFull))
}

func TestWithCause_PreservesCodeMatching(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(cause, ErrServiceUnavailable)

	assert.True(t, hasCode(err, ErrServiceUnavailable.Code))
	assert.ErrorIs(t, err, cause)
}
