package admission

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCircuitBreakerOpensAfterThreshold(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{FailureThreshold: 3, ResetTimeout: time.Minute, RecoverSuccesses: 1})
	for i := 0; i < 3; i++ {
		_ = cb.Execute(func() error { return errBoom })
	}
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerRejectsWhileOpen(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: time.Minute, RecoverSuccesses: 1})
	_ = cb.Execute(func() error { return errBoom })
	require.Equal(t, CircuitOpen, cb.State())

	err := cb.Execute(func() error { t.Fatal("fn should not run while open"); return nil })
	var openErr *CircuitOpenError
	assert.ErrorAs(t, err, &openErr)
}

func TestCircuitBreakerHalfOpensAfterResetTimeout(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, RecoverSuccesses: 1})
	_ = cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	ran := false
	err := cb.Execute(func() error { ran = true; return nil })
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestCircuitBreakerHalfOpenFailureReopens(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, RecoverSuccesses: 2})
	_ = cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerOnlyExpectedErrorsCount(t *testing.T) {
	unexpected := errors.New("unexpected, ignored")
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     time.Minute,
		RecoverSuccesses: 1,
		ExpectedError:    func(err error) bool { return errors.Is(err, errBoom) },
	})
	_ = cb.Execute(func() error { return unexpected })
	assert.Equal(t, CircuitClosed, cb.State())

	_ = cb.Execute(func() error { return errBoom })
	assert.Equal(t, CircuitOpen, cb.State())
}

func TestCircuitBreakerRecoverySuccessesRequiresConsecutive(t *testing.T) {
	cb := NewCircuitBreaker("dep", CircuitBreakerConfig{FailureThreshold: 1, ResetTimeout: 10 * time.Millisecond, RecoverSuccesses: 2})
	_ = cb.Execute(func() error { return errBoom })
	time.Sleep(20 * time.Millisecond)

	_ = cb.Execute(func() error { return nil })
	assert.Equal(t, CircuitHalfOpen, cb.State())
	_ = cb.Execute(func() error { return nil })
	assert.Equal(t, CircuitClosed, cb.State())
}

func TestControllerGuardCreatesNamedBreakerLazily(t *testing.T) {
	c := NewController(RateLimitConfig{PointsPerWindow: 100, Window: time.Minute, BlockDuration: time.Minute},
		CircuitBreakerConfig{FailureThreshold: 5, ResetTimeout: time.Minute, RecoverSuccesses: 3})

	err := c.Guard("metadata-store", func() error { return nil })
	require.NoError(t, err)
	assert.Contains(t, c.Breakers(), "metadata-store")
}
