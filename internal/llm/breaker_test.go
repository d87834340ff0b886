package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute})
	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateClosed, b.State())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	now := time.Now()
	var transitions []string
	b := NewBreaker(BreakerConfig{
		FailureThreshold: 1,
		OpenTimeout:      time.Second,
		OnStateChange:    func(from, to State) { transitions = append(transitions, from.String()+"->"+to.String()) },
	})
	b.now = func() time.Time { return now }

	b.RecordFailure()
	assert.ErrorIs(t, b.Allow(), ErrCircuitOpen)

	now = now.Add(2 * time.Second)
	require.NoError(t, b.Allow())
	assert.Equal(t, StateHalfOpen, b.State())

	b.RecordSuccess()
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	now := time.Now()
	b := NewBreaker(BreakerConfig{FailureThreshold: 1, OpenTimeout: time.Second})
	b.now = func() time.Time { return now }

	b.RecordFailure()
	now = now.Add(2 * time.Second)
	require.NoError(t, b.Allow())
	b.RecordFailure()
	assert.Equal(t, StateOpen, b.State())
}

func TestGuardedFailsFastWhenOpen(t *testing.T) {
	calls := 0
	failing := CompleterFunc(func(context.Context, string, string) (string, error) {
		calls++
		return "", errors.New("provider down")
	})
	g := NewGuarded(failing, NewBreaker(BreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute}))

	for i := 0; i < 5; i++ {
		_, err := g.Complete(context.Background(), "sys", "hi")
		require.Error(t, err)
	}
	assert.Equal(t, 2, calls)
}

func TestGuardedIgnoresCallerCancellation(t *testing.T) {
	cancelled := CompleterFunc(func(context.Context, string, string) (string, error) {
		return "", context.Canceled
	})
	b := NewBreaker(BreakerConfig{FailureThreshold: 1})
	g := NewGuarded(cancelled, b)

	_, err := g.Complete(context.Background(), "sys", "hi")
	require.Error(t, err)
	assert.Equal(t, StateClosed, b.State())
}

func TestGuardedPassesThroughReply(t *testing.T) {
	ok := CompleterFunc(func(_ context.Context, sys, text string) (string, error) {
		return sys + ":" + text, nil
	})
	out, err := NewGuarded(ok, NewBreaker(BreakerConfig{})).Complete(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.Equal(t, "a:b", out)
}
