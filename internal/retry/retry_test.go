package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsFirstTry(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoRetriesUntilSuccess(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3}, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoExhaustsAttempts(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3}, func() error {
		calls++
		return boom
	})
	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.True(t, errors.Is(err, boom))
	assert.Contains(t, err.Error(), "3 attempts")
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("bad credentials")
	calls := 0
	err := Do(context.Background(), Policy{
		Attempts:  5,
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
	}, func() error {
		calls++
		return fatal
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestDoHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Do(ctx, Policy{Attempts: 10, Delay: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestDoZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{}, func() error {
		calls++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
