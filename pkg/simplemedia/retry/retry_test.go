package retry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-media/pkg/simplemedia/retry"
)

var errCollision = errors.New("collision")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	v, err := retry.Do(context.Background(), 5, retry.Always, func(attempt int) (string, error) {
		calls++
		if attempt < 3 {
			return "", errCollision
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, calls)
}

func TestDo_ExhaustsAtLimit(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), 50, retry.Always, func(int) (int, error) {
		calls++
		return 0, errCollision
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.ErrorIs(t, err, errCollision)
	assert.Equal(t, 50, calls)

	var exhausted *retry.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 50, exhausted.Attempts)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	fatal := errors.New("fatal")
	calls := 0
	_, err := retry.Do(context.Background(), 10, retry.On(errCollision), func(int) (int, error) {
		calls++
		return 0, fatal
	})

	require.Error(t, err)
	assert.Equal(t, fatal, err)
	assert.NotErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroLimitRunsOnce(t *testing.T) {
	calls := 0
	_, err := retry.Do(context.Background(), 0, retry.Always, func(int) (int, error) {
		calls++
		return 0, errCollision
	})

	assert.ErrorIs(t, err, retry.ErrExhausted)
	assert.Equal(t, 1, calls)
}

func TestDo_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := retry.Do(ctx, 10, retry.Always, func(int) (int, error) {
		calls++
		cancel()
		return 0, errCollision
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
