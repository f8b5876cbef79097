package backoff

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	apperrors "github.com/lueurxax/telegram-harvester/internal/core/errors"
)

var errBoom = errors.New("boom")

func newTestController() (*Controller, *[]time.Duration) {
	c := New(0, nil)

	var slept []time.Duration

	c.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}

	return c, &slept
}

func TestDo_RetriesSameCallAfterRateLimit(t *testing.T) {
	c, slept := newTestController()

	calls := 0
	err := c.Do(context.Background(), "fetch", func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("get history: %w", &domain.RateLimitError{Wait: time.Duration(calls) * 5 * time.Second})
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second}, *slept)
}

func TestDo_OtherErrorsAreNotRetried(t *testing.T) {
	c, slept := newTestController()

	calls := 0
	err := c.Do(context.Background(), "resolve", func(context.Context) error {
		calls++
		return errBoom
	})

	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *slept)
}

func TestDo_ZeroWaitIsClamped(t *testing.T) {
	c, slept := newTestController()

	first := true
	err := c.Do(context.Background(), "fetch", func(context.Context) error {
		if first {
			first = false
			return &domain.RateLimitError{}
		}

		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []time.Duration{minWait}, *slept)
}

func TestDo_CancelDuringBackoff(t *testing.T) {
	c := New(0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := c.Do(ctx, "fetch", func(context.Context) error {
		return &domain.RateLimitError{Wait: time.Hour}
	})

	require.ErrorIs(t, err, context.Canceled)
}

func TestCall_ReturnsValue(t *testing.T) {
	c, _ := newTestController()

	attempts := 0
	got, err := Call(context.Background(), c, "fetch", func(context.Context) ([]int, error) {
		attempts++
		if attempts == 1 {
			return nil, &domain.RateLimitError{Wait: time.Second}
		}

		return []int{1, 2, 3}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, got)
}

func TestRateLimitError_UnwrapsToSentinel(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &domain.RateLimitError{Wait: time.Second})
	assert.True(t, errors.Is(err, apperrors.ErrRateLimited))
}
