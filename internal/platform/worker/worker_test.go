package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFatal = errors.New("store down")

func TestLoop_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	runs := 0
	err := Loop(ctx, Config{
		Name:         "harvest",
		PollInterval: time.Millisecond,
		Process: func(context.Context) error {
			runs++
			if runs == 3 {
				cancel()
			}

			return nil
		},
	})

	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, runs)
}

func TestLoop_OnErrorDecides(t *testing.T) {
	var seen []error

	err := Loop(context.Background(), Config{
		Name:    "harvest",
		Process: func(context.Context) error { return errFatal },
		OnError: func(err error) bool {
			seen = append(seen, err)
			return len(seen) < 2
		},
	})

	require.ErrorIs(t, err, errFatal)
	assert.Len(t, seen, 2)
}

func TestLoop_RecoversPanic(t *testing.T) {
	err := Loop(context.Background(), Config{
		Name:    "harvest",
		Process: func(context.Context) error { panic("boom") },
		OnError: func(error) bool { return false },
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "panicked")
}

func TestWait(t *testing.T) {
	require.NoError(t, Wait(context.Background(), 0))
	require.NoError(t, Wait(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, Wait(ctx, time.Hour), context.Canceled)
}
