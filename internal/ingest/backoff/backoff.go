// Package backoff paces upstream requests and suspends them while the
// upstream reports throttling.
package backoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/lueurxax/telegram-harvester/internal/core/domain"
	"github.com/lueurxax/telegram-harvester/internal/platform/observability"
)

// minWait guards against zero-length waits in malformed throttle signals.
const minWait = time.Second

// Controller runs upstream calls, retrying the same call after every
// rate-limit signal. Other errors are returned unchanged.
type Controller struct {
	limiter *rate.Limiter
	sleep   func(ctx context.Context, d time.Duration) error
	logger  *zerolog.Logger
}

// New creates a Controller issuing at most rps requests per second.
// A non-positive rps disables pacing.
func New(rps float64, logger *zerolog.Logger) *Controller {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}

	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}

	return &Controller{
		limiter: rate.NewLimiter(limit, 1),
		sleep:   sleepCtx,
		logger:  logger,
	}
}

// Do calls fn until it returns something other than a rate-limit error.
func (c *Controller) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}

		err := fn(ctx)

		var rl *domain.RateLimitError
		if !errors.As(err, &rl) {
			return err
		}

		wait := rl.Wait
		if wait < minWait {
			wait = minWait
		}

		observability.FloodWaits.WithLabelValues(op).Inc()
		c.logger.Warn().Str("op", op).Dur("wait", wait).Msg("flood wait, suspending")

		if err := c.sleep(ctx, wait); err != nil {
			return fmt.Errorf("%s: backoff interrupted: %w", op, err)
		}
	}
}

// Call is Do for functions returning a value.
func Call[T any](ctx context.Context, c *Controller, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T

	err := c.Do(ctx, op, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}

		out = v

		return nil
	})

	return out, err
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
