// Package cooldown enforces the shared request cadence toward the upstream
// API. Every fetch, scheduled or manual, passes through one Gate.
package cooldown

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Gate grants at most one request per interval across all callers.
// It wraps a rate.Limiter with burst 1, so two grants are never closer
// than the interval, regardless of how many goroutines contend.
type Gate struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// NewGate creates a Gate with the given minimum spacing between grants.
func NewGate(interval time.Duration, logger zerolog.Logger) *Gate {
	return &Gate{
		limiter: rate.NewLimiter(rate.Every(interval), 1),
		logger:  logger.With().Str("component", "CooldownGate").Logger(),
	}
}

// TryAcquire attempts a non-blocking grant. On refusal it returns false and
// the remaining wait until the next grant would succeed.
func (g *Gate) TryAcquire() (bool, time.Duration) {
	reservation := g.limiter.Reserve()
	delay := reservation.Delay()
	if delay > 0 {
		reservation.Cancel()
		g.logger.Debug().Dur("remaining", delay).Msg("Cooldown refused request")
		return false, delay
	}
	return true, 0
}

// Acquire blocks until a grant is available or ctx is cancelled.
func (g *Gate) Acquire(ctx context.Context) error {
	if err := g.limiter.Wait(ctx); err != nil {
		return err
	}
	return nil
}
