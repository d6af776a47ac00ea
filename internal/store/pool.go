package store

import (
	"context"

	"golang.org/x/time/rate"

	"ciphervault/internal/verrors"
)

// acquireLimiter throttles session acquisition so a burst of callers
// surfaces verrors.Busy instead of queuing indefinitely behind an
// exhausted connection pool, per SPEC_FULL.md's resource-model section.
// A nil *acquireLimiter (the zero value from an unconfigured Backend)
// never throttles.
type acquireLimiter struct {
	limiter *rate.Limiter
}

func newAcquireLimiter(ratePerSecond float64, burst int) *acquireLimiter {
	if ratePerSecond <= 0 {
		return &acquireLimiter{}
	}
	return &acquireLimiter{limiter: rate.NewLimiter(rate.Limit(ratePerSecond), burst)}
}

// Allow reports whether a new session acquisition may proceed right now;
// it never blocks, it only converts "would have to wait" into an
// immediate Busy.
func (a *acquireLimiter) Allow() error {
	if a == nil || a.limiter == nil {
		return nil
	}
	if !a.limiter.Allow() {
		return verrors.New(verrors.Busy, "connection acquisition rate exceeded")
	}
	return nil
}

// Wait blocks until a token is available or ctx is done, for callers
// willing to wait rather than fail fast.
func (a *acquireLimiter) Wait(ctx context.Context) error {
	if a == nil || a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx); err != nil {
		return verrors.Wrap(verrors.Busy, "connection acquisition wait", err)
	}
	return nil
}
