// Package ratelimit caps conversational turns per user per day. Counters
// live in Redis so all gateway instances share one window; a counter
// outage fails open, degrading to unlimited rather than refusing users.
package ratelimit

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/adapter"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/utils/logging"
)

// ErrLimitExceeded is returned when a user has used up the day's turns
var ErrLimitExceeded = goerr.New("daily turn limit exceeded")

// Default daily turn allowances per subscription tier
const (
	DefaultFreeLimit = 50
	DefaultPlusLimit = 500
)

// windowTTL keeps a counter alive past its day so a client straddling
// midnight still sees a consistent decision, then lets it expire.
const windowTTL = 25 * time.Hour

// Limits holds the per-tier daily allowances
type Limits struct {
	Free int64
	Plus int64
}

// DefaultLimits returns the stated default allowances
func DefaultLimits() Limits {
	return Limits{Free: DefaultFreeLimit, Plus: DefaultPlusLimit}
}

// Limiter enforces the per-user daily turn cap
type Limiter struct {
	counter adapter.Counter
	limits  Limits
	now     func() time.Time
}

type Option func(*Limiter)

// WithNowFunc overrides the clock
func WithNowFunc(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter over the given counter
func New(counter adapter.Counter, limits Limits, opts ...Option) *Limiter {
	l := &Limiter{
		counter: counter,
		limits:  limits,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow consumes one turn for the user and reports whether it fit the
// tier's daily allowance. A counter failure logs and allows: availability
// of the coach outranks strict enforcement.
func (l *Limiter) Allow(ctx context.Context, user model.UserID, tier model.SubscriptionTier) error {
	key := "rl:" + string(user) + ":" + l.now().UTC().Format("20060102")

	count, err := l.counter.Increment(ctx, key, windowTTL)
	if err != nil {
		logging.From(ctx).Warn("rate limit counter unavailable, failing open",
			"user", user, "error", err)
		return nil
	}

	limit := l.limitFor(tier)
	if count > limit {
		return goerr.Wrap(ErrLimitExceeded, "turn rejected",
			goerr.V("user", user), goerr.V("tier", tier),
			goerr.V("count", count), goerr.V("limit", limit))
	}
	return nil
}

func (l *Limiter) limitFor(tier model.SubscriptionTier) int64 {
	switch tier {
	case model.TierPlus:
		return l.limits.Plus
	default:
		return l.limits.Free
	}
}
