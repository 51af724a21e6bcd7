package ratelimit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/service/ratelimit"
)

// fakeCounter counts in memory, optionally failing every call
type fakeCounter struct {
	counts map[string]int64
	err    error
}

func newFakeCounter() *fakeCounter {
	return &fakeCounter{counts: map[string]int64{}}
}

func (c *fakeCounter) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	return c.counts[key], nil
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
}

func TestLimiterAllowsWithinLimit(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.New(newFakeCounter(), ratelimit.Limits{Free: 3, Plus: 10},
		ratelimit.WithNowFunc(fixedClock))

	for range 3 {
		gt.NoError(t, limiter.Allow(ctx, "u-1", model.TierFree))
	}

	err := limiter.Allow(ctx, "u-1", model.TierFree)
	gt.Error(t, err)
	gt.True(t, errors.Is(err, ratelimit.ErrLimitExceeded))
}

func TestLimiterTierAllowances(t *testing.T) {
	ctx := context.Background()
	counter := newFakeCounter()
	limiter := ratelimit.New(counter, ratelimit.Limits{Free: 2, Plus: 5},
		ratelimit.WithNowFunc(fixedClock))

	// The plus tier keeps going where free would have stopped
	for range 5 {
		gt.NoError(t, limiter.Allow(ctx, "u-plus", model.TierPlus))
	}
	gt.Error(t, limiter.Allow(ctx, "u-plus", model.TierPlus))
}

func TestLimiterUsersAreIndependent(t *testing.T) {
	ctx := context.Background()
	limiter := ratelimit.New(newFakeCounter(), ratelimit.Limits{Free: 1, Plus: 1},
		ratelimit.WithNowFunc(fixedClock))

	gt.NoError(t, limiter.Allow(ctx, "u-1", model.TierFree))
	gt.Error(t, limiter.Allow(ctx, "u-1", model.TierFree))
	// Another user has a fresh counter
	gt.NoError(t, limiter.Allow(ctx, "u-2", model.TierFree))
}

func TestLimiterFailsOpen(t *testing.T) {
	ctx := context.Background()
	counter := newFakeCounter()
	counter.err = goerr.New("redis is down")
	limiter := ratelimit.New(counter, ratelimit.DefaultLimits(),
		ratelimit.WithNowFunc(fixedClock))

	// Counter outage never blocks a turn
	gt.NoError(t, limiter.Allow(ctx, "u-1", model.TierFree))
}

func TestLimiterWindowResetsDaily(t *testing.T) {
	ctx := context.Background()
	day := time.Date(2026, 8, 20, 23, 0, 0, 0, time.UTC)
	clock := func() time.Time { return day }
	limiter := ratelimit.New(newFakeCounter(), ratelimit.Limits{Free: 1, Plus: 1},
		ratelimit.WithNowFunc(func() time.Time { return clock() }))

	gt.NoError(t, limiter.Allow(ctx, "u-1", model.TierFree))
	gt.Error(t, limiter.Allow(ctx, "u-1", model.TierFree))

	// Next day keys a fresh window
	day = day.Add(2 * time.Hour)
	gt.NoError(t, limiter.Allow(ctx, "u-1", model.TierFree))
}
