package analytics

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/utils/logging"
)

// ErrNoGoal is returned when progress is requested for a metric the user
// has no active goal on
var ErrNoGoal = goerr.New("no active goal for metric")

// Cache is a short-lived result cache for derived analytics. Get reports
// whether the key was present; a cache failure must never fail the query,
// callers degrade to recomputation.
type Cache interface {
	Get(ctx context.Context, key string, out any) (bool, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

const (
	defaultWindowDays = 30
	defaultCacheTTL   = 5 * time.Minute

	// streakWindowDays bounds how far back a goal streak can reach
	streakWindowDays = 35
)

// Service answers analytics queries from the reconciled metric store.
// Derived results are cached briefly; ingestion invalidates the user's
// cache entries so dashboards never show stale conclusions for long.
type Service struct {
	repo        interfaces.Repository
	cache       Cache
	sensitivity float64
	cacheTTL    time.Duration
	now         func() time.Time
}

type ServiceOption func(*Service)

// WithCache attaches a result cache
func WithCache(c Cache) ServiceOption {
	return func(s *Service) {
		s.cache = c
	}
}

// WithSensitivity overrides the trend sensitivity
func WithSensitivity(v float64) ServiceOption {
	return func(s *Service) {
		s.sensitivity = v
	}
}

// WithCacheTTL overrides how long derived results are cached
func WithCacheTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		s.cacheTTL = ttl
	}
}

// WithNowFunc overrides the clock
func WithNowFunc(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an analytics service over the given repository
func NewService(repo interfaces.Repository, opts ...ServiceOption) *Service {
	s := &Service{
		repo:        repo,
		sensitivity: DefaultTrendSensitivity,
		cacheTTL:    defaultCacheTTL,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Correlation correlates two metric series over the trailing window,
// pairing each day of a with the day of b lagDays later.
func (s *Service) Correlation(ctx context.Context, user model.UserID, a, b model.MetricKind, lagDays int) (*Correlation, error) {
	key := fmt.Sprintf("an:%s:corr:%s:%s:%d", user, a, b, lagDays)
	var cached Correlation
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	seriesA, err := s.series(ctx, user, a, defaultWindowDays)
	if err != nil {
		return nil, err
	}
	seriesB, err := s.series(ctx, user, b, defaultWindowDays)
	if err != nil {
		return nil, err
	}

	result := Correlate(seriesA, seriesB, lagDays)
	s.cacheSet(ctx, key, result)
	return result, nil
}

// Trend detects the direction of one metric over the trailing window
func (s *Service) Trend(ctx context.Context, user model.UserID, kind model.MetricKind) (*Trend, error) {
	key := fmt.Sprintf("an:%s:trend:%s", user, kind)
	var cached Trend
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	series, err := s.series(ctx, user, kind, defaultWindowDays)
	if err != nil {
		return nil, err
	}

	result := DetectTrend(series, s.sensitivity)
	s.cacheSet(ctx, key, result)
	return result, nil
}

// GoalProgress evaluates the user's active goal for one metric
func (s *Service) GoalProgress(ctx context.Context, user model.UserID, kind model.MetricKind) (*Progress, error) {
	goal, err := s.repo.GetActiveGoal(ctx, user, kind)
	if err != nil {
		return nil, err
	}
	if goal == nil {
		return nil, goerr.Wrap(ErrNoGoal, "goal progress unavailable",
			goerr.V("user", user), goerr.V("metric", kind))
	}

	series, err := s.series(ctx, user, kind, streakWindowDays)
	if err != nil {
		return nil, err
	}
	return TrackProgress(goal, series), nil
}

// Insight returns the single highest-priority observation for the user
func (s *Service) Insight(ctx context.Context, user model.UserID) (*model.Insight, error) {
	key := fmt.Sprintf("an:%s:insight", user)
	var cached model.Insight
	if s.cacheGet(ctx, key, &cached) {
		return &cached, nil
	}

	goals, err := s.repo.ListActiveGoals(ctx, user)
	if err != nil {
		return nil, err
	}

	var progresses []*Progress
	for _, goal := range goals {
		series, err := s.series(ctx, user, goal.Metric, streakWindowDays)
		if err != nil {
			return nil, err
		}
		progresses = append(progresses, TrackProgress(goal, series))
	}

	trends := make(map[model.MetricKind]*Trend)
	for _, kind := range []model.MetricKind{
		model.MetricActiveMinutes,
		model.MetricEnergyBurned,
		model.MetricDistance,
		model.MetricSleepMinutes,
		model.MetricCaloriesIn,
		model.MetricWeight,
	} {
		series, err := s.series(ctx, user, kind, defaultWindowDays)
		if err != nil {
			return nil, err
		}
		trends[kind] = DetectTrend(series, s.sensitivity)
	}

	insight := SelectInsight(progresses, trends, s.now())
	s.cacheSet(ctx, key, insight)
	return insight, nil
}

// series reads one metric series for the trailing windowDays, ordered by
// day ascending
func (s *Service) series(ctx context.Context, user model.UserID, kind model.MetricKind, windowDays int) ([]Point, error) {
	to := s.now().UTC()
	from := to.AddDate(0, 0, -windowDays)

	metrics, err := s.repo.ListDailyMetrics(ctx, user, kind, from.Format(model.DayKey), to.Format(model.DayKey))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read metric series",
			goerr.V("user", user), goerr.V("kind", kind))
	}

	points := make([]Point, 0, len(metrics))
	for _, m := range metrics {
		points = append(points, Point{Day: m.Day, Value: m.Value})
	}
	return points, nil
}

func (s *Service) cacheGet(ctx context.Context, key string, out any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, out)
	if err != nil {
		logging.From(ctx).Warn("analytics cache read failed", "key", key, "error", err)
		return false
	}
	return hit
}

func (s *Service) cacheSet(ctx context.Context, key string, value any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, value, s.cacheTTL); err != nil {
		logging.From(ctx).Warn("analytics cache write failed", "key", key, "error", err)
	}
}
