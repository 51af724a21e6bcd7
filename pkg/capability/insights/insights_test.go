package insights_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/capability/insights"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/repository"
	"github.com/stride-health/stride/pkg/service/analytics"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
}

func seedDays(t *testing.T, repo *repository.Memory, kind model.MetricKind, start string, values ...float64) {
	t.Helper()
	day, err := time.Parse(model.DayKey, start)
	gt.NoError(t, err)
	for i, v := range values {
		gt.NoError(t, repo.UpsertDailyMetric(context.Background(), &model.DailyMetric{
			UserID: "u-1",
			Kind:   kind,
			Day:    day.AddDate(0, 0, i).Format(model.DayKey),
			Value:  v,
		}))
	}
}

func newProvider(repo *repository.Memory) *insights.Provider {
	return insights.New(analytics.NewService(repo, analytics.WithNowFunc(fixedClock)))
}

func TestGetTrend(t *testing.T) {
	repo := repository.NewMemory()
	seedDays(t, repo, model.MetricActiveMinutes, "2026-08-01",
		30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30, 30,
		30, 30, 30, 30, 30, 30, 30, 60, 60, 60, 60, 60, 60, 60)
	p := newProvider(repo)

	ctx := capability.WithUser(context.Background(), "u-1")
	result, err := p.Invoke(ctx, "get_trend", map[string]any{"metric": "active_minutes"})
	gt.NoError(t, err)
	gt.True(t, result.Success)

	trend := result.Payload.(*analytics.Trend)
	gt.V(t, trend.Direction).Equal(analytics.TrendUp)
}

func TestGetTrendInsufficientDataSucceeds(t *testing.T) {
	p := newProvider(repository.NewMemory())

	ctx := capability.WithUser(context.Background(), "u-1")
	result, err := p.Invoke(ctx, "get_trend", map[string]any{"metric": "sleep_minutes"})
	// Insufficiency is a classification the model can relay, not a failure
	gt.NoError(t, err)
	gt.True(t, result.Success)

	trend := result.Payload.(*analytics.Trend)
	gt.V(t, trend.Direction).Equal(analytics.TrendInsufficient)
}

func TestGetGoalProgressWithoutGoal(t *testing.T) {
	p := newProvider(repository.NewMemory())

	ctx := capability.WithUser(context.Background(), "u-1")
	result, err := p.Invoke(ctx, "get_goal_progress", map[string]any{"metric": "active_minutes"})
	gt.NoError(t, err)
	gt.True(t, result.Success)

	payload := result.Payload.(map[string]any)
	gt.S(t, payload["message"].(string)).Contains("no active goal")
}

func TestGetCorrelation(t *testing.T) {
	repo := repository.NewMemory()
	seedDays(t, repo, model.MetricSleepMinutes, "2026-08-20", 400, 420, 380, 450, 410)
	seedDays(t, repo, model.MetricActiveMinutes, "2026-08-20", 30, 45, 20, 60, 40)
	p := newProvider(repo)

	ctx := capability.WithUser(context.Background(), "u-1")
	result, err := p.Invoke(ctx, "get_correlation", map[string]any{
		"metric_a": "sleep_minutes",
		"metric_b": "active_minutes",
	})
	gt.NoError(t, err)
	gt.True(t, result.Success)

	corr := result.Payload.(*analytics.Correlation)
	gt.V(t, corr.Samples).Equal(5)
}

func TestInvokeRequiresUser(t *testing.T) {
	p := newProvider(repository.NewMemory())

	_, err := p.Invoke(context.Background(), "get_insight", nil)
	gt.Error(t, err)
}
