package nutrition_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/capability/nutrition"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/repository"
)

type recordingIngestor struct {
	source model.Source
	raw    []map[string]any
}

func (r *recordingIngestor) IngestBatch(ctx context.Context, source model.Source, user model.UserID, raw []map[string]any) (int, error) {
	r.source = source
	r.raw = raw
	return len(raw), nil
}

func fixedClock() time.Time {
	return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
}

func TestLogMeal(t *testing.T) {
	ingestor := &recordingIngestor{}
	p := nutrition.New(repository.NewMemory(), ingestor, nutrition.WithNowFunc(fixedClock))
	ctx := capability.WithUser(context.Background(), "u-1")

	result, err := p.Invoke(ctx, "log_meal", map[string]any{
		"calories":    640.0,
		"description": "pasta with chicken",
	})
	gt.NoError(t, err)
	gt.True(t, result.Success)

	// Manual entries enter the same pipeline as device syncs
	gt.V(t, ingestor.source).Equal(model.SourceManual)
	gt.A(t, ingestor.raw).Length(1)
	gt.V(t, ingestor.raw[0]["kind"]).Equal("meal")
	// Defaulted to today
	gt.V(t, ingestor.raw[0]["date"]).Equal("2026-08-20")
}

func TestLogMealRejectsBadInput(t *testing.T) {
	p := nutrition.New(repository.NewMemory(), &recordingIngestor{}, nutrition.WithNowFunc(fixedClock))
	ctx := capability.WithUser(context.Background(), "u-1")

	_, err := p.Invoke(ctx, "log_meal", map[string]any{"calories": 0.0})
	gt.Error(t, err)

	_, err = p.Invoke(ctx, "log_meal", map[string]any{"calories": 500.0, "date": "yesterday"})
	gt.Error(t, err)
}

func TestLogWorkout(t *testing.T) {
	ingestor := &recordingIngestor{}
	p := nutrition.New(repository.NewMemory(), ingestor, nutrition.WithNowFunc(fixedClock))
	ctx := capability.WithUser(context.Background(), "u-1")

	result, err := p.Invoke(ctx, "log_workout", map[string]any{
		"minutes":      45.0,
		"workout_type": "strength",
	})
	gt.NoError(t, err)
	gt.True(t, result.Success)

	gt.A(t, ingestor.raw).Length(1)
	gt.V(t, ingestor.raw[0]["kind"]).Equal("activity")
	gt.V(t, ingestor.raw[0]["minutes"]).Equal(45.0)
	// Start defaults to now minus the duration
	gt.V(t, ingestor.raw[0]["start"]).Equal("2026-08-20T11:15:00Z")
}

func TestQueryNutrition(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	gt.NoError(t, repo.UpsertDailyMetric(ctx, &model.DailyMetric{
		UserID: "u-1", Kind: model.MetricCaloriesIn, Day: "2026-08-19", Value: 1850,
	}))
	p := nutrition.New(repo, &recordingIngestor{}, nutrition.WithNowFunc(fixedClock))

	result, err := p.Invoke(capability.WithUser(ctx, "u-1"), "query_nutrition", map[string]any{})
	gt.NoError(t, err)
	gt.True(t, result.Success)

	payload := result.Payload.(map[string]any)
	gt.V(t, payload["count"]).Equal(1)
}
