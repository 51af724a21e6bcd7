package healthstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/gt"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/capability/healthstore"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/repository"
)

func fixedClock() time.Time {
	return time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
}

func seedActivities(t *testing.T, repo *repository.Memory) {
	ctx := context.Background()
	base := time.Date(2026, 8, 19, 7, 0, 0, 0, time.UTC)

	records := []*model.ActivityRecord{
		{ID: "hs:1", UserID: "u-1", Source: model.SourceHealthStore, OriginalID: "1",
			Type: model.ActivityRun, StartTime: base, DurationSeconds: 1800, CreatedAt: base},
		{ID: "hs:2", UserID: "u-1", Source: model.SourceHealthStore, OriginalID: "2",
			Type: model.ActivityCycle, StartTime: base.Add(24 * time.Hour), DurationSeconds: 2700, CreatedAt: base},
		{ID: "hs:3", UserID: "u-1", Source: model.SourceWearable, OriginalID: "3",
			Type: model.ActivityRun, StartTime: base, DurationSeconds: 1800, CreatedAt: base,
			Superseded: true, SupersededBy: "hs:1"},
	}
	for _, r := range records {
		gt.NoError(t, repo.PutActivity(ctx, r))
	}
}

func TestQueryActivities(t *testing.T) {
	repo := repository.NewMemory()
	seedActivities(t, repo)
	p := healthstore.New(repo, healthstore.WithNowFunc(fixedClock))

	ctx := capability.WithUser(context.Background(), "u-1")
	result, err := p.Invoke(ctx, "query_activities", map[string]any{"days": 7.0})
	gt.NoError(t, err)
	gt.True(t, result.Success)

	payload := result.Payload.(map[string]any)
	// The superseded duplicate is excluded
	gt.V(t, payload["count"]).Equal(2)
}

func TestQueryActivitiesTypeFilter(t *testing.T) {
	repo := repository.NewMemory()
	seedActivities(t, repo)
	p := healthstore.New(repo, healthstore.WithNowFunc(fixedClock))

	ctx := capability.WithUser(context.Background(), "u-1")
	result, err := p.Invoke(ctx, "query_activities", map[string]any{"type": "cycle"})
	gt.NoError(t, err)

	payload := result.Payload.(map[string]any)
	gt.V(t, payload["count"]).Equal(1)
}

func TestQuerySleep(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	gt.NoError(t, repo.UpsertDailyMetric(ctx, &model.DailyMetric{
		UserID: "u-1", Kind: model.MetricSleepMinutes, Day: "2026-08-19", Value: 450,
	}))
	p := healthstore.New(repo, healthstore.WithNowFunc(fixedClock))

	result, err := p.Invoke(capability.WithUser(ctx, "u-1"), "query_sleep", map[string]any{})
	gt.NoError(t, err)
	gt.True(t, result.Success)

	payload := result.Payload.(map[string]any)
	gt.V(t, payload["count"]).Equal(1)
}

func TestStartWorkoutSession(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemory()
	p := healthstore.New(repo, healthstore.WithNowFunc(fixedClock))
	userCtx := capability.WithUser(ctx, "u-1")
	args := map[string]any{"workout_type": "run"}

	// Without a registered device the capability fails
	_, err := p.Invoke(userCtx, "start_workout_session", args)
	gt.Error(t, err)

	gt.NoError(t, repo.PutDeviceRegistration(ctx, &model.DeviceRegistration{
		UserID: "u-1", DeviceID: "watch-7", Platform: "watchos",
	}))

	result, err := p.Invoke(userCtx, "start_workout_session", args)
	gt.NoError(t, err)
	gt.True(t, result.Success)
	gt.V(t, result.ClientAction).NotNil()
	gt.V(t, result.ClientAction.Kind).Equal("start_workout")
	gt.V(t, result.ClientAction.Target).Equal("watch-7")
}

func TestInvokeRequiresUser(t *testing.T) {
	p := healthstore.New(repository.NewMemory())

	_, err := p.Invoke(context.Background(), "query_activities", nil)
	gt.Error(t, err)
}

func TestRegisterDevice(t *testing.T) {
	ctx := capability.WithUser(context.Background(), "u-1")
	repo := repository.NewMemory()
	p := healthstore.New(repo, healthstore.WithNowFunc(fixedClock))

	result, err := p.Invoke(ctx, "register_device", map[string]any{
		"device_id": "watch-7",
		"platform":  "watch",
	})
	gt.NoError(t, err)
	gt.True(t, result.Success)

	reg, err := repo.GetDeviceRegistration(ctx, "u-1")
	gt.NoError(t, err)
	gt.V(t, reg).NotNil()
	gt.V(t, reg.DeviceID).Equal("watch-7")
	gt.V(t, reg.RegisteredAt).Equal(fixedClock())

	// Re-registration replaces the previous device
	_, err = p.Invoke(ctx, "register_device", map[string]any{"device_id": "phone-1"})
	gt.NoError(t, err)
	reg, err = repo.GetDeviceRegistration(ctx, "u-1")
	gt.NoError(t, err)
	gt.V(t, reg.DeviceID).Equal("phone-1")
}

func TestRegisterDeviceRequiresID(t *testing.T) {
	ctx := capability.WithUser(context.Background(), "u-1")
	p := healthstore.New(repository.NewMemory(), healthstore.WithNowFunc(fixedClock))

	_, err := p.Invoke(ctx, "register_device", map[string]any{"platform": "watch"})
	gt.Error(t, err)
}
