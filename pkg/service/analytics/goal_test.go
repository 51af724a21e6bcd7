package analytics_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/service/analytics"
)

func activeMinutesGoal(target float64) *model.Goal {
	return &model.Goal{
		UserID: "u-1",
		Metric: model.MetricActiveMinutes,
		Target: target,
		Period: model.PeriodDaily,
	}
}

func TestTrackProgressBasics(t *testing.T) {
	points := days("2026-08-18", 25, 30, 24)

	progress := analytics.TrackProgress(activeMinutesGoal(30), points)
	gt.V(t, progress.Current).Equal(24.0)
	gt.V(t, progress.Percent).Equal(80.0)
	gt.V(t, progress.Remaining).Equal(6.0)
	gt.False(t, progress.Achieved)
}

func TestTrackProgressStreakBrokenByMiss(t *testing.T) {
	// A sub-target day two days ago caps the streak at one even though
	// three of four days met the goal
	points := days("2026-08-17", 105, 105, 40, 105)

	progress := analytics.TrackProgress(activeMinutesGoal(100), points)
	gt.V(t, progress.StreakDays).Equal(1)
	gt.True(t, progress.Achieved)
	gt.V(t, progress.Remaining).Equal(0.0)
}

func TestTrackProgressStreakCountsConsecutiveDays(t *testing.T) {
	points := days("2026-08-16", 100, 120, 110, 105, 130)

	progress := analytics.TrackProgress(activeMinutesGoal(100), points)
	gt.V(t, progress.StreakDays).Equal(5)
}

func TestTrackProgressStreakBrokenByGap(t *testing.T) {
	// Met the goal on the 15th and 16th, nothing logged on the 17th, met
	// it again on the 18th: the gap resets the streak
	points := days("2026-08-15", 110, 120)
	points = append(points, days("2026-08-18", 115)...)

	progress := analytics.TrackProgress(activeMinutesGoal(100), points)
	gt.V(t, progress.StreakDays).Equal(1)
}

func TestTrackProgressEmptySeries(t *testing.T) {
	progress := analytics.TrackProgress(activeMinutesGoal(30), nil)
	gt.V(t, progress.Current).Equal(0.0)
	gt.V(t, progress.Percent).Equal(0.0)
	gt.V(t, progress.Remaining).Equal(30.0)
	gt.V(t, progress.StreakDays).Equal(0)
	gt.False(t, progress.Achieved)
}
