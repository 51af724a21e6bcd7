package analytics

import (
	"time"

	"github.com/stride-health/stride/pkg/model"
)

// Progress is a user's standing against one goal
type Progress struct {
	Metric     model.MetricKind `json:"metric"`
	Target     float64          `json:"target"`
	Current    float64          `json:"current"`
	Percent    float64          `json:"percent"`
	Remaining  float64          `json:"remaining"`
	StreakDays int              `json:"streak_days"`
	Achieved   bool             `json:"achieved"`
}

// TrackProgress evaluates a goal against its metric series. Current is the
// most recent day's value; the streak counts consecutive calendar days
// meeting the target, walking backward from the most recent day with data.
// A day below target or a gap in the series terminates the streak.
func TrackProgress(goal *model.Goal, points []Point) *Progress {
	progress := &Progress{
		Metric: goal.Metric,
		Target: goal.Target,
	}
	if len(points) == 0 {
		progress.Remaining = goal.Target
		return progress
	}

	latest := points[len(points)-1]
	progress.Current = latest.Value
	progress.Percent = latest.Value / goal.Target * 100
	progress.Achieved = latest.Value >= goal.Target
	if remaining := goal.Target - latest.Value; remaining > 0 {
		progress.Remaining = remaining
	}

	progress.StreakDays = streak(points, goal.Target)
	return progress
}

// streak walks the series backward from its last point, counting days that
// meet the target until one misses it or the day sequence breaks.
func streak(points []Point, target float64) int {
	count := 0
	var prevDay time.Time

	for i := len(points) - 1; i >= 0; i-- {
		day, err := time.Parse(model.DayKey, points[i].Day)
		if err != nil {
			break
		}
		if count > 0 && !day.AddDate(0, 0, 1).Equal(prevDay) {
			break
		}
		if points[i].Value < target {
			break
		}
		count++
		prevDay = day
	}
	return count
}
