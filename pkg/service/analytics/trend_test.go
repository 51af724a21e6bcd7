package analytics_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/stride-health/stride/pkg/service/analytics"
)

func flat(start string, n int, v float64) []analytics.Point {
	values := make([]float64, n)
	for i := range values {
		values[i] = v
	}
	return days(start, values...)
}

func TestDetectTrendUp(t *testing.T) {
	// Three weeks around 30 then a week around 45: a 50% jump
	points := append(flat("2026-08-01", 21, 30), flat("2026-08-22", 7, 45)...)

	result := analytics.DetectTrend(points, 0)
	gt.V(t, result.Direction).Equal(analytics.TrendUp)
	gt.V(t, result.RecentAvg).Equal(45.0)
	gt.V(t, result.BaselineAvg).Equal(30.0)
	gt.V(t, result.ChangePercent).Equal(50.0)
}

func TestDetectTrendDown(t *testing.T) {
	points := append(flat("2026-08-01", 21, 480), flat("2026-08-22", 7, 360)...)

	result := analytics.DetectTrend(points, 0)
	gt.V(t, result.Direction).Equal(analytics.TrendDown)
	gt.V(t, result.ChangePercent).Equal(-25.0)
}

func TestDetectTrendStableWithinSensitivity(t *testing.T) {
	// A 5% move sits inside the default 10% dead band
	points := append(flat("2026-08-01", 21, 100), flat("2026-08-22", 7, 105)...)

	result := analytics.DetectTrend(points, 0)
	gt.V(t, result.Direction).Equal(analytics.TrendStable)
}

func TestDetectTrendSensitivityBoundary(t *testing.T) {
	// Exactly at the threshold is still stable; the rule is strictly
	// greater-than
	points := append(flat("2026-08-01", 21, 100), flat("2026-08-22", 7, 110)...)
	gt.V(t, analytics.DetectTrend(points, 0).Direction).Equal(analytics.TrendStable)

	points = append(flat("2026-08-01", 21, 100), flat("2026-08-22", 7, 111)...)
	gt.V(t, analytics.DetectTrend(points, 0).Direction).Equal(analytics.TrendUp)
}

func TestDetectTrendInsufficientData(t *testing.T) {
	result := analytics.DetectTrend(days("2026-08-20", 30, 31, 32, 33), 0)
	// Four points cannot fill both windows
	gt.V(t, result.Direction).Equal(analytics.TrendInsufficient)

	gt.V(t, analytics.DetectTrend(nil, 0).Direction).Equal(analytics.TrendInsufficient)
}

func TestDetectTrendCustomSensitivity(t *testing.T) {
	points := append(flat("2026-08-01", 21, 100), flat("2026-08-22", 7, 105)...)

	// A 5% move is a trend under a 2% sensitivity
	result := analytics.DetectTrend(points, 0.02)
	gt.V(t, result.Direction).Equal(analytics.TrendUp)
}
