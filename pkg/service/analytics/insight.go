package analytics

import (
	"fmt"
	"time"

	"github.com/stride-health/stride/pkg/model"
)

const (
	nearMissFloor   = 80.0
	nearMissCeiling = 100.0
)

// defaultInsightText is returned when no tier produces anything, so the
// dashboard always has exactly one sentence to show.
const defaultInsightText = "Keep logging your activity to unlock personalized insights."

// SelectInsight picks the single most relevant observation for a user's
// dashboard. Tiers are checked in fixed priority order and the first hit
// wins: a goal within reach today beats everything, a worsening trend
// beats good news, and an empty picture still yields the default sentence.
func SelectInsight(progresses []*Progress, trends map[model.MetricKind]*Trend, now time.Time) *model.Insight {
	if insight := nearMiss(progresses); insight != "" {
		return newInsight(insight, model.TierGoalNearMiss, now)
	}
	if insight := worstTrend(trends); insight != "" {
		return newInsight(insight, model.TierNegativeTrend, now)
	}
	if insight := allGoalsMet(progresses); insight != "" {
		return newInsight(insight, model.TierGoalsMet, now)
	}
	if insight := bestTrend(trends); insight != "" {
		return newInsight(insight, model.TierPositiveTrend, now)
	}
	return newInsight(defaultInsightText, model.TierDefault, now)
}

func newInsight(text string, tier model.InsightTier, now time.Time) *model.Insight {
	return &model.Insight{Text: text, Tier: tier, GeneratedAt: now}
}

// nearMiss finds a goal between 80% and 100% today: close enough that one
// nudge can finish it. The closest one wins when several qualify.
func nearMiss(progresses []*Progress) string {
	var best *Progress
	for _, p := range progresses {
		if p.Percent < nearMissFloor || p.Percent >= nearMissCeiling {
			continue
		}
		if best == nil || p.Percent > best.Percent {
			best = p
		}
	}
	if best == nil {
		return ""
	}
	return fmt.Sprintf("You're at %.0f%% of your %s goal. Just %s to go!",
		best.Percent, metricLabel(best.Metric), formatValue(best.Metric, best.Remaining))
}

func worstTrend(trends map[model.MetricKind]*Trend) string {
	kind, trend := pickTrend(trends, TrendDown)
	if trend == nil {
		return ""
	}
	return fmt.Sprintf("Your %s has dropped about %.0f%% compared to the previous weeks.",
		metricLabel(kind), -trend.ChangePercent)
}

func allGoalsMet(progresses []*Progress) string {
	if len(progresses) == 0 {
		return ""
	}
	for _, p := range progresses {
		if !p.Achieved {
			return ""
		}
	}
	return "Every goal met today. Great consistency!"
}

func bestTrend(trends map[model.MetricKind]*Trend) string {
	kind, trend := pickTrend(trends, TrendUp)
	if trend == nil {
		return ""
	}
	return fmt.Sprintf("Your %s is up about %.0f%% compared to the previous weeks. Keep it going!",
		metricLabel(kind), trend.ChangePercent)
}

// pickTrend returns the trend of the wanted direction with the largest
// magnitude, iterating kinds in a fixed order for deterministic output.
func pickTrend(trends map[model.MetricKind]*Trend, want Direction) (model.MetricKind, *Trend) {
	kinds := []model.MetricKind{
		model.MetricActiveMinutes,
		model.MetricEnergyBurned,
		model.MetricDistance,
		model.MetricSleepMinutes,
		model.MetricCaloriesIn,
		model.MetricWeight,
	}

	var bestKind model.MetricKind
	var best *Trend
	for _, kind := range kinds {
		trend, ok := trends[kind]
		if !ok || trend.Direction != want {
			continue
		}
		if best == nil || abs(trend.ChangePercent) > abs(best.ChangePercent) {
			bestKind, best = kind, trend
		}
	}
	return bestKind, best
}

func metricLabel(kind model.MetricKind) string {
	switch kind {
	case model.MetricActiveMinutes:
		return "active minutes"
	case model.MetricEnergyBurned:
		return "energy burned"
	case model.MetricDistance:
		return "distance"
	case model.MetricSleepMinutes:
		return "sleep"
	case model.MetricCaloriesIn:
		return "calorie intake"
	case model.MetricWeight:
		return "weight"
	default:
		return string(kind)
	}
}

func formatValue(kind model.MetricKind, v float64) string {
	switch kind {
	case model.MetricActiveMinutes, model.MetricSleepMinutes:
		return fmt.Sprintf("%.0f minutes", v)
	case model.MetricDistance:
		return fmt.Sprintf("%.1f km", v/1000)
	case model.MetricEnergyBurned, model.MetricCaloriesIn:
		return fmt.Sprintf("%.0f kcal", v)
	case model.MetricWeight:
		return fmt.Sprintf("%.1f kg", v)
	default:
		return fmt.Sprintf("%.0f", v)
	}
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
