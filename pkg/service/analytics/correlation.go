package analytics

import (
	"math"
	"time"

	"github.com/stride-health/stride/pkg/model"
)

// Strength buckets a correlation coefficient for presentation
type Strength string

const (
	StrengthStrong       Strength = "strong"
	StrengthModerate     Strength = "moderate"
	StrengthNone         Strength = "none"
	StrengthInsufficient Strength = "insufficient_data"
)

const (
	strongThreshold   = 0.7
	moderateThreshold = 0.4
)

// Correlation is the outcome of correlating two metric series
type Correlation struct {
	Coefficient float64  `json:"coefficient"`
	Strength    Strength `json:"strength"`
	Samples     int      `json:"samples"`
	LagDays     int      `json:"lag_days"`
}

// Correlate computes the Pearson correlation between two daily series,
// pairing each day of a with the day of b lagDays later. A positive lag
// asks "does a predict b": sleep on Monday against activity on Tuesday.
// Fewer than MinSamples overlapping pairs yields StrengthInsufficient
// with a zero coefficient.
func Correlate(a, b []Point, lagDays int) *Correlation {
	result := &Correlation{LagDays: lagDays}

	bByDay := make(map[string]float64, len(b))
	for _, p := range b {
		bByDay[p.Day] = p.Value
	}

	var xs, ys []float64
	for _, p := range a {
		day, err := time.Parse(model.DayKey, p.Day)
		if err != nil {
			continue
		}
		shifted := day.AddDate(0, 0, lagDays).Format(model.DayKey)
		if y, ok := bByDay[shifted]; ok {
			xs = append(xs, p.Value)
			ys = append(ys, y)
		}
	}

	result.Samples = len(xs)
	if result.Samples < MinSamples {
		result.Strength = StrengthInsufficient
		return result
	}

	result.Coefficient = pearson(xs, ys)
	switch {
	case math.Abs(result.Coefficient) >= strongThreshold:
		result.Strength = StrengthStrong
	case math.Abs(result.Coefficient) >= moderateThreshold:
		result.Strength = StrengthModerate
	default:
		result.Strength = StrengthNone
	}
	return result
}

func pearson(xs, ys []float64) float64 {
	n := float64(len(xs))

	var sumX, sumY float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
	}
	meanX, meanY := sumX/n, sumY/n

	var cov, varX, varY float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}

	// A constant series has no direction to correlate with
	if varX == 0 || varY == 0 {
		return 0
	}
	return cov / math.Sqrt(varX*varY)
}
