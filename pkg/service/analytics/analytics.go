// Package analytics derives correlations, trends, goal progress and
// insights from the reconciled daily metric store. The statistical cores
// are pure functions over day-keyed series; Service wraps them with
// repository reads and a short-lived cache.
package analytics

// Point is one day's value of a metric series. Day uses the canonical
// day-key format; series are expected ordered by day ascending, as the
// repository returns them.
type Point struct {
	Day   string  `json:"day"`
	Value float64 `json:"value"`
}

// MinSamples is the minimum number of paired observations any statistical
// conclusion is drawn from. Below it, results report insufficient data
// rather than a number computed from noise.
const MinSamples = 3
