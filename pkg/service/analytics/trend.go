package analytics

// Direction is the qualitative movement of a metric series
type Direction string

const (
	TrendUp           Direction = "up"
	TrendDown         Direction = "down"
	TrendStable       Direction = "stable"
	TrendInsufficient Direction = "insufficient_data"
)

// DefaultTrendSensitivity is the relative change between the recent and
// baseline averages below which a series is reported stable. Like the
// overlap ratio it is inherited tuning, not a derived constant.
const DefaultTrendSensitivity = 0.10

const (
	recentWindowDays   = 7
	baselineWindowDays = 21
)

// Trend is the outcome of trend detection on one metric series
type Trend struct {
	Direction     Direction `json:"direction"`
	RecentAvg     float64   `json:"recent_avg"`
	BaselineAvg   float64   `json:"baseline_avg"`
	ChangePercent float64   `json:"change_percent"`
}

// DetectTrend compares the average of the most recent days against the
// average of the baseline window preceding them. Series shorter than
// MinSamples in either window report TrendInsufficient; a relative change
// within sensitivity reports TrendStable. Points are expected ordered by
// day ascending.
func DetectTrend(points []Point, sensitivity float64) *Trend {
	if sensitivity <= 0 {
		sensitivity = DefaultTrendSensitivity
	}

	recent, baseline := splitWindows(points)
	if len(recent) < MinSamples || len(baseline) < MinSamples {
		return &Trend{Direction: TrendInsufficient}
	}

	result := &Trend{
		RecentAvg:   mean(recent),
		BaselineAvg: mean(baseline),
	}

	if result.BaselineAvg == 0 {
		// No meaningful base to measure change against
		result.Direction = TrendStable
		return result
	}

	change := (result.RecentAvg - result.BaselineAvg) / result.BaselineAvg
	result.ChangePercent = change * 100

	switch {
	case change > sensitivity:
		result.Direction = TrendUp
	case change < -sensitivity:
		result.Direction = TrendDown
	default:
		result.Direction = TrendStable
	}
	return result
}

func splitWindows(points []Point) (recent, baseline []float64) {
	n := len(points)
	recentStart := n - recentWindowDays
	if recentStart < 0 {
		recentStart = 0
	}
	baselineStart := recentStart - baselineWindowDays
	if baselineStart < 0 {
		baselineStart = 0
	}

	for _, p := range points[recentStart:] {
		recent = append(recent, p.Value)
	}
	for _, p := range points[baselineStart:recentStart] {
		baseline = append(baseline, p.Value)
	}
	return recent, baseline
}

func mean(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}
