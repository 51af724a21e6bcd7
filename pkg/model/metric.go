package model

import (
	"time"

	"github.com/m-mizutani/goerr/v2"
)

// MetricKind names one daily series derivable from the reconciled store.
// Activity-derived kinds are recomputed from surviving records at ingest
// time; sleep, nutrition and weight come from their sources directly.
type MetricKind string

const (
	MetricActiveMinutes  MetricKind = "active_minutes"
	MetricEnergyBurned   MetricKind = "energy_burned_kcal"
	MetricDistance       MetricKind = "distance_meters"
	MetricSleepMinutes   MetricKind = "sleep_minutes"
	MetricCaloriesIn     MetricKind = "calories_in_kcal"
	MetricWeight         MetricKind = "weight_kg"
)

// Validate checks if the metric kind is valid
func (k MetricKind) Validate() error {
	switch k {
	case MetricActiveMinutes, MetricEnergyBurned, MetricDistance,
		MetricSleepMinutes, MetricCaloriesIn, MetricWeight:
		return nil
	default:
		return goerr.New("invalid metric kind", goerr.V("kind", k))
	}
}

// DayKey is the canonical day format for daily rollups
const DayKey = "2006-01-02"

// DailyMetric is one day's rollup value of a metric for a user. The
// reconciled store keeps exactly one document per (user, kind, day);
// ingestion overwrites it when reconciliation changes the day's survivors.
type DailyMetric struct {
	UserID    UserID     `firestore:"user_id" json:"user_id"`
	Kind      MetricKind `firestore:"kind" json:"kind"`
	Day       string     `firestore:"day" json:"day"` // DayKey format
	Value     float64    `firestore:"value" json:"value"`
	UpdatedAt time.Time  `firestore:"updated_at" json:"updated_at"`
}

// DayTime parses the rollup day in the given location
func (m *DailyMetric) DayTime(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DayKey, m.Day, loc)
	if err != nil {
		return time.Time{}, goerr.Wrap(err, "invalid day key", goerr.V("day", m.Day))
	}
	return t, nil
}
