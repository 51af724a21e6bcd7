// Package normalize maps each provider's raw record shape into the
// canonical activity/sleep/nutrition/weight schema. It is a pure function
// over provider output: no I/O, no clock, deterministic for identical
// input across repeated calls.
package normalize

import (
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/model"
)

// millisPerSecond is the only hard-coded unit conversion: sources that
// report durations in milliseconds are converted to seconds here.
const millisPerSecond = 1000

// Record is the canonical output of normalizing one raw provider record:
// either an activity or a one-day metric sample (sleep, nutrition, weight).
type Record struct {
	Activity *model.ActivityRecord
	Metric   *model.DailyMetric
}

// Normalize converts one raw record from the given source into its
// canonical form. Unrecognized activity labels map to ActivityUnknown,
// never dropped; a structurally unusable record (no timestamp, negative
// duration) is an error.
func Normalize(source model.Source, userID model.UserID, raw map[string]any) (*Record, error) {
	kind := getString(raw, "kind")
	if kind == "" {
		kind = getString(raw, "type")
	}

	switch kind {
	case "activity", "workout":
		activity, err := normalizeActivity(source, userID, raw)
		if err != nil {
			return nil, err
		}
		return &Record{Activity: activity}, nil

	case "sleep":
		return normalizeSample(source, userID, raw, model.MetricSleepMinutes)
	case "nutrition", "meal":
		return normalizeSample(source, userID, raw, model.MetricCaloriesIn)
	case "weight":
		return normalizeSample(source, userID, raw, model.MetricWeight)

	default:
		return nil, goerr.New("unrecognized record kind",
			goerr.V("source", source), goerr.V("kind", kind))
	}
}

func normalizeActivity(source model.Source, userID model.UserID, raw map[string]any) (*model.ActivityRecord, error) {
	start, err := parseStart(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "activity record has no usable start time",
			goerr.V("source", source))
	}

	duration, err := parseDuration(source, raw)
	if err != nil {
		return nil, err
	}

	originalID := getString(raw, "id")
	if originalID == "" {
		originalID = getString(raw, "uuid")
	}
	if originalID == "" {
		// Stable fallback so re-ingesting the same batch upserts rather
		// than duplicates
		originalID = fmt.Sprintf("%d-%d", start.Unix(), duration)
	}

	record := &model.ActivityRecord{
		ID:              recordID(source, originalID),
		UserID:          userID,
		Source:          source,
		OriginalID:      originalID,
		Type:            classifyActivity(activityLabel(raw)),
		StartTime:       start.UTC(),
		DurationSeconds: duration,
		EnergyKcal:      getFloat(raw, "energy_kcal", "calories", "kcal"),
	}

	if distance, ok := lookupFloat(raw, "distance_m", "distance_meters", "distance"); ok {
		record.DistanceMeters = &distance
	}

	if err := record.Validate(); err != nil {
		return nil, err
	}
	return record, nil
}

func normalizeSample(source model.Source, userID model.UserID, raw map[string]any, kind model.MetricKind) (*Record, error) {
	start, err := parseStart(raw)
	if err != nil {
		return nil, goerr.Wrap(err, "sample record has no usable timestamp",
			goerr.V("source", source), goerr.V("kind", kind))
	}

	var value float64
	switch kind {
	case model.MetricSleepMinutes:
		durationSec, err := parseDuration(source, raw)
		if err != nil {
			return nil, err
		}
		value = float64(durationSec) / 60.0
	case model.MetricCaloriesIn:
		value = getFloat(raw, "energy_kcal", "calories", "kcal")
	case model.MetricWeight:
		value = getFloat(raw, "weight_kg", "weight", "value")
	}

	if value < 0 {
		return nil, goerr.New("sample value is negative",
			goerr.V("kind", kind), goerr.V("value", value))
	}

	return &Record{
		Metric: &model.DailyMetric{
			UserID: userID,
			Kind:   kind,
			Day:    start.UTC().Format(model.DayKey),
			Value:  value,
		},
	}, nil
}

func recordID(source model.Source, originalID string) model.RecordID {
	return model.RecordID(string(source) + ":" + originalID)
}

// activityLabel extracts the source-specific category label
func activityLabel(raw map[string]any) string {
	for _, key := range []string{"activity_type", "sport", "category", "label", "name"} {
		if v := getString(raw, key); v != "" {
			return v
		}
	}
	return ""
}

// classifyActivity maps free-text or source-specific labels into the fixed
// enumeration, defaulting to ActivityUnknown rather than failing.
func classifyActivity(label string) model.ActivityType {
	l := strings.ToLower(label)
	switch {
	case strings.Contains(l, "run"), strings.Contains(l, "jog"):
		return model.ActivityRun
	case strings.Contains(l, "cycl"), strings.Contains(l, "bike"), strings.Contains(l, "ride"):
		return model.ActivityCycle
	case strings.Contains(l, "walk"), strings.Contains(l, "hik"):
		return model.ActivityWalk
	case strings.Contains(l, "swim"):
		return model.ActivitySwim
	case strings.Contains(l, "strength"), strings.Contains(l, "weight"), strings.Contains(l, "gym"), strings.Contains(l, "lift"):
		return model.ActivityStrength
	default:
		return model.ActivityUnknown
	}
}

// parseDuration reads the duration field, converting from milliseconds for
// sources that report in milliseconds.
func parseDuration(source model.Source, raw map[string]any) (int64, error) {
	if ms, ok := lookupFloat(raw, "duration_ms"); ok {
		return int64(ms) / millisPerSecond, nil
	}
	if minutes, ok := lookupFloat(raw, "minutes", "duration_min"); ok {
		return int64(minutes * 60), nil
	}
	if sec, ok := lookupFloat(raw, "duration_s", "duration_seconds", "duration"); ok {
		return int64(sec), nil
	}
	return 0, goerr.New("record has no duration field", goerr.V("source", source))
}

func parseStart(raw map[string]any) (time.Time, error) {
	for _, key := range []string{"start", "start_time", "started_at", "timestamp", "date"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		switch tv := v.(type) {
		case string:
			if t, err := time.Parse(time.RFC3339, tv); err == nil {
				return t, nil
			}
			if t, err := time.Parse(model.DayKey, tv); err == nil {
				return t, nil
			}
		case float64:
			// Epoch milliseconds vs seconds, split at a year-5000 epoch
			if tv > 1e12 {
				return time.UnixMilli(int64(tv)), nil
			}
			return time.Unix(int64(tv), 0), nil
		case int64:
			return time.Unix(tv, 0), nil
		}
	}
	return time.Time{}, goerr.New("no parsable timestamp field")
}

// Helper functions

func getString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func getFloat(m map[string]any, keys ...string) float64 {
	v, _ := lookupFloat(m, keys...)
	return v
}

func lookupFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		v, ok := m[key]
		if !ok {
			continue
		}
		switch tv := v.(type) {
		case float64:
			return tv, true
		case int:
			return float64(tv), true
		case int64:
			return float64(tv), true
		}
	}
	return 0, false
}
