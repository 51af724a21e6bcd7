// Package dedup reconciles canonical activity records that describe the
// same real-world event reported redundantly by several sources. It is a
// single-pass pairwise comparison within a bounded daily window; record
// counts per user per day are small, so clarity wins over asymptotics.
package dedup

import (
	"sort"
	"time"

	"github.com/stride-health/stride/pkg/model"
)

// DefaultOverlapRatio is the share of the shorter record's duration that
// two intervals must overlap to count as the same event. The value comes
// from the original design without an empirical derivation, so it is a
// config field rather than a hard invariant.
const DefaultOverlapRatio = 0.5

// Config tunes reconciliation
type Config struct {
	OverlapRatio float64
}

// DefaultConfig returns the stated default tuning
func DefaultConfig() Config {
	return Config{OverlapRatio: DefaultOverlapRatio}
}

// Outcome is the result of reconciling one set of records. Survivors are
// the canonical representatives; Superseded records are retained for audit
// but excluded from analytics.
type Outcome struct {
	Survivors  []*model.ActivityRecord
	Superseded []*model.ActivityRecord
}

// Reconcile partitions the given records into survivors and superseded
// duplicates. Two records from different sources within the same day are
// the same event when their interval intersection exceeds the configured
// share of the shorter record's duration. The higher-priority source wins;
// ties go to the most recently created record. Zero-duration records never
// match regardless of timestamp proximity, since the overlap ratio is
// undefined for them.
func Reconcile(records []*model.ActivityRecord, cfg Config) *Outcome {
	if cfg.OverlapRatio <= 0 {
		cfg.OverlapRatio = DefaultOverlapRatio
	}

	// Rank by priority first so every record loses only to an already
	// accepted survivor: insertion order cannot change the winner.
	ranked := make([]*model.ActivityRecord, len(records))
	copy(ranked, records)
	sort.SliceStable(ranked, func(i, j int) bool {
		pi, pj := ranked[i].Source.Priority(), ranked[j].Source.Priority()
		if pi != pj {
			return pi < pj
		}
		return ranked[i].CreatedAt.After(ranked[j].CreatedAt)
	})

	outcome := &Outcome{}
	for _, candidate := range ranked {
		winner := findSameEvent(outcome.Survivors, candidate, cfg.OverlapRatio)
		if winner == nil {
			candidate.Superseded = false
			candidate.SupersededBy = ""
			outcome.Survivors = append(outcome.Survivors, candidate)
			continue
		}
		candidate.Superseded = true
		candidate.SupersededBy = winner.ID
		outcome.Superseded = append(outcome.Superseded, candidate)
	}

	return outcome
}

// findSameEvent returns the survivor the candidate duplicates, if any
func findSameEvent(survivors []*model.ActivityRecord, candidate *model.ActivityRecord, ratio float64) *model.ActivityRecord {
	for _, s := range survivors {
		if s.Source == candidate.Source {
			continue
		}
		if s.UserID != candidate.UserID {
			continue
		}
		if !sameDay(s.StartTime, candidate.StartTime) {
			continue
		}
		if isSameEvent(s, candidate, ratio) {
			return s
		}
	}
	return nil
}

// isSameEvent reports whether the two records' intervals overlap by more
// than ratio of the shorter record's duration.
func isSameEvent(a, b *model.ActivityRecord, ratio float64) bool {
	shorter := min(a.DurationSeconds, b.DurationSeconds)
	if shorter == 0 {
		return false
	}

	intersection := overlapSeconds(a, b)
	return float64(intersection) > ratio*float64(shorter)
}

// overlapSeconds returns the length of the interval intersection
func overlapSeconds(a, b *model.ActivityRecord) int64 {
	start := a.StartTime
	if b.StartTime.After(start) {
		start = b.StartTime
	}
	end := a.EndTime()
	if b.EndTime().Before(end) {
		end = b.EndTime()
	}
	if !end.After(start) {
		return 0
	}
	return int64(end.Sub(start) / time.Second)
}

func sameDay(a, b time.Time) bool {
	return a.UTC().Format(model.DayKey) == b.UTC().Format(model.DayKey)
}
