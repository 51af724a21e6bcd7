package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
)

type RecordID string

// NewRecordID generates a new unique RecordID
func NewRecordID() RecordID {
	return RecordID(uuid.New().String())
}

// Source identifies the external system a record originated from
type Source string

const (
	// SourceHealthStore is the on-device health store sync
	SourceHealthStore Source = "healthstore"
	// SourceWearable is the wearable vendor cloud API
	SourceWearable Source = "wearable"
	// SourceManual is data the user typed in themselves
	SourceManual Source = "manual"
)

// Validate checks if the source is one of the known providers
func (s Source) Validate() error {
	switch s {
	case SourceHealthStore, SourceWearable, SourceManual:
		return nil
	default:
		return goerr.New("unknown source", goerr.V("source", s))
	}
}

// Priority returns the source ranking used by deduplication. Lower is
// better: on-device health stores first, single-purpose trackers second,
// manual entry last. Unknown sources rank below everything.
func (s Source) Priority() int {
	switch s {
	case SourceHealthStore:
		return 1
	case SourceWearable:
		return 2
	case SourceManual:
		return 3
	default:
		return 100
	}
}

type ActivityType string

const (
	ActivityRun      ActivityType = "run"
	ActivityCycle    ActivityType = "cycle"
	ActivityWalk     ActivityType = "walk"
	ActivitySwim     ActivityType = "swim"
	ActivityStrength ActivityType = "strength"
	ActivityUnknown  ActivityType = "unknown"
)

// Validate checks if the activity type is one of the enumerated set
func (t ActivityType) Validate() error {
	switch t {
	case ActivityRun, ActivityCycle, ActivityWalk, ActivitySwim, ActivityStrength, ActivityUnknown:
		return nil
	default:
		return goerr.New("invalid activity type", goerr.V("type", t))
	}
}

// ActivityRecord is the canonical, provider-agnostic representation of one
// activity event. StartTime and DurationSeconds are always non-negative and
// Type is always a member of the enumerated set; unrecognized provider
// categories map to ActivityUnknown, never dropped.
type ActivityRecord struct {
	ID         RecordID     `firestore:"id" json:"id"`
	UserID     UserID       `firestore:"user_id" json:"user_id"`
	Source     Source       `firestore:"source" json:"source"`
	OriginalID string       `firestore:"original_id" json:"original_id"`
	Type       ActivityType `firestore:"type" json:"type"`

	StartTime       time.Time `firestore:"start_time" json:"start_time"`
	DurationSeconds int64     `firestore:"duration_seconds" json:"duration_seconds"`
	EnergyKcal      float64   `firestore:"energy_kcal" json:"energy_kcal"`
	DistanceMeters  *float64  `firestore:"distance_meters" json:"distance_meters,omitempty"`

	CreatedAt time.Time `firestore:"created_at" json:"created_at"`

	// Reconciliation state. A superseded record lost deduplication to
	// SupersededBy; it is retained for audit but excluded from analytics.
	Superseded   bool     `firestore:"superseded" json:"superseded"`
	SupersededBy RecordID `firestore:"superseded_by" json:"superseded_by,omitempty"`
}

// EndTime returns the exclusive end of the record's time interval
func (r *ActivityRecord) EndTime() time.Time {
	return r.StartTime.Add(time.Duration(r.DurationSeconds) * time.Second)
}

// Validate checks the canonical record invariants
func (r *ActivityRecord) Validate() error {
	if r.UserID == "" {
		return goerr.New("activity record user is empty")
	}
	if r.DurationSeconds < 0 {
		return goerr.New("activity duration is negative", goerr.V("duration", r.DurationSeconds))
	}
	if r.StartTime.IsZero() {
		return goerr.New("activity start time is zero")
	}
	return r.Type.Validate()
}
