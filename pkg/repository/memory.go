package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
)

// Memory is an in-process repository for development and tests. It applies
// the same document-ID keying as the Firestore implementation so both
// enforce identical uniqueness semantics.
type Memory struct {
	mu            sync.RWMutex
	activities    map[model.RecordID]*model.ActivityRecord
	metrics       map[string]*model.DailyMetric
	goals         map[string]*model.Goal
	conversations map[model.ConversationID]*model.Conversation
	profiles      map[model.UserID]*model.Profile
	devices       map[model.UserID]*model.DeviceRegistration
}

// NewMemory creates an empty in-memory repository
func NewMemory() *Memory {
	return &Memory{
		activities:    map[model.RecordID]*model.ActivityRecord{},
		metrics:       map[string]*model.DailyMetric{},
		goals:         map[string]*model.Goal{},
		conversations: map[model.ConversationID]*model.Conversation{},
		profiles:      map[model.UserID]*model.Profile{},
		devices:       map[model.UserID]*model.DeviceRegistration{},
	}
}

var _ interfaces.Repository = (*Memory)(nil)

func (r *Memory) PutActivity(ctx context.Context, record *model.ActivityRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *record
	r.activities[record.ID] = &clone
	return nil
}

func (r *Memory) ListActivities(ctx context.Context, user model.UserID, from, to time.Time, includeSuperseded bool) ([]*model.ActivityRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var records []*model.ActivityRecord
	for _, record := range r.activities {
		if record.UserID != user {
			continue
		}
		if record.StartTime.Before(from) || !record.StartTime.Before(to) {
			continue
		}
		if record.Superseded && !includeSuperseded {
			continue
		}
		clone := *record
		records = append(records, &clone)
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].StartTime.Before(records[j].StartTime)
	})
	return records, nil
}

func (r *Memory) MarkSuperseded(ctx context.Context, id model.RecordID, by model.RecordID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.activities[id]
	if !ok {
		return goerr.New("activity not found", goerr.V("id", id))
	}
	record.Superseded = true
	record.SupersededBy = by
	return nil
}

func (r *Memory) UpsertDailyMetric(ctx context.Context, metric *model.DailyMetric) error {
	if err := metric.Kind.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *metric
	r.metrics[metricDocID(metric.UserID, metric.Kind, metric.Day)] = &clone
	return nil
}

func (r *Memory) ListDailyMetrics(ctx context.Context, user model.UserID, kind model.MetricKind, fromDay, toDay string) ([]*model.DailyMetric, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var metrics []*model.DailyMetric
	for _, metric := range r.metrics {
		if metric.UserID != user || metric.Kind != kind {
			continue
		}
		if metric.Day < fromDay || metric.Day > toDay {
			continue
		}
		clone := *metric
		metrics = append(metrics, &clone)
	}

	sort.Slice(metrics, func(i, j int) bool {
		return metrics[i].Day < metrics[j].Day
	})
	return metrics, nil
}

func (r *Memory) PutGoal(ctx context.Context, goal *model.Goal) error {
	if err := goal.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *goal
	r.goals[goalDocID(goal.UserID, goal.Metric)] = &clone
	return nil
}

func (r *Memory) GetActiveGoal(ctx context.Context, user model.UserID, metric model.MetricKind) (*model.Goal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	goal, ok := r.goals[goalDocID(user, metric)]
	if !ok {
		return nil, nil
	}
	clone := *goal
	return &clone, nil
}

func (r *Memory) ListActiveGoals(ctx context.Context, user model.UserID) ([]*model.Goal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var goals []*model.Goal
	for _, goal := range r.goals {
		if goal.UserID != user {
			continue
		}
		clone := *goal
		goals = append(goals, &clone)
	}

	sort.Slice(goals, func(i, j int) bool {
		return goals[i].Metric < goals[j].Metric
	})
	return goals, nil
}

func (r *Memory) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conv, ok := r.conversations[id]
	if !ok {
		return nil, nil
	}
	clone := *conv
	clone.Turns = append([]model.Turn(nil), conv.Turns...)
	return &clone, nil
}

func (r *Memory) PutConversation(ctx context.Context, conv *model.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *conv
	clone.Turns = append([]model.Turn(nil), conv.Turns...)
	r.conversations[conv.ID] = &clone
	return nil
}

func (r *Memory) GetProfile(ctx context.Context, user model.UserID) (*model.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[user]
	if !ok {
		return nil, nil
	}
	clone := *profile
	return &clone, nil
}

func (r *Memory) PutProfile(ctx context.Context, profile *model.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *profile
	r.profiles[profile.ID] = &clone
	return nil
}

func (r *Memory) PutDeviceRegistration(ctx context.Context, reg *model.DeviceRegistration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	clone := *reg
	r.devices[reg.UserID] = &clone
	return nil
}

func (r *Memory) GetDeviceRegistration(ctx context.Context, user model.UserID) (*model.DeviceRegistration, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reg, ok := r.devices[user]
	if !ok {
		return nil, nil
	}
	clone := *reg
	return &clone, nil
}
