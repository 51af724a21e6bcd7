package interfaces

import (
	"context"
	"time"

	"github.com/stride-health/stride/pkg/model"
)

// Repository defines the interface for health data persistence
type Repository interface {
	// PutActivity saves or overwrites a canonical activity record
	PutActivity(ctx context.Context, record *model.ActivityRecord) error

	// ListActivities retrieves a user's activity records in [from, to).
	// Superseded records are excluded unless includeSuperseded is set.
	ListActivities(ctx context.Context, user model.UserID, from, to time.Time, includeSuperseded bool) ([]*model.ActivityRecord, error)

	// MarkSuperseded flags a record as lost to reconciliation
	MarkSuperseded(ctx context.Context, id model.RecordID, by model.RecordID) error

	// UpsertDailyMetric overwrites the single (user, kind, day) rollup
	UpsertDailyMetric(ctx context.Context, metric *model.DailyMetric) error

	// ListDailyMetrics retrieves one metric series for a user between two
	// day keys, inclusive, ordered by day ascending
	ListDailyMetrics(ctx context.Context, user model.UserID, kind model.MetricKind, fromDay, toDay string) ([]*model.DailyMetric, error)

	// PutGoal saves a goal, replacing any prior goal for the same
	// (user, metric) pair
	PutGoal(ctx context.Context, goal *model.Goal) error

	// GetActiveGoal retrieves the active goal for one metric, nil when unset
	GetActiveGoal(ctx context.Context, user model.UserID, metric model.MetricKind) (*model.Goal, error)

	// ListActiveGoals retrieves all active goals for a user
	ListActiveGoals(ctx context.Context, user model.UserID) ([]*model.Goal, error)

	// GetConversation retrieves a conversation by ID, nil when absent
	GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error)

	// PutConversation saves a conversation with its full turn history
	PutConversation(ctx context.Context, conv *model.Conversation) error

	// GetProfile retrieves a user profile, nil when absent
	GetProfile(ctx context.Context, user model.UserID) (*model.Profile, error)

	// PutProfile saves a user profile
	PutProfile(ctx context.Context, profile *model.Profile) error

	// PutDeviceRegistration saves a user's paired device
	PutDeviceRegistration(ctx context.Context, reg *model.DeviceRegistration) error

	// GetDeviceRegistration retrieves a user's paired device, nil when absent
	GetDeviceRegistration(ctx context.Context, user model.UserID) (*model.DeviceRegistration, error)
}
