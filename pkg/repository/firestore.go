package repository

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	collectionActivities    = "activities"
	collectionMetrics       = "daily_metrics"
	collectionGoals         = "goals"
	collectionConversations = "conversations"
	collectionProfiles      = "profiles"
	collectionDevices       = "devices"
)

// Firestore implements the repository interface on Cloud Firestore.
// Uniqueness constraints are expressed through document IDs: one metric
// document per (user, kind, day) and one goal document per (user, metric),
// so writes replace rather than accumulate.
type Firestore struct {
	client *firestore.Client
}

// NewFirestore creates a Firestore-backed repository
func NewFirestore(ctx context.Context, projectID, databaseID string) (*Firestore, error) {
	client, err := firestore.NewClientWithDatabase(ctx, projectID, databaseID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create firestore client",
			goerr.V("project", projectID), goerr.V("database", databaseID))
	}
	return &Firestore{client: client}, nil
}

// Close releases the underlying client
func (r *Firestore) Close() error {
	return r.client.Close()
}

var _ interfaces.Repository = (*Firestore)(nil)

func (r *Firestore) PutActivity(ctx context.Context, record *model.ActivityRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	doc := r.client.Collection(collectionActivities).Doc(string(record.ID))
	if _, err := doc.Set(ctx, record); err != nil {
		return goerr.Wrap(err, "failed to put activity", goerr.V("id", record.ID))
	}
	return nil
}

func (r *Firestore) ListActivities(ctx context.Context, user model.UserID, from, to time.Time, includeSuperseded bool) ([]*model.ActivityRecord, error) {
	query := r.client.Collection(collectionActivities).
		Where("user_id", "==", string(user)).
		Where("start_time", ">=", from).
		Where("start_time", "<", to).
		OrderBy("start_time", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var records []*model.ActivityRecord
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate activities", goerr.V("user", user))
		}

		var record model.ActivityRecord
		if err := doc.DataTo(&record); err != nil {
			return nil, goerr.Wrap(err, "failed to decode activity", goerr.V("doc", doc.Ref.ID))
		}
		// Superseded filtering stays client-side to avoid a composite
		// index on every query shape
		if record.Superseded && !includeSuperseded {
			continue
		}
		records = append(records, &record)
	}
	return records, nil
}

func (r *Firestore) MarkSuperseded(ctx context.Context, id model.RecordID, by model.RecordID) error {
	doc := r.client.Collection(collectionActivities).Doc(string(id))
	_, err := doc.Update(ctx, []firestore.Update{
		{Path: "superseded", Value: true},
		{Path: "superseded_by", Value: string(by)},
	})
	if err != nil {
		return goerr.Wrap(err, "failed to mark activity superseded",
			goerr.V("id", id), goerr.V("by", by))
	}
	return nil
}

func metricDocID(user model.UserID, kind model.MetricKind, day string) string {
	return string(user) + ":" + string(kind) + ":" + day
}

func (r *Firestore) UpsertDailyMetric(ctx context.Context, metric *model.DailyMetric) error {
	if err := metric.Kind.Validate(); err != nil {
		return err
	}
	doc := r.client.Collection(collectionMetrics).Doc(metricDocID(metric.UserID, metric.Kind, metric.Day))
	if _, err := doc.Set(ctx, metric); err != nil {
		return goerr.Wrap(err, "failed to upsert daily metric",
			goerr.V("user", metric.UserID), goerr.V("kind", metric.Kind), goerr.V("day", metric.Day))
	}
	return nil
}

func (r *Firestore) ListDailyMetrics(ctx context.Context, user model.UserID, kind model.MetricKind, fromDay, toDay string) ([]*model.DailyMetric, error) {
	query := r.client.Collection(collectionMetrics).
		Where("user_id", "==", string(user)).
		Where("kind", "==", string(kind)).
		Where("day", ">=", fromDay).
		Where("day", "<=", toDay).
		OrderBy("day", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var metrics []*model.DailyMetric
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate daily metrics",
				goerr.V("user", user), goerr.V("kind", kind))
		}

		var metric model.DailyMetric
		if err := doc.DataTo(&metric); err != nil {
			return nil, goerr.Wrap(err, "failed to decode daily metric", goerr.V("doc", doc.Ref.ID))
		}
		metrics = append(metrics, &metric)
	}
	return metrics, nil
}

func goalDocID(user model.UserID, metric model.MetricKind) string {
	return string(user) + ":" + string(metric)
}

func (r *Firestore) PutGoal(ctx context.Context, goal *model.Goal) error {
	if err := goal.Validate(); err != nil {
		return err
	}
	doc := r.client.Collection(collectionGoals).Doc(goalDocID(goal.UserID, goal.Metric))
	if _, err := doc.Set(ctx, goal); err != nil {
		return goerr.Wrap(err, "failed to put goal",
			goerr.V("user", goal.UserID), goerr.V("metric", goal.Metric))
	}
	return nil
}

func (r *Firestore) GetActiveGoal(ctx context.Context, user model.UserID, metric model.MetricKind) (*model.Goal, error) {
	doc, err := r.client.Collection(collectionGoals).Doc(goalDocID(user, metric)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get goal",
			goerr.V("user", user), goerr.V("metric", metric))
	}

	var goal model.Goal
	if err := doc.DataTo(&goal); err != nil {
		return nil, goerr.Wrap(err, "failed to decode goal", goerr.V("doc", doc.Ref.ID))
	}
	return &goal, nil
}

func (r *Firestore) ListActiveGoals(ctx context.Context, user model.UserID) ([]*model.Goal, error) {
	iter := r.client.Collection(collectionGoals).
		Where("user_id", "==", string(user)).
		Documents(ctx)
	defer iter.Stop()

	var goals []*model.Goal
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, goerr.Wrap(err, "failed to iterate goals", goerr.V("user", user))
		}

		var goal model.Goal
		if err := doc.DataTo(&goal); err != nil {
			return nil, goerr.Wrap(err, "failed to decode goal", goerr.V("doc", doc.Ref.ID))
		}
		goals = append(goals, &goal)
	}
	return goals, nil
}

func (r *Firestore) GetConversation(ctx context.Context, id model.ConversationID) (*model.Conversation, error) {
	doc, err := r.client.Collection(collectionConversations).Doc(string(id)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get conversation", goerr.V("id", id))
	}

	var conv model.Conversation
	if err := doc.DataTo(&conv); err != nil {
		return nil, goerr.Wrap(err, "failed to decode conversation", goerr.V("doc", doc.Ref.ID))
	}
	return &conv, nil
}

func (r *Firestore) PutConversation(ctx context.Context, conv *model.Conversation) error {
	doc := r.client.Collection(collectionConversations).Doc(string(conv.ID))
	if _, err := doc.Set(ctx, conv); err != nil {
		return goerr.Wrap(err, "failed to put conversation", goerr.V("id", conv.ID))
	}
	return nil
}

func (r *Firestore) GetProfile(ctx context.Context, user model.UserID) (*model.Profile, error) {
	doc, err := r.client.Collection(collectionProfiles).Doc(string(user)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get profile", goerr.V("user", user))
	}

	var profile model.Profile
	if err := doc.DataTo(&profile); err != nil {
		return nil, goerr.Wrap(err, "failed to decode profile", goerr.V("doc", doc.Ref.ID))
	}
	return &profile, nil
}

func (r *Firestore) PutProfile(ctx context.Context, profile *model.Profile) error {
	doc := r.client.Collection(collectionProfiles).Doc(string(profile.ID))
	if _, err := doc.Set(ctx, profile); err != nil {
		return goerr.Wrap(err, "failed to put profile", goerr.V("user", profile.ID))
	}
	return nil
}

func (r *Firestore) PutDeviceRegistration(ctx context.Context, reg *model.DeviceRegistration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	doc := r.client.Collection(collectionDevices).Doc(string(reg.UserID))
	if _, err := doc.Set(ctx, reg); err != nil {
		return goerr.Wrap(err, "failed to put device registration", goerr.V("user", reg.UserID))
	}
	return nil
}

func (r *Firestore) GetDeviceRegistration(ctx context.Context, user model.UserID) (*model.DeviceRegistration, error) {
	doc, err := r.client.Collection(collectionDevices).Doc(string(user)).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, nil
	}
	if err != nil {
		return nil, goerr.Wrap(err, "failed to get device registration", goerr.V("user", user))
	}

	var reg model.DeviceRegistration
	if err := doc.DataTo(&reg); err != nil {
		return nil, goerr.Wrap(err, "failed to decode device registration", goerr.V("doc", doc.Ref.ID))
	}
	return &reg, nil
}
