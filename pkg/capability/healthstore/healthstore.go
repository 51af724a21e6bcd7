// Package healthstore exposes the on-device health store sync as a
// capability provider. Reads serve from the reconciled repository, where
// the synced records already live after ingestion; starting a workout is
// a client action targeting the user's registered device.
package healthstore

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
)

const defaultQueryDays = 7

type Provider struct {
	repo interfaces.Repository
	now  func() time.Time
}

type Option func(*Provider)

// WithNowFunc overrides the clock
func WithNowFunc(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// New creates the health store provider
func New(repo interfaces.Repository, opts ...Option) *Provider {
	p := &Provider{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	return "healthstore"
}

func (p *Provider) Capabilities() []capability.Definition {
	return []capability.Definition{
		{
			Name:        "query_activities",
			Description: "List the user's reconciled activity records over the last N days, optionally filtered by activity type.",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"days": {
						Type:        "integer",
						Description: "How many days back to query (default 7)",
					},
					"type": {
						Type:        "string",
						Description: "Restrict to one activity type",
						Enum:        []any{"run", "cycle", "walk", "swim", "strength"},
					},
				},
			},
		},
		{
			Name:        "query_sleep",
			Description: "Return the user's nightly sleep minutes over the last N days.",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"days": {
						Type:        "integer",
						Description: "How many days back to query (default 7)",
					},
				},
			},
		},
		{
			Name:        "register_device",
			Description: "Register the device that client actions like starting a workout should target. Replaces any previous registration.",
			SideEffect:  true,
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"device_id": {
						Type:        "string",
						Description: "Device identifier reported by the client",
					},
					"platform": {
						Type:        "string",
						Description: "Device platform (e.g. watch, phone)",
					},
				},
				Required: []string{"device_id"},
			},
		},
		{
			Name:        "start_workout_session",
			Description: "Start a workout session on the user's registered device.",
			SideEffect:  true,
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"workout_type": {
						Type: "string",
						Enum: []any{"run", "cycle", "walk", "swim", "strength"},
					},
				},
				Required: []string{"workout_type"},
			},
		},
	}
}

func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (*capability.Result, error) {
	user, err := capability.UserFrom(ctx)
	if err != nil {
		return nil, err
	}

	switch name {
	case "query_activities":
		return p.queryActivities(ctx, user, args)
	case "query_sleep":
		return p.querySleep(ctx, user, args)
	case "register_device":
		return p.registerDevice(ctx, user, args)
	case "start_workout_session":
		return p.startWorkout(ctx, user, args)
	default:
		return nil, goerr.New("unknown capability", goerr.V("capability", name))
	}
}

func (p *Provider) HealthCheck(ctx context.Context) bool {
	// The provider serves from the repository; a cheap read proves it
	_, err := p.repo.ListActiveGoals(ctx, "health-check")
	return err == nil
}

func (p *Provider) queryActivities(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	to := p.now().UTC()
	from := to.AddDate(0, 0, -queryDays(args))

	records, err := p.repo.ListActivities(ctx, user, from, to, false)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list activities", goerr.V("user", user))
	}

	if filter, ok := args["type"].(string); ok && filter != "" {
		var matched []*model.ActivityRecord
		for _, r := range records {
			if string(r.Type) == filter {
				matched = append(matched, r)
			}
		}
		records = matched
	}

	return capability.Succeed(map[string]any{
		"activities": records,
		"count":      len(records),
	}), nil
}

func (p *Provider) querySleep(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	to := p.now().UTC()
	from := to.AddDate(0, 0, -queryDays(args))

	metrics, err := p.repo.ListDailyMetrics(ctx, user, model.MetricSleepMinutes,
		from.Format(model.DayKey), to.Format(model.DayKey))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list sleep metrics", goerr.V("user", user))
	}

	return capability.Succeed(map[string]any{
		"sleep": metrics,
		"count": len(metrics),
	}), nil
}

func (p *Provider) registerDevice(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	deviceID, _ := args["device_id"].(string)
	platform, _ := args["platform"].(string)

	reg := &model.DeviceRegistration{
		UserID:       user,
		DeviceID:     deviceID,
		Platform:     platform,
		RegisteredAt: p.now().UTC(),
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}

	if err := p.repo.PutDeviceRegistration(ctx, reg); err != nil {
		return nil, goerr.Wrap(err, "failed to store device registration", goerr.V("user", user))
	}

	return capability.Succeed(map[string]any{"device": reg.DeviceID}), nil
}

func (p *Provider) startWorkout(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	reg, err := p.repo.GetDeviceRegistration(ctx, user)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to look up device registration", goerr.V("user", user))
	}
	if reg == nil {
		return nil, goerr.New("no registered device to start a workout on", goerr.V("user", user))
	}

	workoutType, _ := args["workout_type"].(string)
	return &capability.Result{
		Success: true,
		Payload: map[string]any{"device": reg.DeviceID},
		ClientAction: &model.ClientAction{
			Kind:   "start_workout",
			Target: reg.DeviceID,
			Parameters: map[string]any{
				"workout_type": workoutType,
			},
		},
	}, nil
}

func queryDays(args map[string]any) int {
	if v, ok := args["days"].(float64); ok && v > 0 {
		return int(v)
	}
	return defaultQueryDays
}
