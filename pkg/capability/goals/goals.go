// Package goals exposes goal management as a capability provider. Setting
// a goal for a metric replaces any prior goal on that metric; the
// repository's document keying enforces the uniqueness.
package goals

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
)

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

// New creates the goal management provider
func New(repo interfaces.Repository, opts ...Option) *Provider {
	p := &Provider{repo: repo, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	return "goals"
}

var metricEnum = []any{
	"active_minutes", "energy_burned_kcal", "distance_meters",
	"sleep_minutes", "calories_in_kcal", "weight_kg",
}

func (p *Provider) Capabilities() []capability.Definition {
	return []capability.Definition{
		{
			Name:        "set_goal",
			Description: "Set the user's target for a metric, replacing any existing goal on that metric.",
			SideEffect:  true,
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"metric": {
						Type: "string",
						Enum: metricEnum,
					},
					"target": {
						Type:        "number",
						Description: "Target value in the metric's unit",
					},
					"period": {
						Type: "string",
						Enum: []any{"daily", "weekly", "long_term"},
					},
				},
				Required: []string{"metric", "target", "period"},
			},
		},
		{
			Name:        "get_goal",
			Description: "Return the user's active goal for a metric, or all active goals when no metric is given.",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"metric": {
						Type: "string",
						Enum: metricEnum,
					},
				},
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
	case "set_goal":
		return p.setGoal(ctx, user, args)
	case "get_goal":
		return p.getGoal(ctx, user, args)
	default:
		return nil, goerr.New("unknown capability", goerr.V("capability", name))
	}
}

func (p *Provider) HealthCheck(ctx context.Context) bool {
	_, err := p.repo.ListActiveGoals(ctx, "health-check")
	return err == nil
}

func (p *Provider) setGoal(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	metric, _ := args["metric"].(string)
	target, _ := args["target"].(float64)
	period, _ := args["period"].(string)

	goal := &model.Goal{
		UserID:    user,
		Metric:    model.MetricKind(metric),
		Target:    target,
		Period:    model.GoalPeriod(period),
		CreatedAt: p.now().UTC(),
	}

	if err := p.repo.PutGoal(ctx, goal); err != nil {
		return nil, goerr.Wrap(err, "failed to save goal",
			goerr.V("user", user), goerr.V("metric", metric))
	}

	return capability.Succeed(map[string]any{"goal": goal}), nil
}

func (p *Provider) getGoal(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	if metric, ok := args["metric"].(string); ok && metric != "" {
		goal, err := p.repo.GetActiveGoal(ctx, user, model.MetricKind(metric))
		if err != nil {
			return nil, goerr.Wrap(err, "failed to get goal",
				goerr.V("user", user), goerr.V("metric", metric))
		}
		if goal == nil {
			return capability.Succeed(map[string]any{"goal": nil, "message": "no active goal for this metric"}), nil
		}
		return capability.Succeed(map[string]any{"goal": goal}), nil
	}

	goals, err := p.repo.ListActiveGoals(ctx, user)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list goals", goerr.V("user", user))
	}
	return capability.Succeed(map[string]any{"goals": goals, "count": len(goals)}), nil
}
