// Package insights exposes the analytics service as a capability provider
// so the agent can reason over the same derived numbers the dashboard
// shows. Insufficient data comes back as a classification inside a
// successful result, never as an error the model would treat as a failure.
package insights

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/service/analytics"
)

type Provider struct {
	svc *analytics.Service
}

// New creates the analytics provider
func New(svc *analytics.Service) *Provider {
	return &Provider{svc: svc}
}

func (p *Provider) Name() string {
	return "insights"
}

var metricEnum = []any{
	"active_minutes", "energy_burned_kcal", "distance_meters",
	"sleep_minutes", "calories_in_kcal", "weight_kg",
}

func (p *Provider) Capabilities() []capability.Definition {
	return []capability.Definition{
		{
			Name:        "get_correlation",
			Description: "Correlate two metrics over the last month, optionally lagging the second metric by N days to test whether the first predicts it.",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"metric_a": {Type: "string", Enum: metricEnum},
					"metric_b": {Type: "string", Enum: metricEnum},
					"lag_days": {
						Type:        "integer",
						Description: "Days to lag metric_b behind metric_a (default 0)",
					},
				},
				Required: []string{"metric_a", "metric_b"},
			},
		},
		{
			Name:        "get_trend",
			Description: "Report whether a metric is trending up, down or stable, comparing the last week against the preceding weeks.",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"metric": {Type: "string", Enum: metricEnum},
				},
				Required: []string{"metric"},
			},
		},
		{
			Name:        "get_goal_progress",
			Description: "Report the user's progress against their goal on a metric: percent, remaining amount and current streak.",
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"metric": {Type: "string", Enum: metricEnum},
				},
				Required: []string{"metric"},
			},
		},
		{
			Name:        "get_insight",
			Description: "Return the single most relevant observation about the user's recent health data.",
		},
	}
}

func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (*capability.Result, error) {
	user, err := capability.UserFrom(ctx)
	if err != nil {
		return nil, err
	}

	switch name {
	case "get_correlation":
		a, _ := args["metric_a"].(string)
		b, _ := args["metric_b"].(string)
		lag := 0
		if v, ok := args["lag_days"].(float64); ok {
			lag = int(v)
		}
		result, err := p.svc.Correlation(ctx, user, model.MetricKind(a), model.MetricKind(b), lag)
		if err != nil {
			return nil, err
		}
		return capability.Succeed(result), nil

	case "get_trend":
		metric, _ := args["metric"].(string)
		result, err := p.svc.Trend(ctx, user, model.MetricKind(metric))
		if err != nil {
			return nil, err
		}
		return capability.Succeed(result), nil

	case "get_goal_progress":
		metric, _ := args["metric"].(string)
		result, err := p.svc.GoalProgress(ctx, user, model.MetricKind(metric))
		if errors.Is(err, analytics.ErrNoGoal) {
			return capability.Succeed(map[string]any{
				"goal":    nil,
				"message": "the user has no active goal for this metric",
			}), nil
		}
		if err != nil {
			return nil, err
		}
		return capability.Succeed(result), nil

	case "get_insight":
		insight, err := p.svc.Insight(ctx, user)
		if err != nil {
			return nil, err
		}
		return capability.Succeed(insight), nil

	default:
		return nil, goerr.New("unknown capability", goerr.V("capability", name))
	}
}

func (p *Provider) HealthCheck(ctx context.Context) bool {
	// Pure computation over the repository; nothing external to probe
	return true
}
