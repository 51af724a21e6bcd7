// Package nutrition exposes manual meal and workout logging as a
// capability provider. Manual entries are the lowest-priority source, so
// a logged workout yields to a device record of the same session during
// reconciliation.
package nutrition

import (
	"context"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
)

// Ingestor accepts manually logged entries into the ingestion pipeline
type Ingestor interface {
	IngestBatch(ctx context.Context, source model.Source, user model.UserID, raw []map[string]any) (accepted int, err error)
}

type Provider struct {
	repo     interfaces.Repository
	ingestor Ingestor
	now      func() time.Time
}

type Option func(*Provider)

// WithNowFunc overrides the clock
func WithNowFunc(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// New creates the manual logging provider
func New(repo interfaces.Repository, ingestor Ingestor, opts ...Option) *Provider {
	p := &Provider{repo: repo, ingestor: ingestor, now: time.Now}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Provider) Name() string {
	return "nutrition"
}

func (p *Provider) Capabilities() []capability.Definition {
	return []capability.Definition{
		{
			Name:        "log_meal",
			Description: "Record a meal the user ate, adding its calories to today's intake.",
			SideEffect:  true,
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"calories": {
						Type:        "number",
						Description: "Energy content in kcal",
					},
					"description": {
						Type:        "string",
						Description: "What the user ate",
					},
					"date": {
						Type:        "string",
						Description: "Day of the meal in YYYY-MM-DD, default today",
					},
				},
				Required: []string{"calories"},
			},
		},
		{
			Name:        "log_workout",
			Description: "Record a workout the user did without a device, such as a gym session.",
			SideEffect:  true,
			Parameters: &jsonschema.Schema{
				Type: "object",
				Properties: map[string]*jsonschema.Schema{
					"minutes": {
						Type:        "number",
						Description: "Workout duration in minutes",
					},
					"workout_type": {
						Type: "string",
						Enum: []any{"run", "cycle", "walk", "swim", "strength"},
					},
					"start": {
						Type:        "string",
						Description: "Start time in RFC 3339, default now",
					},
				},
				Required: []string{"minutes", "workout_type"},
			},
		},
		{
			Name:        "query_nutrition",
			Description: "Return the user's daily calorie intake over the last N days.",
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
	}
}

func (p *Provider) Invoke(ctx context.Context, name string, args map[string]any) (*capability.Result, error) {
	user, err := capability.UserFrom(ctx)
	if err != nil {
		return nil, err
	}

	switch name {
	case "log_meal":
		return p.logMeal(ctx, user, args)
	case "log_workout":
		return p.logWorkout(ctx, user, args)
	case "query_nutrition":
		return p.queryNutrition(ctx, user, args)
	default:
		return nil, goerr.New("unknown capability", goerr.V("capability", name))
	}
}

func (p *Provider) HealthCheck(ctx context.Context) bool {
	_, err := p.repo.ListActiveGoals(ctx, "health-check")
	return err == nil
}

func (p *Provider) logMeal(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	calories, _ := args["calories"].(float64)
	if calories <= 0 {
		return nil, goerr.New("meal calories must be positive", goerr.V("calories", calories))
	}

	day := p.now().UTC().Format(model.DayKey)
	if v, ok := args["date"].(string); ok && v != "" {
		if _, err := time.Parse(model.DayKey, v); err != nil {
			return nil, goerr.Wrap(err, "invalid meal date", goerr.V("date", v))
		}
		day = v
	}

	raw := map[string]any{
		"kind":     "meal",
		"date":     day,
		"calories": calories,
	}
	if desc, ok := args["description"].(string); ok {
		raw["description"] = desc
	}

	accepted, err := p.ingestor.IngestBatch(ctx, model.SourceManual, user, []map[string]any{raw})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to ingest meal", goerr.V("user", user))
	}

	return capability.Succeed(map[string]any{
		"logged":   accepted == 1,
		"day":      day,
		"calories": calories,
	}), nil
}

func (p *Provider) logWorkout(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	minutes, _ := args["minutes"].(float64)
	if minutes <= 0 {
		return nil, goerr.New("workout minutes must be positive", goerr.V("minutes", minutes))
	}
	workoutType, _ := args["workout_type"].(string)

	start := p.now().UTC().Add(-time.Duration(minutes) * time.Minute)
	if v, ok := args["start"].(string); ok && v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil, goerr.Wrap(err, "invalid workout start time", goerr.V("start", v))
		}
		start = parsed
	}

	raw := map[string]any{
		"kind":    "activity",
		"label":   workoutType,
		"start":   start.Format(time.RFC3339),
		"minutes": minutes,
	}

	accepted, err := p.ingestor.IngestBatch(ctx, model.SourceManual, user, []map[string]any{raw})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to ingest workout", goerr.V("user", user))
	}

	return capability.Succeed(map[string]any{
		"logged":  accepted == 1,
		"type":    workoutType,
		"minutes": minutes,
	}), nil
}

func (p *Provider) queryNutrition(ctx context.Context, user model.UserID, args map[string]any) (*capability.Result, error) {
	days := 7
	if v, ok := args["days"].(float64); ok && v > 0 {
		days = int(v)
	}

	to := p.now().UTC()
	from := to.AddDate(0, 0, -days)

	metrics, err := p.repo.ListDailyMetrics(ctx, user, model.MetricCaloriesIn,
		from.Format(model.DayKey), to.Format(model.DayKey))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list nutrition metrics", goerr.V("user", user))
	}

	return capability.Succeed(map[string]any{
		"intake": metrics,
		"count":  len(metrics),
	}), nil
}
