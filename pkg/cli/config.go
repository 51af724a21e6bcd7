package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/adapter"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/repository"
	"github.com/stride-health/stride/pkg/service/analytics"
	"github.com/stride-health/stride/pkg/service/dedup"
	"github.com/stride-health/stride/pkg/service/ratelimit"
	"github.com/stride-health/stride/pkg/utils/logging"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// config holds configuration values
type config struct {
	// Logging
	logLevel  string
	logFormat string

	// Repository
	project  string
	database string

	// LLM
	geminiProject  string
	geminiLocation string
	geminiModel    string

	// Tuning file
	tuningPath string
}

// globalFlags returns common flags used across commands with destination config
func globalFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "Log level (debug, info, warn, error)",
			Value:       "info",
			Sources:     cli.EnvVars("STRIDE_LOG_LEVEL"),
			Destination: &cfg.logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "Log format (console or json)",
			Value:       "console",
			Sources:     cli.EnvVars("STRIDE_LOG_FORMAT"),
			Destination: &cfg.logFormat,
		},
		&cli.StringFlag{
			Name:        "project",
			Aliases:     []string{"p"},
			Usage:       "Google Cloud project ID",
			Sources:     cli.EnvVars("GOOGLE_CLOUD_PROJECT"),
			Destination: &cfg.project,
		},
		&cli.StringFlag{
			Name:        "database",
			Aliases:     []string{"d"},
			Usage:       "Firestore database ID",
			Value:       "(default)",
			Sources:     cli.EnvVars("STRIDE_FIRESTORE_DATABASE"),
			Destination: &cfg.database,
		},
		&cli.StringFlag{
			Name:        "tuning",
			Usage:       "Path to YAML tuning file (thresholds, limits)",
			Sources:     cli.EnvVars("STRIDE_TUNING"),
			Destination: &cfg.tuningPath,
		},
	}
}

// llmFlags returns flags for LLM-related configuration with destination config
func llmFlags(cfg *config) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini (defaults to --project)",
			Sources:     cli.EnvVars("STRIDE_GEMINI_PROJECT"),
			Destination: &cfg.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini",
			Value:       "us-central1",
			Sources:     cli.EnvVars("STRIDE_GEMINI_LOCATION"),
			Destination: &cfg.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "gemini-model",
			Usage:       "Generative model name",
			Sources:     cli.EnvVars("STRIDE_GEMINI_MODEL"),
			Destination: &cfg.geminiModel,
		},
	}
}

// setupLogger builds the process logger from the flags and installs it as
// the default. The returned context carries it for everything downstream.
func (cfg *config) setupLogger(ctx context.Context) context.Context {
	logger := logging.New(cfg.logLevel, cfg.logFormat, os.Stdout)
	logging.SetDefault(logger)
	return logging.With(ctx, logger)
}

// newRepository creates the durable repository
func (cfg *config) newRepository(ctx context.Context) (interfaces.Repository, error) {
	if cfg.project == "" {
		return nil, goerr.New("project is required")
	}
	if cfg.database == "" {
		return nil, goerr.New("database is required")
	}

	repo, err := repository.NewFirestore(ctx, cfg.project, cfg.database)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create repository")
	}
	return repo, nil
}

// newGemini creates the hosted completion adapter
func (cfg *config) newGemini(ctx context.Context) (adapter.Gemini, error) {
	project := cfg.geminiProject
	if project == "" {
		project = cfg.project
	}
	if project == "" {
		return nil, goerr.New("gemini-project is required")
	}
	if cfg.geminiLocation == "" {
		return nil, goerr.New("gemini-location is required")
	}

	var opts []adapter.GeminiOption
	if cfg.geminiModel != "" {
		opts = append(opts, adapter.WithGenerativeModel(cfg.geminiModel))
	}

	gemini, err := adapter.NewGemini(ctx, project, cfg.geminiLocation, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create gemini client")
	}
	return gemini, nil
}

// tuning collects the thresholds whose defaults are operational judgment
// calls, so deployments can adjust them without a rebuild
type tuning struct {
	OverlapRatio     float64 `yaml:"overlap_ratio"`
	TrendSensitivity float64 `yaml:"trend_sensitivity"`
	Limits           struct {
		Free int64 `yaml:"free"`
		Plus int64 `yaml:"plus"`
	} `yaml:"limits"`
}

// loadTuning reads the tuning file, filling the documented defaults for
// anything unset. An empty path yields pure defaults.
func (cfg *config) loadTuning() (*tuning, error) {
	t := &tuning{
		OverlapRatio:     dedup.DefaultOverlapRatio,
		TrendSensitivity: analytics.DefaultTrendSensitivity,
	}
	t.Limits.Free = ratelimit.DefaultFreeLimit
	t.Limits.Plus = ratelimit.DefaultPlusLimit

	if cfg.tuningPath == "" {
		return t, nil
	}

	data, err := os.ReadFile(cfg.tuningPath)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read tuning file",
			goerr.V("path", cfg.tuningPath))
	}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, goerr.Wrap(err, "failed to parse tuning file",
			goerr.V("path", cfg.tuningPath))
	}

	if t.OverlapRatio <= 0 || t.OverlapRatio > 1 {
		return nil, goerr.New("overlap_ratio must be in (0, 1]",
			goerr.V("value", t.OverlapRatio))
	}
	if t.TrendSensitivity <= 0 {
		return nil, goerr.New("trend_sensitivity must be positive",
			goerr.V("value", t.TrendSensitivity))
	}
	return t, nil
}
