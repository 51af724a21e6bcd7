package cli

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/adapter"
	"github.com/stride-health/stride/pkg/capability"
	"github.com/stride-health/stride/pkg/capability/goals"
	"github.com/stride-health/stride/pkg/capability/healthstore"
	"github.com/stride-health/stride/pkg/capability/insights"
	"github.com/stride-health/stride/pkg/capability/mcpbridge"
	"github.com/stride-health/stride/pkg/capability/nutrition"
	"github.com/stride-health/stride/pkg/capability/wearable"
	httpctrl "github.com/stride-health/stride/pkg/controller/http"
	"github.com/stride-health/stride/pkg/service/analytics"
	"github.com/stride-health/stride/pkg/service/dedup"
	"github.com/stride-health/stride/pkg/service/guard"
	"github.com/stride-health/stride/pkg/service/ratelimit"
	"github.com/stride-health/stride/pkg/usecase/agent"
	"github.com/stride-health/stride/pkg/usecase/ingest"
	"github.com/stride-health/stride/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

func serveCommand() *cli.Command {
	var (
		cfg           config
		addr          string
		redisAddr     string
		redisPassword string
		redisDB       int64
		bucket        string
		bqDataset     string
		policyDir     string
		mcpConfig     string
		wearableURL   string
		wearableToken string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("STRIDE_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "redis-addr",
			Usage:       "Redis address for rate limiting and the analytics cache (empty disables both)",
			Sources:     cli.EnvVars("STRIDE_REDIS_ADDR"),
			Destination: &redisAddr,
		},
		&cli.StringFlag{
			Name:        "redis-password",
			Usage:       "Redis password",
			Sources:     cli.EnvVars("STRIDE_REDIS_PASSWORD"),
			Destination: &redisPassword,
		},
		&cli.IntFlag{
			Name:        "redis-db",
			Usage:       "Redis database number",
			Sources:     cli.EnvVars("STRIDE_REDIS_DB"),
			Destination: &redisDB,
		},
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "GCS bucket for raw batch archival (empty disables)",
			Sources:     cli.EnvVars("STRIDE_ARCHIVE_BUCKET"),
			Destination: &bucket,
		},
		&cli.StringFlag{
			Name:        "audit-dataset",
			Usage:       "BigQuery dataset for deduplication audit rows (empty disables)",
			Sources:     cli.EnvVars("STRIDE_AUDIT_DATASET"),
			Destination: &bqDataset,
		},
		&cli.StringFlag{
			Name:        "policy-dir",
			Usage:       "Directory of Rego policies guarding side-effecting capabilities (empty allows all)",
			Sources:     cli.EnvVars("STRIDE_POLICY_DIR"),
			Destination: &policyDir,
		},
		&cli.StringFlag{
			Name:        "mcp-config",
			Usage:       "YAML config of MCP servers to bridge in as providers",
			Sources:     cli.EnvVars("STRIDE_MCP_CONFIG"),
			Destination: &mcpConfig,
		},
		&cli.StringFlag{
			Name:        "wearable-url",
			Usage:       "Wearable vendor API base URL (empty disables the provider)",
			Sources:     cli.EnvVars("STRIDE_WEARABLE_URL"),
			Destination: &wearableURL,
		},
		&cli.StringFlag{
			Name:        "wearable-token",
			Usage:       "Wearable vendor API token",
			Sources:     cli.EnvVars("STRIDE_WEARABLE_TOKEN"),
			Destination: &wearableToken,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the coaching service",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)
			logger := logging.From(ctx)

			tune, err := cfg.loadTuning()
			if err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			gemini, err := cfg.newGemini(ctx)
			if err != nil {
				return err
			}

			// Optional adapters: each absence just disables its stage
			var redis *adapter.RedisClient
			if redisAddr != "" {
				redis, err = adapter.NewRedis(adapter.RedisConfig{
					Addr:     redisAddr,
					Password: redisPassword,
					DB:       int(redisDB),
				})
				if err != nil {
					return goerr.Wrap(err, "failed to connect to redis")
				}
			}

			ingestOpts := []ingest.Option{
				ingest.WithDedupConfig(dedup.Config{OverlapRatio: tune.OverlapRatio}),
			}
			if bucket != "" {
				archive, err := adapter.NewStorage(ctx, bucket)
				if err != nil {
					return goerr.Wrap(err, "failed to create archive storage")
				}
				ingestOpts = append(ingestOpts, ingest.WithArchive(archive))
			}
			if bqDataset != "" {
				warehouse, err := adapter.NewWarehouse(ctx, cfg.project, bqDataset)
				if err != nil {
					return goerr.Wrap(err, "failed to create audit warehouse")
				}
				ingestOpts = append(ingestOpts, ingest.WithWarehouse(warehouse))
			}
			if redis != nil {
				ingestOpts = append(ingestOpts, ingest.WithCacheInvalidator(redis))
			}
			ingestor := ingest.New(repo, ingestOpts...)

			analyticsOpts := []analytics.ServiceOption{
				analytics.WithSensitivity(tune.TrendSensitivity),
			}
			if redis != nil {
				analyticsOpts = append(analyticsOpts, analytics.WithCache(redis))
			}
			analyticsSvc := analytics.NewService(repo, analyticsOpts...)

			providers := []capability.Provider{
				healthstore.New(repo),
				nutrition.New(repo, ingestor),
				goals.New(repo),
				insights.New(analyticsSvc),
			}
			if wearableURL != "" {
				providers = append(providers, wearable.New(wearableURL, wearableToken, ingestor))
			}

			bridged, err := mcpbridge.LoadAndConnect(ctx, mcpConfig)
			if err != nil {
				return goerr.Wrap(err, "failed to load MCP servers")
			}
			for _, b := range bridged {
				providers = append(providers, b)
				defer b.Close()
			}

			registry, err := capability.New(providers...)
			if err != nil {
				return err
			}

			authorizer, err := guard.New(ctx, policyDir)
			if err != nil {
				return goerr.Wrap(err, "failed to load policies")
			}
			router := capability.NewRouter(registry, capability.WithAuthorizer(authorizer))

			coach := agent.New(gemini, registry, router, repo)

			ctrlOpts := []httpctrl.Option{
				httpctrl.WithRegistry(registry),
				httpctrl.WithLogger(logger),
			}
			if redis != nil {
				limiter := ratelimit.New(redis, ratelimit.Limits{
					Free: tune.Limits.Free,
					Plus: tune.Limits.Plus,
				})
				ctrlOpts = append(ctrlOpts, httpctrl.WithRateLimiter(limiter))
			}
			ctrl := httpctrl.New(coach, ingestor, analyticsSvc, repo, ctrlOpts...)

			return runServer(ctx, addr, ctrl.Handler())
		},
	}
}

// runServer serves until SIGINT/SIGTERM, then drains connections
func runServer(ctx context.Context, addr string, handler http.Handler) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.From(ctx).Info("listening", "addr", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return goerr.Wrap(err, "server stopped")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "failed to shut down cleanly")
	}
	return nil
}
