package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/adapter"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/service/dedup"
	"github.com/stride-health/stride/pkg/usecase/ingest"
	"github.com/urfave/cli/v3"
)

func ingestCommand() *cli.Command {
	var (
		cfg       config
		input     string
		source    string
		userID    string
		bucket    string
		replayKey string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "input",
			Aliases:     []string{"i"},
			Usage:       "Path to a JSON file containing an array of raw provider records",
			Destination: &input,
		},
		&cli.StringFlag{
			Name:        "source",
			Aliases:     []string{"s"},
			Usage:       "Source the records came from (healthstore, wearable, manual)",
			Destination: &source,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "user",
			Aliases:     []string{"u"},
			Usage:       "User the records belong to",
			Sources:     cli.EnvVars("STRIDE_USER"),
			Destination: &userID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "archive-bucket",
			Usage:       "GCS bucket holding archived raw batches",
			Sources:     cli.EnvVars("STRIDE_ARCHIVE_BUCKET"),
			Destination: &bucket,
		},
		&cli.StringFlag{
			Name:        "replay-key",
			Usage:       "Archive object key to replay instead of reading --input",
			Destination: &replayKey,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "ingest",
		Usage: "Run one raw batch through the ingestion pipeline, from a file or the archive",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx = cfg.setupLogger(ctx)

			if (input == "") == (replayKey == "") {
				return goerr.New("exactly one of --input or --replay-key is required")
			}

			src := model.Source(source)
			if err := src.Validate(); err != nil {
				return err
			}

			repo, err := cfg.newRepository(ctx)
			if err != nil {
				return err
			}

			tune, err := cfg.loadTuning()
			if err != nil {
				return err
			}

			opts := []ingest.Option{
				ingest.WithDedupConfig(dedup.Config{OverlapRatio: tune.OverlapRatio}),
			}

			if replayKey != "" {
				if bucket == "" {
					return goerr.New("archive-bucket is required to replay")
				}
				archive, err := adapter.NewStorage(ctx, bucket)
				if err != nil {
					return goerr.Wrap(err, "failed to create archive storage")
				}
				opts = append(opts, ingest.WithArchive(archive))

				ingestor := ingest.New(repo, opts...)
				accepted, err := ingestor.ReplayArchived(ctx, src, model.UserID(userID), replayKey)
				if err != nil {
					return goerr.Wrap(err, "replay failed")
				}
				fmt.Fprintf(c.Root().Writer, "replayed %s: accepted %d records\n", replayKey, accepted)
				return nil
			}

			data, err := os.ReadFile(input)
			if err != nil {
				return goerr.Wrap(err, "failed to read input file", goerr.V("path", input))
			}

			var raw []map[string]any
			if err := json.Unmarshal(data, &raw); err != nil {
				return goerr.Wrap(err, "input must be a JSON array of records",
					goerr.V("path", input))
			}

			ingestor := ingest.New(repo, opts...)
			accepted, err := ingestor.IngestBatch(ctx, src, model.UserID(userID), raw)
			if err != nil {
				return goerr.Wrap(err, "ingestion failed")
			}

			fmt.Fprintf(c.Root().Writer, "accepted %d of %d records\n", accepted, len(raw))
			return nil
		},
	}
}
