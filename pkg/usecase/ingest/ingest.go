// Package ingest runs provider batches through the full pipeline:
// archive the raw payload, normalize to the canonical schema, reconcile
// against the records already stored for the affected days, persist the
// outcome, and refresh the daily rollups the analytics layer reads.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/stride-health/stride/pkg/adapter"
	"github.com/stride-health/stride/pkg/interfaces"
	"github.com/stride-health/stride/pkg/model"
	"github.com/stride-health/stride/pkg/service/dedup"
	"github.com/stride-health/stride/pkg/service/normalize"
	"github.com/stride-health/stride/pkg/utils/logging"
)

// CacheInvalidator drops a user's derived analytics entries after their
// store changed
type CacheInvalidator interface {
	InvalidateUser(ctx context.Context, user model.UserID) error
}

// Ingestor is the batch ingestion pipeline. Archive, warehouse and cache
// are optional: a nil collaborator skips that stage, everything else is
// unaffected.
type Ingestor struct {
	repo      interfaces.Repository
	archive   adapter.Storage
	warehouse adapter.Warehouse
	cache     CacheInvalidator
	dedupCfg  dedup.Config
	now       func() time.Time
}

type Option func(*Ingestor)

// WithArchive enables raw-payload archival before normalization
func WithArchive(archive adapter.Storage) Option {
	return func(i *Ingestor) {
		i.archive = archive
	}
}

// WithWarehouse enables exporting reconciliation decisions for audit
func WithWarehouse(warehouse adapter.Warehouse) Option {
	return func(i *Ingestor) {
		i.warehouse = warehouse
	}
}

// WithCacheInvalidator enables analytics cache invalidation after writes
func WithCacheInvalidator(cache CacheInvalidator) Option {
	return func(i *Ingestor) {
		i.cache = cache
	}
}

// WithDedupConfig overrides the reconciliation tuning
func WithDedupConfig(cfg dedup.Config) Option {
	return func(i *Ingestor) {
		i.dedupCfg = cfg
	}
}

// WithNowFunc overrides the clock
func WithNowFunc(now func() time.Time) Option {
	return func(i *Ingestor) {
		i.now = now
	}
}

// New creates the ingestion pipeline over the given repository
func New(repo interfaces.Repository, opts ...Option) *Ingestor {
	i := &Ingestor{
		repo:     repo,
		dedupCfg: dedup.DefaultConfig(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// IngestBatch processes one raw batch from a source. Records that fail
// normalization are logged and skipped; the batch succeeds with whatever
// was usable. The returned count is how many records were accepted.
func (i *Ingestor) IngestBatch(ctx context.Context, source model.Source, user model.UserID, raw []map[string]any) (int, error) {
	i.archiveBatch(ctx, source, user, raw, i.now().UTC())
	return i.processBatch(ctx, source, user, raw)
}

// ReplayArchived re-runs one archived raw batch through the pipeline,
// without re-archiving it. Records carry deterministic IDs, so replaying
// a batch upserts rather than duplicates.
func (i *Ingestor) ReplayArchived(ctx context.Context, source model.Source, user model.UserID, key string) (int, error) {
	if i.archive == nil {
		return 0, goerr.New("no archive configured")
	}

	reader, err := i.archive.Get(ctx, key)
	if err != nil {
		return 0, goerr.Wrap(err, "failed to open archived batch", goerr.V("key", key))
	}
	defer reader.Close()

	var raw []map[string]any
	if err := json.NewDecoder(reader).Decode(&raw); err != nil {
		return 0, goerr.Wrap(err, "archived batch is not a JSON array", goerr.V("key", key))
	}

	return i.processBatch(ctx, source, user, raw)
}

func (i *Ingestor) processBatch(ctx context.Context, source model.Source, user model.UserID, raw []map[string]any) (int, error) {
	logger := logging.From(ctx)
	now := i.now().UTC()

	var activities []*model.ActivityRecord
	metricDays := map[string]struct{}{}
	accepted := 0

	for idx, entry := range raw {
		record, err := normalize.Normalize(source, user, entry)
		if err != nil {
			logger.Warn("skipping unusable record",
				"source", source, "index", idx, "error", err)
			continue
		}
		accepted++

		switch {
		case record.Activity != nil:
			record.Activity.CreatedAt = now
			activities = append(activities, record.Activity)
		case record.Metric != nil:
			if err := i.applyMetric(ctx, record.Metric, now); err != nil {
				return accepted, err
			}
			metricDays[record.Metric.Day] = struct{}{}
		}
	}

	affectedDays, err := i.reconcile(ctx, user, activities, now)
	if err != nil {
		return accepted, err
	}

	for day := range affectedDays {
		if err := i.recomputeRollups(ctx, user, day, now); err != nil {
			return accepted, err
		}
	}

	if len(activities) > 0 || len(metricDays) > 0 {
		i.invalidate(ctx, user)
	}
	return accepted, nil
}

// reconcile merges the new activities with the day's stored records, runs
// deduplication and persists the outcome. Returns the set of affected days.
func (i *Ingestor) reconcile(ctx context.Context, user model.UserID, activities []*model.ActivityRecord, now time.Time) (map[string]struct{}, error) {
	affected := map[string]struct{}{}
	if len(activities) == 0 {
		return affected, nil
	}

	from, to := activities[0].StartTime, activities[0].StartTime
	for _, a := range activities {
		if a.StartTime.Before(from) {
			from = a.StartTime
		}
		if a.StartTime.After(to) {
			to = a.StartTime
		}
		affected[a.StartTime.UTC().Format(model.DayKey)] = struct{}{}
	}

	dayStart := from.UTC().Truncate(24 * time.Hour)
	dayEnd := to.UTC().Truncate(24 * time.Hour).AddDate(0, 0, 1)

	existing, err := i.repo.ListActivities(ctx, user, dayStart, dayEnd, false)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load existing records for reconciliation",
			goerr.V("user", user))
	}

	// New records replace stored versions of themselves (re-ingested
	// batches upsert); stored survivors compete alongside them
	newIDs := map[model.RecordID]struct{}{}
	merged := make([]*model.ActivityRecord, 0, len(existing)+len(activities))
	for _, a := range activities {
		newIDs[a.ID] = struct{}{}
		merged = append(merged, a)
	}
	for _, e := range existing {
		if _, ok := newIDs[e.ID]; ok {
			continue
		}
		merged = append(merged, e)
	}

	outcome := dedup.Reconcile(merged, i.dedupCfg)

	for _, survivor := range outcome.Survivors {
		if err := i.repo.PutActivity(ctx, survivor); err != nil {
			return nil, goerr.Wrap(err, "failed to store surviving record",
				goerr.V("id", survivor.ID))
		}
	}
	for _, loser := range outcome.Superseded {
		if _, isNew := newIDs[loser.ID]; isNew {
			if err := i.repo.PutActivity(ctx, loser); err != nil {
				return nil, goerr.Wrap(err, "failed to store superseded record",
					goerr.V("id", loser.ID))
			}
		} else if err := i.repo.MarkSuperseded(ctx, loser.ID, loser.SupersededBy); err != nil {
			return nil, goerr.Wrap(err, "failed to mark record superseded",
				goerr.V("id", loser.ID))
		}
	}

	i.auditLosers(ctx, outcome.Superseded, now)
	return affected, nil
}

// applyMetric folds one direct sample into the day's rollup. Accumulating
// kinds (sleep, intake) add to the stored value; weight overwrites with
// the latest measurement.
func (i *Ingestor) applyMetric(ctx context.Context, metric *model.DailyMetric, now time.Time) error {
	value := metric.Value

	if metric.Kind != model.MetricWeight {
		stored, err := i.repo.ListDailyMetrics(ctx, metric.UserID, metric.Kind, metric.Day, metric.Day)
		if err != nil {
			return goerr.Wrap(err, "failed to read stored rollup",
				goerr.V("user", metric.UserID), goerr.V("kind", metric.Kind))
		}
		if len(stored) > 0 {
			value += stored[0].Value
		}
	}

	return i.repo.UpsertDailyMetric(ctx, &model.DailyMetric{
		UserID:    metric.UserID,
		Kind:      metric.Kind,
		Day:       metric.Day,
		Value:     value,
		UpdatedAt: now,
	})
}

// recomputeRollups rebuilds the activity-derived metrics of one day from
// its surviving records, so superseded duplicates never inflate totals.
func (i *Ingestor) recomputeRollups(ctx context.Context, user model.UserID, day string, now time.Time) error {
	dayStart, err := time.Parse(model.DayKey, day)
	if err != nil {
		return goerr.Wrap(err, "invalid day key", goerr.V("day", day))
	}

	survivors, err := i.repo.ListActivities(ctx, user, dayStart, dayStart.AddDate(0, 0, 1), false)
	if err != nil {
		return goerr.Wrap(err, "failed to load survivors for rollup",
			goerr.V("user", user), goerr.V("day", day))
	}

	var activeMinutes, energy, distance float64
	for _, s := range survivors {
		activeMinutes += float64(s.DurationSeconds) / 60.0
		energy += s.EnergyKcal
		if s.DistanceMeters != nil {
			distance += *s.DistanceMeters
		}
	}

	rollups := map[model.MetricKind]float64{
		model.MetricActiveMinutes: activeMinutes,
		model.MetricEnergyBurned:  energy,
		model.MetricDistance:      distance,
	}
	for kind, value := range rollups {
		err := i.repo.UpsertDailyMetric(ctx, &model.DailyMetric{
			UserID:    user,
			Kind:      kind,
			Day:       day,
			Value:     value,
			UpdatedAt: now,
		})
		if err != nil {
			return goerr.Wrap(err, "failed to upsert rollup",
				goerr.V("user", user), goerr.V("kind", kind), goerr.V("day", day))
		}
	}
	return nil
}

// archiveBatch writes the raw payload before normalization, best-effort:
// an archive outage must not block ingestion.
func (i *Ingestor) archiveBatch(ctx context.Context, source model.Source, user model.UserID, raw []map[string]any, now time.Time) {
	if i.archive == nil || len(raw) == 0 {
		return
	}
	logger := logging.From(ctx)

	key := fmt.Sprintf("raw/%s/%s/%s.json", source, user, now.Format("20060102T150405.000000000Z"))
	writer, err := i.archive.Put(ctx, key)
	if err != nil {
		logger.Warn("failed to open archive object", "key", key, "error", err)
		return
	}

	if err := json.NewEncoder(writer).Encode(raw); err != nil {
		logger.Warn("failed to write raw batch archive", "key", key, "error", err)
		writer.Close()
		return
	}
	if err := writer.Close(); err != nil {
		logger.Warn("failed to finalize raw batch archive", "key", key, "error", err)
	}
}

// auditLosers streams reconciliation decisions to the warehouse,
// best-effort
func (i *Ingestor) auditLosers(ctx context.Context, losers []*model.ActivityRecord, now time.Time) {
	if i.warehouse == nil || len(losers) == 0 {
		return
	}

	rows := make([]*adapter.AuditRow, 0, len(losers))
	for _, loser := range losers {
		rows = append(rows, adapter.NewAuditRow(loser, now))
	}
	if err := i.warehouse.InsertAuditRows(ctx, rows); err != nil {
		logging.From(ctx).Warn("failed to export audit rows",
			"count", len(rows), "error", err)
	}
}

func (i *Ingestor) invalidate(ctx context.Context, user model.UserID) {
	if i.cache == nil {
		return
	}
	if err := i.cache.InvalidateUser(ctx, user); err != nil {
		logging.From(ctx).Warn("failed to invalidate analytics cache",
			"user", user, "error", err)
	}
}
