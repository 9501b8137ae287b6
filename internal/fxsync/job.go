// Package fxsync runs the exchange-rate pipeline: fetch a snapshot, archive the
// raw payload, then load it into the warehouse.
package fxsync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/fxsync/internal/archive"
	jobmetrics "github.com/odyssey-erp/fxsync/internal/jobs"
	"github.com/odyssey-erp/fxsync/internal/rates"
	"github.com/odyssey-erp/fxsync/jobs"
)

// SnapshotTimeLayout is the timestamp format passed to the load procedure.
const SnapshotTimeLayout = "2006-01-02 15:04:05"

const loadProcedure = "sp_exchange_rate_loading"

// Fetcher retrieves one rate snapshot.
type Fetcher interface {
	Fetch(ctx context.Context) (rates.Snapshot, error)
}

// Archive persists raw snapshots.
type Archive interface {
	Put(ctx context.Context, key string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
}

// Loader executes warehouse statements.
type Loader interface {
	Execute(ctx context.Context, sql string, args ...any) error
}

// JobConfig wires dependencies required by the sync job.
type JobConfig struct {
	Fetcher Fetcher
	Archive Archive
	Loader  Loader
	Schema  string
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// Job performs a single fetch, archive and load pass per Run.
type Job struct {
	fetcher Fetcher
	archive Archive
	loader  Loader
	schema  string
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
	newID   func() string
}

// Result summarises a completed run.
type Result struct {
	RunID      string `json:"run_id"`
	Key        string `json:"key"`
	SnapshotAt string `json:"snapshot_at"`
	Base       string `json:"base,omitempty"`
	Rates      int    `json:"rates"`
	Bytes      int    `json:"bytes"`
}

// NewJob validates cfg and constructs a Job.
func NewJob(cfg JobConfig) (*Job, error) {
	if cfg.Fetcher == nil || cfg.Archive == nil || cfg.Loader == nil {
		return nil, errors.New("fxsync: fetcher, archive and loader are required")
	}
	if strings.TrimSpace(cfg.Schema) == "" {
		return nil, errors.New("fxsync: warehouse schema is required")
	}
	return &Job{
		fetcher: cfg.Fetcher,
		archive: cfg.Archive,
		loader:  cfg.Loader,
		schema:  cfg.Schema,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		newID:   uuid.NewString,
	}, nil
}

// LoadStatement returns the CALL statement for schema with two bound parameters.
func LoadStatement(schema string) string {
	return "CALL " + pgx.Identifier{schema, loadProcedure}.Sanitize() + "($1, $2)"
}

// Run fetches, archives and loads one snapshot.
func (j *Job) Run(ctx context.Context) (result Result, err error) {
	if j == nil {
		return Result{}, errors.New("fxsync: job not configured")
	}
	result.RunID = j.newID()
	tracker := j.metrics.Track(jobs.TaskFXRatesSync)
	defer func() {
		err = tracker.End(err)
	}()

	logger := j.log().With(slog.String("run_id", result.RunID))
	start := time.Now()
	logger.Info("starting fx sync")

	snapshot, err := j.fetcher.Fetch(ctx)
	if err != nil {
		logger.Error("fetch rates failed", slog.Any("error", err))
		return result, fmt.Errorf("fxsync: fetch rates: %w", err)
	}

	result.Key = archive.Key(snapshot.Timestamp)
	result.SnapshotAt = snapshot.Timestamp.UTC().Format(SnapshotTimeLayout)
	result.Base = snapshot.Base
	result.Rates = len(snapshot.Rates)
	result.Bytes = len(snapshot.Raw)
	logger = logger.With(slog.String("key", result.Key), slog.String("snapshot_at", result.SnapshotAt))

	if err := j.archive.Put(ctx, result.Key, snapshot.Raw); err != nil {
		logger.Error("archive snapshot failed", slog.Any("error", err))
		return result, &StorageWriteError{Key: result.Key, Err: err}
	}
	j.metrics.AddArchivedBytes(jobs.TaskFXRatesSync, result.Bytes)

	if err := j.load(ctx, result.Key, snapshot); err != nil {
		logger.Error("load snapshot failed", slog.Any("error", err))
		return result, err
	}

	logger.Info("completed fx sync",
		slog.String("base", result.Base),
		slog.Int("rates", result.Rates),
		slog.Int("bytes", result.Bytes),
		slog.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// Reload loads an already archived snapshot again without refetching it.
func (j *Job) Reload(ctx context.Context, key string) (Result, error) {
	if j == nil {
		return Result{}, errors.New("fxsync: job not configured")
	}
	raw, err := j.archive.Get(ctx, key)
	if err != nil {
		return Result{}, fmt.Errorf("fxsync: read archive: %w", err)
	}
	snapshot, err := rates.ParseSnapshot(raw)
	if err != nil {
		return Result{}, fmt.Errorf("fxsync: parse archive %s: %w", key, err)
	}
	result := Result{
		RunID:      j.newID(),
		Key:        key,
		SnapshotAt: snapshot.Timestamp.UTC().Format(SnapshotTimeLayout),
		Base:       snapshot.Base,
		Rates:      len(snapshot.Rates),
		Bytes:      len(raw),
	}
	if err := j.load(ctx, key, snapshot); err != nil {
		return result, err
	}
	j.log().Info("reloaded archived snapshot", slog.String("run_id", result.RunID), slog.String("key", key))
	return result, nil
}

func (j *Job) load(ctx context.Context, key string, snapshot rates.Snapshot) error {
	snapshotAt := snapshot.Timestamp.UTC().Format(SnapshotTimeLayout)
	if err := j.loader.Execute(ctx, LoadStatement(j.schema), string(snapshot.Raw), snapshotAt); err != nil {
		return &LoadError{Key: key, SnapshotAt: snapshotAt, Err: err}
	}
	j.metrics.ObserveSnapshot(snapshot.Base, len(snapshot.Rates), snapshot.Timestamp)
	return nil
}

func (j *Job) log() *slog.Logger {
	if j.logger != nil {
		return j.logger.With(slog.String("job", jobs.TaskFXRatesSync))
	}
	return slog.Default().With(slog.String("job", jobs.TaskFXRatesSync))
}
