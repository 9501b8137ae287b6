package fxsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/fxsync/internal/app"
	jobmetrics "github.com/odyssey-erp/fxsync/internal/jobs"
	"github.com/odyssey-erp/fxsync/internal/platform/awsx"
	"github.com/odyssey-erp/fxsync/jobs"
)

// DependencyFactory builds the external clients for one run.
type DependencyFactory func(ctx context.Context, cfg *app.Config) (Dependencies, error)

// AWSDependencies returns a factory that creates S3 and Secrets Manager
// clients for the configured region.
func AWSDependencies(logger *slog.Logger, metrics *jobmetrics.Metrics) DependencyFactory {
	return func(ctx context.Context, cfg *app.Config) (Dependencies, error) {
		clients, err := awsx.NewClients(ctx, cfg.AWSRegion)
		if err != nil {
			return Dependencies{}, err
		}
		return Dependencies{
			Secrets:    clients.SecretsManager,
			Objects:    clients.S3,
			HTTPClient: &http.Client{Timeout: cfg.RatesTimeout},
			Logger:     logger,
			Metrics:    metrics,
		}, nil
	}
}

// RunnerConfig wires a Runner.
type RunnerConfig struct {
	LoadConfig   func() (*app.Config, error)
	Dependencies DependencyFactory
	Logger       *slog.Logger
	// Metrics counts runs that fail before the job is built. Pass the same
	// instance handed to AWSDependencies so both land on one registry.
	Metrics *jobmetrics.Metrics
}

// Runner re-reads configuration and rebuilds the job for every invocation.
type Runner struct {
	loadConfig func() (*app.Config, error)
	deps       DependencyFactory
	logger     *slog.Logger
	metrics    *jobmetrics.Metrics
}

// NewRunner constructs a Runner. LoadConfig defaults to app.LoadConfig.
func NewRunner(cfg RunnerConfig) *Runner {
	load := cfg.LoadConfig
	if load == nil {
		load = app.LoadConfig
	}
	return &Runner{loadConfig: load, deps: cfg.Dependencies, logger: cfg.Logger, metrics: cfg.Metrics}
}

// Response is returned to the Lambda runtime on success.
type Response struct {
	StatusCode int `json:"statusCode"`
}

func (r *Runner) prepare(ctx context.Context, trigger string) (*Job, error) {
	if r == nil || r.deps == nil {
		return nil, errors.New("fxsync: runner not configured")
	}
	cfg, err := r.loadConfig()
	if err != nil {
		return nil, fmt.Errorf("fxsync: load config: %w", err)
	}
	deps, err := r.deps(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("fxsync: dependencies: %w", err)
	}
	logger := deps.Logger
	if logger == nil {
		logger = r.log()
	}
	deps.Logger = logger.With(slog.String("trigger", trigger))
	return Bootstrap(ctx, cfg, deps)
}

// RunOnce performs one complete sync.
func (r *Runner) RunOnce(ctx context.Context, trigger string) (Result, error) {
	tracker := r.meter().Track(jobs.TaskFXRatesSync)
	job, err := r.prepare(ctx, trigger)
	if err != nil {
		r.log().Error("fx sync bootstrap failed", slog.String("trigger", trigger), slog.Any("error", err))
		return Result{}, tracker.End(err)
	}
	return job.Run(ctx)
}

// Reload loads an archived snapshot by key.
func (r *Runner) Reload(ctx context.Context, key string) (Result, error) {
	job, err := r.prepare(ctx, jobs.TriggerManual)
	if err != nil {
		return Result{}, err
	}
	return job.Reload(ctx, key)
}

// HandleLambda is the Lambda entry point. The event body is ignored.
func (r *Runner) HandleLambda(ctx context.Context, _ json.RawMessage) (Response, error) {
	if _, err := r.RunOnce(ctx, jobs.TriggerCron); err != nil {
		return Response{}, err
	}
	return Response{StatusCode: http.StatusOK}, nil
}

// HandleTask fulfils the asynq.HandlerFunc contract.
func (r *Runner) HandleTask(ctx context.Context, t *asynq.Task) error {
	payload, err := jobs.DecodeFXSyncPayload(t)
	if err != nil {
		return err
	}
	if _, err := r.RunOnce(ctx, payload.Trigger); err != nil {
		return errors.Join(asynq.SkipRetry, err)
	}
	return nil
}

func (r *Runner) meter() *jobmetrics.Metrics {
	if r == nil {
		return nil
	}
	return r.metrics
}

func (r *Runner) log() *slog.Logger {
	if r != nil && r.logger != nil {
		return r.logger
	}
	return slog.Default()
}
