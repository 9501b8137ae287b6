package fxsync

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/odyssey-erp/fxsync/internal/app"
	"github.com/odyssey-erp/fxsync/internal/archive"
	jobmetrics "github.com/odyssey-erp/fxsync/internal/jobs"
	"github.com/odyssey-erp/fxsync/internal/rates"
	"github.com/odyssey-erp/fxsync/internal/secrets"
	"github.com/odyssey-erp/fxsync/internal/warehouse"
)

// Dependencies are the external clients a run is built from.
type Dependencies struct {
	Secrets          secrets.SecretsAPI
	Objects          archive.ObjectAPI
	HTTPClient       *http.Client
	Logger           *slog.Logger
	Metrics          *jobmetrics.Metrics
	WarehouseOptions []warehouse.Option
}

// Connect resolves warehouse credentials and builds a client for them.
func Connect(ctx context.Context, cfg *app.Config, deps Dependencies) (*warehouse.Client, secrets.Credentials, error) {
	if cfg == nil {
		return nil, secrets.Credentials{}, fmt.Errorf("fxsync: config is nil")
	}
	creds, err := secrets.NewResolver(deps.Secrets).Resolve(ctx, cfg.SecretID, cfg.SecretKey)
	if err != nil {
		return nil, secrets.Credentials{}, fmt.Errorf("fxsync: resolve credentials: %w", err)
	}
	opts := append([]warehouse.Option{warehouse.WithLogger(deps.Logger)}, deps.WarehouseOptions...)
	client, err := warehouse.New(warehouse.Config{
		Credentials: creds,
		Database:    cfg.WarehouseDatabase,
		Role:        cfg.WarehouseRole,
		Warehouse:   cfg.WarehouseName,
		Port:        cfg.WarehousePort,
		SSLMode:     cfg.WarehouseSSLMode,
	}, opts...)
	if err != nil {
		return nil, secrets.Credentials{}, fmt.Errorf("fxsync: warehouse client: %w", err)
	}
	return client, creds, nil
}

// Bootstrap builds a Job from fresh configuration. Credential resolution
// happens first; if it fails nothing else is constructed.
func Bootstrap(ctx context.Context, cfg *app.Config, deps Dependencies) (*Job, error) {
	client, creds, err := Connect(ctx, cfg, deps)
	if err != nil {
		return nil, err
	}
	appID := cfg.RatesAppID
	if appID == "" {
		appID = creds.AppID
	}
	fetcher, err := rates.NewClient(rates.Config{
		BaseURL:      cfg.RatesBaseURL,
		AppID:        appID,
		BaseCurrency: cfg.RatesBaseCurrency,
		Timeout:      cfg.RatesTimeout,
		HTTPClient:   deps.HTTPClient,
	})
	if err != nil {
		return nil, fmt.Errorf("fxsync: rates client: %w", err)
	}
	store, err := archive.NewStore(deps.Objects, cfg.S3Bucket)
	if err != nil {
		return nil, fmt.Errorf("fxsync: archive: %w", err)
	}
	return NewJob(JobConfig{
		Fetcher: fetcher,
		Archive: store,
		Loader:  client,
		Schema:  cfg.WarehouseSchema,
		Logger:  deps.Logger,
		Metrics: deps.Metrics,
	})
}
