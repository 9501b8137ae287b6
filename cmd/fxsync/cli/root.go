// Package cli implements the fxsync operator commands.
package cli

import (
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/fxsync/internal/app"
	"github.com/odyssey-erp/fxsync/internal/fxsync"
	"github.com/odyssey-erp/fxsync/internal/platform/awsx"
	"github.com/odyssey-erp/fxsync/internal/platform/db"
	"github.com/odyssey-erp/fxsync/internal/warehouse"
)

// Syncer runs or replays a sync.
type Syncer interface {
	RunOnce(ctx context.Context, trigger string) (fxsync.Result, error)
	Reload(ctx context.Context, key string) (fxsync.Result, error)
}

// Migrations manages the warehouse schema version.
type Migrations interface {
	Up() (bool, error)
	Down(steps int) (bool, error)
	Status() (db.Status, error)
	Close() error
}

// Warehouse is the warehouse surface used by the operator commands.
type Warehouse interface {
	QueryBatched(ctx context.Context, sql string, chunkSize int, args ...any) (iter.Seq2[warehouse.Table, error], error)
	LoadConfig(ctx context.Context, schema string) (warehouse.Settings, error)
	Migrations() (Migrations, error)
}

// Queue submits and inspects sync tasks.
type Queue interface {
	EnqueueFXSync(ctx context.Context, trigger string) (*asynq.TaskInfo, error)
	InspectQueue(ctx context.Context) (QueueStats, error)
	Close() error
}

// Env holds the factories commands build their dependencies from.
type Env struct {
	LoadConfig func() (*app.Config, error)
	Syncer     func(cfg *app.Config, logger *slog.Logger) Syncer
	Warehouse  func(ctx context.Context, cfg *app.Config, logger *slog.Logger) (Warehouse, error)
	Queue      func(cfg *app.Config) (Queue, error)
	Stdout     io.Writer
	Stderr     io.Writer
}

// DefaultEnv wires the commands to AWS, the warehouse and Redis.
func DefaultEnv() Env {
	return Env{
		LoadConfig: app.LoadConfig,
		Syncer: func(cfg *app.Config, logger *slog.Logger) Syncer {
			return fxsync.NewRunner(fxsync.RunnerConfig{
				LoadConfig:   func() (*app.Config, error) { return cfg, nil },
				Dependencies: fxsync.AWSDependencies(logger, nil),
				Logger:       logger,
			})
		},
		Warehouse: func(ctx context.Context, cfg *app.Config, logger *slog.Logger) (Warehouse, error) {
			clients, err := awsx.NewClients(ctx, cfg.AWSRegion)
			if err != nil {
				return nil, err
			}
			client, _, err := fxsync.Connect(ctx, cfg, fxsync.Dependencies{
				Secrets: clients.SecretsManager,
				Logger:  logger,
			})
			if err != nil {
				return nil, err
			}
			return warehouseClient{client}, nil
		},
		Queue: func(cfg *app.Config) (Queue, error) {
			return NewJobsCLI(cfg.RedisAddr)
		},
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

type warehouseClient struct {
	*warehouse.Client
}

func (w warehouseClient) Migrations() (Migrations, error) {
	m, err := w.NewMigrator()
	if err != nil {
		return nil, err
	}
	return m, nil
}

// RootCommand is the fxsync entry command.
type RootCommand struct {
	baseCmd *cobra.Command
	env     Env
}

// NewRootCommand builds the command tree.
func NewRootCommand(env Env) *RootCommand {
	if env.Stdout == nil {
		env.Stdout = os.Stdout
	}
	if env.Stderr == nil {
		env.Stderr = os.Stderr
	}
	if env.LoadConfig == nil {
		env.LoadConfig = app.LoadConfig
	}
	rootCommand := &RootCommand{
		baseCmd: &cobra.Command{
			Use:           "fxsync",
			Short:         "exchange-rate fetch, archive and load job",
			SilenceUsage:  true,
			SilenceErrors: true,
		},
		env: env,
	}
	rootCommand.baseCmd.SetOut(env.Stdout)
	rootCommand.baseCmd.SetErr(env.Stderr)

	rootCommand.registerSubCommands()

	return rootCommand
}

func (rc *RootCommand) registerSubCommands() {
	rc.baseCmd.AddCommand(
		rc.runCommand(),
		rc.loadCommand(),
		rc.enqueueCommand(),
		rc.queueCommand(),
		rc.migrateCommand(),
		rc.queryCommand(),
		rc.configCommand(),
	)
}

// Command exposes the cobra command, mainly for tests.
func (rc *RootCommand) Command() *cobra.Command {
	return rc.baseCmd
}

// Execute runs the command tree until completion or a termination signal.
func (rc *RootCommand) Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rc.baseCmd.ExecuteContext(ctx); err != nil {
		_, _ = fmt.Fprintln(rc.env.Stderr, err)
		stop()
		os.Exit(1)
	}
}

// setup loads configuration and a logger for a command invocation.
func (rc *RootCommand) setup() (*app.Config, *slog.Logger, error) {
	cfg, err := rc.env.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, app.NewLogger(cfg).With(slog.String("component", "cli")), nil
}

func (rc *RootCommand) warehouse(ctx context.Context) (*app.Config, Warehouse, error) {
	cfg, logger, err := rc.setup()
	if err != nil {
		return nil, nil, err
	}
	if rc.env.Warehouse == nil {
		return nil, nil, fmt.Errorf("warehouse not configured")
	}
	wh, err := rc.env.Warehouse(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, wh, nil
}
