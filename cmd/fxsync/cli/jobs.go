package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"

	"github.com/odyssey-erp/fxsync/internal/platform/cache"
	"github.com/odyssey-erp/fxsync/jobs"
)

// JobsCLI wraps queue helpers for sync tasks.
type JobsCLI struct {
	client    *jobs.Client
	inspector *asynq.Inspector
}

// NewJobsCLI initialises the helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	client, err := jobs.NewClient(cache.AsynqOpt(redisAddr))
	if err != nil {
		return nil, err
	}
	inspector := asynq.NewInspector(cache.AsynqOpt(redisAddr))
	return &JobsCLI{client: client, inspector: inspector}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var errs []error
	if c.inspector != nil {
		errs = append(errs, c.inspector.Close())
	}
	if c.client != nil {
		errs = append(errs, c.client.Close())
	}
	return errors.Join(errs...)
}

// EnqueueFXSync submits a sync run for the worker.
func (c *JobsCLI) EnqueueFXSync(ctx context.Context, trigger string) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	return c.client.EnqueueFXSync(ctx, trigger)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string `json:"queue"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Failed    int    `json:"failed"`
}

// InspectQueue reports the metrics for the default queue.
func (c *JobsCLI) InspectQueue(ctx context.Context) (QueueStats, error) {
	if c == nil || c.inspector == nil {
		return QueueStats{}, errors.New("jobs cli: inspector not configured")
	}
	info, err := c.inspector.GetQueueInfo(jobs.QueueDefault)
	if err != nil {
		return QueueStats{}, err
	}
	stats := QueueStats{Queue: jobs.QueueDefault}
	if info != nil {
		stats.Pending = info.Pending
		stats.Active = info.Active
		stats.Scheduled = info.Scheduled
		stats.Failed = info.Failed
	}
	return stats, nil
}

func (rc *RootCommand) enqueueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "enqueue",
		Short: "Queue a sync run for the worker",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, err := rc.queue()
			if err != nil {
				return err
			}
			defer queue.Close()
			info, err := queue.EnqueueFXSync(cmd.Context(), jobs.TriggerManual)
			if err != nil {
				return fmt.Errorf("enqueue: %w", err)
			}
			_, _ = fmt.Fprintf(rc.env.Stdout, "enqueued %s on %s\n", info.ID, info.Queue)
			return nil
		},
	}
}

func (rc *RootCommand) queueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "queue",
		Short: "Show the sync queue state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			queue, err := rc.queue()
			if err != nil {
				return err
			}
			defer queue.Close()
			stats, err := queue.InspectQueue(cmd.Context())
			if err != nil {
				return fmt.Errorf("queue: %w", err)
			}
			return rc.writeJSON(stats)
		},
	}
}

func (rc *RootCommand) queue() (Queue, error) {
	cfg, _, err := rc.setup()
	if err != nil {
		return nil, err
	}
	if rc.env.Queue == nil {
		return nil, errors.New("queue not configured")
	}
	return rc.env.Queue(cfg)
}
