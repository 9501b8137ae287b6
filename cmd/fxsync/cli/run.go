package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/odyssey-erp/fxsync/jobs"
)

func (rc *RootCommand) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Fetch, archive and load one snapshot now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			syncer, err := rc.syncer()
			if err != nil {
				return err
			}
			result, err := syncer.RunOnce(cmd.Context(), jobs.TriggerManual)
			if err != nil {
				return fmt.Errorf("run: %w", err)
			}
			return rc.writeJSON(result)
		},
	}
}

func (rc *RootCommand) loadCommand() *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load an archived snapshot again by object key",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("load: --key is required")
			}
			syncer, err := rc.syncer()
			if err != nil {
				return err
			}
			result, err := syncer.Reload(cmd.Context(), key)
			if err != nil {
				return fmt.Errorf("load: %w", err)
			}
			return rc.writeJSON(result)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "archive object key, e.g. exchange_rates/2023/11/14/exchange-rates-22.json")
	return cmd
}

func (rc *RootCommand) syncer() (Syncer, error) {
	cfg, logger, err := rc.setup()
	if err != nil {
		return nil, err
	}
	if rc.env.Syncer == nil {
		return nil, errors.New("sync runner not configured")
	}
	return rc.env.Syncer(cfg, logger), nil
}

func (rc *RootCommand) writeJSON(v any) error {
	enc := json.NewEncoder(rc.env.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
