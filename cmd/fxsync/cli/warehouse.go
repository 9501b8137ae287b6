package cli

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func (rc *RootCommand) migrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the warehouse load schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.withMigrations(cmd, func(m Migrations) error {
				changed, err := m.Up()
				if err != nil {
					return err
				}
				return rc.reportMigration(m, changed)
			})
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.withMigrations(cmd, func(m Migrations) error {
				changed, err := m.Down(steps)
				if err != nil {
					return err
				}
				return rc.reportMigration(m, changed)
			})
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "number of migrations to roll back")

	status := &cobra.Command{
		Use:   "status",
		Short: "Print the applied migration version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rc.withMigrations(cmd, func(m Migrations) error {
				return rc.reportMigration(m, false)
			})
		},
	}

	cmd.AddCommand(up, down, status)
	return cmd
}

func (rc *RootCommand) withMigrations(cmd *cobra.Command, fn func(Migrations) error) error {
	_, wh, err := rc.warehouse(cmd.Context())
	if err != nil {
		return err
	}
	m, err := wh.Migrations()
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := fn(m); err != nil {
		return errors.Join(fmt.Errorf("migrate: %w", err), m.Close())
	}
	return m.Close()
}

func (rc *RootCommand) reportMigration(m Migrations, changed bool) error {
	status, err := m.Status()
	if err != nil {
		return err
	}
	if !status.Applied {
		_, _ = fmt.Fprintln(rc.env.Stdout, "no migrations applied")
		return nil
	}
	state := "unchanged"
	if changed {
		state = "changed"
	}
	_, _ = fmt.Fprintf(rc.env.Stdout, "version %d dirty=%t (%s)\n", status.Version, status.Dirty, state)
	return nil
}

func (rc *RootCommand) queryCommand() *cobra.Command {
	var (
		sql       string
		chunkSize int
	)
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a read-only query and stream rows in chunks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(sql) == "" {
				return errors.New("query: --sql is required")
			}
			_, wh, err := rc.warehouse(cmd.Context())
			if err != nil {
				return err
			}
			seq, err := wh.QueryBatched(cmd.Context(), sql, chunkSize)
			if err != nil {
				return fmt.Errorf("query: %w", err)
			}
			out := tabwriter.NewWriter(rc.env.Stdout, 0, 4, 2, ' ', 0)
			header := false
			total := 0
			for table, err := range seq {
				if err != nil {
					_ = out.Flush()
					return fmt.Errorf("query: %w", err)
				}
				if !header {
					_, _ = fmt.Fprintln(out, strings.Join(table.Columns, "\t"))
					header = true
				}
				for _, row := range table.Rows {
					cells := make([]string, len(row))
					for i, v := range row {
						cells[i] = fmt.Sprint(v)
					}
					_, _ = fmt.Fprintln(out, strings.Join(cells, "\t"))
				}
				total += table.Len()
			}
			if err := out.Flush(); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(rc.env.Stderr, "%d row(s)\n", total)
			return nil
		},
	}
	cmd.Flags().StringVar(&sql, "sql", "", "statement to run")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 500, "rows fetched per chunk")
	return cmd
}

func (rc *RootCommand) configCommand() *cobra.Command {
	var schema string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print active settings from the schema config table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, wh, err := rc.warehouse(cmd.Context())
			if err != nil {
				return err
			}
			if schema == "" {
				schema = cfg.WarehouseSchema
			}
			settings, err := wh.LoadConfig(cmd.Context(), schema)
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			out := tabwriter.NewWriter(rc.env.Stdout, 0, 4, 2, ' ', 0)
			for _, name := range settings.Names() {
				value, _ := settings.Get(name)
				_, _ = fmt.Fprintf(out, "%s\t%s\n", name, value)
			}
			return out.Flush()
		},
	}
	cmd.Flags().StringVar(&schema, "schema", "", "schema holding the config table (defaults to WAREHOUSE_SCHEMA)")
	return cmd
}
