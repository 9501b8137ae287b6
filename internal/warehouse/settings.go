package warehouse

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Settings holds active name/value rows from a schema's config table.
type Settings map[string]string

// Get returns the value stored for name.
func (s Settings) Get(name string) (string, bool) {
	v, ok := s[name]
	return v, ok
}

// Names lists the setting names in sorted order.
func (s Settings) Names() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LoadConfig reads the active sql and variable rows of schema.config.
func (c *Client) LoadConfig(ctx context.Context, schema string) (Settings, error) {
	schema = strings.TrimSpace(schema)
	if schema == "" {
		return nil, fmt.Errorf("%w: schema is required", ErrInvalidArgument)
	}
	query := `SELECT name, value FROM ` + pgx.Identifier{schema, "config"}.Sanitize() +
		` WHERE type IN ('sql','variable') AND active_flag = TRUE`
	table, err := c.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	settings := make(Settings, table.Len())
	for _, row := range table.Rows {
		if len(row) < 2 {
			continue
		}
		name, ok := row[0].(string)
		if !ok || name == "" {
			continue
		}
		if row[1] == nil {
			settings[name] = ""
			continue
		}
		settings[name] = fmt.Sprint(row[1])
	}
	return settings, nil
}
