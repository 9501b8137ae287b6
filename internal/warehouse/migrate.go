package warehouse

import (
	"embed"

	"github.com/odyssey-erp/fxsync/internal/platform/db"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// NewMigrator prepares the schema migrations that install the load target
// tables and the sp_exchange_rate_loading procedure.
func (c *Client) NewMigrator() (*db.Migrator, error) {
	return db.NewMigrator(c.ConnConfig(), migrationsFS, "migrations")
}
