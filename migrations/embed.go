// Package migrations embeds the history store's SQL migrations into the binary.
//
// Each dialect has its own directory; the database package picks the one
// matching the configured driver.
package migrations

import (
	"embed"

	"github.com/nerrad567/scooter-telemetry/internal/infrastructure/database"
)

//go:embed sqlite/*.sql postgres/*.sql
var migrationsFS embed.FS

func init() {
	database.MigrationsFS = migrationsFS
	database.MigrationsDir = "."
}
