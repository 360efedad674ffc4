// Package migrations embeds the SQL schema for the device registry and
// telemetry history.
package migrations

import (
	"embed"

	"github.com/nerrad567/smarthome-core/internal/infrastructure/database"
)

//go:embed *.sql
var migrationsFS embed.FS

// Source returns the embedded migrations.
func Source() database.Source {
	return database.Source{FS: migrationsFS, Dir: "."}
}

func init() {
	database.Register(Source())
}
