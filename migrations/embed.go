// Package migrations ships the SQLite schema inside the binary. Importing it
// registers the files with the database package.
package migrations

import (
	"embed"

	"github.com/nerrad567/mhi-hvac-core/internal/infrastructure/database"
)

//go:embed *.sql
var files embed.FS

func init() {
	database.MigrationsFS = files
	database.MigrationsDir = "."
}
