// Package migrations embeds the goose SQL migrations for the core database.
package migrations

import "embed"

// CoreDir is the directory inside Core holding the migration files.
const CoreDir = "core"

//go:embed core/*.sql
var Core embed.FS
