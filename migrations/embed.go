// Package migrations embeds the tenant schema SQL files applied by
// db.Migrator.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
