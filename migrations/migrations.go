// Package migrations embeds the schema bootstrap for each supported driver.
package migrations

import "embed"

// SqliteMigrations holds sqlite/NNN_*.sql, applied in file name order.
//
//go:embed sqlite/*.sql
var SqliteMigrations embed.FS

// PostgresMigrations holds postgres/NNN_*.sql, applied in file name order.
//
//go:embed postgres/*.sql
var PostgresMigrations embed.FS
