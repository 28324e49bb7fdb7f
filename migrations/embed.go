// Package migrations embeds SQL migration files for use at runtime.
package migrations

import "embed"

// FS holds every .sql file in this directory, applied in lexical order.
//
//go:embed *.sql
var FS embed.FS
