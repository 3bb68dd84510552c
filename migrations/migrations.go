// Package migrations embeds the schema applied by cmd/migrate.
package migrations

import "embed"

// FS holds the golang-migrate source files.
//
//go:embed *.sql
var FS embed.FS
