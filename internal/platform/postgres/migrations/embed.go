// Package migrations embeds the goose SQL migrations for the dispatch schema.
package migrations

import "embed"

// TableName is the goose version table.
const TableName = "schema_migrations"

// FS holds every *.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
