// Package migrations embeds the SQL migration files applied by goose at
// server start-up and in integration tests.
package migrations

import "embed"

// FS holds all *.sql migration files.
//
//go:embed *.sql
var FS embed.FS
