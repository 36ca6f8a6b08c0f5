// Package migrations embeds the SQL schema migrations applied by goose at
// startup when GATEHOUSE_DB_MIGRATE is enabled.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
