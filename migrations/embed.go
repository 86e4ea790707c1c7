// Package migrations holds the EcoPool schema as goose SQL migrations.
package migrations

import "embed"

// FS is the embedded migration set. cmd/api applies it at startup when
// RUN_MIGRATIONS is set, and the repo tests apply it in TestMain.
//
//go:embed *.sql
var FS embed.FS
