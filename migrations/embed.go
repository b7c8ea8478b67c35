// Package migrations embeds the relay's SQL migrations into the binary.
package migrations

import "embed"

// FS holds the *.up.sql files at its root.
//
//go:embed *.sql
var FS embed.FS
