package migrations

import "embed"

// FS holds the goose SQL migrations shipped with every binary.
//
//go:embed *.sql
var FS embed.FS
