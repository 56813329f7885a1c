package migrations

import "embed"

// FS contains the embedded PostgreSQL migrations of the search service.
//
//go:embed *.sql
var FS embed.FS
