// Package migrations holds the versioned chatd schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
