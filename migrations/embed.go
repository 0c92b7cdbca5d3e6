// Package migrations embeds the goose SQL migrations so both the API and
// worker binaries can apply them at startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
