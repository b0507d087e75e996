// Package migrations embeds the SQL schema for the booking audit log.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
