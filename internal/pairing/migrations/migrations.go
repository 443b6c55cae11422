// Package migrations embeds the pairing database schema for goose.
package migrations

import "embed"

//go:embed *.sql
var Migrations embed.FS
