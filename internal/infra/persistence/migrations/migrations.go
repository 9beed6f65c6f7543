// Package migrations embeds the goose SQL migrations for the credential store.
package migrations

import "embed"

// Migrations holds every *.sql file in this directory.
//
//go:embed *.sql
var Migrations embed.FS
