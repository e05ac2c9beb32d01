// Package db embeds the goose migrations.
package db

import "embed"

// Migrations holds the versioned goose SQL migrations under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
