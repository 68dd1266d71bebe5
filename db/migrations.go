// Package db embeds the SQL migrations applied by cmd/migrate.
package db

import "embed"

// Migrations holds every *.sql file under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
