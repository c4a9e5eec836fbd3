// Package db holds the SQL schema migrations applied by cryoetctl.
package db

import "embed"

// Migrations contains the up/down migration files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS
