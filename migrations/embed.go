// Package migrations embeds the PostgreSQL schema and reference seeds.
package migrations

import (
	"embed"
	"io/fs"
)

//go:embed sql/*.sql seeds/*.sql
var files embed.FS

// FS holds sql/ (versioned *.up.sql and *.down.sql) and seeds/.
func FS() fs.FS { return files }

const (
	SQLDir   = "sql"
	SeedsDir = "seeds"
)
