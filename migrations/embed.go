package migrations

import "embed"

// Files содержит SQL-миграции, отсортированные по имени
//
//go:embed *.sql
var Files embed.FS
