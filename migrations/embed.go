// Package migrations хранит SQL-миграции схемы для обоих драйверов.
package migrations

import "embed"

// Postgres — миграции для PostgreSQL, применяются по порядку имён файлов.
//
//go:embed postgres/*.sql
var Postgres embed.FS

// SQLite — те же миграции в диалекте SQLite.
//
//go:embed sqlite/*.sql
var SQLite embed.FS
