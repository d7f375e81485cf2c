package database

import (
	"fmt"
	"strings"

	"github.com/cdtdelta/checkuser/internal/query"
)

// SQLiteDialect implements the Dialect interface for SQLite databases.
// SQLite rejects ORDER BY and LIMIT on a compound SELECT member, so union
// branches are wrapped in subqueries.
type SQLiteDialect struct{}

func (d *SQLiteDialect) DriverName() string                  { return "sqlite" }
func (d *SQLiteDialect) DSN(pathOrConnStr string) string     { return pathOrConnStr }
func (d *SQLiteDialect) Placeholder(index int) string        { return "?" }
func (d *SQLiteDialect) QuoteColumn(name string) string      { return name }
func (d *SQLiteDialect) IndexHint(index string) string       { return "INDEXED BY " + index }
func (d *SQLiteDialect) SupportsUnionBranchOrderLimit() bool { return false }

func (d *SQLiteDialect) TypedNull(t query.ColumnType) string {
	if t == query.IntColumn {
		return "CAST(NULL AS INTEGER)"
	}
	return "CAST(NULL AS TEXT)"
}

func (d *SQLiteDialect) ColumnTypeSQL(t ColType) string {
	switch t {
	case ColID:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	case ColInt, ColBigInt:
		return "INTEGER"
	case ColTimestamp:
		// Not DATETIME: the driver would convert it to time.Time on scan.
		return "TEXT"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) CreateIndexSQL(indexName, tableName string, columns ...string) string {
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName, tableName, strings.Join(columns, ", "))
}

func (d *SQLiteDialect) DropIndexSQL(indexName string) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)
}
