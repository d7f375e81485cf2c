package database

import (
	"fmt"
	"strings"

	"github.com/cdtdelta/checkuser/internal/query"
)

// pgQuoteCol wraps a column name in double quotes if it collides with a
// PostgreSQL keyword. Other names are returned as-is so PostgreSQL folds them
// to lowercase consistently with unquoted DDL definitions.
func pgQuoteCol(name string) string {
	switch name {
	case "timestamp", "type", "user", "offset":
		return `"` + name + `"`
	default:
		return name
	}
}

// PostgresDialect implements the Dialect interface for PostgreSQL databases.
// Parenthesized UNION branches keep their own ORDER BY and LIMIT.
type PostgresDialect struct{}

func (d *PostgresDialect) DriverName() string                  { return "pgx" }
func (d *PostgresDialect) DSN(pathOrConnStr string) string     { return pathOrConnStr }
func (d *PostgresDialect) Placeholder(index int) string        { return fmt.Sprintf("$%d", index) }
func (d *PostgresDialect) QuoteColumn(name string) string      { return pgQuoteCol(name) }
func (d *PostgresDialect) IndexHint(index string) string       { return "" }
func (d *PostgresDialect) SupportsUnionBranchOrderLimit() bool { return true }

func (d *PostgresDialect) TypedNull(t query.ColumnType) string {
	if t == query.IntColumn {
		return "CAST(NULL AS BIGINT)"
	}
	return "CAST(NULL AS TEXT)"
}

func (d *PostgresDialect) ColumnTypeSQL(t ColType) string {
	switch t {
	case ColID:
		return "BIGSERIAL PRIMARY KEY"
	case ColInt:
		return "INTEGER"
	case ColBigInt:
		return "BIGINT"
	case ColTimestamp:
		return "CHAR(14)"
	default:
		return "TEXT"
	}
}

func (d *PostgresDialect) CreateIndexSQL(indexName, tableName string, columns ...string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = pgQuoteCol(c)
	}
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s ON %s (%s)", indexName, tableName, strings.Join(quoted, ", "))
}

func (d *PostgresDialect) DropIndexSQL(indexName string) string {
	return fmt.Sprintf("DROP INDEX IF EXISTS %s", indexName)
}
