package database

import (
	"fmt"
	"strings"

	"github.com/cdtdelta/checkuser/internal/query"
)

// ColType is a backend-neutral column type used by the table definitions.
type ColType int

const (
	// ColID is an auto-incrementing integer primary key.
	ColID ColType = iota
	ColInt
	ColBigInt
	ColText
	// ColTimestamp holds a 14 character YYYYMMDDHHMMSS value.
	ColTimestamp
)

// Dialect abstracts all database-specific SQL generation.
// Each database backend (SQLite, PostgreSQL) implements this interface.
// Its query methods match query.QueryDialect, so a Dialect can also drive
// the union query builder.
type Dialect interface {
	query.QueryDialect

	// DriverName returns the database/sql driver name (e.g. "sqlite", "pgx").
	DriverName() string

	// DSN returns the data source name for opening a connection.
	// For SQLite this is the file path; for PostgreSQL a connection string.
	DSN(pathOrConnStr string) string

	// ColumnTypeSQL renders a column type for DDL.
	ColumnTypeSQL(t ColType) string

	// CreateIndexSQL returns DDL to create an index over columns of a table.
	CreateIndexSQL(indexName, tableName string, columns ...string) string

	// DropIndexSQL returns DDL to drop an index by name.
	DropIndexSQL(indexName string) string
}

// Column is one column of a table definition.
type Column struct {
	Name     string
	Type     ColType
	Nullable bool
	Default  string
}

// Table is a backend-neutral table definition.
type Table struct {
	Name    string
	Columns []Column
}

// CreateTableSQL renders the DDL for t in dialect d.
func CreateTableSQL(d Dialect, t Table) string {
	defs := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		def := d.QuoteColumn(c.Name) + " " + d.ColumnTypeSQL(c.Type)
		if c.Type != ColID && !c.Nullable {
			def += " NOT NULL"
		}
		if c.Default != "" {
			def += " DEFAULT " + c.Default
		}
		defs[i] = def
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(defs, ",\n\t"))
}

// InsertSQL returns a parameterized INSERT for columns of a table that
// returns the generated key column.
func InsertSQL(d Dialect, table, keyColumn string, columns []string) string {
	names := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		names[i] = d.QuoteColumn(c)
		marks[i] = d.Placeholder(i + 1)
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(names, ", "), strings.Join(marks, ", "))
	if keyColumn != "" {
		sql += " RETURNING " + keyColumn
	}
	return sql
}
