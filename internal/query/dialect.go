package query

import "strings"

// ColumnType is the SQL type family of a logical field. Typed NULL padding
// needs it.
type ColumnType int

const (
	TextColumn ColumnType = iota
	IntColumn
)

// QueryDialect abstracts SQL syntax differences needed for query building.
// Each database backend provides an implementation. The default is SQLite.
type QueryDialect interface {
	// Placeholder returns the parameter placeholder for the given 1-based index.
	// SQLite returns "?" (ignoring the index), PostgreSQL returns "$1", "$2", etc.
	Placeholder(index int) string

	// QuoteColumn returns the column name quoted appropriately for the dialect.
	QuoteColumn(name string) string

	// TypedNull returns a NULL literal carrying an explicit type. A bare NULL
	// is typed as text by PostgreSQL and breaks a UNION against integer
	// columns in another branch.
	TypedNull(t ColumnType) string

	// IndexHint returns the clause placed after a table name to force index,
	// or "" if the backend has no such syntax.
	IndexHint(index string) string

	// SupportsUnionBranchOrderLimit reports whether ORDER BY and LIMIT are
	// honored inside a parenthesized UNION branch. SQLite rejects them there,
	// so its branches are wrapped in subqueries instead.
	SupportsUnionBranchOrderLimit() bool
}

// sqliteQueryDialect is the default dialect, producing SQLite-compatible SQL.
type sqliteQueryDialect struct{}

func (d sqliteQueryDialect) Placeholder(index int) string       { return "?" }
func (d sqliteQueryDialect) QuoteColumn(name string) string     { return name }
func (d sqliteQueryDialect) IndexHint(index string) string      { return "INDEXED BY " + index }
func (d sqliteQueryDialect) SupportsUnionBranchOrderLimit() bool { return false }

func (d sqliteQueryDialect) TypedNull(t ColumnType) string {
	if t == IntColumn {
		return "CAST(NULL AS INTEGER)"
	}
	return "CAST(NULL AS TEXT)"
}

// DefaultDialect is the query dialect used when none is explicitly set.
// It produces SQLite-compatible SQL.
var DefaultDialect QueryDialect = sqliteQueryDialect{}

// Rebind rewrites the "?" placeholders produced by the builders into the
// dialect's numbered form. Generated SQL never carries "?" inside literals.
func Rebind(d QueryDialect, sql string) string {
	if d.Placeholder(1) == "?" {
		return sql
	}
	var b strings.Builder
	b.Grow(len(sql) + 16)
	n := 0
	for i := 0; i < len(sql); i++ {
		if sql[i] == '?' {
			n++
			b.WriteString(d.Placeholder(n))
			continue
		}
		b.WriteByte(sql[i])
	}
	return b.String()
}
