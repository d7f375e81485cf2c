package query

import (
	"fmt"

	"github.com/cdtdelta/checkuser/internal/model"
)

// Logic determines how multiple predicates are combined.
type Logic int

const (
	AND Logic = iota
	OR
)

// Operator represents a SQL comparison operator.
type Operator string

const (
	Equal          Operator = "="
	NotEqual       Operator = "!="
	GreaterOrEqual Operator = ">="
	LessOrEqual    Operator = "<="
)

var validOperators = map[Operator]bool{
	Equal: true, NotEqual: true, GreaterOrEqual: true, LessOrEqual: true,
}

// Predicate is a filter condition over logical event fields, or a composite
// of conditions. Values are always passed as parameters.
//
// Predicates name logical fields only. Each union branch resolves the names
// to its own physical columns when the WHERE clause is rendered.
type Predicate struct {
	kind  predicateKind
	field string
	op    Operator
	value any
	lo    any
	hi    any
	inner *Predicate
	left  *Predicate
	right *Predicate
	logic Logic
}

type predicateKind int

const (
	predNone predicateKind = iota
	predSimple
	predBetween
	predNot
	predComposite
)

// ColumnFunc maps a logical field to the SQL expression filtering it.
type ColumnFunc func(field string) string

// Simple creates a predicate that compares a field to a value.
// Returns nil if the field name is invalid or the operator is unrecognized.
func Simple(field string, op Operator, value any) *Predicate {
	if !model.IsValidField(field) || !validOperators[op] {
		return nil
	}
	return &Predicate{
		kind:  predSimple,
		field: field,
		op:    op,
		value: value,
	}
}

// Between creates an inclusive range predicate on a field.
func Between(field string, lo, hi any) *Predicate {
	if !model.IsValidField(field) {
		return nil
	}
	return &Predicate{
		kind:  predBetween,
		field: field,
		lo:    lo,
		hi:    hi,
	}
}

// Not matches rows where p is false or unknown, so a NULL column never
// hides a row from an exclusion. Returns nil for a nil predicate.
func Not(p *Predicate) *Predicate {
	if p == nil {
		return nil
	}
	return &Predicate{kind: predNot, inner: p}
}

// Combine joins multiple predicates with the given logic (AND or OR).
// Returns nil for an empty slice. Returns the single predicate if only one is given.
// Nil predicates in the slice are skipped.
func Combine(preds []*Predicate, logic Logic) *Predicate {
	filtered := make([]*Predicate, 0, len(preds))
	for _, p := range preds {
		if p != nil {
			filtered = append(filtered, p)
		}
	}

	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}

	result := &Predicate{
		kind:  predComposite,
		left:  filtered[0],
		right: filtered[1],
		logic: logic,
	}
	for i := 2; i < len(filtered); i++ {
		result = &Predicate{
			kind:  predComposite,
			left:  result,
			right: filtered[i],
			logic: logic,
		}
	}
	return result
}

// WhereClause returns the SQL WHERE fragment over logical field names and its
// parameter values. For example: "(ip_hex = ?)", []any{"C0A80001"}
func (p *Predicate) WhereClause() (string, []any) {
	return p.WhereClauseFor(nil)
}

// WhereClauseFor renders the predicate with each logical field replaced by
// col(field). A nil col leaves field names unchanged.
func (p *Predicate) WhereClauseFor(col ColumnFunc) (string, []any) {
	if p == nil {
		return "", nil
	}
	if col == nil {
		col = func(field string) string { return field }
	}

	switch p.kind {
	case predSimple:
		return fmt.Sprintf("(%s %s ?)", col(p.field), p.op), []any{p.value}

	case predBetween:
		return fmt.Sprintf("(%s BETWEEN ? AND ?)", col(p.field)), []any{p.lo, p.hi}

	case predNot:
		innerSQL, innerArgs := p.inner.WhereClauseFor(col)
		if innerSQL == "" {
			return "", nil
		}
		return "(" + innerSQL + " IS NOT TRUE)", innerArgs

	case predComposite:
		leftSQL, leftArgs := p.left.WhereClauseFor(col)
		rightSQL, rightArgs := p.right.WhereClauseFor(col)

		if leftSQL == "" && rightSQL == "" {
			return "", nil
		}
		if leftSQL == "" {
			return rightSQL, rightArgs
		}
		if rightSQL == "" {
			return leftSQL, leftArgs
		}

		logicStr := "AND"
		if p.logic == OR {
			logicStr = "OR"
		}

		args := make([]any, 0, len(leftArgs)+len(rightArgs))
		args = append(args, leftArgs...)
		args = append(args, rightArgs...)
		return fmt.Sprintf("(%s %s %s)", leftSQL, logicStr, rightSQL), args

	default:
		return "", nil
	}
}

// Fields returns the list of field names referenced by this predicate tree.
func (p *Predicate) Fields() []string {
	if p == nil {
		return nil
	}

	switch p.kind {
	case predSimple, predBetween:
		return []string{p.field}
	case predNot:
		return p.inner.Fields()
	case predComposite:
		return mergeFields(p.left.Fields(), p.right.Fields())
	default:
		return nil
	}
}

// References reports whether field appears anywhere in the predicate tree.
func (p *Predicate) References(field string) bool {
	for _, f := range p.Fields() {
		if f == field {
			return true
		}
	}
	return false
}

func mergeFields(lists ...[]string) []string {
	seen := make(map[string]bool)
	var result []string
	for _, list := range lists {
		for _, f := range list {
			if !seen[f] {
				seen[f] = true
				result = append(result, f)
			}
		}
	}
	return result
}
