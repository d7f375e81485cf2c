package query

import (
	"fmt"
	"strings"

	"github.com/cdtdelta/checkuser/internal/model"
)

// Bounds on a single union query. Investigations over very active accounts
// or wide ranges are paged, never streamed.
const (
	DefaultLimit = 50
	MaxLimit     = 5000
	// MaxScan caps offset+limit, which is also the row count each branch
	// may return.
	MaxScan = 10000
)

// orderFields must survive any field override; the outer ORDER BY uses them.
var orderFields = []string{"timestamp", "event_source", "event_id"}

// IndexHints selects a per-source index. Sources without an entry use
// Default. Hints a source does not have are ignored.
type IndexHints struct {
	Default   string
	PerSource map[string]string
}

// For returns the hint for a source, or "" for none.
func (h IndexHints) For(source string) string {
	if hint, ok := h.PerSource[source]; ok {
		return hint
	}
	return h.Default
}

// Statement is a built query ready for execution. Fields lists the logical
// columns of each result row, in order.
type Statement struct {
	SQL    string
	Args   []any
	Fields []string
}

// UnionQuery builds one paginated, time-ordered SELECT over every physical
// event source. Each source contributes a branch projecting the same logical
// columns; the branches are combined with UNION ALL.
type UnionQuery struct {
	dialect      QueryDialect
	fields       []string
	sourceFields map[string][]Projection
	actorJoin    bool
	commentJoin  bool
	targets      []*Predicate
	excludes     []*Predicate
	filters      []*Predicate
	hints        IndexHints
	limit        int
	offset       int
}

// NewUnion creates a UnionQuery projecting every logical field. A nil
// dialect selects DefaultDialect.
func NewUnion(d QueryDialect) *UnionQuery {
	if d == nil {
		d = DefaultDialect
	}
	return &UnionQuery{
		dialect: d,
		fields:  append([]string(nil), model.Fields...),
		limit:   DefaultLimit,
	}
}

// AttachActorJoin joins the actor table into every branch so actor_name
// resolves. Calling it again has no effect.
func (q *UnionQuery) AttachActorJoin() *UnionQuery {
	q.actorJoin = true
	return q
}

// AttachCommentJoin joins the comment table into every branch so
// comment_text resolves. Calling it again has no effect.
func (q *UnionQuery) AttachCommentJoin() *UnionQuery {
	q.commentJoin = true
	return q
}

// SetFields narrows the projected logical columns. The ordering columns
// timestamp, event_source and event_id are required.
func (q *UnionQuery) SetFields(fields []string) error {
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if !model.IsValidField(f) {
			return fmt.Errorf("invalid field: %s", f)
		}
		if seen[f] {
			return fmt.Errorf("duplicate field: %s", f)
		}
		seen[f] = true
	}
	for _, f := range orderFields {
		if !seen[f] {
			return fmt.Errorf("field list must include %s", f)
		}
	}
	q.fields = append([]string(nil), fields...)
	return nil
}

// Fields returns the projected logical columns.
func (q *UnionQuery) Fields() []string {
	return append([]string(nil), q.fields...)
}

// SetSourceFields replaces the projections of one source, positionally
// against the projected logical columns. The list must be exactly as long as
// the field list; Build panics otherwise.
func (q *UnionQuery) SetSourceFields(source string, cols []Projection) error {
	if _, ok := schemas[source]; !ok {
		return fmt.Errorf("unknown source: %s", source)
	}
	if q.sourceFields == nil {
		q.sourceFields = make(map[string][]Projection)
	}
	q.sourceFields[source] = append([]Projection(nil), cols...)
	return nil
}

// AddTarget adds a target predicate. Targets are ORed; a query without
// targets never runs. Nil predicates are ignored.
func (q *UnionQuery) AddTarget(p *Predicate) {
	if p != nil {
		q.targets = append(q.targets, p)
	}
}

// AddExclude adds a predicate whose matching rows are removed.
func (q *UnionQuery) AddExclude(p *Predicate) {
	if p != nil {
		q.excludes = append(q.excludes, p)
	}
}

// AddFilter adds a predicate every returned row must satisfy.
func (q *UnionQuery) AddFilter(p *Predicate) {
	if p != nil {
		q.filters = append(q.filters, p)
	}
}

// HasTargets reports whether at least one target was added.
func (q *UnionQuery) HasTargets() bool {
	return len(q.targets) > 0
}

// SetIndexHints sets the per-source index hints.
func (q *UnionQuery) SetIndexHints(h IndexHints) {
	q.hints = h
}

// SetLimit sets the page size. Values outside 1..MaxLimit are clamped.
func (q *UnionQuery) SetLimit(limit int) {
	q.limit = limit
}

// SetOffset sets the number of rows to skip.
func (q *UnionQuery) SetOffset(offset int) {
	q.offset = offset
}

// Bounds returns the effective limit and offset after clamping.
func (q *UnionQuery) Bounds() (limit, offset int) {
	limit, offset = q.limit, q.offset
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	if offset+limit > MaxScan {
		offset = MaxScan - limit
	}
	return limit, offset
}

// Build generates the union statement. It returns false, and no SQL, when no
// target was added.
//
// Build panics if a source field override does not match the projected
// field count.
func (q *UnionQuery) Build() (Statement, bool) {
	if len(q.targets) == 0 {
		return Statement{}, false
	}

	limit, offset := q.Bounds()
	branchLimit := offset + limit
	actor, comment := q.joins()

	var (
		parts []string
		args  []any
	)
	for _, name := range Sources {
		sql, branchArgs := q.branchSQL(schemas[name], actor, comment, branchLimit)
		parts = append(parts, sql)
		args = append(args, branchArgs...)
	}

	outer := make([]string, len(q.fields))
	for i, f := range q.fields {
		outer[i] = q.dialect.QuoteColumn(f)
	}

	sql := fmt.Sprintf("SELECT %s FROM (%s) AS events ORDER BY %s DESC, %s, %s DESC LIMIT %d OFFSET %d",
		strings.Join(outer, ", "),
		strings.Join(parts, " UNION ALL "),
		q.dialect.QuoteColumn("timestamp"),
		q.dialect.QuoteColumn("event_source"),
		q.dialect.QuoteColumn("event_id"),
		limit, offset)

	return Statement{
		SQL:    Rebind(q.dialect, sql),
		Args:   args,
		Fields: q.Fields(),
	}, true
}

// joins reports which side tables the branches need. Predicates that filter
// on actor_name or comment_text attach the join implicitly.
func (q *UnionQuery) joins() (actor, comment bool) {
	actor, comment = q.actorJoin, q.commentJoin
	for _, group := range [][]*Predicate{q.targets, q.excludes, q.filters} {
		for _, p := range group {
			actor = actor || p.References("actor_name")
			comment = comment || p.References("comment_text")
		}
	}
	return actor, comment
}

// projections returns the per-position projections of a source.
func (q *UnionQuery) projections(s *SourceSchema) []Projection {
	if cols, ok := q.sourceFields[s.Name]; ok {
		if len(cols) != len(q.fields) {
			panic(fmt.Sprintf("query: source %s overrides %d columns, want %d", s.Name, len(cols), len(q.fields)))
		}
		return cols
	}
	cols := make([]Projection, len(q.fields))
	for i, f := range q.fields {
		cols[i] = s.Columns[fieldIndex[f]]
	}
	return cols
}

func (q *UnionQuery) render(p Projection, field string, actor, comment bool) string {
	switch {
	case p.null,
		p.join == actorJoin && !actor,
		p.join == commentJoin && !comment:
		return q.dialect.TypedNull(FieldType(field))
	default:
		return p.expr
	}
}

// selectList renders "expr AS alias" for every projected column of a source.
func (q *UnionQuery) selectList(s *SourceSchema, actor, comment bool) []string {
	cols := q.projections(s)
	out := make([]string, len(cols))
	for i, p := range cols {
		out[i] = q.render(p, q.fields[i], actor, comment) + " AS " + q.dialect.QuoteColumn(q.fields[i])
	}
	return out
}

// filterColumn resolves a logical field against the full mapping of a
// source, independent of any projection override.
func (q *UnionQuery) filterColumn(s *SourceSchema, actor, comment bool) ColumnFunc {
	return func(field string) string {
		return q.render(s.Columns[fieldIndex[field]], field, actor, comment)
	}
}

func (q *UnionQuery) branchSQL(s *SourceSchema, actor, comment bool, branchLimit int) (string, []any) {
	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(q.selectList(s, actor, comment), ", "))
	b.WriteString(" FROM ")
	b.WriteString(s.Name)
	if hint := q.hints.For(s.Name); hint != "" && s.HasIndex(hint) {
		if clause := q.dialect.IndexHint(IndexName(s.Name, hint)); clause != "" {
			b.WriteString(" " + clause)
		}
	}
	for _, j := range s.Joins {
		b.WriteString(" " + j)
	}
	if actor {
		b.WriteString(" LEFT JOIN actor ON actor.actor_id = " + s.ActorKey)
	}
	if comment {
		b.WriteString(" LEFT JOIN comment ON comment.comment_id = " + s.CommentKey)
	}

	where := []*Predicate{Combine(q.targets, OR)}
	for _, p := range q.excludes {
		where = append(where, Not(p))
	}
	where = append(where, q.filters...)
	whereSQL, args := Combine(where, AND).WhereClauseFor(q.filterColumn(s, actor, comment))
	if whereSQL != "" {
		b.WriteString(" WHERE " + whereSQL)
	}

	// Same order as the outer query within one source, so each branch keeps
	// every row the outer page can reach.
	fmt.Fprintf(&b, " ORDER BY %s DESC, %s DESC LIMIT %d", s.Timestamp, s.ID, branchLimit)

	if q.dialect.SupportsUnionBranchOrderLimit() {
		return "(" + b.String() + ")", args
	}
	return "SELECT * FROM (" + b.String() + ") AS " + s.Name + "_page", args
}
