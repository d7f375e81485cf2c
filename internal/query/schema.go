package query

import (
	"fmt"
	"strconv"

	"github.com/cdtdelta/checkuser/internal/model"
)

// Physical event sources, in union order.
const (
	SourceChanges      = "cu_changes"
	SourceLogEvent     = "cu_log_event"
	SourcePrivateEvent = "cu_private_event"
)

// Sources lists every physical event source in union order.
var Sources = []string{SourceChanges, SourceLogEvent, SourcePrivateEvent}

// Index hint names. A hint resolves to the physical index <source>_<hint>.
const (
	HintActorTime  = "actor_time"
	HintIPHexTime  = "ip_hex_time"
	HintXFFHexTime = "xff_hex_time"
)

// IndexName returns the physical index name for a hint on a source.
func IndexName(source, hint string) string {
	return source + "_" + hint
}

type joinKind int

const (
	noJoin joinKind = iota
	actorJoin
	commentJoin
)

// Projection is how one source produces one logical column: a SQL expression,
// or a typed NULL when the source has no such concept. Expressions that read
// the actor or comment side tables collapse to a typed NULL unless the
// corresponding join is attached.
type Projection struct {
	expr string
	null bool
	join joinKind
}

// Column projects a physical column or SQL expression.
func Column(expr string) Projection { return Projection{expr: expr} }

// Null projects a typed NULL.
func Null() Projection { return Projection{null: true} }

// Literal projects a constant text value.
func Literal(s string) Projection { return Projection{expr: "'" + s + "'"} }

// IntLiteral projects a constant integer value.
func IntLiteral(n int64) Projection { return Projection{expr: strconv.FormatInt(n, 10)} }

// ActorColumn projects a column of the actor side table.
func ActorColumn(col string) Projection { return Projection{expr: "actor." + col, join: actorJoin} }

// CommentColumn projects a column of the comment side table.
func CommentColumn(col string) Projection {
	return Projection{expr: "comment." + col, join: commentJoin}
}

// IsNull reports whether p always projects NULL.
func (p Projection) IsNull() bool { return p.null }

// SourceSchema maps one physical event table onto the logical columns.
// Columns is positional and aligned with model.Fields.
type SourceSchema struct {
	Name string
	// Joins are always applied, ahead of the optional side-table joins.
	Joins      []string
	ActorKey   string
	CommentKey string
	Timestamp  string
	// ID is the primary key; it breaks timestamp ties inside a branch.
	ID         string
	Indexes    []string
	Columns    []Projection
}

// HasIndex reports whether hint names an index of this source.
func (s *SourceSchema) HasIndex(hint string) bool {
	for _, h := range s.Indexes {
		if h == hint {
			return true
		}
	}
	return false
}

// fieldTypes lists the logical columns that are integers; the rest are text.
var fieldTypes = map[string]ColumnType{
	"event_id":    IntColumn,
	"actor_id":    IntColumn,
	"namespace":   IntColumn,
	"page_id":     IntColumn,
	"type":        IntColumn,
	"minor":       IntColumn,
	"this_oldid":  IntColumn,
	"last_oldid":  IntColumn,
	"log_deleted": IntColumn,
}

// FieldType returns the type family of a logical column.
func FieldType(field string) ColumnType {
	if t, ok := fieldTypes[field]; ok {
		return t
	}
	return TextColumn
}

var changesSchema = &SourceSchema{
	Name:       SourceChanges,
	ActorKey:   "cu_changes.cuc_actor",
	CommentKey: "cu_changes.cuc_comment_id",
	Timestamp:  "cu_changes.cuc_timestamp",
	ID:         "cu_changes.cuc_id",
	Indexes:    []string{HintActorTime, HintIPHexTime, HintXFFHexTime},
	Columns: []Projection{
		Literal(SourceChanges),
		Column("cu_changes.cuc_id"),
		Column("cu_changes.cuc_timestamp"),
		Column("cu_changes.cuc_actor"),
		ActorColumn("actor_name"),
		Column("cu_changes.cuc_namespace"),
		Column("cu_changes.cuc_title"),
		Column("cu_changes.cuc_page_id"),
		Column("cu_changes.cuc_ip"),
		Column("cu_changes.cuc_ip_hex"),
		Column("cu_changes.cuc_xff"),
		Column("cu_changes.cuc_xff_hex"),
		Column("cu_changes.cuc_agent"),
		CommentColumn("comment_text"),
		Column("cu_changes.cuc_type"),
		Column("cu_changes.cuc_minor"),
		Column("cu_changes.cuc_this_oldid"),
		Column("cu_changes.cuc_last_oldid"),
		Null(),
		Null(),
		Null(),
		Null(),
	},
}

var logEventSchema = &SourceSchema{
	Name:       SourceLogEvent,
	Joins:      []string{"JOIN logging ON logging.log_id = cu_log_event.cule_log_id"},
	ActorKey:   "cu_log_event.cule_actor",
	CommentKey: "logging.log_comment_id",
	Timestamp:  "cu_log_event.cule_timestamp",
	ID:         "cu_log_event.cule_id",
	Indexes:    []string{HintActorTime, HintIPHexTime, HintXFFHexTime},
	Columns: []Projection{
		Literal(SourceLogEvent),
		Column("cu_log_event.cule_id"),
		Column("cu_log_event.cule_timestamp"),
		Column("cu_log_event.cule_actor"),
		ActorColumn("actor_name"),
		Column("logging.log_namespace"),
		Column("logging.log_title"),
		Column("logging.log_page"),
		Column("cu_log_event.cule_ip"),
		Column("cu_log_event.cule_ip_hex"),
		Column("cu_log_event.cule_xff"),
		Column("cu_log_event.cule_xff_hex"),
		Column("cu_log_event.cule_agent"),
		CommentColumn("comment_text"),
		IntLiteral(model.TypeLog),
		Null(),
		Null(),
		Null(),
		Column("logging.log_type"),
		Column("logging.log_action"),
		Column("logging.log_params"),
		Column("logging.log_deleted"),
	},
}

var privateEventSchema = &SourceSchema{
	Name:       SourcePrivateEvent,
	ActorKey:   "cu_private_event.cupe_actor",
	CommentKey: "cu_private_event.cupe_comment_id",
	Timestamp:  "cu_private_event.cupe_timestamp",
	ID:         "cu_private_event.cupe_id",
	Indexes:    []string{HintActorTime, HintIPHexTime, HintXFFHexTime},
	Columns: []Projection{
		Literal(SourcePrivateEvent),
		Column("cu_private_event.cupe_id"),
		Column("cu_private_event.cupe_timestamp"),
		Column("cu_private_event.cupe_actor"),
		ActorColumn("actor_name"),
		Column("cu_private_event.cupe_namespace"),
		Column("cu_private_event.cupe_title"),
		Column("cu_private_event.cupe_page"),
		Column("cu_private_event.cupe_ip"),
		Column("cu_private_event.cupe_ip_hex"),
		Column("cu_private_event.cupe_xff"),
		Column("cu_private_event.cupe_xff_hex"),
		Column("cu_private_event.cupe_agent"),
		CommentColumn("comment_text"),
		IntLiteral(model.TypeLog),
		Null(),
		Null(),
		Null(),
		Column("cu_private_event.cupe_log_type"),
		Column("cu_private_event.cupe_log_action"),
		Column("cu_private_event.cupe_params"),
		Null(),
	},
}

var schemas = map[string]*SourceSchema{
	SourceChanges:      changesSchema,
	SourceLogEvent:     logEventSchema,
	SourcePrivateEvent: privateEventSchema,
}

// fieldIndex maps a logical field to its position in model.Fields.
var fieldIndex = func() map[string]int {
	m := make(map[string]int, len(model.Fields))
	for i, f := range model.Fields {
		m[f] = i
	}
	return m
}()

func init() {
	list := make([]*SourceSchema, 0, len(Sources))
	for _, name := range Sources {
		list = append(list, schemas[name])
	}
	if err := validateSchemas(list, model.Fields); err != nil {
		panic(err)
	}
}

// Schema returns the mapping for a physical source.
func Schema(source string) (*SourceSchema, bool) {
	s, ok := schemas[source]
	return s, ok
}

// validateSchemas checks that every source projects exactly one value per
// logical field.
func validateSchemas(list []*SourceSchema, fields []string) error {
	seen := make(map[string]bool, len(list))
	for _, s := range list {
		if s == nil {
			return fmt.Errorf("missing source schema")
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate source schema %s", s.Name)
		}
		seen[s.Name] = true
		if len(s.Columns) != len(fields) {
			return fmt.Errorf("source %s projects %d columns, want %d", s.Name, len(s.Columns), len(fields))
		}
		for i, p := range s.Columns {
			if !p.null && p.expr == "" {
				return fmt.Errorf("source %s: empty projection for %s", s.Name, fields[i])
			}
		}
		if s.Timestamp == "" || s.ID == "" {
			return fmt.Errorf("source %s has no timestamp or id column", s.Name)
		}
	}
	return nil
}
