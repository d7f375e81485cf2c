package model

import "fmt"

// Fields is the ordered list of logical columns every event source projects.
// Used for union query building, field validation, and row scanning.
var Fields = []string{
	"event_source", "event_id", "timestamp", "actor_id", "actor_name",
	"namespace", "title", "page_id", "ip", "ip_hex",
	"xff", "xff_hex", "agent", "comment_text", "type",
	"minor", "this_oldid", "last_oldid", "log_type", "log_action",
	"log_params", "log_deleted",
}

// Event type codes stored in the type column.
const (
	TypeEdit    int64 = 0
	TypeNewPage int64 = 1
	TypeLog     int64 = 3
)

// TimestampFormat is the fixed-width layout used for every stored timestamp.
// Values sort lexically in every backend.
const TimestampFormat = "20060102150405"

// Event is one logical event record, the unified shape of a row from any of
// the three physical event tables. Everything except Source, ID, Timestamp
// and Type may be NULL.
type Event struct {
	Source      string  `json:"source" db:"event_source"`
	ID          int64   `json:"id" db:"event_id"`
	Timestamp   string  `json:"timestamp" db:"timestamp"`
	ActorID     *int64  `json:"actor_id,omitempty" db:"actor_id"`
	ActorName   *string `json:"actor_name,omitempty" db:"actor_name"`
	Namespace   *int64  `json:"namespace,omitempty" db:"namespace"`
	Title       *string `json:"title,omitempty" db:"title"`
	PageID      *int64  `json:"page_id,omitempty" db:"page_id"`
	IP          *string `json:"ip,omitempty" db:"ip"`
	IPHex       *string `json:"ip_hex,omitempty" db:"ip_hex"`
	XFF         *string `json:"xff,omitempty" db:"xff"`
	XFFHex      *string `json:"xff_hex,omitempty" db:"xff_hex"`
	Agent       *string `json:"agent,omitempty" db:"agent"`
	CommentText *string `json:"comment_text,omitempty" db:"comment_text"`
	Type        int64   `json:"type" db:"type"`
	Minor       *int64  `json:"minor,omitempty" db:"minor"`
	ThisOldID   *int64  `json:"this_oldid,omitempty" db:"this_oldid"`
	LastOldID   *int64  `json:"last_oldid,omitempty" db:"last_oldid"`
	LogType     *string `json:"log_type,omitempty" db:"log_type"`
	LogAction   *string `json:"log_action,omitempty" db:"log_action"`
	LogParams   *string `json:"log_params,omitempty" db:"log_params"`
	LogDeleted  *int64  `json:"log_deleted,omitempty" db:"log_deleted"`
}

// ScanTargets returns scan destinations for the given logical columns, in
// order. It fails on a column name that is not in Fields.
func (e *Event) ScanTargets(fields []string) ([]any, error) {
	dest := make([]any, len(fields))
	for i, f := range fields {
		p := e.target(f)
		if p == nil {
			return nil, fmt.Errorf("unknown logical field: %s", f)
		}
		dest[i] = p
	}
	return dest, nil
}

func (e *Event) target(field string) any {
	switch field {
	case "event_source":
		return &e.Source
	case "event_id":
		return &e.ID
	case "timestamp":
		return &e.Timestamp
	case "actor_id":
		return &e.ActorID
	case "actor_name":
		return &e.ActorName
	case "namespace":
		return &e.Namespace
	case "title":
		return &e.Title
	case "page_id":
		return &e.PageID
	case "ip":
		return &e.IP
	case "ip_hex":
		return &e.IPHex
	case "xff":
		return &e.XFF
	case "xff_hex":
		return &e.XFFHex
	case "agent":
		return &e.Agent
	case "comment_text":
		return &e.CommentText
	case "type":
		return &e.Type
	case "minor":
		return &e.Minor
	case "this_oldid":
		return &e.ThisOldID
	case "last_oldid":
		return &e.LastOldID
	case "log_type":
		return &e.LogType
	case "log_action":
		return &e.LogAction
	case "log_params":
		return &e.LogParams
	case "log_deleted":
		return &e.LogDeleted
	default:
		return nil
	}
}

// IsValidField reports whether name is one of the logical columns.
func IsValidField(name string) bool {
	for _, f := range Fields {
		if f == name {
			return true
		}
	}
	return false
}

// Str returns the value of a nullable text column, or "" for NULL.
func Str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
