package database

import (
	"context"
	"time"

	"github.com/cdtdelta/checkuser/internal/model"
	"github.com/cdtdelta/checkuser/internal/query"
)

// Store defines the interface for all database operations.
// Investigations read the event sources through it and write nothing but
// the check log.
type Store interface {
	// Union reads. The dialect drives query building.
	QueryDialect() query.QueryDialect
	QueryEvents(ctx context.Context, stmt query.Statement) ([]*model.Event, error)
	LookupActorIDs(ctx context.Context, names []string) (map[string]int64, error)

	// Check log
	InsertCheckLog(ctx context.Context, entries []model.CheckLogEntry) error
	QueryCheckLog(ctx context.Context, filter CheckLogFilter) ([]model.CheckLogEntry, error)

	// Event sources. Production rows come from the wiki; these exist for
	// seeding and tests.
	InsertActor(ctx context.Context, name string) (int64, error)
	InsertComment(ctx context.Context, text string) (int64, error)
	InsertChange(ctx context.Context, c *Change) (int64, error)
	InsertLogEvent(ctx context.Context, e *LogEvent) (int64, error)
	InsertPrivateEvent(ctx context.Context, e *PrivateEvent) (int64, error)

	// Lifecycle
	Ping(ctx context.Context) error
	Close() error
}

// Origin is the request origin recorded with every event.
type Origin struct {
	IP    string
	XFF   string
	Agent string
	// XFFClient is the client address the XFF chain resolved to at write
	// time. It feeds the xff_hex column.
	XFFClient string
}

// Change is a normal edit or page creation.
type Change struct {
	Timestamp time.Time
	ActorID   int64
	Namespace int64
	Title     string
	PageID    int64
	CommentID int64
	Type      int64
	Minor     bool
	ThisOldID int64
	LastOldID int64
	Origin
}

// LogEvent is an action with a public audit log row.
type LogEvent struct {
	Timestamp time.Time
	ActorID   int64
	LogType   string
	LogAction string
	Namespace int64
	Title     string
	PageID    int64
	CommentID int64
	Params    string
	Deleted   int64
	Origin
}

// PrivateEvent is an action with no audit log row, such as a failed login.
type PrivateEvent struct {
	Timestamp time.Time
	ActorID   int64
	LogType   string
	LogAction string
	Namespace int64
	Title     string
	PageID    int64
	CommentID int64
	Params    string
	Origin
}

// CheckLogFilter narrows a check log listing. Zero fields match everything.
type CheckLogFilter struct {
	Reviewer string
	Target   string
	Limit    int
}
