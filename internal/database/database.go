package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/cdtdelta/checkuser/internal/ipaddr"
	"github.com/cdtdelta/checkuser/internal/model"
	"github.com/cdtdelta/checkuser/internal/query"
)

// Check log listings are bounded like investigations are.
const (
	defaultCheckLogLimit = 100
	maxCheckLogLimit     = 5000
)

// SQLStore implements Store on database/sql for any Dialect.
type SQLStore struct {
	dsn     string
	conn    *sql.DB
	dialect Dialect
}

// Open opens an existing database and verifies the connection.
func Open(ctx context.Context, d Dialect, pathOrConnStr string) (*SQLStore, error) {
	conn, err := sql.Open(d.DriverName(), d.DSN(pathOrConnStr))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	return &SQLStore{dsn: pathOrConnStr, conn: conn, dialect: d}, nil
}

// Create opens a database and creates any missing tables and indexes.
func Create(ctx context.Context, d Dialect, pathOrConnStr string) (*SQLStore, error) {
	db, err := Open(ctx, d, pathOrConnStr)
	if err != nil {
		return nil, err
	}

	if err := db.createSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *SQLStore) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// DSN returns the path or connection string the store was opened with.
func (db *SQLStore) DSN() string {
	return db.dsn
}

// Conn returns the underlying *sql.DB connection for advanced query usage.
func (db *SQLStore) Conn() *sql.DB {
	return db.conn
}

// QueryDialect returns the dialect union queries must be built with.
func (db *SQLStore) QueryDialect() query.QueryDialect {
	return db.dialect
}

// Ping verifies the connection is alive.
func (db *SQLStore) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// createSchema builds all tables and indexes.
func (db *SQLStore) createSchema(ctx context.Context) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, t := range Tables {
		if _, err := tx.ExecContext(ctx, CreateTableSQL(db.dialect, t)); err != nil {
			return fmt.Errorf("creating %s table: %w", t.Name, err)
		}
	}

	for _, idx := range Indexes() {
		if _, err := tx.ExecContext(ctx, db.dialect.CreateIndexSQL(idx.Name, idx.Table, idx.Columns...)); err != nil {
			return fmt.Errorf("creating index %s: %w", idx.Name, err)
		}
	}

	return tx.Commit()
}

// QueryEvents runs a built union statement and scans one event per row in
// the order of stmt.Fields.
func (db *SQLStore) QueryEvents(ctx context.Context, stmt query.Statement) ([]*model.Event, error) {
	rows, err := db.conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []*model.Event
	for rows.Next() {
		e := &model.Event{}
		dest, err := e.ScanTargets(stmt.Fields)
		if err != nil {
			return nil, err
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// LookupActorIDs maps account names to actor ids. Unknown names are absent
// from the result.
func (db *SQLStore) LookupActorIDs(ctx context.Context, names []string) (map[string]int64, error) {
	out := make(map[string]int64, len(names))
	if len(names) == 0 {
		return out, nil
	}

	marks := make([]string, len(names))
	args := make([]any, len(names))
	for i, n := range names {
		marks[i] = db.dialect.Placeholder(i + 1)
		args[i] = n
	}
	rows, err := db.conn.QueryContext(ctx,
		"SELECT actor_id, actor_name FROM actor WHERE actor_name IN ("+strings.Join(marks, ", ")+")", args...)
	if err != nil {
		return nil, fmt.Errorf("looking up actors: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id   int64
			name string
		)
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning actor: %w", err)
		}
		out[name] = id
	}
	return out, rows.Err()
}

// InsertCheckLog records investigations inside a single transaction.
func (db *SQLStore) InsertCheckLog(ctx context.Context, entries []model.CheckLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, InsertSQL(db.dialect, "cu_log", "", []string{
		"cul_timestamp", "cul_actor_name", "cul_type", "cul_target", "cul_reason",
		"cul_range_start", "cul_range_end", "cul_client_ip",
	}))
	if err != nil {
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		_, err := stmt.ExecContext(ctx,
			e.Timestamp, e.Reviewer, e.Type, e.Target, e.Reason,
			e.RangeStart, e.RangeEnd, e.ClientIP,
		)
		if err != nil {
			return fmt.Errorf("inserting check log entry %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

// QueryCheckLog lists check log entries, newest first.
func (db *SQLStore) QueryCheckLog(ctx context.Context, f CheckLogFilter) ([]model.CheckLogEntry, error) {
	sqlStr := "SELECT cul_id, cul_timestamp, cul_actor_name, cul_type, cul_target, cul_reason, " +
		"cul_range_start, cul_range_end, cul_client_ip FROM cu_log"

	var (
		conds []string
		args  []any
	)
	if f.Reviewer != "" {
		args = append(args, f.Reviewer)
		conds = append(conds, "cul_actor_name = "+db.dialect.Placeholder(len(args)))
	}
	if f.Target != "" {
		args = append(args, f.Target)
		conds = append(conds, "cul_target = "+db.dialect.Placeholder(len(args)))
	}
	for i, c := range conds {
		if i == 0 {
			sqlStr += " WHERE " + c
		} else {
			sqlStr += " AND " + c
		}
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultCheckLogLimit
	}
	if limit > maxCheckLogLimit {
		limit = maxCheckLogLimit
	}
	sqlStr += fmt.Sprintf(" ORDER BY cul_timestamp DESC, cul_id DESC LIMIT %d", limit)

	rows, err := db.conn.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("querying check log: %w", err)
	}
	defer rows.Close()

	var out []model.CheckLogEntry
	for rows.Next() {
		var e model.CheckLogEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.Reviewer, &e.Type, &e.Target, &e.Reason,
			&e.RangeStart, &e.RangeEnd, &e.ClientIP); err != nil {
			return nil, fmt.Errorf("scanning check log entry: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertActor adds an actor and returns its id.
func (db *SQLStore) InsertActor(ctx context.Context, name string) (int64, error) {
	return db.insert(ctx, "actor", "actor_id", []string{"actor_name"}, name)
}

// InsertComment adds a comment and returns its id.
func (db *SQLStore) InsertComment(ctx context.Context, text string) (int64, error) {
	return db.insert(ctx, "comment", "comment_id", []string{"comment_text"}, text)
}

// InsertChange adds a row to cu_changes.
func (db *SQLStore) InsertChange(ctx context.Context, c *Change) (int64, error) {
	ip, ipHex, xff, xffHex, agent := c.Origin.columns()
	minor := 0
	if c.Minor {
		minor = 1
	}
	return db.insert(ctx, query.SourceChanges, "cuc_id", []string{
		"cuc_timestamp", "cuc_actor", "cuc_namespace", "cuc_title", "cuc_page_id",
		"cuc_ip", "cuc_ip_hex", "cuc_xff", "cuc_xff_hex", "cuc_agent",
		"cuc_comment_id", "cuc_type", "cuc_minor", "cuc_this_oldid", "cuc_last_oldid",
	},
		FormatTimestamp(c.Timestamp), c.ActorID, c.Namespace, c.Title, nullInt(c.PageID),
		ip, ipHex, xff, xffHex, agent,
		nullInt(c.CommentID), c.Type, minor, nullInt(c.ThisOldID), nullInt(c.LastOldID),
	)
}

// InsertLogEvent adds the audit log row and its cu_log_event row in one
// transaction. It returns the cu_log_event id.
func (db *SQLStore) InsertLogEvent(ctx context.Context, e *LogEvent) (int64, error) {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	ts := FormatTimestamp(e.Timestamp)
	var logID int64
	err = tx.QueryRowContext(ctx, InsertSQL(db.dialect, "logging", "log_id", []string{
		"log_type", "log_action", "log_actor", "log_namespace", "log_title", "log_page",
		"log_comment_id", "log_params", "log_deleted", "log_timestamp",
	}),
		e.LogType, e.LogAction, e.ActorID, e.Namespace, e.Title, nullInt(e.PageID),
		nullInt(e.CommentID), nullString(e.Params), e.Deleted, ts,
	).Scan(&logID)
	if err != nil {
		return 0, fmt.Errorf("inserting logging row: %w", err)
	}

	ip, ipHex, xff, xffHex, agent := e.Origin.columns()
	var id int64
	err = tx.QueryRowContext(ctx, InsertSQL(db.dialect, query.SourceLogEvent, "cule_id", []string{
		"cule_log_id", "cule_timestamp", "cule_actor",
		"cule_ip", "cule_ip_hex", "cule_xff", "cule_xff_hex", "cule_agent",
	}),
		logID, ts, e.ActorID, ip, ipHex, xff, xffHex, agent,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting %s row: %w", query.SourceLogEvent, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing transaction: %w", err)
	}
	return id, nil
}

// InsertPrivateEvent adds a row to cu_private_event.
func (db *SQLStore) InsertPrivateEvent(ctx context.Context, e *PrivateEvent) (int64, error) {
	ip, ipHex, xff, xffHex, agent := e.Origin.columns()
	return db.insert(ctx, query.SourcePrivateEvent, "cupe_id", []string{
		"cupe_timestamp", "cupe_actor", "cupe_namespace", "cupe_title", "cupe_page",
		"cupe_ip", "cupe_ip_hex", "cupe_xff", "cupe_xff_hex", "cupe_agent",
		"cupe_comment_id", "cupe_log_type", "cupe_log_action", "cupe_params",
	},
		FormatTimestamp(e.Timestamp), e.ActorID, e.Namespace, e.Title, nullInt(e.PageID),
		ip, ipHex, xff, xffHex, agent,
		nullInt(e.CommentID), e.LogType, e.LogAction, nullString(e.Params),
	)
}

func (db *SQLStore) insert(ctx context.Context, table, key string, columns []string, args ...any) (int64, error) {
	var id int64
	err := db.conn.QueryRowContext(ctx, InsertSQL(db.dialect, table, key, columns), args...).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting %s row: %w", table, err)
	}
	return id, nil
}

// columns returns the stored origin columns. Hex forms are derived from
// the addresses; unparseable addresses leave them NULL.
func (o Origin) columns() (ip, ipHex, xff, xffHex, agent any) {
	return nullString(o.IP), nullString(ipaddr.HexString(o.IP)),
		nullString(o.XFF), nullString(ipaddr.HexString(o.XFFClient)),
		nullString(o.Agent)
}

// FormatTimestamp renders t in the stored timestamp layout, in UTC.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(model.TimestampFormat)
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}
