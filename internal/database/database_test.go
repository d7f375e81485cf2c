package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cdtdelta/checkuser/internal/model"
	"github.com/cdtdelta/checkuser/internal/query"
)

var (
	_ query.QueryDialect = (*SQLiteDialect)(nil)
	_ query.QueryDialect = (*PostgresDialect)(nil)
	_ Store              = (*SQLStore)(nil)
)

var baseTime = time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)

func tempDBPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "test.db")
}

func createTestDB(t *testing.T) *SQLStore {
	t.Helper()
	db, err := Create(context.Background(), &SQLiteDialect{}, tempDBPath(t))
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// fixture holds the ids of a seeded database with one row per source.
type fixture struct {
	alice, bob int64
	comment    int64
}

func seed(t *testing.T, db *SQLStore) fixture {
	t.Helper()
	ctx := context.Background()

	var f fixture
	var err error
	if f.alice, err = db.InsertActor(ctx, "Alice"); err != nil {
		t.Fatalf("InsertActor failed: %v", err)
	}
	if f.bob, err = db.InsertActor(ctx, "Bob"); err != nil {
		t.Fatalf("InsertActor failed: %v", err)
	}
	if f.comment, err = db.InsertComment(ctx, "fix typo"); err != nil {
		t.Fatalf("InsertComment failed: %v", err)
	}

	origin := Origin{
		IP:        "203.0.113.9",
		XFF:       "198.51.100.2, 10.0.0.5",
		XFFClient: "198.51.100.2",
		Agent:     "Mozilla/5.0",
	}

	if _, err := db.InsertChange(ctx, &Change{
		Timestamp: baseTime, ActorID: f.alice, Title: "Main_Page", PageID: 1,
		CommentID: f.comment, Type: model.TypeEdit, Minor: true, ThisOldID: 11, LastOldID: 10,
		Origin: origin,
	}); err != nil {
		t.Fatalf("InsertChange failed: %v", err)
	}
	if _, err := db.InsertLogEvent(ctx, &LogEvent{
		Timestamp: baseTime.Add(time.Minute), ActorID: f.alice, LogType: "move", LogAction: "move",
		Title: "Old_Name", PageID: 1, CommentID: f.comment, Params: `{"target":"New_Name"}`,
		Origin: origin,
	}); err != nil {
		t.Fatalf("InsertLogEvent failed: %v", err)
	}
	if _, err := db.InsertPrivateEvent(ctx, &PrivateEvent{
		Timestamp: baseTime.Add(2 * time.Minute), ActorID: f.alice, LogType: "login", LogAction: "login-failure",
		Title: "Alice", Namespace: 2,
		Origin: origin,
	}); err != nil {
		t.Fatalf("InsertPrivateEvent failed: %v", err)
	}

	// Bob edits from elsewhere.
	if _, err := db.InsertChange(ctx, &Change{
		Timestamp: baseTime.Add(3 * time.Minute), ActorID: f.bob, Title: "Sandbox", Type: model.TypeNewPage,
		Origin: Origin{IP: "192.0.2.50"},
	}); err != nil {
		t.Fatalf("InsertChange failed: %v", err)
	}
	return f
}

func runUnion(t *testing.T, db *SQLStore, q *query.UnionQuery) []*model.Event {
	t.Helper()
	stmt, ok := q.Build()
	if !ok {
		t.Fatal("expected a statement")
	}
	events, err := db.QueryEvents(context.Background(), stmt)
	if err != nil {
		t.Fatalf("QueryEvents failed: %v\nSQL: %s", err, stmt.SQL)
	}
	return events
}

func TestCreateAndOpen(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)

	db, err := Create(ctx, &SQLiteDialect{}, path)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	db.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Fatal("database file was not created")
	}

	db2, err := OpenStore(ctx, "sqlite", path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db2.Close()

	if err := db2.Ping(ctx); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	entries, err := db2.QueryCheckLog(ctx, CheckLogFilter{})
	if err != nil {
		t.Fatalf("QueryCheckLog failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty check log, got %d entries", len(entries))
	}
}

func TestCreateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	path := tempDBPath(t)
	for i := 0; i < 2; i++ {
		db, err := Create(ctx, &SQLiteDialect{}, path)
		if err != nil {
			t.Fatalf("Create #%d failed: %v", i+1, err)
		}
		db.Close()
	}
}

func TestOpenStoreUnsupportedDriver(t *testing.T) {
	_, err := OpenStore(context.Background(), "mysql", "whatever")
	if !errors.Is(err, ErrUnsupportedDriver) {
		t.Errorf("expected ErrUnsupportedDriver, got %v", err)
	}
}

func TestUnionReturnsOneRowPerSource(t *testing.T) {
	db := createTestDB(t)
	seed(t, db)

	q := query.NewUnion(db.QueryDialect())
	q.AttachActorJoin().AttachCommentJoin()
	q.AddTarget(query.Simple("ip_hex", query.Equal, "CB007109"))

	events := runUnion(t, db, q)
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}

	// Newest first: private event, log event, change.
	priv, logEv, change := events[0], events[1], events[2]

	if priv.Source != query.SourcePrivateEvent || logEv.Source != query.SourceLogEvent || change.Source != query.SourceChanges {
		t.Fatalf("unexpected sources: %s, %s, %s", priv.Source, logEv.Source, change.Source)
	}
	for _, e := range events {
		if model.Str(e.ActorName) != "Alice" {
			t.Errorf("%s: expected actor Alice, got %q", e.Source, model.Str(e.ActorName))
		}
		if model.Str(e.IP) != "203.0.113.9" {
			t.Errorf("%s: unexpected ip %q", e.Source, model.Str(e.IP))
		}
		if model.Str(e.XFFHex) != "C6336402" {
			t.Errorf("%s: unexpected xff_hex %q", e.Source, model.Str(e.XFFHex))
		}
	}

	if change.Type != model.TypeEdit || change.Minor == nil || *change.Minor != 1 {
		t.Errorf("change: unexpected type/minor %d/%v", change.Type, change.Minor)
	}
	if change.ThisOldID == nil || *change.ThisOldID != 11 {
		t.Errorf("change: expected this_oldid 11, got %v", change.ThisOldID)
	}
	if change.LogType != nil {
		t.Errorf("change: expected NULL log_type, got %q", *change.LogType)
	}
	if model.Str(change.CommentText) != "fix typo" {
		t.Errorf("change: expected comment, got %q", model.Str(change.CommentText))
	}
	if change.Timestamp != "20250115100000" {
		t.Errorf("change: unexpected timestamp %s", change.Timestamp)
	}

	if logEv.Type != model.TypeLog || model.Str(logEv.LogType) != "move" {
		t.Errorf("log event: unexpected type %d/%q", logEv.Type, model.Str(logEv.LogType))
	}
	if model.Str(logEv.Title) != "Old_Name" || model.Str(logEv.CommentText) != "fix typo" {
		t.Errorf("log event: expected fields from logging, got %q/%q", model.Str(logEv.Title), model.Str(logEv.CommentText))
	}
	if logEv.LogDeleted == nil || *logEv.LogDeleted != 0 {
		t.Errorf("log event: expected log_deleted 0, got %v", logEv.LogDeleted)
	}
	if logEv.ThisOldID != nil {
		t.Errorf("log event: expected NULL this_oldid")
	}

	if model.Str(priv.LogAction) != "login-failure" || priv.LogDeleted != nil {
		t.Errorf("private event: unexpected log fields %q/%v", model.Str(priv.LogAction), priv.LogDeleted)
	}
	if priv.Namespace == nil || *priv.Namespace != 2 {
		t.Errorf("private event: expected namespace 2, got %v", priv.Namespace)
	}
	if priv.CommentText != nil {
		t.Errorf("private event: expected NULL comment, got %q", *priv.CommentText)
	}
}

func TestUnionWithoutJoinsPadsNames(t *testing.T) {
	db := createTestDB(t)
	seed(t, db)

	q := query.NewUnion(db.QueryDialect())
	q.AddTarget(query.Simple("ip_hex", query.Equal, "CB007109"))

	for _, e := range runUnion(t, db, q) {
		if e.ActorName != nil || e.CommentText != nil {
			t.Errorf("%s: expected NULL actor_name/comment_text without joins", e.Source)
		}
		if e.ActorID == nil {
			t.Errorf("%s: expected actor id", e.Source)
		}
	}
}

func TestUnionTargetsAndExcludes(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)
	f := seed(t, db)

	ids, err := db.LookupActorIDs(ctx, []string{"Alice", "Bob", "Nobody"})
	if err != nil {
		t.Fatalf("LookupActorIDs failed: %v", err)
	}
	if len(ids) != 2 || ids["Alice"] != f.alice || ids["Bob"] != f.bob {
		t.Fatalf("unexpected actor ids: %v", ids)
	}

	// Bob by actor id, through the actor index.
	q := query.NewUnion(db.QueryDialect())
	q.AddTarget(query.Simple("actor_id", query.Equal, f.bob))
	q.SetIndexHints(query.IndexHints{Default: query.HintActorTime})
	events := runUnion(t, db, q)
	if len(events) != 1 || events[0].Type != model.TypeNewPage {
		t.Fatalf("expected Bob's page creation, got %d events", len(events))
	}

	// Everyone on the XFF client range, minus failed logins. Changes carry a
	// NULL log_action and must survive the exclusion.
	q = query.NewUnion(db.QueryDialect())
	q.AddTarget(query.Between("xff_hex", "C6336400", "C63364FF"))
	q.AddExclude(query.Simple("log_action", query.Equal, "login-failure"))
	q.SetIndexHints(query.IndexHints{Default: query.HintXFFHexTime})
	events = runUnion(t, db, q)
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	// Time window.
	q = query.NewUnion(db.QueryDialect())
	q.AddTarget(query.Simple("actor_name", query.Equal, "Alice"))
	q.AddFilter(query.Simple("timestamp", query.GreaterOrEqual, FormatTimestamp(baseTime.Add(time.Minute))))
	events = runUnion(t, db, q)
	if len(events) != 2 {
		t.Fatalf("expected 2 events in window, got %d", len(events))
	}
}

func TestUnionPagination(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)
	actor, err := db.InsertActor(ctx, "Carol")
	if err != nil {
		t.Fatalf("InsertActor failed: %v", err)
	}

	origin := Origin{IP: "198.51.100.7"}
	for i := 0; i < 5; i++ {
		if _, err := db.InsertChange(ctx, &Change{
			Timestamp: baseTime.Add(time.Duration(i) * time.Hour), ActorID: actor, Type: model.TypeEdit, Origin: origin,
		}); err != nil {
			t.Fatalf("InsertChange failed: %v", err)
		}
		if _, err := db.InsertPrivateEvent(ctx, &PrivateEvent{
			Timestamp: baseTime.Add(time.Duration(i)*time.Hour + time.Minute), ActorID: actor,
			LogType: "login", LogAction: "login-success", Origin: origin,
		}); err != nil {
			t.Fatalf("InsertPrivateEvent failed: %v", err)
		}
	}

	seen := make(map[string]bool)
	var last string
	for page := 0; page < 3; page++ {
		q := query.NewUnion(db.QueryDialect())
		q.AddTarget(query.Simple("ip_hex", query.Equal, "C6336407"))
		q.SetIndexHints(query.IndexHints{Default: query.HintIPHexTime})
		q.SetLimit(4)
		q.SetOffset(page * 4)

		events := runUnion(t, db, q)
		want := 4
		if page == 2 {
			want = 2
		}
		if len(events) != want {
			t.Fatalf("page %d: expected %d events, got %d", page, want, len(events))
		}
		for _, e := range events {
			key := e.Source + ":" + e.Timestamp
			if seen[key] {
				t.Errorf("page %d: duplicate event %s", page, key)
			}
			seen[key] = true
			if last != "" && e.Timestamp > last {
				t.Errorf("page %d: events out of order: %s after %s", page, e.Timestamp, last)
			}
			last = e.Timestamp
		}
	}
	if len(seen) != 10 {
		t.Errorf("expected 10 distinct events, got %d", len(seen))
	}
}

func TestUnionPaginationTiedTimestamps(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)
	actor, err := db.InsertActor(ctx, "Dave")
	if err != nil {
		t.Fatalf("InsertActor failed: %v", err)
	}

	var ids []int64
	for i := 0; i < 4; i++ {
		id, err := db.InsertChange(ctx, &Change{
			Timestamp: baseTime, ActorID: actor, Type: model.TypeEdit,
			Origin: Origin{IP: fmt.Sprintf("198.51.100.%d", 10+i)},
		})
		if err != nil {
			t.Fatalf("InsertChange failed: %v", err)
		}
		ids = append(ids, id)
	}
	want := []int64{ids[3], ids[2], ids[1], ids[0]}

	tests := []struct {
		name    string
		targets []*query.Predicate
	}{
		{"range", []*query.Predicate{query.Between("ip_hex", "C6336400", "C63364FF")}},
		{"or", []*query.Predicate{
			query.Simple("ip_hex", query.Equal, "C633640A"),
			query.Simple("actor_id", query.Equal, actor),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []int64
			for page := 0; page < 4; page++ {
				q := query.NewUnion(db.QueryDialect())
				for _, p := range tt.targets {
					q.AddTarget(p)
				}
				q.SetLimit(1)
				q.SetOffset(page)

				events := runUnion(t, db, q)
				if len(events) != 1 {
					t.Fatalf("page %d: expected 1 event, got %d", page, len(events))
				}
				got = append(got, events[0].ID)
			}
			for i := range want {
				if got[i] != want[i] {
					t.Fatalf("expected ids %v across pages, got %v", want, got)
				}
			}
		})
	}
}

func TestCheckLog(t *testing.T) {
	ctx := context.Background()
	db := createTestDB(t)

	entries := []model.CheckLogEntry{
		{Timestamp: "20250115100000", Reviewer: "Rev", Type: model.CheckUser, Target: "Alice", Reason: "socks", ClientIP: "203.0.113.1"},
		{Timestamp: "20250115100000", Reviewer: "Rev", Type: model.CheckRange, Target: "203.0.113.0/24", Reason: "socks",
			RangeStart: "CB007100", RangeEnd: "CB0071FF"},
		{Timestamp: "20250116100000", Reviewer: "Other", Type: model.CheckIPXFF, Target: "198.51.100.2/xff"},
	}
	if err := db.InsertCheckLog(ctx, entries); err != nil {
		t.Fatalf("InsertCheckLog failed: %v", err)
	}
	if err := db.InsertCheckLog(ctx, nil); err != nil {
		t.Fatalf("InsertCheckLog with no entries failed: %v", err)
	}

	all, err := db.QueryCheckLog(ctx, CheckLogFilter{})
	if err != nil {
		t.Fatalf("QueryCheckLog failed: %v", err)
	}
	if len(all) != 3 || all[0].Reviewer != "Other" {
		t.Fatalf("expected 3 entries newest first, got %+v", all)
	}

	mine, err := db.QueryCheckLog(ctx, CheckLogFilter{Reviewer: "Rev", Limit: 1})
	if err != nil {
		t.Fatalf("QueryCheckLog failed: %v", err)
	}
	if len(mine) != 1 || mine[0].Target != "203.0.113.0/24" || mine[0].RangeEnd != "CB0071FF" {
		t.Errorf("unexpected filtered entries: %+v", mine)
	}

	byTarget, err := db.QueryCheckLog(ctx, CheckLogFilter{Reviewer: "Rev", Target: "Alice"})
	if err != nil {
		t.Fatalf("QueryCheckLog failed: %v", err)
	}
	if len(byTarget) != 1 || byTarget[0].ClientIP != "203.0.113.1" || byTarget[0].ID == 0 {
		t.Errorf("unexpected entries by target: %+v", byTarget)
	}
}

func TestPostgresDDL(t *testing.T) {
	d := &PostgresDialect{}

	sql := CreateTableSQL(d, Tables[len(Tables)-1])
	if !strings.Contains(sql, "cul_id BIGSERIAL PRIMARY KEY") {
		t.Errorf("expected serial key: %s", sql)
	}
	if !strings.Contains(sql, "cul_timestamp CHAR(14) NOT NULL") {
		t.Errorf("expected fixed-width timestamp: %s", sql)
	}
	if strings.Contains(sql, "PRIMARY KEY NOT NULL") {
		t.Errorf("key columns take no NOT NULL: %s", sql)
	}

	ins := InsertSQL(d, "actor", "actor_id", []string{"actor_name", "type"})
	if ins != `INSERT INTO actor (actor_name, "type") VALUES ($1, $2) RETURNING actor_id` {
		t.Errorf("unexpected insert: %s", ins)
	}

	idx := d.CreateIndexSQL("x_time", "x", "type", "timestamp")
	if idx != `CREATE INDEX IF NOT EXISTS x_time ON x ("type", "timestamp")` {
		t.Errorf("unexpected index DDL: %s", idx)
	}
}

func TestIndexesMatchHints(t *testing.T) {
	names := make(map[string]bool)
	for _, idx := range Indexes() {
		names[idx.Name] = true
	}
	for _, src := range query.Sources {
		s, _ := query.Schema(src)
		for _, hint := range s.Indexes {
			if !names[query.IndexName(src, hint)] {
				t.Errorf("no index backs hint %s on %s", hint, src)
			}
		}
	}
}
