// Package jsonlparser reads event fixtures in JSON Lines form and loads them
// into the three event tables. Each line is one event:
//
//	{"source":"cu_changes","timestamp":"2025-01-15T10:00:00Z","actor":"Alice",
//	 "ip":"203.0.113.5","xff":"198.51.100.2, 203.0.113.5","title":"Sandbox"}
//
// Production rows are written by the wiki. This exists for local setups and
// tests that need a populated database.
package jsonlparser

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/cdtdelta/checkuser/internal/database"
	"github.com/cdtdelta/checkuser/internal/model"
	"github.com/cdtdelta/checkuser/internal/query"
	"github.com/cdtdelta/checkuser/internal/xff"
)

// ReadResult contains the outcome of a JSONL read.
type ReadResult struct {
	Records  []*Record
	Count    int
	Excluded int
}

// Record is one event line. Source selects the table; fields a table does
// not carry are ignored.
type Record struct {
	Source    string `json:"source"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor"`

	IP    string `json:"ip"`
	XFF   string `json:"xff"`
	Agent string `json:"agent"`

	Namespace int64  `json:"namespace"`
	Title     string `json:"title"`
	PageID    int64  `json:"page_id"`
	Comment   string `json:"comment"`

	// Changes only.
	Type      string `json:"type"`
	Minor     bool   `json:"minor"`
	ThisOldID int64  `json:"this_oldid"`
	LastOldID int64  `json:"last_oldid"`

	// Log and private events.
	LogType   string `json:"log_type"`
	LogAction string `json:"log_action"`
	Params    string `json:"params"`
	Deleted   int64  `json:"deleted"`

	time time.Time
}

// Time returns the parsed timestamp.
func (r *Record) Time() time.Time { return r.time }

var sourceAliases = map[string]string{
	query.SourceChanges:      query.SourceChanges,
	"change":                 query.SourceChanges,
	"edit":                   query.SourceChanges,
	query.SourceLogEvent:     query.SourceLogEvent,
	"log":                    query.SourceLogEvent,
	query.SourcePrivateEvent: query.SourcePrivateEvent,
	"private":                query.SourcePrivateEvent,
}

// ValidateFile checks if a file looks like an event fixture by reading the
// first line.
func ValidateFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	scanner := newScanner(f)
	if !scanner.Scan() {
		return fmt.Errorf("empty file")
	}

	line := strings.TrimSpace(scanner.Text())
	if len(line) == 0 || line[0] != '{' {
		return fmt.Errorf("first line is not a JSON object")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return fmt.Errorf("first line is not valid JSON: %w", err)
	}
	if _, ok := raw["source"]; !ok {
		return fmt.Errorf("no source field found; does not appear to be an event fixture")
	}
	if _, ok := raw["timestamp"]; !ok {
		return fmt.Errorf("no timestamp field found; does not appear to be an event fixture")
	}
	return nil
}

// ReadFile reads all records from a fixture file.
func ReadFile(path string, onProgress func(count int)) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return ReadEvents(f, onProgress)
}

// ReadEvents reads all records from r. Lines that do not parse, name an
// unknown source, lack an actor, or carry an unreadable timestamp are counted
// as excluded. An onProgress callback is called every 10,000 records if
// non-nil.
func ReadEvents(r io.Reader, onProgress func(count int)) (*ReadResult, error) {
	scanner := newScanner(r)

	res := &ReadResult{}
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var rec Record
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			res.Excluded++
			continue
		}
		if !normalize(&rec) {
			res.Excluded++
			continue
		}

		res.Records = append(res.Records, &rec)
		res.Count++
		if onProgress != nil && res.Count%10000 == 0 {
			onProgress(res.Count)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading fixture at line %d: %w", lineNum, err)
	}
	return res, nil
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return scanner
}

func normalize(rec *Record) bool {
	source, ok := sourceAliases[strings.ToLower(strings.TrimSpace(rec.Source))]
	if !ok {
		return false
	}
	rec.Source = source
	rec.Actor = strings.TrimSpace(rec.Actor)
	if rec.Actor == "" {
		return false
	}
	t, ok := parseTimestamp(rec.Timestamp)
	if !ok {
		return false
	}
	rec.time = t
	return true
}

// parseTimestamp accepts RFC 3339 or the stored 14-digit layout.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), true
	}
	if t, err := time.Parse(model.TimestampFormat, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// Loader is the part of the store that fixtures are written through.
type Loader interface {
	LookupActorIDs(ctx context.Context, names []string) (map[string]int64, error)
	InsertActor(ctx context.Context, name string) (int64, error)
	InsertComment(ctx context.Context, text string) (int64, error)
	InsertChange(ctx context.Context, c *database.Change) (int64, error)
	InsertLogEvent(ctx context.Context, e *database.LogEvent) (int64, error)
	InsertPrivateEvent(ctx context.Context, e *database.PrivateEvent) (int64, error)
}

// Load writes records to the store in order and returns how many were
// written. Actors are created on first use. The XFF chain of each record is
// resolved with resolver so the stored xff_hex matches what the wiki would
// have written; a nil resolver leaves it empty.
func Load(ctx context.Context, store Loader, records []*Record, resolver *xff.Resolver) (int, error) {
	actors, err := actorIDs(ctx, store, records)
	if err != nil {
		return 0, err
	}

	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		var commentID int64
		if rec.Comment != "" {
			if commentID, err = store.InsertComment(ctx, rec.Comment); err != nil {
				return i, err
			}
		}
		origin := database.Origin{IP: rec.IP, XFF: rec.XFF, Agent: rec.Agent}
		if resolver != nil && rec.XFF != "" {
			origin.XFFClient = resolver.Resolve(rec.XFF).ClientString()
		}

		switch rec.Source {
		case query.SourceChanges:
			_, err = store.InsertChange(ctx, &database.Change{
				Timestamp: rec.time,
				ActorID:   actors[rec.Actor],
				Namespace: rec.Namespace,
				Title:     rec.Title,
				PageID:    rec.PageID,
				CommentID: commentID,
				Type:      changeType(rec.Type),
				Minor:     rec.Minor,
				ThisOldID: rec.ThisOldID,
				LastOldID: rec.LastOldID,
				Origin:    origin,
			})
		case query.SourceLogEvent:
			_, err = store.InsertLogEvent(ctx, &database.LogEvent{
				Timestamp: rec.time,
				ActorID:   actors[rec.Actor],
				LogType:   rec.LogType,
				LogAction: rec.LogAction,
				Namespace: rec.Namespace,
				Title:     rec.Title,
				PageID:    rec.PageID,
				CommentID: commentID,
				Params:    rec.Params,
				Deleted:   rec.Deleted,
				Origin:    origin,
			})
		case query.SourcePrivateEvent:
			_, err = store.InsertPrivateEvent(ctx, &database.PrivateEvent{
				Timestamp: rec.time,
				ActorID:   actors[rec.Actor],
				LogType:   rec.LogType,
				LogAction: rec.LogAction,
				Namespace: rec.Namespace,
				Title:     rec.Title,
				PageID:    rec.PageID,
				CommentID: commentID,
				Params:    rec.Params,
				Origin:    origin,
			})
		default:
			err = fmt.Errorf("unknown source %q", rec.Source)
		}
		if err != nil {
			return i, fmt.Errorf("loading record %d: %w", i+1, err)
		}
	}
	return len(records), nil
}

// actorIDs returns ids for every actor the records name, creating the ones
// the store does not know yet.
func actorIDs(ctx context.Context, store Loader, records []*Record) (map[string]int64, error) {
	seen := make(map[string]bool)
	var names []string
	for _, rec := range records {
		if !seen[rec.Actor] {
			seen[rec.Actor] = true
			names = append(names, rec.Actor)
		}
	}

	ids, err := store.LookupActorIDs(ctx, names)
	if err != nil {
		return nil, err
	}
	for _, name := range names {
		if _, ok := ids[name]; ok {
			continue
		}
		id, err := store.InsertActor(ctx, name)
		if err != nil {
			return nil, err
		}
		ids[name] = id
	}
	return ids, nil
}

func changeType(s string) int64 {
	switch strings.ToLower(s) {
	case "new", "new-page", "create":
		return model.TypeNewPage
	default:
		return model.TypeEdit
	}
}
