// Package investigate runs reviewer investigations: it merges the request
// with the state carried by a pagination token, queries every event source
// for the targets, annotates forwarded chains and issues tokens for the
// neighbouring pages.
package investigate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-logr/logr"

	"github.com/cdtdelta/checkuser/internal/database"
	"github.com/cdtdelta/checkuser/internal/ipaddr"
	"github.com/cdtdelta/checkuser/internal/logging"
	"github.com/cdtdelta/checkuser/internal/metrics"
	"github.com/cdtdelta/checkuser/internal/model"
	"github.com/cdtdelta/checkuser/internal/query"
	"github.com/cdtdelta/checkuser/internal/target"
	"github.com/cdtdelta/checkuser/internal/token"
	"github.com/cdtdelta/checkuser/internal/xff"
)

// ErrPermissionDenied is returned when the viewer may not investigate.
var ErrPermissionDenied = errors.New("permission denied")

// Page size defaults.
const (
	DefaultPageSize = query.DefaultLimit
	MaxPageSize     = 500
)

// Store is the storage the service reads events from and records checks in.
type Store interface {
	QueryDialect() query.QueryDialect
	QueryEvents(ctx context.Context, stmt query.Statement) ([]*model.Event, error)
	LookupActorIDs(ctx context.Context, names []string) (map[string]int64, error)
	InsertCheckLog(ctx context.Context, entries []model.CheckLogEntry) error
	QueryCheckLog(ctx context.Context, filter database.CheckLogFilter) ([]model.CheckLogEntry, error)
}

// Form is a fresh submission. A form naming at least one target replaces
// any state carried by the token.
type Form struct {
	Targets        []string
	ExcludeTargets []string
	Reason         string
	PeriodDays     int
}

// Request is one investigation page request.
type Request struct {
	Viewer string
	// Authorized is the result of the host's permission check.
	Authorized bool
	Token      string
	Form       *Form
	// XFF and RemoteAddr describe the reviewer's own connection.
	XFF        string
	RemoteAddr string
}

// Row is an event with its forwarded-chain annotations.
type Row struct {
	*model.Event
	// XFFClient is the best guess of the originating client for the row's
	// XFF header, empty when none could be made.
	XFFClient string `json:"xff_client,omitempty"`
	// XFFAllProxies is set when every hop walked was a site proxy.
	XFFAllProxies bool `json:"xff_all_proxies"`
	// IPIsSiteProxy is set when the connecting address is a site proxy.
	IPIsSiteProxy bool `json:"ip_is_site_proxy"`
}

// Result is one page of an investigation.
type Result struct {
	Filter         model.FilterPayload `json:"filter"`
	InvalidTargets []string            `json:"invalid_targets,omitempty"`
	UnknownUsers   []string            `json:"unknown_users,omitempty"`
	Rows           []Row               `json:"rows"`
	PageSize       int                 `json:"page_size"`
	NextToken      string              `json:"next_token,omitempty"`
	PrevToken      string              `json:"prev_token,omitempty"`
	// Truncated is set when more rows exist past the scan window. No next
	// token is issued then.
	Truncated bool `json:"truncated,omitempty"`
}

// HasMore reports whether a next page exists.
func (r *Result) HasMore() bool {
	return r.NextToken != ""
}

// Service runs investigations. It holds no per-request state.
type Service struct {
	store      Store
	codec      *token.Codec
	resolver   *xff.Resolver
	wikiID     string
	pageSize   int
	maxPage    int
	indexHints bool
	metrics    *metrics.InvestigationMetrics
	log        logr.Logger
	now        func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithPageSize sets the page size and its upper clamp.
func WithPageSize(size, maxSize int) Option {
	return func(s *Service) {
		s.pageSize = size
		s.maxPage = maxSize
	}
}

// WithIndexHints enables index hints when every target is served by the
// same index.
func WithIndexHints(enabled bool) Option {
	return func(s *Service) {
		s.indexHints = enabled
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m *metrics.InvestigationMetrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(log logr.Logger) Option {
	return func(s *Service) {
		s.log = log
	}
}

// WithClock sets the time source (for testing).
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// NewService creates a Service for one wiki.
func NewService(store Store, codec *token.Codec, resolver *xff.Resolver, wikiID string, opts ...Option) *Service {
	s := &Service{
		store:    store,
		codec:    codec,
		resolver: resolver,
		wikiID:   wikiID,
		pageSize: DefaultPageSize,
		maxPage:  MaxPageSize,
		log:      logr.Discard(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Investigate returns one page of events for the request.
func (s *Service) Investigate(ctx context.Context, req Request) (*Result, error) {
	if !req.Authorized || req.Viewer == "" {
		return nil, ErrPermissionDenied
	}
	log := logging.FromContext(ctx, s.log)

	payload, submitted := s.mergeState(req)
	size := s.effectivePageSize()

	targets, invalid := target.ParseAll(payload.Targets)
	excludes, invalidEx := target.ParseAll(payload.ExcludeTargets)
	invalid = append(invalid, invalidEx...)

	// Tokens carry only canonical, usable targets.
	payload.Targets = target.Strings(targets)
	payload.ExcludeTargets = target.Strings(excludes)
	payload = payload.Normalize()
	if payload.PeriodDays < 0 {
		payload.PeriodDays = 0
	}
	payload.Offset = clampOffset(payload.Offset, size)

	res := &Result{
		Filter:         payload,
		InvalidTargets: invalid,
		PageSize:       size,
		Rows:           []Row{},
	}

	if submitted && len(targets) > 0 {
		if err := s.recordCheck(ctx, req, payload.Reason, targets); err != nil {
			return nil, err
		}
	}

	targets, excludes, unknown, err := s.resolveActors(ctx, targets, excludes)
	if err != nil {
		return nil, err
	}
	res.UnknownUsers = unknown

	q := s.buildQuery(targets, excludes, payload, size)
	stmt, ok := q.Build()
	if !ok {
		s.metrics.ObserveEmptyFilter()
		log.V(1).Info("no usable targets, skipping query", "invalid", len(invalid), "unknown", len(unknown))
		return res, nil
	}

	start := time.Now()
	events, err := s.store.QueryEvents(ctx, stmt)
	s.metrics.ObserveQuery(time.Since(start).Seconds(), len(events), err)
	if err != nil {
		return nil, fmt.Errorf("running investigation query: %w", err)
	}

	hasMore := len(events) > size
	if hasMore {
		events = events[:size]
	}
	for _, e := range events {
		res.Rows = append(res.Rows, s.annotate(e))
	}

	next := payload.Offset + size
	switch {
	case hasMore && !canAdvance(next, size):
		res.Truncated = true
	case hasMore:
		if res.NextToken, err = s.codec.Encode(req.Viewer, s.wikiID, payload.WithOffset(next)); err != nil {
			return nil, fmt.Errorf("encoding next token: %w", err)
		}
	}
	if payload.Offset > 0 {
		if res.PrevToken, err = s.codec.Encode(req.Viewer, s.wikiID, payload.WithOffset(payload.Offset-size)); err != nil {
			return nil, fmt.Errorf("encoding previous token: %w", err)
		}
	}

	log.Info("investigation page served",
		"targets", len(targets), "rows", len(res.Rows), "offset", payload.Offset, "more", hasMore, "truncated", res.Truncated)
	return res, nil
}

// CheckLog lists recorded investigations.
func (s *Service) CheckLog(ctx context.Context, authorized bool, f database.CheckLogFilter) ([]model.CheckLogEntry, error) {
	if !authorized {
		return nil, ErrPermissionDenied
	}
	entries, err := s.store.QueryCheckLog(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("listing check log: %w", err)
	}
	return entries, nil
}

// mergeState picks the state for this page. A form with targets wins and
// starts at the first page; otherwise the token's state is used.
func (s *Service) mergeState(req Request) (model.FilterPayload, bool) {
	if f := req.Form; f != nil && len(f.Targets) > 0 {
		return model.FilterPayload{
			Targets:        f.Targets,
			ExcludeTargets: f.ExcludeTargets,
			Reason:         f.Reason,
			PeriodDays:     f.PeriodDays,
		}, true
	}
	if req.Token == "" {
		return model.FilterPayload{}, false
	}
	payload, ok := s.codec.Decode(req.Viewer, s.wikiID, req.Token)
	s.metrics.ObserveToken(ok)
	return payload, false
}

func (s *Service) effectivePageSize() int {
	size, maxSize := s.pageSize, s.maxPage
	if maxSize <= 0 || maxSize >= query.MaxLimit {
		maxSize = query.MaxLimit - 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > maxSize {
		size = maxSize
	}
	return size
}

// clampOffset keeps offset on the scan window. One extra row is fetched to
// detect a next page.
func clampOffset(offset, size int) int {
	if offset < 0 {
		return 0
	}
	if !canAdvance(offset, size) {
		return query.MaxScan - size - 1
	}
	return offset
}

// canAdvance reports whether a page at offset fits the scan window without
// being clamped back.
func canAdvance(offset, size int) bool {
	return offset+size+1 <= query.MaxScan
}

// resolveActors fills in actor ids for account targets. Accounts that do not
// exist cannot match any event and are dropped.
func (s *Service) resolveActors(ctx context.Context, targets, excludes []target.Target) ([]target.Target, []target.Target, []string, error) {
	var names []string
	for _, list := range [][]target.Target{targets, excludes} {
		for _, t := range list {
			if t.Kind == target.User {
				names = append(names, t.Name)
			}
		}
	}
	if len(names) == 0 {
		return targets, excludes, nil, nil
	}

	ids, err := s.store.LookupActorIDs(ctx, names)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("resolving accounts: %w", err)
	}

	var unknown []string
	keep := func(list []target.Target, report bool) []target.Target {
		out := list[:0:0]
		for _, t := range list {
			if t.Kind == target.User {
				id, ok := ids[t.Name]
				if !ok {
					if report {
						unknown = append(unknown, t.Name)
					}
					continue
				}
				t.ActorID = id
			}
			out = append(out, t)
		}
		return out
	}
	return keep(targets, true), keep(excludes, false), unknown, nil
}

func (s *Service) buildQuery(targets, excludes []target.Target, payload model.FilterPayload, size int) *query.UnionQuery {
	q := query.NewUnion(s.store.QueryDialect())
	q.AttachActorJoin().AttachCommentJoin()

	for _, t := range targets {
		q.AddTarget(t.Predicate())
	}
	for _, t := range excludes {
		q.AddExclude(t.Predicate())
	}
	if payload.PeriodDays > 0 {
		since := s.now().UTC().AddDate(0, 0, -payload.PeriodDays)
		q.AddFilter(query.Simple("timestamp", query.GreaterOrEqual, since.Format(model.TimestampFormat)))
	}
	if s.indexHints {
		if hint := target.CommonIndexHint(targets); hint != "" {
			q.SetIndexHints(query.IndexHints{Default: hint})
		}
	}

	q.SetLimit(size + 1)
	q.SetOffset(payload.Offset)
	return q
}

func (s *Service) annotate(e *model.Event) Row {
	row := Row{Event: e}
	if e.XFF != nil {
		r := s.resolver.Resolve(*e.XFF)
		row.XFFClient = r.ClientString()
		row.XFFAllProxies = r.AllProxies
	}
	if addr, ok := ipaddr.Canonicalize(model.Str(e.IP)); ok && s.resolver.Classifier != nil {
		row.IPIsSiteProxy = s.resolver.Classifier.IsSiteProxy(addr)
	}
	return row
}

// recordCheck writes one check log row per target.
func (s *Service) recordCheck(ctx context.Context, req Request, reason string, targets []target.Target) error {
	ts := s.now().UTC().Format(model.TimestampFormat)
	client := s.clientAddress(req)

	entries := make([]model.CheckLogEntry, len(targets))
	for i, t := range targets {
		start, end := "", ""
		if t.Kind == target.Range {
			start, end = t.HexRange()
		}
		entries[i] = model.CheckLogEntry{
			Timestamp:  ts,
			Reviewer:   req.Viewer,
			Type:       t.CheckType(),
			Target:     t.String(),
			Reason:     reason,
			RangeStart: start,
			RangeEnd:   end,
			ClientIP:   client,
		}
	}
	if err := s.store.InsertCheckLog(ctx, entries); err != nil {
		return fmt.Errorf("recording check: %w", err)
	}
	s.metrics.ObserveCheckLog(len(entries))
	return nil
}

// clientAddress is the reviewer's address: the forwarded chain's client when
// one resolves, otherwise the connecting address.
func (s *Service) clientAddress(req Request) string {
	if r := s.resolver.Resolve(req.XFF); r.HasClient() {
		return r.ClientString()
	}
	host := req.RemoteAddr
	if h, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		host = h
	}
	if addr, ok := ipaddr.Canonicalize(host); ok {
		return addr.String()
	}
	return ""
}
