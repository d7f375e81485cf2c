// Package transporthttp exposes investigations over JSON HTTP. The service
// sits behind an authenticating proxy that names the viewer in X-Remote-User.
package transporthttp

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-logr/logr"

	"github.com/cdtdelta/checkuser/internal/database"
	"github.com/cdtdelta/checkuser/internal/investigate"
	"github.com/cdtdelta/checkuser/internal/logging"
	"github.com/cdtdelta/checkuser/internal/model"
)

// Investigator is the service behind the handlers.
type Investigator interface {
	Investigate(ctx context.Context, req investigate.Request) (*investigate.Result, error)
	CheckLog(ctx context.Context, authorized bool, f database.CheckLogFilter) ([]model.CheckLogEntry, error)
}

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerDeps holds what the HTTP handlers need. Router builds the handler
// tree from it.
type ServerDeps struct {
	Service Investigator
	Store   Pinger
	APIKeys map[string]struct{}
	// Reviewers may investigate. An empty set admits every authenticated
	// viewer.
	Reviewers          map[string]struct{}
	RateLimitPerMinute int
	Log                logr.Logger
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.Store.Ping(r.Context()); err != nil {
		WriteProblem(w, r, http.StatusServiceUnavailable, "not ready", "database not reachable", nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// --- Investigations ---

func (d *ServerDeps) HandleInvestigate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	viewer := r.Header.Get(HeaderRemoteUser)

	req := investigate.Request{
		Viewer:     viewer,
		Authorized: d.authorized(viewer),
		Token:      q.Get("token"),
		XFF:        r.Header.Get("X-Forwarded-For"),
		RemoteAddr: r.RemoteAddr,
	}

	if targets := nonEmpty(q["target"]); len(targets) > 0 {
		period, err := parseNonNegative(q.Get("period"))
		if err != nil {
			WriteProblem(w, r, http.StatusBadRequest, "invalid parameters", "one or more parameters are invalid",
				map[string][]string{"period": {"must be a non-negative number of days"}})
			return
		}
		req.Form = &investigate.Form{
			Targets:        targets,
			ExcludeTargets: nonEmpty(q["exclude"]),
			Reason:         strings.TrimSpace(q.Get("reason")),
			PeriodDays:     period,
		}
	}

	res, err := d.Service.Investigate(r.Context(), req)
	if err != nil {
		d.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (d *ServerDeps) HandleCheckLog(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, err := parseNonNegative(q.Get("limit"))
	if err != nil {
		WriteProblem(w, r, http.StatusBadRequest, "invalid parameters", "one or more parameters are invalid",
			map[string][]string{"limit": {"must be a non-negative integer"}})
		return
	}

	entries, err := d.Service.CheckLog(r.Context(), d.authorized(r.Header.Get(HeaderRemoteUser)), database.CheckLogFilter{
		Reviewer: q.Get("reviewer"),
		Target:   q.Get("target"),
		Limit:    limit,
	})
	if err != nil {
		d.writeServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.CheckLogEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (d *ServerDeps) authorized(viewer string) bool {
	if viewer == "" {
		return false
	}
	if len(d.Reviewers) == 0 {
		return true
	}
	_, ok := d.Reviewers[viewer]
	return ok
}

func (d *ServerDeps) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, investigate.ErrPermissionDenied) {
		WriteProblem(w, r, http.StatusForbidden, "forbidden", "viewer may not run investigations", nil)
		return
	}
	logging.FromContext(r.Context(), d.Log).Error(err, "request failed", "path", r.URL.Path)
	WriteProblem(w, r, http.StatusInternalServerError, "internal error", "the request could not be completed", nil)
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func parseNonNegative(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, errors.New("negative value")
	}
	return n, nil
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.HandleHealthz)
	mux.HandleFunc("GET /readyz", d.HandleReadyz)

	guard := func(h http.HandlerFunc) http.Handler {
		var handler http.Handler = h
		handler = RateLimitPerViewer(d.RateLimitPerMinute)(handler)
		handler = APIKeyAuth(d.APIKeys)(handler)
		return handler
	}
	mux.Handle("GET /investigate", guard(d.HandleInvestigate))
	mux.Handle("GET /checklog", guard(d.HandleCheckLog))

	return RequestContext(mux)
}
