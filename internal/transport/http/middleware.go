package transporthttp

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/cdtdelta/checkuser/internal/logging"
)

// Headers set by the authenticating proxy in front of the service.
const (
	HeaderRemoteUser = "X-Remote-User"
	HeaderAPIKey     = "X-API-Key"
	HeaderRequestID  = "X-Request-Id"
)

// RequestContext puts the request id and the viewer on the request context.
// An incoming X-Request-Id is kept; otherwise a new one is issued.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if id == "" || len(id) > 128 {
			id = logging.NewRequestID()
		}
		w.Header().Set(HeaderRequestID, id)

		ctx := logging.WithRequestID(r.Context(), id)
		if viewer := r.Header.Get(HeaderRemoteUser); viewer != "" {
			ctx = logging.WithViewer(ctx, viewer)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// APIKeyAuth allows an optional list of API keys; if the list is empty, auth is bypassed.
// Keys are expected in header: X-API-Key.
func APIKeyAuth(allowed map[string]struct{}) func(http.Handler) http.Handler {
	if len(allowed) == 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := allowed[r.Header.Get(HeaderAPIKey)]; !ok {
				WriteProblem(w, r, http.StatusUnauthorized, "unauthorized", "invalid or missing API key", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// limiterIdle is how long a viewer's bucket may sit unused before it is
// dropped. A bucket idle that long is full again.
const limiterIdle = time.Minute

type viewerBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// viewerLimiter hands out one token bucket per viewer. Buckets idle past
// limiterIdle are swept so the map only holds recently active viewers.
type viewerLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	buckets   map[string]*viewerBucket
	lastSweep time.Time
	now       func() time.Time
}

func newViewerLimiter(perMinute int) *viewerLimiter {
	return &viewerLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   perMinute,
		buckets: make(map[string]*viewerBucket),
		now:     time.Now,
	}
}

func (v *viewerLimiter) allow(viewer string) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	now := v.now()
	if now.Sub(v.lastSweep) >= limiterIdle {
		v.sweep(now)
	}
	b, ok := v.buckets[viewer]
	if !ok {
		b = &viewerBucket{limiter: rate.NewLimiter(v.limit, v.burst)}
		v.buckets[viewer] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

func (v *viewerLimiter) sweep(now time.Time) {
	for viewer, b := range v.buckets {
		if now.Sub(b.lastSeen) >= limiterIdle {
			delete(v.buckets, viewer)
		}
	}
	v.lastSweep = now
}

func (v *viewerLimiter) size() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.buckets)
}

// RateLimitPerViewer limits each viewer to perMinute requests, with bursts of
// the same size. Zero or less disables the limit.
func RateLimitPerViewer(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiters := newViewerLimiter(perMinute)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiters.allow(r.Header.Get(HeaderRemoteUser)) {
				retry := 60/perMinute + 1
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				WriteProblem(w, r, http.StatusTooManyRequests, "rate limit exceeded", "try again later", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
