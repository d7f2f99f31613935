package middleware

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Window is the span every limiter counts requests over.
const Window = time.Minute

// Decision is the outcome of one rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the next request would be admitted.
	RetryAfter time.Duration
}

// Limiter admits or rejects a request for key.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

type visitor struct {
	mu   sync.Mutex
	hits []time.Time // admitted requests inside the window, oldest first
}

// MemoryLimiter is a per-key sliding-window log: a request is admitted only
// if fewer than perMinute requests were admitted in the preceding Window.
type MemoryLimiter struct {
	perMinute int

	mu       sync.Mutex
	visitors map[string]*visitor
	now      func() time.Time
}

func NewMemoryLimiter(perMinute int) *MemoryLimiter {
	if perMinute <= 0 {
		perMinute = 1
	}
	return &MemoryLimiter{
		perMinute: perMinute,
		visitors:  make(map[string]*visitor),
		now:       time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	v, ok := l.visitors[key]
	if !ok {
		v = &visitor{hits: make([]time.Time, 0, l.perMinute)}
		l.visitors[key] = v
	}
	l.mu.Unlock()

	v.mu.Lock()
	defer v.mu.Unlock()

	v.hits = prune(v.hits, now.Add(-Window))

	d := Decision{Limit: l.perMinute}
	if len(v.hits) < l.perMinute {
		v.hits = append(v.hits, now)
		d.Allowed = true
		d.Remaining = l.perMinute - len(v.hits)
		return d, nil
	}
	d.RetryAfter = v.hits[0].Add(Window).Sub(now)
	return d, nil
}

// prune drops hits at or before cutoff.
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	i := 0
	for i < len(hits) && !hits[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return hits
	}
	return append(hits[:0], hits[i:]...)
}

// Cleanup drops keys with no hits inside the window.
func (l *MemoryLimiter) Cleanup() {
	cutoff := l.now().Add(-Window)

	l.mu.Lock()
	defer l.mu.Unlock()
	for key, v := range l.visitors {
		v.mu.Lock()
		v.hits = prune(v.hits, cutoff)
		empty := len(v.hits) == 0
		v.mu.Unlock()
		if empty {
			delete(l.visitors, key)
		}
	}
}

func (l *MemoryLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(Window)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// RateLimit enforces limiter per client address and matched route. Limiter
// errors fail open.
func RateLimit(name string, limiter Limiter, onReject func(name string), logr *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := name + ":" + clientIP(r) + ":" + routeKey(r)

			d, err := limiter.Allow(r.Context(), key)
			if err != nil {
				logr.Error("rate limiter unavailable", zap.String("limiter", name), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))

			if !d.Allowed {
				if onReject != nil {
					onReject(name)
				}
				secs := int(math.Ceil(d.RetryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(secs))
				writeDetail(w, http.StatusTooManyRequests, fmt.Sprintf("Rate limit exceeded: %d per 1 minute", d.Limit))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// routeKey is the chi route pattern, so the set of keys per client is
// bounded by the routes the router defines. Requests that matched nothing
// share one key.
func routeKey(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return "unmatched"
	}
	if p := rctx.RoutePattern(); p != "" {
		return p
	}
	return "unmatched"
}

// clientIP expects chi's RealIP middleware to have already rewritten
// RemoteAddr from proxy headers.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
