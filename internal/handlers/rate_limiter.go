package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/hoangphuc3604/my-shop-backend/internal/platform/auth"
	"github.com/hoangphuc3604/my-shop-backend/internal/platform/httpx"
)

// userLimiter hands every caller a token bucket that refills limit tokens per
// window and holds at most limit.
type userLimiter struct {
	every rate.Limit
	burst int
	clock func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newUserLimiter(limit int, window time.Duration, clock func() time.Time) *userLimiter {
	if limit <= 0 || window <= 0 {
		return nil
	}
	if clock == nil {
		clock = time.Now
	}
	return &userLimiter{
		every:   rate.Every(window / time.Duration(limit)),
		burst:   limit,
		clock:   clock,
		buckets: make(map[string]*bucket),
	}
}

// Allow takes a token for key. When none is left it reports how long until
// the next one.
func (l *userLimiter) Allow(key string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	if key = strings.TrimSpace(key); key == "" {
		key = "anonymous"
	}
	now := l.clock()

	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.buckets[key]
	if !ok {
		l.evictIdle(now)
		b = &bucket{limiter: rate.NewLimiter(l.every, l.burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now
	if b.limiter.AllowN(now, 1) {
		return true, 0
	}
	r := b.limiter.ReserveN(now, 1)
	wait := r.DelayFrom(now)
	r.CancelAt(now)
	return false, wait
}

// evictIdle drops buckets that have had time to refill completely.
func (l *userLimiter) evictIdle(now time.Time) {
	full := time.Duration(float64(l.burst) / float64(l.every) * float64(time.Second))
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > full {
			delete(l.buckets, key)
		}
	}
}

// MutationRateLimit throttles writes per authenticated user. Reads pass
// through. A non-positive perMinute disables the limit.
func MutationRateLimit(perMinute int) func(http.Handler) http.Handler {
	return mutationRateLimit(newUserLimiter(perMinute, time.Minute, nil))
}

func mutationRateLimit(limiter *userLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			var uid string
			if identity, ok := auth.IdentityFromContext(r.Context()); ok {
				uid = identity.UID
			}
			allowed, wait := limiter.Allow(uid)
			if allowed {
				next.ServeHTTP(w, r)
				return
			}
			w.Header().Set("Retry-After", strconv.Itoa(max(1, int((wait+time.Second-1)/time.Second))))
			httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many changes, retry later", http.StatusTooManyRequests))
		})
	}
}
