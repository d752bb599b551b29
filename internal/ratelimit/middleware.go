package ratelimit

import (
	"net/http"
	"strconv"
	"time"

	"github.com/medantara/backend-klinik/internal/common"
)

// Guard throttles brute-force-sensitive endpoints (login, password
// reset) per client IP. It sits on top of SlidingWindow and fails
// open: a Redis error lets the request through rather than locking
// staff out of the console.
type Guard struct {
	Window  SlidingWindow
	Scope   string
	Max     int
	Per     time.Duration
	OnError func(error)
}

// Middleware enforces the limit before delegating to next.
func (g Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := g.Scope + ":" + common.ClientIP(r)
		res, err := g.Window.Allow(r.Context(), key, g.Per, g.Max)
		if err != nil {
			if g.OnError != nil {
				g.OnError(err)
			}
			next.ServeHTTP(w, r)
			return
		}

		headers := w.Header()
		headers.Set("X-RateLimit-Limit", strconv.Itoa(g.Max))
		headers.Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		headers.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

		if !res.Allowed {
			retryAfter := int(time.Until(res.ResetAt).Seconds())
			if retryAfter < 0 {
				retryAfter = 0
			}
			headers.Set("Retry-After", strconv.Itoa(retryAfter))
			common.JSONError(w, http.StatusTooManyRequests, "RATE_LIMITED", "too many attempts, try again later", nil)
			return
		}

		next.ServeHTTP(w, r)
	})
}
