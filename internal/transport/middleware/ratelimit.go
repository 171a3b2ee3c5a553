package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/heartmarshall/ledger-backend/internal/ratelimit"
	"github.com/heartmarshall/ledger-backend/pkg/ctxutil"
)

const (
	headerLimit     = "X-RateLimit-Limit"
	headerRemaining = "X-RateLimit-Remaining"
	headerReset     = "X-RateLimit-Reset"
)

// RateLimitBody is the JSON body of a 429 response.
type RateLimitBody struct {
	Error      string `json:"error"`
	Limit      int    `json:"limit"`
	Remaining  int    `json:"remaining"`
	Reset      int64  `json:"reset"`
	RetryAfter int64  `json:"retryAfter"`
}

// RateLimit admits requests through the fixed-window limiter. The key is
// the preset name plus the authenticated caller, or the client IP for
// anonymous requests, so presets never share a window.
func RateLimit(l *ratelimit.Limiter, preset ratelimit.Preset, cfg ratelimit.Config, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := string(preset) + ":" + callerKey(r)
			d := l.Check(key, cfg)

			h := w.Header()
			h.Set(headerLimit, strconv.Itoa(d.Limit))
			h.Set(headerRemaining, strconv.Itoa(d.Remaining))
			h.Set(headerReset, strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				retryAt := d.ResetAt
				if d.RetryAfter != nil {
					retryAt = *d.RetryAfter
				}
				h.Set("Retry-After", strconv.Itoa(retryAfterSeconds(retryAt, time.Now())))

				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("preset", string(preset)),
					slog.String("key", key),
					slog.String("path", r.URL.Path),
				)
				writeJSON(w, http.StatusTooManyRequests, RateLimitBody{
					Error:      "rate limit exceeded, try again later",
					Limit:      d.Limit,
					Remaining:  d.Remaining,
					Reset:      d.ResetAt.Unix(),
					RetryAfter: retryAt.Unix(),
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerKey(r *http.Request) string {
	if id, ok := ctxutil.UserIDFromCtx(r.Context()); ok {
		return "user:" + id
	}
	if ip := ctxutil.ClientInfoFromCtx(r.Context()).IP; ip != "" {
		return "ip:" + ip
	}
	return "ip:" + r.RemoteAddr
}

// retryAfterSeconds rounds up so that a client honouring the header never
// retries before the window resets.
func retryAfterSeconds(at, now time.Time) int {
	secs := int(math.Ceil(at.Sub(now).Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
