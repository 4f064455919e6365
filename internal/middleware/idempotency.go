package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/grcplatform/grc/internal/port/cache"
	"github.com/grcplatform/grc/internal/tenantctx"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyBody   = 1 << 20
	maxIdempotencyKeyLen = 255
)

// idempotencyEntry is a stored response.
type idempotencyEntry struct {
	StatusCode int                 `json:"status_code"`
	Headers    map[string][]string `json:"headers"`
	Body       []byte              `json:"body"`
}

// Idempotency replays the stored response for a mutating request that repeats
// an Idempotency-Key within ttl. Keys are scoped to the bound tenant and the
// principal, so a response is only ever replayed to the caller that produced
// it. Mount it inside the route's role and consent guards: a replay skips
// every handler below it. Only 2xx responses are stored; a rejected consent or
// validation failure can be retried with the same key.
func Idempotency(c cache.Cache, ttl time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}
			key := r.Header.Get(headerIdempotencyKey)
			if key == "" || len(key) > maxIdempotencyKeyLen {
				next.ServeHTTP(w, r)
				return
			}
			ck := idempotencyCacheKey(r, key)

			cached, found, err := cache.GetJSON[idempotencyEntry](r.Context(), c, ck)
			if err != nil {
				slog.WarnContext(r.Context(), "idempotency lookup failed", "key", key, "error", err)
			}
			if found {
				for k, vals := range cached.Headers {
					if k == http.CanonicalHeaderKey(headerRequestID) {
						continue
					}
					w.Header()[k] = vals
				}
				w.Header().Set(headerReplayed, "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.statusCode < 200 || rec.statusCode > 299 || rec.overflow {
				return
			}
			entry := idempotencyEntry{
				StatusCode: rec.statusCode,
				Headers:    w.Header().Clone(),
				Body:       rec.body.Bytes(),
			}
			if err := cache.SetJSON(r.Context(), c, ck, entry, ttl); err != nil {
				slog.WarnContext(r.Context(), "idempotency store failed", "key", key, "error", err)
			}
		})
	}
}

func idempotencyCacheKey(r *http.Request, key string) string {
	tenantScope, userScope := "none", "anon"
	if tid, ok := tenantctx.ID(r.Context()); ok {
		tenantScope = strconv.FormatInt(tid, 10)
	}
	if u := UserFromContext(r.Context()); u != nil {
		userScope = strconv.FormatInt(u.ID, 10)
	}
	return "idem:" + tenantScope + ":" + userScope + ":" + r.Method + ":" + r.URL.Path + ":" + key
}

// responseRecorder tees the response into a bounded buffer.
type responseRecorder struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
	overflow    bool
}

func (r *responseRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.statusCode = code
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	if !r.overflow {
		if r.body.Len()+len(b) > maxIdempotencyBody {
			r.overflow = true
			r.body.Reset()
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
