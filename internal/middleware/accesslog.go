package middleware

import (
	"bufio"
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/grcplatform/grc/internal/logger"
)

// accessRecord collects request facts learned further down the chain. The
// tenant slot is cleared before the access log line is written, so the
// resolver notes the tenant here as well.
type accessRecord struct {
	tenantID atomic.Int64
	userID   atomic.Int64
}

type accessCtxKey struct{}

func noteTenant(ctx context.Context, id int64) {
	if rec, ok := ctx.Value(accessCtxKey{}).(*accessRecord); ok {
		rec.tenantID.Store(id)
	}
}

func noteUser(ctx context.Context, id int64) {
	if rec, ok := ctx.Value(accessCtxKey{}).(*accessRecord); ok {
		rec.userID.Store(id)
	}
}

// AccessLog logs one line per request with method, path, status, duration,
// request id and, when known, the tenant and principal.
func AccessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &accessRecord{}
		rw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(context.WithValue(r.Context(), accessCtxKey{}, rec)))

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", logger.RequestID(r.Context()),
		}
		if tid := rec.tenantID.Load(); tid != 0 {
			attrs = append(attrs, "tenant_id", tid)
		}
		if uid := rec.userID.Load(); uid != 0 {
			attrs = append(attrs, "user_id", uid)
		}
		slog.Info("http request", attrs...)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	w.wroteHeader = true
	return w.ResponseWriter.Write(b)
}

// Hijack implements http.Hijacker.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if hj, ok := w.ResponseWriter.(http.Hijacker); ok {
		return hj.Hijack()
	}
	return nil, nil, errors.New("upstream ResponseWriter does not implement http.Hijacker")
}

// Flush implements http.Flusher.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
