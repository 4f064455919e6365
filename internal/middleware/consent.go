package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"

	"github.com/grcplatform/grc/internal/adapter/otel"
	"github.com/grcplatform/grc/internal/domain/consent"
	"github.com/grcplatform/grc/internal/domain/user"
	"github.com/grcplatform/grc/internal/tenantctx"
)

// maxConsentBody caps the request body the gate buffers.
const maxConsentBody = 1 << 20

// ConsentChecker reads consent requirements and records acceptances.
// *service.ConsentService satisfies it.
type ConsentChecker interface {
	Requirement(ctx context.Context, actionType string) (*consent.Configuration, error)
	Accept(ctx context.Context, principal *user.User, cfg *consent.Configuration, ip, userAgent string) (*consent.Acceptance, error)
}

// consentRequiredBody is the 403 payload the client renders as a consent prompt.
type consentRequiredBody struct {
	Status          string         `json:"status"`
	Error           string         `json:"error"`
	ConsentRequired bool           `json:"consent_required"`
	ConsentConfig   consent.Prompt `json:"consent_config"`
}

// consentFields are the gate's fields in the request payload.
type consentFields struct {
	Accepted bool            `json:"consent_accepted"`
	ConfigID json.RawMessage `json:"consent_config_id"`
}

type acceptanceCtxKey struct{}

// AcceptanceFromContext returns the acceptance recorded by the gate for this request, or nil.
func AcceptanceFromContext(ctx context.Context) *consent.Acceptance {
	a, _ := ctx.Value(acceptanceCtxKey{}).(*consent.Acceptance)
	return a
}

// ConsentGate requires a matching acceptance in the request payload before
// next runs, when actionType has an enabled configuration in the bound tenant.
// An unreachable configuration store lets the request through.
func ConsentGate(checker ConsentChecker, actionType string, metrics *otel.Metrics) func(http.Handler) http.Handler {
	if metrics == nil {
		metrics = &otel.Metrics{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tid, _ := tenantctx.ID(r.Context())
			ctx, span := otel.StartConsentSpan(r.Context(), actionType, tid)
			cfg, err := checker.Requirement(ctx, actionType)
			span.End()

			if err != nil {
				otel.Inc(r.Context(), metrics.ConsentFailOpen, "action_type", actionType)
				slog.ErrorContext(r.Context(), "consent store unavailable, forwarding request",
					"action_type", actionType, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if cfg == nil {
				next.ServeHTTP(w, r)
				return
			}

			body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxConsentBody))
			if err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
					return
				}
				writeJSONError(w, http.StatusBadRequest, "failed to read request body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !consentSupplied(body, cfg.ID) {
				otel.Inc(r.Context(), metrics.ConsentDenials, "action_type", actionType)
				writeJSON(w, http.StatusForbidden, consentRequiredBody{
					Status:          "error",
					Error:           "CONSENT_REQUIRED",
					ConsentRequired: true,
					ConsentConfig:   cfg.Prompt(),
				})
				return
			}

			principal := UserFromContext(r.Context())
			if principal == nil {
				writeJSONError(w, http.StatusUnauthorized, "authorization required")
				return
			}
			a, err := checker.Accept(r.Context(), principal, cfg, clientIP(r), r.UserAgent())
			if err != nil {
				slog.ErrorContext(r.Context(), "consent acceptance not recorded",
					"action_type", actionType, "config_id", cfg.ID, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "failed to record consent")
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), acceptanceCtxKey{}, a)))
		})
	}
}

// consentSupplied reports whether body affirms consent for configID. The id
// may be sent as a JSON number or a decimal string.
func consentSupplied(body []byte, configID int64) bool {
	var f consentFields
	if err := json.Unmarshal(body, &f); err != nil || !f.Accepted || len(f.ConfigID) == 0 {
		return false
	}
	raw := string(f.ConfigID)
	if s, err := strconv.Unquote(raw); err == nil {
		raw = s
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	return err == nil && id == configID
}

// clientIP returns the host part of RemoteAddr, which chi's RealIP has
// already rewritten when the router runs behind a trusted proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
