package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/pressroomhq/pressroom/internal/metrics"
	"github.com/pressroomhq/pressroom/internal/model"
	"github.com/pressroomhq/pressroom/internal/service"
)

// TokenCookie is the name of the cookie carrying the session token.
const TokenCookie = "token"

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
)

// Principal is the admin a request was authenticated as, together with the
// exact token string that authenticated it.
type Principal struct {
	Admin *model.Admin
	Token string
}

// TokenFromRequest returns the session token presented with r. The token
// cookie wins over an Authorization: Bearer header. Returns "" when neither
// is present.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(TokenCookie); err == nil && c.Value != "" {
		return c.Value
	}
	authHeader := r.Header.Get("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return strings.TrimSpace(authHeader[7:])
	}
	return ""
}

// Authenticate returns an HTTP middleware that gates a route on a valid
// session token. Per request it:
//
//  1. extracts the token from the cookie or Authorization header
//  2. rejects tokens on the blacklist
//  3. verifies signature and expiry
//  4. loads the admin named by the token
//  5. attaches a Principal to the request context
//
// Any failure ends the request with the same 401 response.
func Authenticate(authSvc *service.AuthService, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			if token == "" {
				m.Rejected(metrics.ReasonMissingToken)
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			admin, _, err := authSvc.Authenticate(r.Context(), token)
			if err != nil {
				reason := rejectionReason(err)
				if reason == metrics.ReasonError {
					slog.ErrorContext(r.Context(), "authentication failed",
						"error", err,
						"request_id", GetRequestID(r.Context()),
					)
				}
				m.Rejected(reason)
				writeAuthError(w, http.StatusUnauthorized, "Authentication required")
				return
			}

			ctx := context.WithValue(r.Context(), AuthPrincipalKey, &Principal{Admin: admin, Token: token})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, service.ErrTokenRevoked):
		return metrics.ReasonRevoked
	case errors.Is(err, service.ErrUnknownAdmin):
		return metrics.ReasonUnknownAdmin
	case errors.Is(err, service.ErrUnauthenticated):
		return metrics.ReasonInvalidToken
	default:
		return metrics.ReasonError
	}
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil if no principal is present (i.e., unauthenticated request).
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="pressroom"`)
	writeError(w, status, message)
}

// writeError writes the standard error envelope. The handler package has its
// own helper; middleware cannot import it without a cycle.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{
		Error: model.ErrorDetail{Code: status, Message: message},
	})
}
