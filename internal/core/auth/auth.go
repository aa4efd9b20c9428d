// Package auth provides bearer-token verification for inbound requests and
// machine-to-machine token acquisition for outbound calls.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Mode selects whether bearer tokens are enforced.
type Mode string

const (
	ModeJWTOnly      Mode = "jwt_only"
	ModeDual         Mode = "dual"
	ModeLegacyHeader Mode = "legacy_header"
)

// ParseMode normalizes s. Unknown values select ModeJWTOnly.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeJWTOnly, ModeDual, ModeLegacyHeader:
		return m
	default:
		return ModeJWTOnly
	}
}

// Enforced reports whether requests must carry a verified token.
func (m Mode) Enforced() bool { return m == ModeJWTOnly }

// TokenVerifier validates a raw bearer token.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (jwt.MapClaims, error)
}

// contextKey is a typed key for context values to avoid collisions.
type contextKey string

const claimsKey = contextKey("claims")

// ClaimsFromContext returns the verified claims of the current request, or
// nil when the request was not authenticated.
func ClaimsFromContext(ctx context.Context) jwt.MapClaims {
	if claims, ok := ctx.Value(claimsKey).(jwt.MapClaims); ok {
		return claims
	}
	return nil
}

// Middleware enforces bearer tokens when mode requires it. Failures are
// answered with 401 and {"detail": "<reason>"}.
func Middleware(mode Mode, verifier TokenVerifier, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		if !mode.Enforced() {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w, ErrMissingToken)
				return
			}
			if verifier == nil {
				unauthorized(w, ErrIssuerUnset)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				logger.Debug("bearer token rejected", "path", r.URL.Path, "error", err)
				unauthorized(w, err)
				return
			}
			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from "Bearer <token>". The scheme is
// case-sensitive.
func bearerToken(header string) (string, bool) {
	const prefix = "Bearer "
	if !strings.HasPrefix(header, prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

func unauthorized(w http.ResponseWriter, err error) {
	msg := err.Error()
	var te *TokenError
	if errors.As(err, &te) {
		msg = te.Msg
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": msg})
}
