package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"pubrec/pkg/roles"
)

type contextKeyRoles struct{}

// roleClaims is the token shape issued by the identity collaborator. Only the
// roles claim matters here; identity issuance itself is out of scope.
type roleClaims struct {
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// Roles resolves the caller's role-tag set. No token, or an invalid one,
// yields the anonymous set {public}: a bad token degrades to public
// visibility rather than an error, matching the fail-closed tag model.
func Roles(signingKey string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			set := roles.Anonymous()

			if raw, ok := bearerToken(r); ok {
				claims := &roleClaims{}
				token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
					if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, jwt.ErrSignatureInvalid
					}
					return []byte(signingKey), nil
				})
				if err != nil || !token.Valid {
					log.Warn("rejected bearer token, treating caller as anonymous",
						"request_id", GetRequestID(r.Context()), "error", err)
				} else if len(claims.Roles) > 0 {
					set = roles.FromStrings(claims.Roles)
				}
			}

			ctx := context.WithValue(r.Context(), contextKeyRoles{}, set)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// CallerRoles retrieves the caller's role set, anonymous when absent.
func CallerRoles(ctx context.Context) roles.Set {
	if set, ok := ctx.Value(contextKeyRoles{}).(roles.Set); ok {
		return set
	}
	return roles.Anonymous()
}

// WithCallerRoles injects a role set directly; handler tests use this to
// bypass token parsing.
func WithCallerRoles(ctx context.Context, set roles.Set) context.Context {
	return context.WithValue(ctx, contextKeyRoles{}, set)
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	if h == "" {
		return "", false
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return strings.TrimSpace(parts[1]), true
}
