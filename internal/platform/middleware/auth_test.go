package middleware

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pubrec/pkg/roles"
)

const signingKey = "test-signing-key"

func mintToken(t *testing.T, key string, rs []string) string {
	t.Helper()
	claims := roleClaims{
		Roles: rs,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return token
}

func resolveRoles(t *testing.T, authorization string) roles.Set {
	t.Helper()
	var got roles.Set
	next := http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		got = CallerRoles(r.Context())
	})

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	req := httptest.NewRequest(http.MethodGet, "/api/search", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	Roles(signingKey, log)(next).ServeHTTP(httptest.NewRecorder(), req)
	return got
}

func TestRoles_ValidToken(t *testing.T) {
	token := mintToken(t, signingKey, []string{"sysadmin", "editor"})
	set := resolveRoles(t, "Bearer "+token)

	assert.True(t, set.Contains(roles.Sysadmin))
	assert.True(t, set.Contains(roles.Editor))
	assert.False(t, set.Contains(roles.Public))
}

func TestRoles_NoTokenIsAnonymous(t *testing.T) {
	set := resolveRoles(t, "")
	assert.Equal(t, []string{"public"}, set.Strings())
}

func TestRoles_BadSignatureDegradesToAnonymous(t *testing.T) {
	token := mintToken(t, "some-other-key", []string{"sysadmin"})
	set := resolveRoles(t, "Bearer "+token)

	assert.Equal(t, []string{"public"}, set.Strings())
}

func TestRoles_GarbageTokenDegradesToAnonymous(t *testing.T) {
	set := resolveRoles(t, "Bearer not.a.jwt")
	assert.Equal(t, []string{"public"}, set.Strings())
}

func TestRoles_EmptyRolesClaimIsAnonymous(t *testing.T) {
	token := mintToken(t, signingKey, nil)
	set := resolveRoles(t, "Bearer "+token)

	assert.Equal(t, []string{"public"}, set.Strings())
}

func TestCallerRoles_DefaultsToAnonymous(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Equal(t, []string{"public"}, CallerRoles(req.Context()).Strings())
}
