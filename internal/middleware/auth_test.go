package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
)

func newTestAuthenticator() *Authenticator {
	return NewAuthenticator(config.AuthConfig{
		APIKeyHeader: "X-API-Key",
		TeamKeys: map[string]string{
			"sk-gateway-finance-001": "finance-team",
		},
		MasterKey: "master-secret",
		SecretKey: "jwt-signing-secret",
	}, zap.NewNop())
}

func TestRequireTeam(t *testing.T) {
	auth := newTestAuthenticator()

	var gotTeam string
	handler := auth.RequireTeam(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTeam, _ = TeamFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	t.Run("missing key is 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/complete", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "X-API-Key")
	})

	t.Run("unknown key is 403", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/complete", nil)
		req.Header.Set("X-API-Key", "sk-gateway-bogus-999")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("valid key resolves the team", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/complete", nil)
		req.Header.Set("X-API-Key", "sk-gateway-finance-001")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "finance-team", gotTeam)
	})
}

func TestRequireAdmin(t *testing.T) {
	auth := newTestAuthenticator()
	handler := auth.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	adminToken := func(t *testing.T, role string, expiry time.Duration) string {
		t.Helper()
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub":  "ops",
			"role": role,
			"exp":  time.Now().Add(expiry).Unix(),
		})
		signed, err := token.SignedString([]byte("jwt-signing-secret"))
		require.NoError(t, err)
		return signed
	}

	t.Run("missing token is 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest("POST", "/v1/budget/limits", nil))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("master key is accepted", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/budget/limits", nil)
		req.Header.Set("Authorization", "Bearer master-secret")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("admin JWT is accepted", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/budget/limits", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken(t, "admin", time.Hour))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("non-admin JWT is 403", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/budget/limits", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken(t, "viewer", time.Hour))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("expired JWT is 403", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/v1/budget/limits", nil)
		req.Header.Set("Authorization", "Bearer "+adminToken(t, "admin", -time.Hour))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("JWT signed with the wrong secret is 403", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"role": "admin",
			"exp":  time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString([]byte("some-other-secret"))
		require.NoError(t, err)

		req := httptest.NewRequest("POST", "/v1/budget/limits", nil)
		req.Header.Set("Authorization", "Bearer "+signed)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}
