package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/amerfu/aigw/internal/config"
)

type contextKey string

const TeamContextKey contextKey = "team"

// Authenticator resolves API keys to team identities and guards the
// admin surface.
type Authenticator struct {
	header    string
	teamKeys  map[string]string
	masterKey string
	secretKey string
	logger    *zap.Logger
}

func NewAuthenticator(cfg config.AuthConfig, logger *zap.Logger) *Authenticator {
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}
	return &Authenticator{
		header:    header,
		teamKeys:  cfg.TeamKeys,
		masterKey: cfg.MasterKey,
		secretKey: cfg.SecretKey,
		logger:    logger.Named("auth"),
	}
}

// RequireTeam authenticates the tenant API key and places the team id
// in the request context. Missing and invalid keys are distinguished
// so clients can tell a config error from a revoked key.
func (a *Authenticator) RequireTeam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(a.header)
		if key == "" {
			writeAuthError(w, http.StatusUnauthorized, fmt.Sprintf("missing %s header", a.header))
			return
		}

		teamID, ok := a.teamKeys[key]
		if !ok {
			a.logger.Warn("Rejected unknown API key", zap.String("remote", r.RemoteAddr))
			writeAuthError(w, http.StatusForbidden, "invalid API key")
			return
		}

		ctx := context.WithValue(r.Context(), TeamContextKey, teamID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAdmin accepts either the master key or an admin JWT signed
// with the configured secret, both carried as a bearer token.
func (a *Authenticator) RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authz := r.Header.Get("Authorization")
		token, found := strings.CutPrefix(authz, "Bearer ")
		if !found || token == "" {
			writeAuthError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		if a.masterKey != "" && token == a.masterKey {
			next.ServeHTTP(w, r)
			return
		}

		if err := a.verifyAdminToken(token); err != nil {
			a.logger.Warn("Rejected admin token",
				zap.String("remote", r.RemoteAddr),
				zap.Error(err))
			writeAuthError(w, http.StatusForbidden, "admin access required")
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) verifyAdminToken(tokenString string) error {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.secretKey), nil
	})
	if err != nil {
		return err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return fmt.Errorf("invalid token")
	}
	if role, _ := claims["role"].(string); role != "admin" {
		return fmt.Errorf("token lacks admin role")
	}
	return nil
}

// TeamFromContext returns the authenticated team id.
func TeamFromContext(ctx context.Context) (string, bool) {
	teamID, ok := ctx.Value(TeamContextKey).(string)
	return teamID, ok
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
