package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/config"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/errors"
	"github.com/Nuvivo-HF-website/nuvivo-health-flow-sub003/internal/shared/types"
)

type contextKey string

const (
	UserContextKey contextKey = "user"
)

// User represents the authenticated user from JWT claims
type User struct {
	ID    types.ID `json:"sub"`
	Email string   `json:"email,omitempty"`
	Role  string   `json:"role,omitempty"`
}

// Claims extends JWT claims with portal-specific data
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Middleware creates JWT authentication middleware. Tokens are HMAC-signed
// by the identity provider with the shared project secret.
func Middleware(cfg config.AuthConfig) func(http.Handler) http.Handler {
	var opts []jwt.ParserOption
	opts = append(opts, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" || strings.TrimSpace(parts[1]) == "" {
				writeError(w)
				return
			}

			token, err := parser.ParseWithClaims(strings.TrimSpace(parts[1]), &Claims{}, func(token *jwt.Token) (interface{}, error) {
				return []byte(cfg.JWTSecret), nil
			})
			if err != nil {
				writeError(w)
				return
			}

			claims, ok := token.Claims.(*Claims)
			if !ok || !token.Valid || claims.Subject == "" {
				writeError(w)
				return
			}

			userID, err := types.ParseID(claims.Subject)
			if err != nil {
				writeError(w)
				return
			}

			user := &User{
				ID:    userID,
				Email: claims.Email,
				Role:  claims.Role,
			}

			ctx := WithUser(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithUser stores the user in ctx.
func WithUser(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// GetUser extracts the user from request context
func GetUser(ctx context.Context) *User {
	user, ok := ctx.Value(UserContextKey).(*User)
	if !ok {
		return nil
	}
	return user
}

func writeError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]string{"error": errors.CodeAuthMissing})
}
