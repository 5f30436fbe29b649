// file: internal/middleware/auth.go
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"noodlebadge/internal/contextutils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// AuthConfig holds authentication middleware configuration
type AuthConfig struct {
	JWTSecret string `json:"-"`
	Issuer    string `json:"issuer"`
	// Required rejects unauthenticated requests on protected routes
	Required bool `json:"required"`
	// TokenQueryParam is accepted where clients cannot set headers (websockets)
	TokenQueryParam string `json:"token_query_param"`
	LogFailedAuth   bool   `json:"log_failed_auth"`
}

// DefaultAuthConfig returns default authentication configuration
func DefaultAuthConfig() *AuthConfig {
	return &AuthConfig{
		Required:        true,
		TokenQueryParam: "access_token",
		LogFailedAuth:   true,
	}
}

// AuthMiddleware validates HS256 bearer tokens whose subject is the user id
type AuthMiddleware struct {
	config *AuthConfig
	logger *zap.Logger
}

// NewAuthMiddleware creates authentication middleware
func NewAuthMiddleware(config *AuthConfig, logger *zap.Logger) (*AuthMiddleware, error) {
	if config == nil {
		config = DefaultAuthConfig()
	}
	if config.Required && config.JWTSecret == "" {
		return nil, fmt.Errorf("jwt secret is required when authentication is enforced")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthMiddleware{config: config, logger: logger}, nil
}

// ===============================
// MIDDLEWARE
// ===============================

// Authenticate resolves the caller from the bearer token. Unauthenticated
// requests are rejected only when authentication is required.
func (am *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := am.authenticateJWT(r)
		if err == nil {
			ctx := contextutils.WithUserID(r.Context(), userID)
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		if !am.config.Required {
			next.ServeHTTP(w, r)
			return
		}

		if am.config.LogFailedAuth {
			GetRequestLogger(r.Context()).Warn("Authentication required but failed",
				zap.String("error", err.Error()),
				zap.String("path", r.URL.Path),
			)
		}
		writeJSONError(w, "UNAUTHORIZED", "Authentication required", http.StatusUnauthorized)
	})
}

// RequireSelf only lets users act on their own resources. The route
// variable names the user the request targets.
func (am *AuthMiddleware) RequireSelf(routeVar string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			caller := contextutils.GetUserID(r.Context())
			if caller == "" && !am.config.Required {
				next.ServeHTTP(w, r)
				return
			}

			if caller == "" || caller != mux.Vars(r)[routeVar] {
				GetRequestLogger(r.Context()).Warn("Permission denied",
					zap.String("caller", caller),
					zap.String("target", mux.Vars(r)[routeVar]),
				)
				writeJSONError(w, "FORBIDDEN", "Resource not owned by user", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// ===============================
// TOKENS
// ===============================

func (am *AuthMiddleware) authenticateJWT(r *http.Request) (string, error) {
	tokenString := bearerToken(r)
	if tokenString == "" && am.config.TokenQueryParam != "" {
		tokenString = r.URL.Query().Get(am.config.TokenQueryParam)
	}
	if tokenString == "" {
		return "", errors.New("no bearer token")
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if am.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(am.config.Issuer))
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(am.config.JWTSecret), nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("token has no subject")
	}

	return claims.Subject, nil
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(authHeader, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// GenerateToken issues a token for userID. Used by operators and tests.
func (am *AuthMiddleware) GenerateToken(userID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    am.config.Issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(am.config.JWTSecret))
}

// GetUserID returns the authenticated user, or "" when the request is anonymous
func GetUserID(r *http.Request) string {
	return contextutils.GetUserID(r.Context())
}
