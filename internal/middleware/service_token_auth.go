package middleware

import (
	"context"
	"crypto/subtle"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

type contextKey string

// ServiceTokenKey is the context key for the authenticated service token
const ServiceTokenKey contextKey = "service_token"

// ServiceTokenAuth authenticates internal callers by a static bearer token.
// The credits API is service-to-service only, so the token set comes from
// configuration rather than a user store.
type ServiceTokenAuth struct {
	tokens []string
}

// NewServiceTokenAuth creates a new ServiceTokenAuth for the given tokens
func NewServiceTokenAuth(tokens []string) *ServiceTokenAuth {
	valid := make([]string, 0, len(tokens))
	for _, token := range tokens {
		token = strings.TrimSpace(token)
		if token != "" {
			valid = append(valid, token)
		}
	}
	return &ServiceTokenAuth{tokens: valid}
}

// Authenticate returns an Echo middleware that validates the bearer token
func (m *ServiceTokenAuth) Authenticate() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return unauthorizedError(c, "Missing authorization header")
			}

			// Check Bearer prefix
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				return unauthorizedError(c, "Invalid authorization header format")
			}

			token := parts[1]
			if !m.matches(token) {
				log.Debug().Msg("Service token rejected")
				return unauthorizedError(c, "Invalid service token")
			}

			ctx := context.WithValue(c.Request().Context(), ServiceTokenKey, token)
			c.SetRequest(c.Request().WithContext(ctx))

			return next(c)
		}
	}
}

// matches compares the presented token against every configured token in
// constant time.
func (m *ServiceTokenAuth) matches(token string) bool {
	matched := false
	for _, candidate := range m.tokens {
		if len(candidate) == len(token) &&
			subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			matched = true
		}
	}
	return matched
}

// GetServiceToken extracts the authenticated token from the context
func GetServiceToken(c echo.Context) string {
	if token, ok := c.Request().Context().Value(ServiceTokenKey).(string); ok {
		return token
	}
	return ""
}
