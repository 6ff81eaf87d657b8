// ABOUTME: HTTP middleware for bearer-token authentication on the control surface.
// ABOUTME: Extracts the JWT from the Authorization header and adds the principal to context.

package auth

import (
	"context"
	"net/http"
	"strings"
)

type contextKey struct{}

// WithPrincipal returns a context carrying the authenticated principal ID.
func WithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, contextKey{}, principalID)
}

// PrincipalFromContext returns the authenticated principal ID, if any.
func PrincipalFromContext(ctx context.Context) (string, bool) {
	principalID, ok := ctx.Value(contextKey{}).(string)
	return principalID, ok
}

// extractBearerToken extracts a bearer token from the Authorization header.
// Returns the token and an error message (empty if successful).
func extractBearerToken(authHeader string) (string, string) {
	if authHeader == "" {
		return "", "missing authorization header"
	}
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", "invalid authorization header format"
	}
	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", "empty token"
	}
	return token, ""
}

// Middleware creates an HTTP middleware that requires a valid bearer token
// on every request. A nil verifier disables authentication entirely, for
// deployments that front the control surface with their own auth.
func Middleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if verifier == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, errMsg := extractBearerToken(r.Header.Get("Authorization"))
			if errMsg != "" {
				http.Error(w, `{"error":"`+errMsg+`"}`, http.StatusUnauthorized)
				return
			}

			principalID, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, `{"error":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), principalID)))
		})
	}
}
