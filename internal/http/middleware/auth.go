package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/davidbz/symposium/internal/domain"
	"github.com/davidbz/symposium/internal/observability"
)

// Auth creates a middleware that resolves the caller's credential to a
// verified account ID and injects it into the request context. Health checks
// pass through unauthenticated.
func Auth(resolver domain.AccountResolver) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/health" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()

			token := bearerToken(r)
			accountID, err := resolver.Resolve(ctx, token)
			if err != nil {
				observability.FromContext(ctx).Warn("credential rejected",
					observability.Error(err))
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			ctx = observability.WithAccountID(ctx, accountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	return ""
}

// PassthroughResolver treats the presented token itself as the account ID.
// It backs local development and tests; production deployments provide a
// real resolver.
type PassthroughResolver struct{}

// NewPassthroughResolver creates a new passthrough resolver.
func NewPassthroughResolver() *PassthroughResolver {
	return &PassthroughResolver{}
}

// Resolve returns the token as the account ID, or "anonymous" for absent
// credentials.
func (PassthroughResolver) Resolve(_ context.Context, token string) (string, error) {
	if token == "" {
		return "anonymous", nil
	}
	return token, nil
}
