package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidbz/symposium/internal/http/middleware"
	"github.com/davidbz/symposium/internal/observability"
)

type rejectingResolver struct{}

func (rejectingResolver) Resolve(_ context.Context, _ string) (string, error) {
	return "", errors.New("unknown credential")
}

func TestChain_Order(t *testing.T) {
	var order []string
	tag := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	chain := middleware.Chain(tag("first"), tag("second"))
	handler := chain(http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
		order = append(order, "handler")
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"first", "second", "handler"}, order)
}

func TestTrace_InjectsIdentifiers(t *testing.T) {
	var gotTrace, gotRequest string
	handler := middleware.Trace()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		gotTrace = observability.GetTraceID(r.Context())
		gotRequest = observability.GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/balance", nil))

	require.NotEmpty(t, gotTrace)
	require.NotEmpty(t, gotRequest)
	require.Equal(t, gotTrace, w.Header().Get("X-Trace-Id"))
	require.Equal(t, gotRequest, w.Header().Get("X-Request-Id"))
}

func TestAuth(t *testing.T) {
	t.Run("resolves the bearer token to an account", func(t *testing.T) {
		var gotAccount string
		handler := middleware.Auth(middleware.NewPassthroughResolver())(
			http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				gotAccount = observability.GetAccountID(r.Context())
			}))

		r := httptest.NewRequest(http.MethodGet, "/v1/balance", nil)
		r.Header.Set("Authorization", "Bearer acc_42")
		handler.ServeHTTP(httptest.NewRecorder(), r)

		require.Equal(t, "acc_42", gotAccount)
	})

	t.Run("missing credential falls back to anonymous", func(t *testing.T) {
		var gotAccount string
		handler := middleware.Auth(middleware.NewPassthroughResolver())(
			http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				gotAccount = observability.GetAccountID(r.Context())
			}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/balance", nil))
		require.Equal(t, "anonymous", gotAccount)
	})

	t.Run("rejected credential is a 401", func(t *testing.T) {
		handler := middleware.Auth(rejectingResolver{})(
			http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				t.Fatal("handler must not run for rejected credentials")
			}))

		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/balance", nil))
		require.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("health bypasses auth", func(t *testing.T) {
		var ran bool
		handler := middleware.Auth(rejectingResolver{})(
			http.HandlerFunc(func(_ http.ResponseWriter, _ *http.Request) {
				ran = true
			}))

		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/health", nil))
		require.True(t, ran)
	})
}
