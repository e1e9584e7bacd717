package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/askbase/askbase/internal/api"
	"github.com/askbase/askbase/internal/domain"
	"github.com/askbase/askbase/internal/session"
)

type contextKey string

const ScopeKey contextKey = "scope"

// ProviderConfigHeader carries an optional per-request guest credential
// payload (JSON). Requests without it run under the system scope.
const ProviderConfigHeader = "X-Provider-Config"

// ProviderScope resolves the credential scope for each request and stores it
// in the context. Guest payloads are validated here so handlers never see a
// malformed config.
func ProviderScope(resolver *session.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var guest *session.GuestConfig
			if raw := r.Header.Get(ProviderConfigHeader); raw != "" {
				parsed, err := session.ParseGuestConfig([]byte(raw))
				if err != nil {
					api.HandleError(w, err)
					return
				}
				guest = parsed
			}

			scope, err := resolver.Resolve(guest)
			if err != nil {
				// A deployment without system credentials still serves POST
				// bodies that carry their own provider_config; handlers that
				// need a scope reject its absence themselves.
				if guest == nil && errors.Is(err, domain.ErrAuth) {
					next.ServeHTTP(w, r)
					return
				}
				api.HandleError(w, err)
				return
			}

			ctx := context.WithValue(r.Context(), ScopeKey, scope)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetScope returns the resolved scope from context, or nil outside the
// middleware chain.
func GetScope(ctx context.Context) *session.Scope {
	scope, _ := ctx.Value(ScopeKey).(*session.Scope)
	return scope
}
