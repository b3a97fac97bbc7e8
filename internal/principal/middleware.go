package principal

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/clinovault/clinovault/internal/platform/httpx"
	"github.com/clinovault/clinovault/internal/shared"
)

// Middleware resolves the principal for each request and injects it into the
// request context.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Require rejects requests without a resolvable principal. The response body
// carries no hint of what was being accessed.
func (m Middleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, err := m.Resolver.Resolve(r.Context())
		if err != nil {
			if !errors.Is(err, shared.ErrNotAuthenticated) {
				if m.Logger != nil {
					m.Logger.Error("resolve principal", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), p)))
	})
}
