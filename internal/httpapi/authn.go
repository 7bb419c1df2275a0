package httpapi

import (
	"net/http"

	"marketplace/internal/audit"
	"marketplace/internal/auth"
	"marketplace/internal/obs"
)

const authHeader = "Authorization"

var publicPaths = []string{
	"/metrics",
	"/healthz",
	"/readyz",
}

// withAuth resolves the bearer token, if any, into a principal on the request
// context. Requests without credentials pass through anonymously; handlers that
// need a principal reject them.
func (a *API) withAuth(next http.Handler) http.Handler {
	if a == nil || a.authn == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		out, err := a.authn.Authenticate(r.Context(), r.Header.Get(authHeader))
		if err != nil {
			log := obs.Logger()
			log.Error().Err(err).
				Str("request_id", RequestIDFromContext(r.Context())).
				Msg("authentication unavailable")
			unavailable(w, r)
			return
		}

		switch out.Kind {
		case auth.OutcomeDenied:
			unauthorized(w, r)
			return
		case auth.OutcomeAuthenticated:
			ctx := auth.ContextWithPrincipal(r.Context(), out.Principal, out.Token)
			ctx = audit.WithActor(ctx, out.Principal.ID)
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// RequirePermission admits only principals the evaluator grants code.
func (a *API) RequirePermission(code string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, r)
				return
			}
			if err := a.evaluator.Require(r.Context(), principal, code); err != nil {
				writeAuthError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
