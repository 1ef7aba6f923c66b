package httpapi

import (
	"net/http"
	"strings"

	"leadgrid.io/internal/auth"
)

// publicPaths are reachable without a bearer token.
var publicPaths = map[string]bool{
	"/v1/auth/login":    true,
	"/v1/auth/register": true,
	"/v1/auth/refresh":  true,
	"/healthz":          true,
	"/readyz":           true,
	"/metrics":          true,
	"/v1/info":          true,
	"/":                 true,
}

// withAuth verifies the bearer access token on protected routes and attaches
// the resolved identity to the request context. Verification is claims-only;
// no store round trip happens here.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if publicPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := extractBearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", `Bearer realm="leadgrid"`)
			writeError(w, r, http.StatusUnauthorized, "missing bearer token")
			return
		}

		identity, err := a.auth.Authenticate(r.Context(), token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", `Bearer realm="leadgrid", error="invalid_token"`)
			handleAuthError(w, r, err)
			return
		}

		ctx := auth.ContextWithIdentity(r.Context(), identity)
		ctx = auth.ContextWithToken(ctx, token)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractBearerToken(r *http.Request) (string, bool) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header == "" {
		return "", false
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

// RequireAccountType gates a handler to principals of one kind.
func RequireAccountType(kind auth.AccountType) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.IdentityFromContext(r.Context())
			if !ok {
				w.Header().Set("WWW-Authenticate", `Bearer realm="leadgrid"`)
				writeError(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			if identity.AccountType != kind {
				writeError(w, r, http.StatusForbidden, "insufficient privileges")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
