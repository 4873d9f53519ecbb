package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"voluntra.org/internal/auth"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/healthz",
	"/readyz",
	"/metrics",
	"/v1/info",
	"/v1/billing/webhook",
}

// withAuth runs the front half of the pipeline, credential verification and
// tenant-context resolution, and attaches the resulting context for the
// handler to consume. Public paths bypass authentication entirely.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeFailure(w, r, auth.ErrUnauthenticated)
			return
		}

		rc, err := a.pipeline.Authenticate(r.Context(), token)
		if err != nil {
			writeFailure(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.ContextWithRequestContext(r.Context(), rc)))
	})
}

// requestContext returns the authenticated context or fails the request.
func requestContext(w http.ResponseWriter, r *http.Request) (*auth.RequestContext, bool) {
	rc, ok := auth.RequestContextFromContext(r.Context())
	if !ok {
		writeFailure(w, r, auth.ErrUnauthenticated)
		return nil, false
	}
	return rc, true
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
