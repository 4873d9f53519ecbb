package auth

import "context"

type requestContextKey struct{}

// ContextWithRequestContext attaches the resolved request context so the
// handler layer can retrieve it. The value lives no longer than the request.
func ContextWithRequestContext(ctx context.Context, rc *RequestContext) context.Context {
	if rc == nil {
		return ctx
	}
	return context.WithValue(ctx, requestContextKey{}, rc)
}

// RequestContextFromContext extracts the request context set by the
// authentication middleware.
func RequestContextFromContext(ctx context.Context) (*RequestContext, bool) {
	if ctx == nil {
		return nil, false
	}
	rc, ok := ctx.Value(requestContextKey{}).(*RequestContext)
	if !ok || rc == nil {
		return nil, false
	}
	return rc, true
}
