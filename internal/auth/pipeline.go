package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voluntra.org/internal/obs"
)

// Pipeline bundles the authorization stages in the order the handler layer
// consumes them: Authenticate, then GateSubscription and RequireRole or
// RequirePermission, then AssertResourceOwnership. Stages never retry
// internally; every failure is terminal for the request.
type Pipeline struct {
	verifier    *Verifier
	resolver    *Resolver
	eval        *Evaluator
	dir         Directory
	readTimeout time.Duration
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithDirectoryTimeout overrides the per-read deadline applied to every
// directory lookup the pipeline makes.
func WithDirectoryTimeout(d time.Duration) PipelineOption {
	return func(p *Pipeline) {
		if d > 0 {
			p.readTimeout = d
		}
	}
}

// NewPipeline constructs the request pipeline.
func NewPipeline(verifier *Verifier, dir Directory, perms PermissionSource, opts ...PipelineOption) (*Pipeline, error) {
	if verifier == nil {
		return nil, errors.New("auth: verifier is required")
	}
	eval, err := NewEvaluator(perms)
	if err != nil {
		return nil, err
	}
	p := &Pipeline{
		verifier:    verifier,
		eval:        eval,
		dir:         dir,
		readTimeout: defaultReadTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	resolver, err := NewResolver(dir, WithResolverTimeout(p.readTimeout))
	if err != nil {
		return nil, err
	}
	p.resolver = resolver
	return p, nil
}

// Authenticate verifies the bearer credential and resolves the tenant
// context for the request.
func (p *Pipeline) Authenticate(ctx context.Context, token string) (*RequestContext, error) {
	principal, err := p.verifier.Verify(token)
	if err != nil {
		return nil, err
	}
	return p.resolver.Resolve(ctx, principal)
}

// RequireRole is the coarse minimum-role guard.
func (p *Pipeline) RequireRole(rc *RequestContext, minRole Role) error {
	start := time.Now()
	err := p.eval.Require(rc, minRole)
	obs.ObserveDecision("min_role", outcome(err), time.Since(start))
	return err
}

// RequirePermission checks the caller's role against the effective minimum
// role configured for the permission key.
func (p *Pipeline) RequirePermission(ctx context.Context, rc *RequestContext, key string) error {
	start := time.Now()
	err := p.eval.Check(ctx, rc, key)
	obs.ObserveDecision("permission", outcome(err), time.Since(start))
	return err
}

// GateSubscription blocks tenants that are not entitled.
func (p *Pipeline) GateSubscription(rc *RequestContext) error {
	start := time.Now()
	err := GateSubscription(rc)
	obs.ObserveDecision("subscription", outcome(err), time.Since(start))
	return err
}

// AssertResourceOwnership looks up the owning organization of an id-addressed
// resource and confirms it matches the caller's tenant scope.
func (p *Pipeline) AssertResourceOwnership(ctx context.Context, rc *RequestContext, resourceType, resourceID string) error {
	start := time.Now()
	err := p.assertOwnership(ctx, rc, resourceType, resourceID)
	obs.ObserveDecision("ownership", outcome(err), time.Since(start))
	return err
}

func (p *Pipeline) assertOwnership(ctx context.Context, rc *RequestContext, resourceType, resourceID string) error {
	readCtx, cancel := context.WithTimeout(ctx, p.readTimeout)
	defer cancel()

	orgID, err := p.dir.ResourceOrg(readCtx, resourceType, resourceID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: resolve %s owner: %v", ErrUpstreamUnavailable, resourceType, err)
	}
	return AssertOwned(rc, orgID)
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "allow"
	case errors.Is(err, ErrUpstreamUnavailable):
		return "unavailable"
	case errors.Is(err, ErrUnknownPermission):
		return "unknown_key"
	case errors.Is(err, ErrCrossTenant):
		return "cross_tenant"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "deny"
	}
}
