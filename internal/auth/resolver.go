package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Each directory read gets its own deadline so a hung datastore fails that
// stage as ErrUpstreamUnavailable instead of holding the request until the
// server write timeout.
const defaultReadTimeout = 2 * time.Second

// Resolver maps a verified principal to its tenant context. The resulting
// RequestContext is read-only for the rest of the request.
type Resolver struct {
	dir         Directory
	readTimeout time.Duration
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithResolverTimeout overrides the per-read deadline on directory lookups.
func WithResolverTimeout(d time.Duration) ResolverOption {
	return func(r *Resolver) {
		if d > 0 {
			r.readTimeout = d
		}
	}
}

// NewResolver constructs a Resolver.
func NewResolver(dir Directory, opts ...ResolverOption) (*Resolver, error) {
	if dir == nil {
		return nil, errors.New("auth: directory is required")
	}
	r := &Resolver{dir: dir, readTimeout: defaultReadTimeout}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve loads the profile and owning organization for the principal in one
// logical read. Datastore failures are reported as ErrUpstreamUnavailable,
// never as an authorization denial.
func (r *Resolver) Resolve(ctx context.Context, principal Principal) (*RequestContext, error) {
	if strings.TrimSpace(principal.SubjectID) == "" {
		return nil, ErrUnauthenticated
	}

	profile, err := r.loadProfile(ctx, principal.SubjectID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: load profile: %v", ErrUpstreamUnavailable, err)
	}
	if strings.TrimSpace(profile.OrganizationID) == "" {
		return nil, ErrNoOrganization
	}

	org, err := r.loadOrganization(ctx, profile.OrganizationID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// A profile pointing at a nonexistent organization is a data
			// error; the context is incomplete either way.
			return nil, ErrNoOrganization
		}
		return nil, fmt.Errorf("%w: load organization: %v", ErrUpstreamUnavailable, err)
	}

	return &RequestContext{
		Principal:    principal,
		Profile:      *profile,
		Organization: *org,
	}, nil
}

func (r *Resolver) loadProfile(ctx context.Context, subjectID string) (*Profile, error) {
	readCtx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()
	return r.dir.ProfileBySubject(readCtx, subjectID)
}

func (r *Resolver) loadOrganization(ctx context.Context, orgID string) (*Organization, error) {
	readCtx, cancel := context.WithTimeout(ctx, r.readTimeout)
	defer cancel()
	return r.dir.Organization(readCtx, orgID)
}
