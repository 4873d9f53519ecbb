package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"voluntra.org/internal/obs"
)

// PermissionSource resolves the effective minimum role for a permission key
// within an organization. The permission cache implements this on the hot
// path; errors wrapping ErrUnknownPermission mark configuration gaps.
type PermissionSource interface {
	Effective(ctx context.Context, orgID, key string) (Role, error)
}

// Evaluator applies role-order comparisons. Both modes fail closed: any
// resolution error results in denial, and an inactive profile is denied
// regardless of role.
type Evaluator struct {
	perms PermissionSource
}

// NewEvaluator constructs an Evaluator.
func NewEvaluator(perms PermissionSource) (*Evaluator, error) {
	if perms == nil {
		return nil, errors.New("auth: permission source is required")
	}
	return &Evaluator{perms: perms}, nil
}

// Require is the coarse minimum-role guard.
func (e *Evaluator) Require(rc *RequestContext, minRole Role) error {
	if rc == nil || !rc.Profile.IsActive {
		return ErrForbidden
	}
	if !rc.Profile.Role.AtLeast(minRole) {
		return ErrForbidden
	}
	return nil
}

// Check resolves the effective minimum role for the permission key and
// compares the caller's role against it.
func (e *Evaluator) Check(ctx context.Context, rc *RequestContext, key string) error {
	if rc == nil || !rc.Profile.IsActive {
		return ErrForbidden
	}
	minRole, err := e.perms.Effective(ctx, rc.Organization.ID, key)
	if err != nil {
		if errors.Is(err, ErrUnknownPermission) {
			obs.Log(map[string]any{
				"ts":    time.Now().UTC().Format(time.RFC3339Nano),
				"level": "error",
				"msg":   "permission key has no template",
				"key":   key,
				"org":   rc.Organization.ID,
			})
			return err
		}
		return fmt.Errorf("%w: resolve permission %s: %v", ErrUpstreamUnavailable, key, err)
	}
	if !rc.Profile.Role.AtLeast(minRole) {
		return ErrForbidden
	}
	return nil
}
