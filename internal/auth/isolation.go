package auth

import "strings"

// AssertOwned confirms a resource's stored organization matches the caller's
// tenant scope. A missing owner is reported as ErrNotFound; a mismatch as
// ErrCrossTenant. The HTTP layer maps both to the same external outcome so
// existence never leaks across tenants.
func AssertOwned(rc *RequestContext, resourceOrgID string) error {
	if strings.TrimSpace(resourceOrgID) == "" {
		return ErrNotFound
	}
	if rc == nil || rc.Organization.ID != resourceOrgID {
		return ErrCrossTenant
	}
	return nil
}
