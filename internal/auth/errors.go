package auth

import "errors"

// Pipeline failure kinds. Every stage failure is terminal for the request and
// maps to exactly one external status and error code in the HTTP layer.
var (
	// ErrUnauthenticated indicates a missing, malformed, expired or
	// badly-signed bearer credential.
	ErrUnauthenticated = errors.New("auth: unauthenticated")

	// ErrProfileNotFound indicates the credential verified but no profile
	// exists for its subject.
	ErrProfileNotFound = errors.New("auth: profile not found")

	// ErrNoOrganization indicates a profile without an owning organization.
	ErrNoOrganization = errors.New("auth: profile has no organization")

	// ErrForbidden indicates an insufficient role or an inactive profile.
	ErrForbidden = errors.New("auth: forbidden")

	// ErrUnknownPermission indicates a permission key that matches no
	// template. This is a server-side configuration gap, not a caller error.
	ErrUnknownPermission = errors.New("auth: unknown permission key")

	// ErrSubscriptionRequired indicates the organization is not entitled.
	ErrSubscriptionRequired = errors.New("auth: subscription required")

	// ErrNotFound indicates a missing resource.
	ErrNotFound = errors.New("auth: not found")

	// ErrCrossTenant indicates a resource owned by a different organization.
	// Externally it is surfaced exactly like ErrNotFound so that resource
	// existence never leaks across tenants.
	ErrCrossTenant = errors.New("auth: resource belongs to another organization")

	// ErrUpstreamUnavailable indicates a collaborator failure (datastore
	// timeout, key material unreachable). Fail closed, but report accurately
	// instead of masquerading as an authorization denial.
	ErrUpstreamUnavailable = errors.New("auth: upstream unavailable")
)
