package auth

import "context"

// Directory describes the datastore reads the pipeline needs. Implementations
// must return the package sentinels for the not-found cases and may wrap them
// with additional detail.
type Directory interface {
	// ProfileBySubject returns the profile for an identity-provider subject,
	// or ErrProfileNotFound.
	ProfileBySubject(ctx context.Context, subjectID string) (*Profile, error)

	// Organization returns the organization record, or ErrNotFound.
	Organization(ctx context.Context, orgID string) (*Organization, error)

	// ResourceOrg returns the owning organization of a tenant-scoped resource
	// addressed by id, or ErrNotFound if no such resource exists.
	ResourceOrg(ctx context.Context, resourceType, resourceID string) (string, error)
}
