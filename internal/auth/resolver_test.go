package auth

import (
	"context"
	"errors"
	"testing"
	"time"
)

type failingDirectory struct {
	err error
}

func (d failingDirectory) ProfileBySubject(ctx context.Context, subjectID string) (*Profile, error) {
	return nil, d.err
}

func (d failingDirectory) Organization(ctx context.Context, orgID string) (*Organization, error) {
	return nil, d.err
}

func (d failingDirectory) ResourceOrg(ctx context.Context, resourceType, resourceID string) (string, error) {
	return "", d.err
}

func seededDirectory(t *testing.T) (*MemoryDirectory, Organization, Profile) {
	t.Helper()
	now := time.Now().UTC()
	org := Organization{
		ID:                 "org-1",
		Name:               "Riverside Volunteers",
		SubscriptionStatus: SubscriptionActive,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	profile := Profile{
		ID:             "profile-1",
		SubjectID:      "subject-1",
		OrganizationID: org.ID,
		Role:           RoleCommitteeLead,
		IsActive:       true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	dir := NewMemoryDirectory()
	dir.AddOrganization(org)
	dir.AddProfile(profile)
	return dir, org, profile
}

func TestResolve(t *testing.T) {
	dir, org, profile := seededDirectory(t)
	resolver, err := NewResolver(dir)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	rc, err := resolver.Resolve(context.Background(), Principal{SubjectID: profile.SubjectID})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if rc.Profile.ID != profile.ID {
		t.Errorf("profile id = %q, want %q", rc.Profile.ID, profile.ID)
	}
	if rc.Organization.ID != org.ID {
		t.Errorf("org id = %q, want %q", rc.Organization.ID, org.ID)
	}
	if rc.OrgID() != org.ID {
		t.Errorf("OrgID() = %q, want %q", rc.OrgID(), org.ID)
	}
}

func TestResolveEmptySubject(t *testing.T) {
	dir, _, _ := seededDirectory(t)
	resolver, _ := NewResolver(dir)

	if _, err := resolver.Resolve(context.Background(), Principal{}); !errors.Is(err, ErrUnauthenticated) {
		t.Errorf("Resolve = %v, want ErrUnauthenticated", err)
	}
}

func TestResolveProfileNotFound(t *testing.T) {
	dir, _, _ := seededDirectory(t)
	resolver, _ := NewResolver(dir)

	if _, err := resolver.Resolve(context.Background(), Principal{SubjectID: "stranger"}); !errors.Is(err, ErrProfileNotFound) {
		t.Errorf("Resolve = %v, want ErrProfileNotFound", err)
	}
}

func TestResolveNoOrganization(t *testing.T) {
	dir, _, _ := seededDirectory(t)
	dir.AddProfile(Profile{
		ID:        "profile-orphan",
		SubjectID: "orphan",
		Role:      RoleVolunteer,
		IsActive:  true,
	})
	resolver, _ := NewResolver(dir)

	if _, err := resolver.Resolve(context.Background(), Principal{SubjectID: "orphan"}); !errors.Is(err, ErrNoOrganization) {
		t.Errorf("Resolve = %v, want ErrNoOrganization", err)
	}
}

func TestResolveDanglingOrganization(t *testing.T) {
	dir := NewMemoryDirectory()
	dir.AddProfile(Profile{
		ID:             "profile-1",
		SubjectID:      "subject-1",
		OrganizationID: "org-deleted",
		Role:           RoleVolunteer,
		IsActive:       true,
	})
	resolver, _ := NewResolver(dir)

	if _, err := resolver.Resolve(context.Background(), Principal{SubjectID: "subject-1"}); !errors.Is(err, ErrNoOrganization) {
		t.Errorf("Resolve = %v, want ErrNoOrganization", err)
	}
}

// slowDirectory parks every lookup until the read deadline fires.
type slowDirectory struct{}

func (slowDirectory) ProfileBySubject(ctx context.Context, subjectID string) (*Profile, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowDirectory) Organization(ctx context.Context, orgID string) (*Organization, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (slowDirectory) ResourceOrg(ctx context.Context, resourceType, resourceID string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestResolveSlowDirectoryTimesOut(t *testing.T) {
	resolver, err := NewResolver(slowDirectory{}, WithResolverTimeout(25*time.Millisecond))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	start := time.Now()
	_, err = resolver.Resolve(context.Background(), Principal{SubjectID: "subject-1"})
	elapsed := time.Since(start)

	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Resolve = %v, want ErrUpstreamUnavailable", err)
	}
	if elapsed > time.Second {
		t.Errorf("Resolve took %v; the read deadline did not fire", elapsed)
	}
}

func TestResolveUpstreamFailure(t *testing.T) {
	resolver, _ := NewResolver(failingDirectory{err: errors.New("connection refused")})

	_, err := resolver.Resolve(context.Background(), Principal{SubjectID: "subject-1"})
	if !errors.Is(err, ErrUpstreamUnavailable) {
		t.Errorf("Resolve = %v, want ErrUpstreamUnavailable", err)
	}
	if errors.Is(err, ErrForbidden) || errors.Is(err, ErrProfileNotFound) {
		t.Error("store failure must not surface as an authorization denial")
	}
}
