package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// ResourceOrgFunc resolves the owning organization of one resource type.
type ResourceOrgFunc func(ctx context.Context, resourceID string) (string, error)

// MemoryDirectory is an in-process Directory used when no database is
// configured and as a fixture in tests. Resource ownership lookups are
// delegated per resource type so domain services can register themselves.
type MemoryDirectory struct {
	mu        sync.RWMutex
	profiles  map[string]*Profile // keyed by subject id
	orgs      map[string]*Organization
	resources map[string]ResourceOrgFunc
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		profiles:  make(map[string]*Profile),
		orgs:      make(map[string]*Organization),
		resources: make(map[string]ResourceOrgFunc),
	}
}

var _ Directory = (*MemoryDirectory)(nil)

// AddOrganization stores an organization record.
func (d *MemoryDirectory) AddOrganization(org Organization) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := org
	d.orgs[org.ID] = &copied
}

// AddProfile stores a profile record keyed by its subject.
func (d *MemoryDirectory) AddProfile(profile Profile) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copied := profile
	d.profiles[profile.SubjectID] = &copied
}

// RegisterResource wires an ownership lookup for one resource type.
func (d *MemoryDirectory) RegisterResource(resourceType string, fn ResourceOrgFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.resources[resourceType] = fn
}

// SetSubscription updates an organization's billing state. Used by the
// billing webhook in memory mode.
func (d *MemoryDirectory) SetSubscription(ctx context.Context, orgID string, status SubscriptionStatus) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	org, ok := d.orgs[orgID]
	if !ok {
		return ErrNotFound
	}
	org.SubscriptionStatus = status
	org.UpdatedAt = time.Now().UTC()
	return nil
}

func (d *MemoryDirectory) ProfileBySubject(ctx context.Context, subjectID string) (*Profile, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	profile, ok := d.profiles[subjectID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	copied := *profile
	return &copied, nil
}

func (d *MemoryDirectory) Organization(ctx context.Context, orgID string) (*Organization, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	org, ok := d.orgs[orgID]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *org
	return &copied, nil
}

func (d *MemoryDirectory) ResourceOrg(ctx context.Context, resourceType, resourceID string) (string, error) {
	d.mu.RLock()
	fn, ok := d.resources[resourceType]
	d.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: unregistered resource type %s", ErrNotFound, resourceType)
	}
	return fn(ctx, resourceID)
}
