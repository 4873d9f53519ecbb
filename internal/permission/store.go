package permission

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"voluntra.org/internal/auth"
)

// Store resolves effective minimum roles (override if present, else template
// default) and tracks invalidation generations. Generations are kept
// per-organization, plus one global counter bumped on template edits, which
// affect every tenant. CurrentGeneration stays O(1) and allocation-free so it
// can sit on the permission read path of every request.
type Store struct {
	src Source

	global atomic.Uint64
	mu     sync.RWMutex
	orgGen map[string]uint64
}

// NewStore constructs a Store over a Source.
func NewStore(src Source) (*Store, error) {
	if src == nil {
		return nil, errors.New("permission: source is required")
	}
	return &Store{src: src, orgGen: make(map[string]uint64)}, nil
}

// FetchEffective computes the effective minimum role for (orgID, key).
func (s *Store) FetchEffective(ctx context.Context, orgID, key string) (auth.Role, error) {
	orgID = strings.TrimSpace(orgID)
	key = strings.TrimSpace(key)
	if orgID == "" || key == "" {
		return 0, fmt.Errorf("%w: organization id and permission key are required", ErrInvalidInput)
	}

	override, ok, err := s.src.Override(ctx, orgID, key)
	if err != nil {
		return 0, fmt.Errorf("load override: %w", err)
	}
	if ok {
		if !override.MinRole.Valid() {
			return 0, fmt.Errorf("%w: override for %s carries invalid role", ErrInvalidInput, key)
		}
		return override.MinRole, nil
	}

	template, err := s.src.Template(ctx, key)
	if err != nil {
		return 0, err
	}
	if !template.DefaultMinRole.Valid() {
		return 0, fmt.Errorf("%w: template %s carries invalid role", ErrInvalidInput, key)
	}
	return template.DefaultMinRole, nil
}

// CurrentGeneration returns the invalidation generation for an organization.
func (s *Store) CurrentGeneration(orgID string) uint64 {
	s.mu.RLock()
	gen := s.orgGen[orgID]
	s.mu.RUnlock()
	return gen + s.global.Load()
}

// Invalidate bumps the organization's generation after a template or
// override write. Keys are accepted for interface symmetry; invalidation is
// org-granular, which is coarser but strictly safe.
func (s *Store) Invalidate(orgID string, keys ...string) {
	_ = keys
	s.mu.Lock()
	s.orgGen[orgID]++
	s.mu.Unlock()
}

// InvalidateAll bumps the generation seen by every organization. Called
// after template edits.
func (s *Store) InvalidateAll() {
	s.global.Add(1)
}

// Templates lists all permission templates.
func (s *Store) Templates(ctx context.Context) ([]Template, error) {
	return s.src.Templates(ctx)
}

// Overrides lists an organization's overrides.
func (s *Store) Overrides(ctx context.Context, orgID string) ([]Override, error) {
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	return s.src.Overrides(ctx, orgID)
}

// SetTemplate writes a template and invalidates every tenant. Operator-level:
// templates are platform-wide defaults and are not writable over the tenant
// API, only through seeds and operator tooling.
func (s *Store) SetTemplate(ctx context.Context, t Template) error {
	t.Key = strings.TrimSpace(t.Key)
	t.Module = strings.TrimSpace(t.Module)
	if t.Key == "" || t.Module == "" {
		return fmt.Errorf("%w: key and module are required", ErrInvalidInput)
	}
	if !t.DefaultMinRole.Valid() {
		return fmt.Errorf("%w: default_min_role is invalid", ErrInvalidInput)
	}
	if err := s.src.UpsertTemplate(ctx, t); err != nil {
		return err
	}
	s.InvalidateAll()
	return nil
}

// SetOverride writes a per-organization override and invalidates that
// tenant. The key must match an existing template; configuring an override
// for an unknown key would silently never apply.
func (s *Store) SetOverride(ctx context.Context, o Override) error {
	o.OrganizationID = strings.TrimSpace(o.OrganizationID)
	o.Key = strings.TrimSpace(o.Key)
	if o.OrganizationID == "" || o.Key == "" {
		return fmt.Errorf("%w: organization id and key are required", ErrInvalidInput)
	}
	if !o.MinRole.Valid() {
		return fmt.Errorf("%w: min_role is invalid", ErrInvalidInput)
	}
	if _, err := s.src.Template(ctx, o.Key); err != nil {
		return err
	}
	if err := s.src.UpsertOverride(ctx, o); err != nil {
		return err
	}
	s.Invalidate(o.OrganizationID, o.Key)
	return nil
}

// RemoveOverride deletes an override, reverting the key to its template
// default on the next cache refresh.
func (s *Store) RemoveOverride(ctx context.Context, orgID, key string) error {
	orgID = strings.TrimSpace(orgID)
	key = strings.TrimSpace(key)
	if orgID == "" || key == "" {
		return fmt.Errorf("%w: organization id and key are required", ErrInvalidInput)
	}
	if err := s.src.DeleteOverride(ctx, orgID, key); err != nil {
		return err
	}
	s.Invalidate(orgID, key)
	return nil
}
