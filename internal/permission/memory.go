package permission

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"voluntra.org/internal/auth"
)

// MemorySource is an in-process Source used when no database is configured
// and as a fixture in tests.
type MemorySource struct {
	mu        sync.RWMutex
	templates map[string]Template
	overrides map[string]map[string]Override // orgID -> key -> override
}

// NewMemorySource creates a source seeded with the given templates.
func NewMemorySource(templates ...Template) *MemorySource {
	s := &MemorySource{
		templates: make(map[string]Template, len(templates)),
		overrides: make(map[string]map[string]Override),
	}
	for _, t := range templates {
		s.templates[t.Key] = t
	}
	return s
}

var _ Source = (*MemorySource)(nil)

func (s *MemorySource) Template(ctx context.Context, key string) (Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.templates[key]
	if !ok {
		return Template{}, fmt.Errorf("%w: %s", auth.ErrUnknownPermission, key)
	}
	return t, nil
}

func (s *MemorySource) Override(ctx context.Context, orgID, key string) (Override, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[orgID][key]
	return o, ok, nil
}

func (s *MemorySource) Templates(ctx context.Context) ([]Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Template, 0, len(s.templates))
	for _, t := range s.templates {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemorySource) Overrides(ctx context.Context, orgID string) ([]Override, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Override, 0, len(s.overrides[orgID]))
	for _, o := range s.overrides[orgID] {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *MemorySource) UpsertTemplate(ctx context.Context, t Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[t.Key] = t
	return nil
}

func (s *MemorySource) UpsertOverride(ctx context.Context, o Override) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byKey, ok := s.overrides[o.OrganizationID]
	if !ok {
		byKey = make(map[string]Override)
		s.overrides[o.OrganizationID] = byKey
	}
	byKey[o.Key] = o
	return nil
}

func (s *MemorySource) DeleteOverride(ctx context.Context, orgID, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overrides[orgID], key)
	return nil
}
