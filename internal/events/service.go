package events

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"voluntra.org/internal/ids"
)

// Service defines event operations. All reads and writes are scoped to one
// organization by the caller; cross-tenant checks happen in the pipeline,
// not here.
type Service interface {
	Create(ctx context.Context, orgID, createdBy string, in Input) (Event, error)
	Get(ctx context.Context, id string) (Event, error)
	List(ctx context.Context, orgID string) ([]Event, error)
	Update(ctx context.Context, id string, in Input) (Event, error)
	SetPublished(ctx context.Context, id string, published bool) (Event, error)
	Delete(ctx context.Context, id string) error

	// OwnerOrg resolves the owning organization for the isolation enforcer.
	OwnerOrg(ctx context.Context, id string) (string, error)
}

func validateInput(in Input) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.StartsAt.IsZero() {
		return fmt.Errorf("%w: starts_at is required", ErrInvalidInput)
	}
	if in.Capacity < 0 {
		return fmt.Errorf("%w: capacity must be >= 0", ErrInvalidInput)
	}
	return nil
}

// InMemory implements Service with in-process concurrency safety.
type InMemory struct {
	mu     sync.RWMutex
	events map[string]*Event
}

// NewInMemory creates an empty event store.
func NewInMemory() *InMemory {
	return &InMemory{events: make(map[string]*Event)}
}

var _ Service = (*InMemory)(nil)

func (s *InMemory) Create(ctx context.Context, orgID, createdBy string, in Input) (Event, error) {
	if strings.TrimSpace(orgID) == "" {
		return Event{}, fmt.Errorf("%w: organization id is required", ErrInvalidInput)
	}
	if err := validateInput(in); err != nil {
		return Event{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	ev := &Event{
		ID:             ids.New(),
		OrganizationID: orgID,
		Title:          strings.TrimSpace(in.Title),
		Location:       strings.TrimSpace(in.Location),
		StartsAt:       in.StartsAt.UTC(),
		Capacity:       in.Capacity,
		CreatedBy:      createdBy,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	s.events[ev.ID] = ev
	return *ev, nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	return *ev, nil
}

func (s *InMemory) List(ctx context.Context, orgID string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Event
	for _, ev := range s.events {
		if ev.OrganizationID == orgID {
			out = append(out, *ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartsAt.Before(out[j].StartsAt) })
	return out, nil
}

func (s *InMemory) Update(ctx context.Context, id string, in Input) (Event, error) {
	if err := validateInput(in); err != nil {
		return Event{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	ev.Title = strings.TrimSpace(in.Title)
	ev.Location = strings.TrimSpace(in.Location)
	ev.StartsAt = in.StartsAt.UTC()
	ev.Capacity = in.Capacity
	ev.UpdatedAt = time.Now().UTC()
	return *ev, nil
}

func (s *InMemory) SetPublished(ctx context.Context, id string, published bool) (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return Event{}, ErrNotFound
	}
	ev.Published = published
	ev.UpdatedAt = time.Now().UTC()
	return *ev, nil
}

func (s *InMemory) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	return nil
}

func (s *InMemory) OwnerOrg(ctx context.Context, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return "", ErrNotFound
	}
	return ev.OrganizationID, nil
}
