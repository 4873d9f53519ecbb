package events

import (
	"errors"
	"time"
)

// Event is a tenant-scoped volunteer event. OrganizationID is assigned at
// creation and never reassigned.
type Event struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Title          string    `json:"title"`
	Location       string    `json:"location,omitempty"`
	StartsAt       time.Time `json:"starts_at"`
	Capacity       int       `json:"capacity,omitempty"`
	Published      bool      `json:"published"`
	CreatedBy      string    `json:"created_by"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Input carries the caller-editable fields of an event.
type Input struct {
	Title    string    `json:"title"`
	Location string    `json:"location"`
	StartsAt time.Time `json:"starts_at"`
	Capacity int       `json:"capacity"`
}

var (
	ErrNotFound     = errors.New("events: not found")
	ErrInvalidInput = errors.New("events: invalid input")
)
