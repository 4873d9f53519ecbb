package auth

import (
	"fmt"
	"strings"
	"time"
)

// SubscriptionStatus is the canonical billing state of an organization.
// Billing-processor vocabulary is translated to these values at the webhook
// boundary; this core only ever reads them.
type SubscriptionStatus string

const (
	SubscriptionTrial     SubscriptionStatus = "trial"
	SubscriptionActive    SubscriptionStatus = "active"
	SubscriptionCancelled SubscriptionStatus = "cancelled"
	SubscriptionExpired   SubscriptionStatus = "expired"
)

// ParseSubscriptionStatus validates a stored status value.
func ParseSubscriptionStatus(s string) (SubscriptionStatus, error) {
	switch st := SubscriptionStatus(strings.TrimSpace(strings.ToLower(s))); st {
	case SubscriptionTrial, SubscriptionActive, SubscriptionCancelled, SubscriptionExpired:
		return st, nil
	default:
		return "", fmt.Errorf("unknown subscription status %q", s)
	}
}

// Entitled reports whether the status grants access to gated operations.
func (s SubscriptionStatus) Entitled() bool {
	return s == SubscriptionActive || s == SubscriptionTrial
}

// Principal is the verified identity for one request. Ephemeral: created per
// request, discarded at request end.
type Principal struct {
	SubjectID string
	Claims    map[string]any
}

// Profile links an identity-provider subject to an organization membership.
// A profile's organization is immutable for its lifetime; moving a member to
// a different organization means creating a new profile.
type Profile struct {
	ID             string    `json:"id"`
	SubjectID      string    `json:"subject_id"`
	OrganizationID string    `json:"organization_id"`
	Role           Role      `json:"role"`
	IsActive       bool      `json:"is_active"`
	DisplayName    string    `json:"display_name,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Organization is one isolated tenant. subscription_status is written by the
// billing webhook and only read here.
type Organization struct {
	ID                 string             `json:"id"`
	Name               string             `json:"name"`
	SubscriptionStatus SubscriptionStatus `json:"subscription_status"`
	TrialEndsAt        *time.Time         `json:"trial_ends_at,omitempty"`
	CreatedAt          time.Time          `json:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at"`
}

// RequestContext is the immutable per-request authorization context: the
// verified principal, its profile and the owning organization. It is built
// once by the resolver and passed explicitly to every downstream check.
type RequestContext struct {
	Principal    Principal
	Profile      Profile
	Organization Organization
}

// OrgID is a convenience accessor for the tenant scope of the request.
func (rc *RequestContext) OrgID() string {
	if rc == nil {
		return ""
	}
	return rc.Organization.ID
}
