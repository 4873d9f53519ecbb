package permission

import (
	"context"
	"errors"

	"voluntra.org/internal/auth"
)

var (
	ErrInvalidInput = errors.New("permission: invalid input")
)

// Template is the platform-wide default minimum role for one permission key.
type Template struct {
	Key            string    `json:"key"`
	Module         string    `json:"module"`
	DefaultMinRole auth.Role `json:"default_min_role"`
	Description    string    `json:"description,omitempty"`
}

// Override is a per-organization adjustment of a template's minimum role.
// Absence of an override means "use the template default".
type Override struct {
	OrganizationID string    `json:"organization_id"`
	Key            string    `json:"key"`
	MinRole        auth.Role `json:"min_role"`
}

// Source is the persistence backing the template store. Template returns an
// error wrapping auth.ErrUnknownPermission when no template exists for a key.
type Source interface {
	Template(ctx context.Context, key string) (Template, error)
	Override(ctx context.Context, orgID, key string) (Override, bool, error)
	Templates(ctx context.Context) ([]Template, error)
	Overrides(ctx context.Context, orgID string) ([]Override, error)
	UpsertTemplate(ctx context.Context, t Template) error
	UpsertOverride(ctx context.Context, o Override) error
	DeleteOverride(ctx context.Context, orgID, key string) error
}

// Builtin permission keys for the events module and the administrative
// surface. Seeded at migration time and ensured on boot in memory mode.
const (
	KeyEventsCreate  = "events.create"
	KeyEventsUpdate  = "events.update"
	KeyEventsPublish = "events.publish"
	KeyEventsDelete  = "events.delete"
	KeyPermsManage   = "permissions.manage"
	KeyBillingView   = "billing.view"
)

// Builtins lists the default permission templates.
var Builtins = []Template{
	{Key: KeyEventsCreate, Module: "events", DefaultMinRole: auth.RoleCommitteeLead, Description: "Create volunteer events"},
	{Key: KeyEventsUpdate, Module: "events", DefaultMinRole: auth.RoleCommitteeLead, Description: "Edit volunteer events"},
	{Key: KeyEventsPublish, Module: "events", DefaultMinRole: auth.RoleBoardMember, Description: "Publish events to members"},
	{Key: KeyEventsDelete, Module: "events", DefaultMinRole: auth.RoleBoardMember, Description: "Delete volunteer events"},
	{Key: KeyPermsManage, Module: "admin", DefaultMinRole: auth.RoleAdmin, Description: "Edit permission templates and overrides"},
	{Key: KeyBillingView, Module: "billing", DefaultMinRole: auth.RoleBoardMember, Description: "View subscription and invoices"},
}
