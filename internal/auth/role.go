package auth

import (
	"fmt"
	"strings"
)

// Role is the totally ordered member role within an organization. The order
// is fixed: volunteer < committee_lead < board_member < admin. "Requires role
// >= X" is the only comparison the platform ever makes.
type Role uint8

const (
	RoleVolunteer Role = iota + 1
	RoleCommitteeLead
	RoleBoardMember
	RoleAdmin
)

var roleNames = map[Role]string{
	RoleVolunteer:     "volunteer",
	RoleCommitteeLead: "committee_lead",
	RoleBoardMember:   "board_member",
	RoleAdmin:         "admin",
}

var rolesByName = map[string]Role{
	"volunteer":      RoleVolunteer,
	"committee_lead": RoleCommitteeLead,
	"board_member":   RoleBoardMember,
	"admin":          RoleAdmin,
}

// ParseRole converts a stored role name into a Role.
func ParseRole(s string) (Role, error) {
	r, ok := rolesByName[strings.TrimSpace(strings.ToLower(s))]
	if !ok {
		return 0, fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

func (r Role) String() string {
	if name, ok := roleNames[r]; ok {
		return name
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// Valid reports whether r is one of the defined roles.
func (r Role) Valid() bool {
	_, ok := roleNames[r]
	return ok
}

// AtLeast reports whether r satisfies a minimum role requirement.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && min.Valid() && r >= min
}

// MarshalText implements encoding.TextMarshaler for JSON responses.
func (r Role) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("invalid role value %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler for JSON requests.
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
