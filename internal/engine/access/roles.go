package access

import (
	"fmt"
	"strings"
)

// Role is a privilege level inside one workspace. A user holds one role per
// workspace; roles in different workspaces are independent.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleEditor Role = "editor"
)

// ParseRole accepts a role name in any case.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOwner, RoleEditor:
		return r, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

func (r Role) IsValid() bool {
	return r == RoleOwner || r == RoleEditor
}

func (r Role) String() string {
	return string(r)
}
