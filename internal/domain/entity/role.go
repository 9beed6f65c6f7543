// Package entity contains the core business objects of the project.
package entity

// Role represents the type of role a user can have in the system.
type Role string

const (
	// RoleUser is assigned to every self-registered account.
	RoleUser Role = "user"
	// RoleAdmin is only granted by an operator.
	RoleAdmin Role = "admin"
)

// String returns the string representation of the Role.
func (r Role) String() string {
	return string(r)
}

// IsValid checks if the Role is a valid value.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// ParseRole converts a claim or column value into a Role, falling back to RoleUser for unknown values.
func ParseRole(s string) Role {
	role := Role(s)
	if !role.IsValid() {
		return RoleUser
	}

	return role
}
