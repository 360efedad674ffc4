package auth

import "errors"

// Role represents an authorisation tier.
type Role string

const (
	// RoleUser owns and operates their own devices.
	RoleUser Role = "user"

	// RoleAdmin can additionally read system endpoints.
	RoleAdmin Role = "admin"
)

// ValidRoles is the set of recognised roles.
var ValidRoles = []Role{RoleUser, RoleAdmin}

// IsValidRole returns true if r is a recognised role.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID string
	Role   Role
}

// Sentinel errors for auth operations.
var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
	ErrForbidden    = errors.New("insufficient permissions")
)
