package models

import "github.com/google/uuid"

// Role is the organization-level role of a caller
type Role string

const (
	RoleAdmin  Role = "ADMIN"
	RoleEditor Role = "EDITOR"
	RoleViewer Role = "VIEWER"
)

// Actor describes the caller of a use case. The zero value is an anonymous,
// unauthenticated caller.
type Actor struct {
	UserID        uuid.UUID `json:"user_id"`
	Role          Role      `json:"role"`
	Authenticated bool      `json:"authenticated"`
}

// IsAdmin reports whether the actor holds the admin role
func (a Actor) IsAdmin() bool { return a.Authenticated && a.Role == RoleAdmin }
