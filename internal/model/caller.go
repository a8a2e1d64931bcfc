package model

// Role is the role of the caller of an operation, as asserted by the authenticating proxy.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Valid returns true if the role is known.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAdmin
}

// Caller identifies the user on whose behalf an operation runs.
type Caller struct {
	UserID   string
	Username string
	Role     Role
}

// IsAdmin returns true if the caller is an administrator.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}
