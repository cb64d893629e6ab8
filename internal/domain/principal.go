package domain

import "time"

// Role is the authorization role of a user.
type Role string

// Roles. MANAGER and ADMIN are the elevated roles with approval/rejection
// rights and broader read visibility.
const (
	RoleUser    Role = "USER"
	RoleManager Role = "MANAGER"
	RoleAdmin   Role = "ADMIN"
)

// Elevated reports whether the role grants approval/rejection capability.
func (r Role) Elevated() bool { return r == RoleManager || r == RoleAdmin }

// User is a registered principal.
type User struct {
	ID        int64
	Name      string
	Role      Role
	CreatedAt time.Time
}

// Pod is an organizational ownership unit with exactly one manager. A manager
// may act on requests whose pod they manage; an admin may act on any request.
type Pod struct {
	ID        int64
	Name      string
	ManagerID int64
}

// Actor identifies the caller of a service operation.
type Actor struct {
	ID   int64
	Role Role
}
