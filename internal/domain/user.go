package domain

import "time"

// Role is the role a user acts in.
type Role string

const (
	RolePassenger Role = "passenger"
	RoleDriver    Role = "driver"
	RoleAdmin     Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RolePassenger, RoleDriver, RoleAdmin:
		return true
	}
	return false
}

// User represents a registered user.
type User struct {
	ID        string
	FullName  string
	Phone     string
	Role      Role
	CreatedAt time.Time
}

// Actor identifies who performs an operation. It is passed explicitly into every
// lifecycle call.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor acts as an admin.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Party is the contact data of the other side of a ride, as far as the
// viewer is allowed to see it.
type Party struct {
	FullName string
	Phone    string
}
