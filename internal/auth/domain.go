package auth

import "time"

// Platform roles resolved for a session. A user account maps to exactly one
// of these through its profile rows.
const (
	RoleAdmin    = "admin"
	RoleSupplier = "supplier"
	RoleBuyer    = "buyer"
	RoleNetwork  = "network"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Email        string
	PasswordHash string
	FullName     string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
