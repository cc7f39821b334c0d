package auth

import "time"

// Role values known to the system. Admins manage inventory and users;
// sellers operate the register (sales, returns, payments).
const (
	RoleAdmin    = "admin"
	RoleVendedor = "vendedor"
)

// User represents an authenticated user account.
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash string
	Role         string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
