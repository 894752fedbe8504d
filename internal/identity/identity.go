// Package identity registers users and exchanges credentials for signed
// tokens. The rest of the system only consumes the resulting caller id
// and role.
package identity

import (
	"time"

	"smartattend/internal/auth"
)

// User is an account with a role from the closed set.
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	Role         auth.Role
	CreatedAt    time.Time
}
