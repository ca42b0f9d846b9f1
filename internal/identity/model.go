// Package identity defines the user-account model and the ports through
// which the auth core reads accounts and verifies passwords. The core never
// mutates accounts except through the narrow operations declared here.
package identity

import (
	"fmt"
	"regexp"
)

// Status is the lifecycle state of a user account. Only active accounts
// may authenticate.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusLocked   Status = "LOCKED"
	StatusDisabled Status = "DISABLED"
	StatusDeleted  Status = "DELETED"
)

var roleNameRegex = regexp.MustCompile(`^ROLE_[A-Z0-9_]+$`)

// Role names a granted role and the scopes it confers.
type Role struct {
	Name   string
	Scopes []string
}

// Validate checks the role name against the ROLE_* convention.
func (r Role) Validate() error {
	if !roleNameRegex.MatchString(r.Name) {
		return fmt.Errorf("invalid role name %q (want ROLE_[A-Z0-9_]+)", r.Name)
	}
	return nil
}

// User is the read model of an account. Usernames and emails are unique
// case-insensitively.
type User struct {
	ID           string
	Username     string
	Email        string
	PasswordHash string
	Status       Status
	Roles        []Role
	Scopes       []string // scopes granted directly, beyond those from roles
}

// RoleNames returns the user's role names in declaration order.
func (u *User) RoleNames() []string {
	names := make([]string, 0, len(u.Roles))
	for _, r := range u.Roles {
		names = append(names, r.Name)
	}
	return names
}
