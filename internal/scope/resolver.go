// Package scope normalizes and resolves permission scopes granted to a user.
//
// Scopes take the lowercased resource:action form. The action may be the
// wildcard "*", which a stored grant uses to satisfy every action on its
// resource (see Matches); required scopes are always concrete.
package scope

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/authgate/auth-core/internal/identity"
)

// scopeRegex is the canonical resource:action form. Scopes are stored and
// compared lowercased.
var scopeRegex = regexp.MustCompile(`^[a-z0-9_-]+:(\*|[a-z0-9_-]+)$`)

// Normalize lowercases and validates a scope string.
func Normalize(scope string) (string, error) {
	s := strings.ToLower(strings.TrimSpace(scope))
	if !scopeRegex.MatchString(s) {
		return "", fmt.Errorf("invalid scope %q (want resource:action)", scope)
	}
	return s, nil
}

// Resolver computes the effective scope set for a user: the union of all
// role-conferred scopes and any scopes granted directly, normalized,
// deduplicated, and sorted.
type Resolver struct{}

// NewResolver creates a resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Resolve returns the effective scopes for a user. Invalid scope strings
// in the account store are reported rather than silently dropped.
func (r *Resolver) Resolve(user *identity.User) ([]string, error) {
	seen := make(map[string]struct{})

	add := func(raw string) error {
		s, err := Normalize(raw)
		if err != nil {
			return err
		}
		seen[s] = struct{}{}
		return nil
	}

	for _, role := range user.Roles {
		for _, s := range role.Scopes {
			if err := add(s); err != nil {
				return nil, fmt.Errorf("role %s: %w", role.Name, err)
			}
		}
	}
	for _, s := range user.Scopes {
		if err := add(s); err != nil {
			return nil, err
		}
	}

	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// Matches reports whether a granted scope satisfies a required one. A
// wildcard action ("user:*") satisfies any action on the same resource.
func Matches(granted, required string) bool {
	if granted == required {
		return true
	}
	resource, action, ok := strings.Cut(granted, ":")
	if !ok || action != "*" {
		return false
	}
	reqResource, _, ok := strings.Cut(required, ":")
	return ok && resource == reqResource
}

// Satisfies reports whether any granted scope matches the required one.
func Satisfies(granted []string, required string) bool {
	for _, g := range granted {
		if Matches(g, required) {
			return true
		}
	}
	return false
}
