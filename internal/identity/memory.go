package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MemoryGateway is an in-memory AccountGateway for tests and local
// development.
type MemoryGateway struct {
	mu      sync.RWMutex
	byID    map[string]*User
	byLogin map[string]string // lowercased username/email -> user id
}

// NewMemoryGateway creates an empty in-memory gateway.
func NewMemoryGateway() *MemoryGateway {
	return &MemoryGateway{
		byID:    make(map[string]*User),
		byLogin: make(map[string]string),
	}
}

// Put inserts or replaces a user.
func (g *MemoryGateway) Put(u *User) error {
	if u.ID == "" || u.Username == "" {
		return fmt.Errorf("user id and username are required")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if prev, ok := g.byID[u.ID]; ok {
		delete(g.byLogin, strings.ToLower(prev.Username))
		if prev.Email != "" {
			delete(g.byLogin, strings.ToLower(prev.Email))
		}
	}

	cp := *u
	g.byID[u.ID] = &cp
	g.byLogin[strings.ToLower(u.Username)] = u.ID
	if u.Email != "" {
		g.byLogin[strings.ToLower(u.Email)] = u.ID
	}
	return nil
}

// FindByUsernameOrEmail resolves an account case-insensitively.
func (g *MemoryGateway) FindByUsernameOrEmail(ctx context.Context, usernameOrEmail string) (*User, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.byLogin[strings.ToLower(usernameOrEmail)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *g.byID[id]
	return &cp, nil
}

// UpdatePasswordHash replaces the stored hash.
func (g *MemoryGateway) UpdatePasswordHash(ctx context.Context, userID, newHash string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	u, ok := g.byID[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = newHash
	return nil
}
