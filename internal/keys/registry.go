package keys

import (
	"crypto/rsa"
	"fmt"
	"sync"
)

// Registry is the concurrency-safe view of the loaded key material.
// Verification lookups happen on every request; the lock is only contended
// during a hot reload.
type Registry struct {
	mu        sync.RWMutex
	activeKid string
	signing   *rsa.PrivateKey
	verify    map[string]*rsa.PublicKey
}

// NewRegistry builds a registry from validated material.
func NewRegistry(m *Material) (*Registry, error) {
	if m == nil {
		return nil, fmt.Errorf("material is required")
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}

	verify := make(map[string]*rsa.PublicKey, len(m.VerificationKids))
	for _, kid := range m.VerificationKids {
		verify[kid] = m.Pairs[kid].PublicKey
	}

	return &Registry{
		activeKid: m.ActiveKid,
		signing:   m.Pairs[m.ActiveKid].PrivateKey,
		verify:    verify,
	}, nil
}

// Active returns the signing kid and its private key.
func (r *Registry) Active() (string, *rsa.PrivateKey) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeKid, r.signing
}

// Verification returns the public key for kid, or an error if the kid is
// not in the verification set.
func (r *Registry) Verification(kid string) (*rsa.PublicKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	pub, ok := r.verify[kid]
	if !ok {
		return nil, fmt.Errorf("unknown kid %q", kid)
	}
	return pub, nil
}

// VerificationKids lists the kids currently accepted for verification.
func (r *Registry) VerificationKids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kids := make([]string, 0, len(r.verify))
	for kid := range r.verify {
		kids = append(kids, kid)
	}
	return kids
}

// Swap atomically replaces the registry contents with new material.
// The active kid may not change across a reload; rotating the signing key
// requires a restart so that in-flight mints never race a key change.
func (r *Registry) Swap(m *Material) error {
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ActiveKid != r.activeKid {
		return fmt.Errorf("active kid change from %q to %q requires restart", r.activeKid, m.ActiveKid)
	}

	verify := make(map[string]*rsa.PublicKey, len(m.VerificationKids))
	for _, kid := range m.VerificationKids {
		verify[kid] = m.Pairs[kid].PublicKey
	}
	r.signing = m.Pairs[m.ActiveKid].PrivateKey
	r.verify = verify
	return nil
}
