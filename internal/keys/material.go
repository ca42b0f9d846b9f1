// Package keys manages the RSA key material used to sign and verify tokens.
// One kid is active for signing; the verification set additionally carries
// kids that remain valid during a rotation grace period.
package keys

import (
	"crypto/rsa"
	"fmt"
)

const (
	// MinKeyBits is the smallest RSA modulus accepted for signing keys
	MinKeyBits = 2048
)

// KeyPair holds one kid's key material. PrivateKey is nil for
// verification-only kids.
type KeyPair struct {
	Kid        string
	PublicKey  *rsa.PublicKey
	PrivateKey *rsa.PrivateKey
}

// Material is the validated result of loading key sources.
type Material struct {
	ActiveKid        string
	VerificationKids []string
	Pairs            map[string]KeyPair
}

// Validate fails fast on the conditions that must abort startup: missing
// material, undersized keys, modulus mismatch between the halves of a pair,
// duplicate kids, or an active kid absent from the verification set.
func (m *Material) Validate() error {
	if m.ActiveKid == "" {
		return fmt.Errorf("active kid is required")
	}
	if len(m.VerificationKids) == 0 {
		return fmt.Errorf("at least one verification kid is required")
	}

	seen := make(map[string]bool, len(m.VerificationKids))
	activeListed := false
	for _, kid := range m.VerificationKids {
		if kid == "" {
			return fmt.Errorf("verification kid must not be empty")
		}
		if seen[kid] {
			return fmt.Errorf("duplicate kid %q in verification set", kid)
		}
		seen[kid] = true
		if kid == m.ActiveKid {
			activeListed = true
		}
	}
	if !activeListed {
		return fmt.Errorf("active kid %q not present in verification kids", m.ActiveKid)
	}

	for _, kid := range m.VerificationKids {
		pair, ok := m.Pairs[kid]
		if !ok {
			return fmt.Errorf("no key material loaded for kid %q", kid)
		}
		if pair.PublicKey == nil {
			return fmt.Errorf("kid %q has no public key", kid)
		}
		if bits := pair.PublicKey.N.BitLen(); bits < MinKeyBits {
			return fmt.Errorf("kid %q key is %d bits, minimum is %d", kid, bits, MinKeyBits)
		}
	}

	active, ok := m.Pairs[m.ActiveKid]
	if !ok || active.PrivateKey == nil {
		return fmt.Errorf("active kid %q has no private key", m.ActiveKid)
	}
	if active.PrivateKey.PublicKey.N.Cmp(active.PublicKey.N) != 0 {
		return fmt.Errorf("kid %q public/private modulus mismatch", m.ActiveKid)
	}

	return nil
}
