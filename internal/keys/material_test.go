package keys

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genKey(t *testing.T, bits int) *rsa.PrivateKey {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	require.NoError(t, err)
	return priv
}

func validMaterial(t *testing.T) (*Material, *rsa.PrivateKey) {
	t.Helper()
	priv := genKey(t, 2048)
	return &Material{
		ActiveKid:        "k1",
		VerificationKids: []string{"k1"},
		Pairs: map[string]KeyPair{
			"k1": {Kid: "k1", PublicKey: &priv.PublicKey, PrivateKey: priv},
		},
	}, priv
}

func TestMaterialValidate(t *testing.T) {
	m, _ := validMaterial(t)
	require.NoError(t, m.Validate())

	other := genKey(t, 2048)
	small := genKey(t, 1024)

	tests := []struct {
		name    string
		mutate  func(m *Material)
		wantErr string
	}{
		{
			name:    "missing active kid",
			mutate:  func(m *Material) { m.ActiveKid = "" },
			wantErr: "active kid is required",
		},
		{
			name:    "empty verification set",
			mutate:  func(m *Material) { m.VerificationKids = nil },
			wantErr: "at least one verification kid",
		},
		{
			name:    "duplicate kid",
			mutate:  func(m *Material) { m.VerificationKids = []string{"k1", "k1"} },
			wantErr: "duplicate kid",
		},
		{
			name:    "active kid not verifiable",
			mutate:  func(m *Material) { m.VerificationKids = []string{"k2"} },
			wantErr: "not present in verification kids",
		},
		{
			name: "kid without material",
			mutate: func(m *Material) {
				m.VerificationKids = append(m.VerificationKids, "ghost")
			},
			wantErr: `no key material loaded for kid "ghost"`,
		},
		{
			name: "undersized key",
			mutate: func(m *Material) {
				m.Pairs["k1"] = KeyPair{Kid: "k1", PublicKey: &small.PublicKey, PrivateKey: small}
			},
			wantErr: "minimum is 2048",
		},
		{
			name: "active kid without private key",
			mutate: func(m *Material) {
				p := m.Pairs["k1"]
				p.PrivateKey = nil
				m.Pairs["k1"] = p
			},
			wantErr: "has no private key",
		},
		{
			name: "modulus mismatch",
			mutate: func(m *Material) {
				p := m.Pairs["k1"]
				p.PublicKey = &other.PublicKey
				m.Pairs["k1"] = p
			},
			wantErr: "modulus mismatch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := validMaterial(t)
			tt.mutate(m)
			err := m.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestMaterialValidateGracePeriodKid(t *testing.T) {
	m, _ := validMaterial(t)
	old := genKey(t, 2048)

	// A retired kid keeps verifying without a private key.
	m.VerificationKids = append(m.VerificationKids, "k0")
	m.Pairs["k0"] = KeyPair{Kid: "k0", PublicKey: &old.PublicKey}

	assert.NoError(t, m.Validate())
}
