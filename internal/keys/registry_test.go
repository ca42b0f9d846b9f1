package keys

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryLookups(t *testing.T) {
	m, priv := validMaterial(t)
	reg, err := NewRegistry(m)
	require.NoError(t, err)

	kid, signing := reg.Active()
	assert.Equal(t, "k1", kid)
	assert.Same(t, priv, signing)

	pub, err := reg.Verification("k1")
	require.NoError(t, err)
	assert.Equal(t, priv.PublicKey.N, pub.N)

	_, err = reg.Verification("nope")
	assert.ErrorContains(t, err, `unknown kid "nope"`)

	assert.ElementsMatch(t, []string{"k1"}, reg.VerificationKids())
}

func TestRegistryRejectsInvalidMaterial(t *testing.T) {
	_, err := NewRegistry(nil)
	assert.Error(t, err)

	m, _ := validMaterial(t)
	m.ActiveKid = ""
	_, err = NewRegistry(m)
	assert.Error(t, err)
}

func TestRegistrySwapExtendsVerificationSet(t *testing.T) {
	m, priv := validMaterial(t)
	reg, err := NewRegistry(m)
	require.NoError(t, err)

	old := genKey(t, 2048)
	next := &Material{
		ActiveKid:        "k1",
		VerificationKids: []string{"k1", "k0"},
		Pairs: map[string]KeyPair{
			"k1": {Kid: "k1", PublicKey: &priv.PublicKey, PrivateKey: priv},
			"k0": {Kid: "k0", PublicKey: &old.PublicKey},
		},
	}
	require.NoError(t, reg.Swap(next))

	assert.ElementsMatch(t, []string{"k1", "k0"}, reg.VerificationKids())
	pub, err := reg.Verification("k0")
	require.NoError(t, err)
	assert.Equal(t, old.PublicKey.N, pub.N)
}

func TestRegistrySwapRejectsActiveKidChange(t *testing.T) {
	m, _ := validMaterial(t)
	reg, err := NewRegistry(m)
	require.NoError(t, err)

	rotated := genKey(t, 2048)
	next := &Material{
		ActiveKid:        "k2",
		VerificationKids: []string{"k2"},
		Pairs: map[string]KeyPair{
			"k2": {Kid: "k2", PublicKey: &rotated.PublicKey, PrivateKey: rotated},
		},
	}
	err = reg.Swap(next)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires restart")

	// The previous material stays in effect.
	kid, _ := reg.Active()
	assert.Equal(t, "k1", kid)
	assert.ElementsMatch(t, []string{"k1"}, reg.VerificationKids())
}

func TestRegistrySwapRejectsInvalidMaterial(t *testing.T) {
	m, _ := validMaterial(t)
	reg, err := NewRegistry(m)
	require.NoError(t, err)

	bad := &Material{ActiveKid: "k1"}
	assert.Error(t, reg.Swap(bad))
	assert.ElementsMatch(t, []string{"k1"}, reg.VerificationKids())
}
