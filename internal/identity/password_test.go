package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePassword(t *testing.T) {
	tests := []struct {
		name     string
		password string
		wantErr  bool
	}{
		{"valid", "Str0ng!pass", false},
		{"too short", "S1!a", true},
		{"no uppercase", "str0ng!pass", true},
		{"no lowercase", "STR0NG!PASS", true},
		{"no number", "Strong!pass", true},
		{"no special", "Str0ngpass", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePassword(tt.password)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBcryptHasherRoundtrip(t *testing.T) {
	// Cost 4 keeps the test fast; production uses BCryptCost.
	h := NewBcryptHasher(4)

	hash, err := h.Hash("Str0ng!pass")
	require.NoError(t, err)
	assert.NotEqual(t, "Str0ng!pass", hash)

	assert.True(t, h.Matches("Str0ng!pass", hash))
	assert.False(t, h.Matches("wrong", hash))
	assert.False(t, h.Matches("", hash))
	assert.False(t, h.Matches("Str0ng!pass", ""))
}

func TestBcryptHasherRejectsEmptyPassword(t *testing.T) {
	h := NewBcryptHasher(4)
	_, err := h.Hash("")
	assert.Error(t, err)
}
