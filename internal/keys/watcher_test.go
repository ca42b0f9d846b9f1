package keys

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWatcherRequiresFilesystemSource(t *testing.T) {
	_, err := NewWatcher(SourceConfig{Source: "inline"}, nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "filesystem source")
}

func TestWatcherReloadsOnKeyChange(t *testing.T) {
	priv := genKey(t, 2048)
	dir := writeKeyDir(t, priv, nil)

	cfg := SourceConfig{
		Source:           "filesystem",
		Dir:              dir,
		ActiveKid:        "k1",
		VerificationKids: []string{"k1"},
	}
	material, err := Load(cfg)
	require.NoError(t, err)
	reg, err := NewRegistry(material)
	require.NoError(t, err)

	w, err := NewWatcher(cfg, reg, nil)
	require.NoError(t, err)
	w.debounceTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx))
	defer w.Stop()

	require.Error(t, w.Watch(ctx), "second Watch must be rejected")

	// Rotate the key material on disk under the same kid.
	rotated := genKey(t, 2048)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k1.pem"), []byte(publicPEM(t, &rotated.PublicKey)), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k1.key"), []byte(privatePEM(rotated)), 0o600))

	assert.Eventually(t, func() bool {
		_, signing := reg.Active()
		return signing.N.Cmp(rotated.N) == 0
	}, 5*time.Second, 20*time.Millisecond, "registry should pick up rotated material")
}

func TestWatcherKeepsMaterialOnBadReload(t *testing.T) {
	priv := genKey(t, 2048)
	dir := writeKeyDir(t, priv, nil)

	cfg := SourceConfig{
		Source:           "filesystem",
		Dir:              dir,
		ActiveKid:        "k1",
		VerificationKids: []string{"k1"},
	}
	material, err := Load(cfg)
	require.NoError(t, err)
	reg, err := NewRegistry(material)
	require.NoError(t, err)

	w, err := NewWatcher(cfg, reg, nil)
	require.NoError(t, err)
	w.debounceTimeout = 50 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Watch(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "k1.key"), []byte("garbage"), 0o600))

	// Give the debounced reload time to run and fail.
	time.Sleep(300 * time.Millisecond)

	_, signing := reg.Active()
	assert.Zero(t, signing.N.Cmp(priv.N), "previous material must survive a failed reload")
}
