package store

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKey(t *testing.T) ed25519.PrivateKey {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return priv
}

func runKeyProviderContract(t *testing.T, p KeyProvider) {
	t.Helper()
	ctx := context.Background()
	key := newKey(t)

	got, err := p.Get(ctx, "human:ada")
	require.NoError(t, err)
	assert.Nil(t, got, "missing key must be (nil, nil)")

	has, err := p.Has(ctx, "human:ada")
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, p.Set(ctx, "human:ada", key))
	got, err = p.Get(ctx, "human:ada")
	require.NoError(t, err)
	assert.Equal(t, key, got)
	has, err = p.Has(ctx, "human:ada")
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, p.Delete(ctx, "human:ada"))
	has, err = p.Has(ctx, "human:ada")
	require.NoError(t, err)
	assert.False(t, has)

	// double delete is a no-op
	require.NoError(t, p.Delete(ctx, "human:ada"))
}

func TestFileKeyProviderContract(t *testing.T) {
	p, err := NewFileKeyProvider(t.TempDir())
	require.NoError(t, err)
	runKeyProviderContract(t, p)
}

func TestMemoryKeyProviderContract(t *testing.T) {
	runKeyProviderContract(t, NewMemoryKeyProvider())
}

func TestEnvKeyProviderContract(t *testing.T) {
	p := NewEnvKeyProvider("GITGOVTEST_KEY_")
	t.Cleanup(func() { _ = os.Unsetenv("GITGOVTEST_KEY_HUMAN_ADA") })
	runKeyProviderContract(t, p)
}

func TestFileKeyProviderPermissionsAndLayout(t *testing.T) {
	dir := t.TempDir()
	p, err := NewFileKeyProvider(dir)
	require.NoError(t, err)
	require.NoError(t, p.Set(context.Background(), "human:ada-lovelace", newKey(t)))

	path := filepath.Join(dir, "human_ada-lovelace.key")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestEnvKeyProviderVarMapping(t *testing.T) {
	p := NewEnvKeyProvider("")
	assert.Equal(t, "GITGOV_KEY_HUMAN_ADA_LOVELACE", p.EnvVar("human:ada-lovelace"))
	assert.Equal(t, "GITGOV_KEY_AGENT_DEPLOY_BOT", p.EnvVar("agent:deploy-bot"))

	custom := NewEnvKeyProvider("MY_")
	assert.Equal(t, "MY_HUMAN_ADA", custom.EnvVar("human:ada"))
}

func TestEnvKeyProviderAcceptsSeedEncoding(t *testing.T) {
	p := NewEnvKeyProvider("GITGOVTEST_SEED_")
	t.Cleanup(func() { _ = os.Unsetenv("GITGOVTEST_SEED_HUMAN_ADA") })

	seed := make([]byte, ed25519.SeedSize)
	for i := range seed {
		seed[i] = byte(i)
	}
	require.NoError(t, os.Setenv("GITGOVTEST_SEED_HUMAN_ADA", base64.StdEncoding.EncodeToString(seed)))

	key, err := p.Get(context.Background(), "human:ada")
	require.NoError(t, err)
	assert.Equal(t, ed25519.NewKeyFromSeed(seed), key)
}

func TestDecodeKeyRejectsGarbage(t *testing.T) {
	p := NewEnvKeyProvider("GITGOVTEST_BAD_")
	t.Cleanup(func() { _ = os.Unsetenv("GITGOVTEST_BAD_HUMAN_ADA") })

	require.NoError(t, os.Setenv("GITGOVTEST_BAD_HUMAN_ADA", "not-base64!!"))
	_, err := p.Get(context.Background(), "human:ada")
	assert.Error(t, err)

	require.NoError(t, os.Setenv("GITGOVTEST_BAD_HUMAN_ADA", base64.StdEncoding.EncodeToString([]byte("short"))))
	_, err = p.Get(context.Background(), "human:ada")
	assert.Error(t, err)
}

func TestMemoryKeyProviderCopiesKeys(t *testing.T) {
	p := NewMemoryKeyProvider()
	ctx := context.Background()
	key := newKey(t)
	require.NoError(t, p.Set(ctx, "human:ada", key))

	got, err := p.Get(ctx, "human:ada")
	require.NoError(t, err)
	got[0] ^= 0xff

	again, err := p.Get(ctx, "human:ada")
	require.NoError(t, err)
	assert.Equal(t, key, again, "mutating a returned key must not affect the stored one")
}
