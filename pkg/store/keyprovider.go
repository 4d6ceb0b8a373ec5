package store

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gitgov-io/gitgov/pkg/record"
)

// KeyProvider is an actorId→private-key map. Get returns (nil, nil) for a
// missing key so callers can fall back without branching on error kinds.
type KeyProvider interface {
	Get(ctx context.Context, actorID string) (ed25519.PrivateKey, error)
	Set(ctx context.Context, actorID string, key ed25519.PrivateKey) error
	Has(ctx context.Context, actorID string) (bool, error)
	Delete(ctx context.Context, actorID string) error
}

// FileKeyProvider stores each private key base64-encoded in
// <dir>/<safeId>.key with mode 0600, alongside the actor records.
type FileKeyProvider struct {
	dir string
}

// NewFileKeyProvider creates the key directory if needed.
func NewFileKeyProvider(dir string) (*FileKeyProvider, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "create key dir %s", dir)
	}
	return &FileKeyProvider{dir: dir}, nil
}

func (p *FileKeyProvider) path(actorID string) string {
	return filepath.Join(p.dir, SafeID(actorID)+".key")
}

// Get reads and decodes the key file; (nil, nil) when absent.
func (p *FileKeyProvider) Get(_ context.Context, actorID string) (ed25519.PrivateKey, error) {
	data, err := os.ReadFile(p.path(actorID))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, record.Wrap(record.CodeIOError, err, "read key for %s", actorID)
	}
	return decodeKey(actorID, strings.TrimSpace(string(data)))
}

// Set writes the key with owner-only permissions.
func (p *FileKeyProvider) Set(_ context.Context, actorID string, key ed25519.PrivateKey) error {
	encoded := base64.StdEncoding.EncodeToString(key)
	if err := os.WriteFile(p.path(actorID), []byte(encoded+"\n"), 0o600); err != nil {
		return record.Wrap(record.CodeIOError, err, "write key for %s", actorID)
	}
	return nil
}

// Has reports whether a key file exists.
func (p *FileKeyProvider) Has(_ context.Context, actorID string) (bool, error) {
	_, err := os.Stat(p.path(actorID))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, record.Wrap(record.CodeIOError, err, "stat key for %s", actorID)
	}
	return true, nil
}

// Delete removes the key file; missing keys are a no-op.
func (p *FileKeyProvider) Delete(_ context.Context, actorID string) error {
	err := os.Remove(p.path(actorID))
	if err != nil && !os.IsNotExist(err) {
		return record.Wrap(record.CodeIOError, err, "delete key for %s", actorID)
	}
	return nil
}

// EnvKeyProvider resolves keys from environment variables. The actor id
// maps to UPPER_SNAKE with a configurable prefix:
// "human:ada-lovelace" → <PREFIX>HUMAN_ADA_LOVELACE.
type EnvKeyProvider struct {
	prefix string
}

// DefaultEnvKeyPrefix is used when no prefix is configured.
const DefaultEnvKeyPrefix = "GITGOV_KEY_"

// NewEnvKeyProvider creates an environment-backed provider.
func NewEnvKeyProvider(prefix string) *EnvKeyProvider {
	if prefix == "" {
		prefix = DefaultEnvKeyPrefix
	}
	return &EnvKeyProvider{prefix: prefix}
}

// EnvVar returns the variable name an actor id maps to.
func (p *EnvKeyProvider) EnvVar(actorID string) string {
	mapped := strings.NewReplacer(":", "_", "-", "_").Replace(actorID)
	return p.prefix + strings.ToUpper(mapped)
}

// Get decodes the key from the mapped variable; (nil, nil) when unset.
func (p *EnvKeyProvider) Get(_ context.Context, actorID string) (ed25519.PrivateKey, error) {
	val, ok := os.LookupEnv(p.EnvVar(actorID))
	if !ok || val == "" {
		return nil, nil
	}
	return decodeKey(actorID, val)
}

// Set exports the key into the process environment.
func (p *EnvKeyProvider) Set(_ context.Context, actorID string, key ed25519.PrivateKey) error {
	if err := os.Setenv(p.EnvVar(actorID), base64.StdEncoding.EncodeToString(key)); err != nil {
		return record.Wrap(record.CodeIOError, err, "set env key for %s", actorID)
	}
	return nil
}

// Has reports whether the mapped variable is set and non-empty.
func (p *EnvKeyProvider) Has(_ context.Context, actorID string) (bool, error) {
	val, ok := os.LookupEnv(p.EnvVar(actorID))
	return ok && val != "", nil
}

// Delete unsets the mapped variable.
func (p *EnvKeyProvider) Delete(_ context.Context, actorID string) error {
	if err := os.Unsetenv(p.EnvVar(actorID)); err != nil {
		return record.Wrap(record.CodeIOError, err, "unset env key for %s", actorID)
	}
	return nil
}

// MemoryKeyProvider holds keys in process memory (tests, ephemeral runs).
type MemoryKeyProvider struct {
	mu   sync.RWMutex
	keys map[string]ed25519.PrivateKey
}

// NewMemoryKeyProvider creates an empty in-memory provider.
func NewMemoryKeyProvider() *MemoryKeyProvider {
	return &MemoryKeyProvider{keys: make(map[string]ed25519.PrivateKey)}
}

// Get returns the stored key, (nil, nil) when absent.
func (p *MemoryKeyProvider) Get(_ context.Context, actorID string) (ed25519.PrivateKey, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	key, ok := p.keys[actorID]
	if !ok {
		return nil, nil
	}
	out := make(ed25519.PrivateKey, len(key))
	copy(out, key)
	return out, nil
}

// Set stores a copy of the key.
func (p *MemoryKeyProvider) Set(_ context.Context, actorID string, key ed25519.PrivateKey) error {
	cp := make(ed25519.PrivateKey, len(key))
	copy(cp, key)
	p.mu.Lock()
	p.keys[actorID] = cp
	p.mu.Unlock()
	return nil
}

// Has reports whether a key is stored for the actor.
func (p *MemoryKeyProvider) Has(_ context.Context, actorID string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.keys[actorID]
	return ok, nil
}

// Delete removes the stored key.
func (p *MemoryKeyProvider) Delete(_ context.Context, actorID string) error {
	p.mu.Lock()
	delete(p.keys, actorID)
	p.mu.Unlock()
	return nil
}

func decodeKey(actorID, encoded string) (ed25519.PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, record.E(record.CodePrivateKeyNotFound, "key for %s is not valid base64", actorID)
	}
	switch len(raw) {
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	}
	return nil, record.E(record.CodePrivateKeyNotFound, "key for %s has unexpected length %d", actorID, len(raw))
}

var (
	_ KeyProvider = (*FileKeyProvider)(nil)
	_ KeyProvider = (*EnvKeyProvider)(nil)
	_ KeyProvider = (*MemoryKeyProvider)(nil)
)
