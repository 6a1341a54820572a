// Package keycache persists the FHE public key and public parameters per ACL
// contract address on top of a key/value store.
package keycache

import (
	"context"
	"errors"
	"fmt"

	"github.com/pendergraft/fhevmkit/internal/storage"
)

// Key prefixes used in the backing store.
const (
	PublicKeyPrefix    = "fhevm:publicKey:"
	PublicParamsPrefix = "fhevm:publicParams:"
)

// ErrIncompleteMaterial is returned by Save when either field is empty.
var ErrIncompleteMaterial = errors.New("public key material is incomplete")

// PublicKeyMaterial is the cached key material for one ACL address.
// Empty fields mean nothing is cached.
type PublicKeyMaterial struct {
	PublicKey    string `json:"publicKey"`
	PublicParams string `json:"publicParams"`
}

// IsZero reports whether no material is present.
func (m PublicKeyMaterial) IsZero() bool {
	return m.PublicKey == "" && m.PublicParams == ""
}

// Cache loads and saves PublicKeyMaterial.
type Cache struct {
	store storage.KeyValueStore
}

// New creates a cache over store.
func New(store storage.KeyValueStore) *Cache {
	return &Cache{store: store}
}

// PublicKeyKey returns the storage key for the public key of acl.
func PublicKeyKey(acl string) string { return PublicKeyPrefix + acl }

// PublicParamsKey returns the storage key for the public params of acl.
func PublicParamsKey(acl string) string { return PublicParamsPrefix + acl }

// Load reads the material for acl. Missing entries read back as empty strings.
func (c *Cache) Load(ctx context.Context, acl string) (PublicKeyMaterial, error) {
	pk, err := c.get(ctx, PublicKeyKey(acl))
	if err != nil {
		return PublicKeyMaterial{}, err
	}
	pp, err := c.get(ctx, PublicParamsKey(acl))
	if err != nil {
		return PublicKeyMaterial{}, err
	}
	return PublicKeyMaterial{PublicKey: pk, PublicParams: pp}, nil
}

// Save writes the material for acl. The key and the params are written as
// a pair: incomplete material is rejected with ErrIncompleteMaterial and
// leaves the cached pair untouched.
func (c *Cache) Save(ctx context.Context, acl string, m PublicKeyMaterial) error {
	if m.PublicKey == "" || m.PublicParams == "" {
		return ErrIncompleteMaterial
	}
	if err := c.store.Set(ctx, PublicKeyKey(acl), m.PublicKey); err != nil {
		return fmt.Errorf("saving public key: %w", err)
	}
	if err := c.store.Set(ctx, PublicParamsKey(acl), m.PublicParams); err != nil {
		return fmt.Errorf("saving public params: %w", err)
	}
	return nil
}

// Forget removes any material cached for acl.
func (c *Cache) Forget(ctx context.Context, acl string) error {
	if err := c.store.Remove(ctx, PublicKeyKey(acl)); err != nil {
		return fmt.Errorf("removing public key: %w", err)
	}
	if err := c.store.Remove(ctx, PublicParamsKey(acl)); err != nil {
		return fmt.Errorf("removing public params: %w", err)
	}
	return nil
}

func (c *Cache) get(ctx context.Context, key string) (string, error) {
	v, err := c.store.Get(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", key, err)
	}
	return v, nil
}
