package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/ipfs/go-datastore"
	"github.com/ipfs/go-datastore/query"
	leveldb "github.com/ipfs/go-ds-leveldb"
)

// LevelDBStore implements Store on an IPFS datastore backed by LevelDB.
type LevelDBStore struct {
	ds     datastore.Batching
	logger *slog.Logger
}

// NewLevelDBStore opens (or creates) a LevelDB datastore at path
func NewLevelDBStore(path string, logger *slog.Logger) (*LevelDBStore, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	ds, err := leveldb.NewDatastore(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening leveldb datastore: %w", err)
	}
	return NewDatastoreStore(ds, logger), nil
}

// NewDatastoreStore wraps an existing datastore.
func NewDatastoreStore(ds datastore.Batching, logger *slog.Logger) *LevelDBStore {
	return &LevelDBStore{ds: ds, logger: logger}
}

func (s *LevelDBStore) Close() error {
	return s.ds.Close()
}

func (s *LevelDBStore) Migrate(ctx context.Context) error {
	return nil
}

func (s *LevelDBStore) Get(ctx context.Context, key string) (string, error) {
	k, err := dsKey(key)
	if err != nil {
		return "", err
	}
	b, err := s.ds.Get(ctx, k)
	if errors.Is(err, datastore.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading from datastore: %w", err)
	}
	return string(b), nil
}

func (s *LevelDBStore) Set(ctx context.Context, key, value string) error {
	k, err := dsKey(key)
	if err != nil {
		return err
	}
	if err := s.ds.Put(ctx, k, []byte(value)); err != nil {
		return fmt.Errorf("writing to datastore: %w", err)
	}
	return s.ds.Sync(ctx, k)
}

func (s *LevelDBStore) Remove(ctx context.Context, key string) error {
	k, err := dsKey(key)
	if err != nil {
		return err
	}
	if err := s.ds.Delete(ctx, k); err != nil {
		return fmt.Errorf("deleting from datastore: %w", err)
	}
	return nil
}

// Keys scans all keys; datastore prefixes match whole path segments only.
func (s *LevelDBStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	results, err := s.ds.Query(ctx, query.Query{KeysOnly: true})
	if err != nil {
		return nil, fmt.Errorf("querying datastore: %w", err)
	}
	defer results.Close()

	keys := []string{}
	for entry := range results.Next() {
		if entry.Error != nil {
			return nil, fmt.Errorf("iterating query results: %w", entry.Error)
		}
		k := strings.TrimPrefix(entry.Key, "/")
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// dsKey maps a cache key onto a single-segment datastore key.
func dsKey(key string) (datastore.Key, error) {
	if err := validateKey(key); err != nil {
		return datastore.Key{}, err
	}
	if strings.Contains(key, "/") {
		return datastore.Key{}, fmt.Errorf("%w: %q contains '/'", ErrInvalidKey, key)
	}
	return datastore.NewKey(key), nil
}
