package storage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMemorySize is the entry limit used when none is configured.
const DefaultMemorySize = 128

// MemoryStore implements Store with a bounded in-process LRU.
// Contents do not survive a restart.
type MemoryStore struct {
	cache  *lru.Cache[string, string]
	logger *slog.Logger
}

// NewMemoryStore creates a new in-memory store holding at most size entries
func NewMemoryStore(size int, logger *slog.Logger) (*MemoryStore, error) {
	if size <= 0 {
		size = DefaultMemorySize
	}
	cache, err := lru.New[string, string](size)
	if err != nil {
		return nil, fmt.Errorf("creating lru cache: %w", err)
	}
	return &MemoryStore{cache: cache, logger: logger}, nil
}

func (s *MemoryStore) Close() error {
	s.cache.Purge()
	return nil
}

func (s *MemoryStore) Migrate(ctx context.Context) error {
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", err
	}
	v, ok := s.cache.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(ctx context.Context, key, value string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if evicted := s.cache.Add(key, value); evicted {
		s.logger.Debug("memory store evicted oldest entry", "size", s.cache.Len())
	}
	return nil
}

func (s *MemoryStore) Remove(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	s.cache.Remove(key)
	return nil
}

func (s *MemoryStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys := []string{}
	for _, k := range s.cache.Keys() {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}
