package common

import (
	"context"
	"time"

	"github.com/patrickmn/go-cache"
)

// Storage defines a minimal key/value surface for persisted client state.
// The values are stored as raw []byte, which callers marshal/unmarshal
// as JSON.
//
// Backends:
//   - an in-memory go-cache (NewMemoryStorage)
//   - Redis (NewRedisStorage)
//
// An expiration of zero means the value never expires.
type Storage interface {
	Get(ctx context.Context, key string) (value []byte, found bool, err error)
	Set(ctx context.Context, key string, value []byte, expiration time.Duration) error
	Delete(ctx context.Context, key string) error
}

const cleanupInterval = 32 * time.Minute

var _ Storage = (*memoryStorage)(nil)

type memoryStorage struct {
	cache *cache.Cache
}

// NewMemoryStorage returns a process-local Storage.
func NewMemoryStorage() Storage {
	return &memoryStorage{
		cache: cache.New(cache.NoExpiration, cleanupInterval),
	}
}

func (m *memoryStorage) Get(_ context.Context, key string) ([]byte, bool, error) {
	value, found := m.cache.Get(key)
	if !found {
		return nil, false, nil
	}
	b, ok := value.([]byte)
	if !ok {
		return nil, false, nil
	}
	// hand out a copy so callers can't mutate the stored value
	return append([]byte(nil), b...), true, nil
}

func (m *memoryStorage) Set(_ context.Context, key string, value []byte, expiration time.Duration) error {
	if expiration <= 0 {
		expiration = cache.NoExpiration
	}
	m.cache.Set(key, append([]byte(nil), value...), expiration)
	return nil
}

func (m *memoryStorage) Delete(_ context.Context, key string) error {
	m.cache.Delete(key)
	return nil
}
