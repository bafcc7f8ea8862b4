package entity

import (
	"context"
	"errors"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/webcask/webcask/pkg/xerrors"
)

// MemcacheKV adapts a memcached client (text get/set protocol) to the KV
// surface. It is interchangeable with RedisKV behind the same KVStore.
type MemcacheKV struct {
	client *memcache.Client
}

// NewMemcacheKV connects to the given server addresses.
func NewMemcacheKV(servers ...string) (*MemcacheKV, error) {
	if len(servers) == 0 {
		return nil, xerrors.E(xerrors.KindInvalid, "entity.NewMemcacheKV", "servers")
	}
	return &MemcacheKV{client: memcache.New(servers...)}, nil
}

// NewMemcacheKVClient wraps an already-configured client.
func NewMemcacheKVClient(client *memcache.Client) (*MemcacheKV, error) {
	if client == nil {
		return nil, xerrors.E(xerrors.KindInvalid, "entity.NewMemcacheKVClient", "client")
	}
	return &MemcacheKV{client: client}, nil
}

func (m *MemcacheKV) Contains(ctx context.Context, key string) (bool, error) {
	// The text protocol has no dedicated exists command.
	_, err := m.client.Get(key)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, memcache.ErrCacheMiss) {
		return false, nil
	}
	return false, err
}

func (m *MemcacheKV) Get(ctx context.Context, key string) ([]byte, error) {
	item, err := m.client.Get(key)
	if err != nil {
		if errors.Is(err, memcache.ErrCacheMiss) {
			return nil, xerrors.E(xerrors.KindNotFound, "entity.MemcacheKV.Get", key)
		}
		return nil, err
	}
	return item.Value, nil
}

func (m *MemcacheKV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return m.client.Set(&memcache.Item{
		Key:        key,
		Value:      value,
		Expiration: int32(ttl / time.Second),
	})
}

// Delete implements KVDeleter.
func (m *MemcacheKV) Delete(ctx context.Context, key string) error {
	err := m.client.Delete(key)
	if err != nil && !errors.Is(err, memcache.ErrCacheMiss) {
		return err
	}
	return nil
}
