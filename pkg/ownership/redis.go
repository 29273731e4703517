package ownership

import (
	"context"
	"time"

	"waifubot/pkg/cache"
)

// JSONCache is the part of cache.Cache the redis backends need.
type JSONCache interface {
	Key(parts ...string) string
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// RedisBackend stores one JSON document per record, refreshed on every write.
type RedisBackend struct {
	cache JSONCache
	ttl   time.Duration
}

func NewRedisBackend(c JSONCache) *RedisBackend {
	return &RedisBackend{
		cache: c,
		ttl:   cache.OwnershipTTL,
	}
}

func (r *RedisBackend) key(key Key) string {
	return r.cache.Key("ownership", key.Channel, key.User)
}

func (r *RedisBackend) Get(ctx context.Context, key Key) (Record, bool, error) {
	var rec Record
	err := r.cache.GetJSON(ctx, r.key(key), &rec)
	if cache.IsMiss(err) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (r *RedisBackend) Put(ctx context.Context, rec Record) error {
	return r.cache.SetJSON(ctx, r.key(rec.Key()), rec, r.ttl)
}

// Evict drops a cached record.
func (r *RedisBackend) Evict(ctx context.Context, key Key) error {
	return r.cache.Delete(ctx, r.key(key))
}

// CachedBackend reads through and writes through redis in front of a
// durable backend. Cache failures are ignored; the durable backend decides.
type CachedBackend struct {
	Backend
	cache *RedisBackend
}

func NewCachedBackend(durable Backend, c JSONCache) *CachedBackend {
	return &CachedBackend{
		Backend: durable,
		cache:   NewRedisBackend(c),
	}
}

func (c *CachedBackend) Get(ctx context.Context, key Key) (Record, bool, error) {
	if rec, ok, err := c.cache.Get(ctx, key); err == nil && ok {
		return rec, true, nil
	}

	rec, ok, err := c.Backend.Get(ctx, key)
	if err != nil || !ok {
		return rec, ok, err
	}

	_ = c.cache.Put(ctx, rec)
	return rec, true, nil
}

func (c *CachedBackend) Put(ctx context.Context, rec Record) error {
	if err := c.Backend.Put(ctx, rec); err != nil {
		_ = c.cache.Evict(ctx, rec.Key())
		return err
	}
	_ = c.cache.Put(ctx, rec)
	return nil
}
