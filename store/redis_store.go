package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is a Store backed by a single Redis string key holding its
// state as JSON, demonstrating that the registry is storage-agnostic: a
// singleton store can be a plain in-process Base just as well as one
// fronting an external system.
//
// State() reflects the last value written through Update (or the value
// loaded from Redis when the store is constructed, an empty map if none
// could be read); Update writes through to Redis so the store survives
// process restarts.
type RedisStore struct {
	rdb   *redis.Client
	key   string
	ttl   time.Duration
	base  *Base
}

// NewRedisStore creates a RedisStore. addr is a host:port Redis address;
// key is the Redis key this store's state round-trips through.
func NewRedisStore(addr, key string, ttl time.Duration) *RedisStore {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	rs := &RedisStore{rdb: rdb, key: key, ttl: ttl}
	rs.base = NewBase(rs.loadInitial(), func(cur, patch any) any {
		cm, curOK := cur.(map[string]any)
		pm, patchOK := patch.(map[string]any)
		if !curOK || !patchOK {
			return patch
		}
		out := make(map[string]any, len(cm)+len(pm))
		for k, v := range cm {
			out[k] = v
		}
		for k, v := range pm {
			out[k] = v
		}
		return out
	})
	return rs
}

func (rs *RedisStore) loadInitial() any {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	raw, err := rs.rdb.Get(ctx, rs.key).Bytes()
	if err != nil {
		return map[string]any{}
	}
	var state map[string]any
	if err := json.Unmarshal(raw, &state); err != nil {
		return map[string]any{}
	}
	return state
}

func (rs *RedisStore) Init() any { return rs.base.Init() }

func (rs *RedisStore) State() any { return rs.base.State() }

func (rs *RedisStore) Subscribe(fn func(state any)) func() { return rs.base.Subscribe(fn) }

// Update merges patch into the in-memory state and writes the result
// through to Redis under rs.key with the configured TTL.
func (rs *RedisStore) Update(patch any) {
	rs.base.Update(patch)
	raw, err := json.Marshal(rs.base.State())
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	rs.rdb.Set(ctx, rs.key, raw, rs.ttl)
}

// Dispose closes the underlying Redis client, satisfying the Disposer
// contract the registry checks for at shutdown.
func (rs *RedisStore) Dispose() {
	_ = rs.rdb.Close()
}
