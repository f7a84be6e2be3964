// Package rediscache is a read-through cache that sits in front of a
// persistent interfaces.DataStore, backed by go-redis/v8 — grounded on
// the wiring shape of launchdarkly-ld-relay's
// internal/core/bigsegments/store_redis.go (key-prefix helpers, a single
// redis.UniversalClient field, context-scoped calls) adapted from a
// big-segment membership store to a generic item cache per spec §4.6's
// "optional caching layer in front of the persistent store".
package rediscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/TimurManjosov/goflagship/internal/interfaces"
	"github.com/TimurManjosov/goflagship/internal/ldmodel"
)

func itemKey(prefix string, kind ldmodel.DataKind, key string) string {
	return fmt.Sprintf("%s:item:%d:%s", prefix, int(kind), key)
}

func allKey(prefix string, kind ldmodel.DataKind) string {
	return fmt.Sprintf("%s:all:%d", prefix, int(kind))
}

type cachedDescriptor struct {
	Version int             `json:"version"`
	Deleted bool            `json:"deleted"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Cache wraps a persistent interfaces.DataStore with a Redis read-through
// layer. Writes go to both; Get prefers Redis and falls back to the
// wrapped store on a cache miss or Redis error. GetAll always reads the
// wrapped store.
type Cache struct {
	client  redis.UniversalClient
	backing interfaces.DataStore
	prefix  string
	ttl     time.Duration
}

// Config mirrors the shape of the teacher's per-backend config blocks:
// an address plus a key prefix, with TTL as the one SDK-specific knob.
type Config struct {
	Addr   string
	Prefix string
	TTL    time.Duration
}

// New dials Redis and wraps backing.
func New(cfg Config, backing interfaces.DataStore) (*Cache, error) {
	opts, err := redis.ParseURL(cfg.Addr)
	if err != nil {
		opts = &redis.Options{Addr: cfg.Addr}
	}
	client := redis.NewClient(opts)
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Cache{client: client, backing: backing, prefix: cfg.Prefix, ttl: ttl}, nil
}

func (c *Cache) Init(ctx context.Context, snapshot map[ldmodel.DataKind]map[string]ldmodel.ItemDescriptor) error {
	if err := c.backing.Init(ctx, snapshot); err != nil {
		return err
	}
	pipe := c.client.Pipeline()
	for kind, items := range snapshot {
		pipe.Del(ctx, allKey(c.prefix, kind))
		for key, desc := range items {
			raw, err := encode(desc)
			if err != nil {
				return err
			}
			pipe.Set(ctx, itemKey(c.prefix, kind, key), raw, c.ttl)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (c *Cache) Get(ctx context.Context, kind ldmodel.DataKind, key string) (ldmodel.ItemDescriptor, bool, error) {
	raw, err := c.client.Get(ctx, itemKey(c.prefix, kind, key)).Bytes()
	if err == nil {
		desc, decErr := decode(kind, raw)
		if decErr == nil {
			return desc, true, nil
		}
	}
	desc, ok, err := c.backing.Get(ctx, kind, key)
	if err != nil {
		return ldmodel.ItemDescriptor{}, false, err
	}
	if ok {
		if raw, encErr := encode(desc); encErr == nil {
			c.client.Set(ctx, itemKey(c.prefix, kind, key), raw, c.ttl)
		}
	}
	return desc, ok, nil
}

func (c *Cache) GetAll(ctx context.Context, kind ldmodel.DataKind) (map[string]ldmodel.ItemDescriptor, error) {
	return c.backing.GetAll(ctx, kind)
}

func (c *Cache) Upsert(ctx context.Context, kind ldmodel.DataKind, key string, item ldmodel.ItemDescriptor) (bool, error) {
	applied, err := c.backing.Upsert(ctx, kind, key, item)
	if err != nil {
		return false, err
	}
	if applied {
		if raw, encErr := encode(item); encErr == nil {
			c.client.Set(ctx, itemKey(c.prefix, kind, key), raw, c.ttl)
		}
	}
	return applied, nil
}

func (c *Cache) IsInitialized(ctx context.Context) bool {
	return c.backing.IsInitialized(ctx)
}

func (c *Cache) Close() error {
	if err := c.client.Close(); err != nil {
		return err
	}
	return c.backing.Close()
}

func encode(desc ldmodel.ItemDescriptor) ([]byte, error) {
	cd := cachedDescriptor{Version: desc.Version, Deleted: desc.IsDeleted()}
	if !cd.Deleted && desc.Item != nil {
		data, err := json.Marshal(desc.Item)
		if err != nil {
			return nil, err
		}
		cd.Data = data
	}
	return json.Marshal(cd)
}

func decode(kind ldmodel.DataKind, raw []byte) (ldmodel.ItemDescriptor, error) {
	var cd cachedDescriptor
	if err := json.Unmarshal(raw, &cd); err != nil {
		return ldmodel.ItemDescriptor{}, err
	}
	if cd.Deleted || len(cd.Data) == 0 {
		return ldmodel.ItemDescriptor{Version: cd.Version}, nil
	}
	switch kind {
	case ldmodel.Features:
		flag := &ldmodel.FeatureFlag{}
		if err := json.Unmarshal(cd.Data, flag); err != nil {
			return ldmodel.ItemDescriptor{}, err
		}
		flag.Finalize()
		return ldmodel.ItemDescriptor{Version: cd.Version, Item: flag}, nil
	case ldmodel.Segments:
		seg := &ldmodel.Segment{}
		if err := json.Unmarshal(cd.Data, seg); err != nil {
			return ldmodel.ItemDescriptor{}, err
		}
		seg.Finalize()
		return ldmodel.ItemDescriptor{Version: cd.Version, Item: seg}, nil
	default:
		return ldmodel.ItemDescriptor{}, fmt.Errorf("rediscache: unknown data kind %v", kind)
	}
}
