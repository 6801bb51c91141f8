package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
	"go.uber.org/zap"

	"github.com/hamed0406/urlchecker/internal/domain"
)

// Client is the part of *memcache.Client the cache needs.
type Client interface {
	Get(key string) (*memcache.Item, error)
	Set(item *memcache.Item) error
	Ping() error
	Close() error
}

// ReputationCache keeps reputation verdicts in memcached so repeated
// checks of the same URL do not spend the reputation service's quota.
// Cache errors are logged and treated as misses.
type ReputationCache struct {
	client Client
	ttl    time.Duration
	log    *zap.Logger
}

// NewMemcached connects to servers and pings them once.
func NewMemcached(servers []string, ttl time.Duration, log *zap.Logger) (*ReputationCache, error) {
	ss := new(memcache.ServerList)
	if err := ss.SetServers(servers...); err != nil {
		return nil, fmt.Errorf("memcached servers: %w", err)
	}
	c := memcache.NewFromSelector(ss)
	if err := c.Ping(); err != nil {
		return nil, fmt.Errorf("memcached ping: %w", err)
	}
	return New(c, ttl, log), nil
}

func New(client Client, ttl time.Duration, log *zap.Logger) *ReputationCache {
	if log == nil {
		log = zap.NewNop()
	}
	return &ReputationCache{client: client, ttl: ttl, log: log}
}

func (c *ReputationCache) Get(target string) (domain.Reputation, bool) {
	key := cacheKey(target)
	it, err := c.client.Get(key)
	if err != nil {
		if !errors.Is(err, memcache.ErrCacheMiss) {
			c.log.Warn("cache_get_error", zap.String("key", key), zap.Error(err))
		}
		return domain.Reputation{}, false
	}
	var r domain.Reputation
	if err := json.Unmarshal(it.Value, &r); err != nil {
		c.log.Warn("cache_decode_error", zap.String("key", key), zap.Error(err))
		return domain.Reputation{}, false
	}
	return r, true
}

func (c *ReputationCache) Set(target string, r domain.Reputation) {
	b, err := json.Marshal(r)
	if err != nil {
		c.log.Warn("cache_encode_error", zap.Error(err))
		return
	}
	key := cacheKey(target)
	if err := c.client.Set(&memcache.Item{
		Key:        key,
		Value:      b,
		Expiration: int32(c.ttl.Seconds()),
	}); err != nil {
		c.log.Warn("cache_set_error", zap.String("key", key), zap.Error(err))
	}
}

func (c *ReputationCache) Close() error {
	return c.client.Close()
}

// cacheKey hashes the URL: memcached keys are limited to 250 bytes
// without spaces or control characters.
func cacheKey(target string) string {
	sum := sha256.Sum256([]byte(target))
	return "rep-" + hex.EncodeToString(sum[:])
}
