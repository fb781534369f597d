package exercisecatalog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/coocood/freecache"
	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"
)

const (
	cacheKeyPrefix   = "exercise::"
	notFoundSentinel = "-"
)

// CachedLookup keeps lookups in a process-local freecache.
// Unknown ids are cached too, so misses do not hit the backend again.
type CachedLookup struct {
	next   Lookup
	cache  *freecache.Cache
	expire int
}

func NewCachedLookup(next Lookup, cacheSizeBytes int, ttl time.Duration) *CachedLookup {
	return &CachedLookup{
		next:   next,
		cache:  freecache.NewCache(cacheSizeBytes),
		expire: int(ttl.Seconds()),
	}
}

func (c *CachedLookup) GetByID(ctx context.Context, exerciseID string) (*Exercise, error) {
	key := []byte(cacheKeyPrefix + exerciseID)
	if cached, err := c.cache.Get(key); err == nil {
		ex, ok := decodeCached(cached)
		if ok {
			log.Tracef("found exercise [%s] in cache", exerciseID)
			return ex, nil
		}
	}

	ex, err := c.next.GetByID(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeCached(ex)
	if err != nil {
		log.Errorf("encode exercise [%s] for cache: %s", exerciseID, err)
		return ex, nil
	}
	if err := c.cache.Set(key, encoded, c.expire); err != nil {
		log.Errorf("failed to write exercise cache for %s: %s", exerciseID, err)
	}
	return ex, nil
}

func (c *CachedLookup) EntryCount() int64 {
	return c.cache.EntryCount()
}

// RedisLookup shares lookups across service instances.
type RedisLookup struct {
	next Lookup
	rdb  *redis.Client
	ttl  time.Duration
}

func NewRedisLookup(next Lookup, rdb *redis.Client, ttl time.Duration) *RedisLookup {
	return &RedisLookup{
		next: next,
		rdb:  rdb,
		ttl:  ttl,
	}
}

func (r *RedisLookup) GetByID(ctx context.Context, exerciseID string) (*Exercise, error) {
	key := cacheKeyPrefix + exerciseID

	cached, err := r.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		if ex, ok := decodeCached(cached); ok {
			log.Tracef("found exercise [%s] in redis cache", exerciseID)
			return ex, nil
		}
		log.Errorf("failed to decode cached exercise [%s] from redis", exerciseID)
	case err == redis.Nil:
		log.Debugf("exercise [%s] not found in redis cache", exerciseID)
	default:
		log.Errorf("failed to get exercise [%s] from redis: %s", exerciseID, err)
	}

	ex, err := r.next.GetByID(ctx, exerciseID)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeCached(ex)
	if err != nil {
		return ex, nil
	}
	if err := r.rdb.Set(ctx, key, string(encoded), r.ttl).Err(); err != nil {
		log.Errorf("failed to cache exercise [%s] in redis: %s", exerciseID, err)
	}
	return ex, nil
}

func encodeCached(ex *Exercise) ([]byte, error) {
	if ex == nil {
		return []byte(notFoundSentinel), nil
	}
	b, err := json.Marshal(ex)
	if err != nil {
		return nil, fmt.Errorf("marshal exercise: %w", err)
	}
	return b, nil
}

func decodeCached(b []byte) (*Exercise, bool) {
	if string(b) == notFoundSentinel {
		return nil, true
	}
	var ex Exercise
	if err := json.Unmarshal(b, &ex); err != nil {
		return nil, false
	}
	return &ex, true
}
