package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/rand"
	"time"

	"school-evoting-backend/models"
)

// TallyCache caches the computed election results. The tally query scans
// the whole votes table; during the live-results rush every dashboard
// poll would otherwise hit it. A distributed lock guards the rebuild so
// only one instance recomputes on a miss.
type TallyCache struct {
	redisClient RedisClient
	lockService *DistributedLockService
	key         string
	ttl         time.Duration
}

// NewTallyCache creates the results cache.
func NewTallyCache(client RedisClient, lockService *DistributedLockService, ttl time.Duration) *TallyCache {
	return &TallyCache{
		redisClient: client,
		lockService: lockService,
		key:         "election:results",
		ttl:         ttl,
	}
}

// Get returns cached results, or loads, caches and returns fresh ones.
func (c *TallyCache) Get(ctx context.Context, loader func() (*models.ElectionResults, error)) (*models.ElectionResults, error) {
	if c.redisClient == nil {
		// Mock mode: no cache, just compute.
		return loader()
	}

	if results, ok := c.lookup(ctx); ok {
		return results, nil
	}

	var results *models.ElectionResults
	lockKey := fmt.Sprintf("cache_lock:%s", c.key)
	err := c.lockService.WithLock(lockKey, 5*time.Second, func() error {
		// Double check: another instance may have rebuilt meanwhile.
		if cached, ok := c.lookup(ctx); ok {
			results = cached
			return nil
		}

		loaded, err := loader()
		if err != nil {
			return err
		}
		results = loaded

		payload, err := json.Marshal(loaded)
		if err != nil {
			return err
		}
		// Jitter the expiry so instances do not rebuild in lockstep.
		expiration := c.ttl + time.Duration(rand.Intn(int(c.ttl/10)+1))
		c.redisClient.Set(ctx, c.key, string(payload), expiration)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

// Invalidate drops the cached tally, typically after a committed vote or
// an election reset.
func (c *TallyCache) Invalidate(ctx context.Context) {
	if c.redisClient == nil {
		return
	}
	if err := c.redisClient.Del(ctx, c.key).Err(); err != nil {
		log.Printf("failed to invalidate tally cache: %v", err)
	}
}

func (c *TallyCache) lookup(ctx context.Context) (*models.ElectionResults, bool) {
	data, err := c.redisClient.Get(ctx, c.key).Result()
	if err != nil {
		return nil, false
	}
	var results models.ElectionResults
	if err := json.Unmarshal([]byte(data), &results); err != nil {
		log.Printf("failed to parse cached tally: %v", err)
		return nil, false
	}
	return &results, true
}
