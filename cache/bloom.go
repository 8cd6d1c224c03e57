package cache

import (
	"context"
	"hash/fnv"
	"log"
	"time"
)

// BloomFilter is a Redis-bitmap bloom filter over issued token secrets.
// Login attempts consult it before touching the database, so junk secrets
// from guessing attacks never turn into SQL lookups. False positives fall
// through to the real credential check.
type BloomFilter struct {
	redisClient RedisClient
	key         string
	hashCount   int
}

// NewBloomFilter creates a bloom filter under the given key.
func NewBloomFilter(client RedisClient, key string, hashCount int) *BloomFilter {
	return &BloomFilter{
		redisClient: client,
		key:         "bloom:" + key,
		hashCount:   hashCount,
	}
}

// Add inserts an item.
func (bf *BloomFilter) Add(ctx context.Context, item string) error {
	if bf.redisClient == nil {
		return ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	for i := 0; i < bf.hashCount; i++ {
		pipe.SetBit(ctx, bf.key, bf.hash(item, i), 1)
	}
	pipe.Expire(ctx, bf.key, 30*24*time.Hour)

	_, err := pipe.Exec(ctx)
	return err
}

// Contains reports whether the item might have been added. A false result
// is definitive; a true result may be a false positive.
func (bf *BloomFilter) Contains(ctx context.Context, item string) (bool, error) {
	if bf.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	pipe := bf.redisClient.Pipeline()
	cmds := make([]interface{ Val() int64 }, 0, bf.hashCount)
	for i := 0; i < bf.hashCount; i++ {
		cmds = append(cmds, pipe.GetBit(ctx, bf.key, bf.hash(item, i)))
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return false, err
	}

	for _, cmd := range cmds {
		if cmd.Val() == 0 {
			return false, nil
		}
	}
	return true, nil
}

func (bf *BloomFilter) hash(key string, seed int) int64 {
	h := fnv.New64a()
	h.Write([]byte(key))
	h.Write([]byte{byte(seed)})
	return int64(h.Sum64() % uint64(1<<30))
}

// InitTokenBloomFilter builds the filter over token secrets. Returns nil
// in mock mode; callers must treat a nil filter as "always might contain".
func InitTokenBloomFilter() *BloomFilter {
	client, err := GetClient()
	if err != nil {
		log.Printf("token bloom filter unavailable: %v", err)
		return nil
	}

	return NewBloomFilter(client, "token_secrets", 5)
}
