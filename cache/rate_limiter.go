package cache

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter decides whether a request may pass.
type RateLimiter interface {
	Allow(ctx context.Context) (bool, error)
}

// TokenBucketRateLimiter is a Redis-backed token bucket, shared across
// instances.
type TokenBucketRateLimiter struct {
	redisClient RedisClient
	key         string
	rate        int // tokens added per second
	burst       int // bucket capacity
}

// NewTokenBucketRateLimiter creates a token bucket limiter.
func NewTokenBucketRateLimiter(client RedisClient, key string, rate, burst int) *TokenBucketRateLimiter {
	return &TokenBucketRateLimiter{
		redisClient: client,
		key:         fmt.Sprintf("rate_limit:%s", key),
		rate:        rate,
		burst:       burst,
	}
}

// Allow consumes one token if available.
func (l *TokenBucketRateLimiter) Allow(ctx context.Context) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	script := `
	local key = KEYS[1]
	local now = tonumber(ARGV[1])
	local rate = tonumber(ARGV[2])
	local burst = tonumber(ARGV[3])
	local period = 1

	local tokens_key = key .. ":tokens"
	local timestamp_key = key .. ":ts"

	local tokens = tonumber(redis.call("get", tokens_key) or burst)
	local last_update = tonumber(redis.call("get", timestamp_key) or 0)

	local elapsed = math.max(0, now - last_update)
	local new_tokens = math.min(burst, tokens + elapsed * rate)

	if new_tokens < 1 then
		return 0
	end

	new_tokens = new_tokens - 1

	redis.call("setex", tokens_key, period * 2, new_tokens)
	redis.call("setex", timestamp_key, period * 2, now)

	return 1
	`

	now := time.Now().Unix()
	result, err := l.redisClient.Eval(ctx, script, []string{l.key}, now, l.rate, l.burst).Result()
	if err != nil {
		return false, err
	}

	return result.(int64) == 1, nil
}

// SlidingWindowRateLimiter counts requests inside a moving window. Used
// for login attempts, where a hard per-window cap beats a refilling bucket.
type SlidingWindowRateLimiter struct {
	redisClient RedisClient
	key         string
	windowSize  time.Duration
	limit       int
}

// NewSlidingWindowRateLimiter creates a sliding window limiter.
func NewSlidingWindowRateLimiter(client RedisClient, key string, windowSize time.Duration, limit int) *SlidingWindowRateLimiter {
	return &SlidingWindowRateLimiter{
		redisClient: client,
		key:         fmt.Sprintf("sliding_window:%s", key),
		windowSize:  windowSize,
		limit:       limit,
	}
}

// Allow records the request and checks the window cap.
func (l *SlidingWindowRateLimiter) Allow(ctx context.Context) (bool, error) {
	if l.redisClient == nil {
		return false, ErrRedisNotAvailable
	}

	now := time.Now().UnixNano() / int64(time.Millisecond)
	windowStart := now - int64(l.windowSize/time.Millisecond)
	requestID := uuid.New().String()

	pipe := l.redisClient.Pipeline()
	pipe.ZAdd(ctx, l.key, redis.Z{Score: float64(now), Member: requestID})
	pipe.ZRemRangeByScore(ctx, l.key, "0", strconv.FormatInt(windowStart, 10))
	pipe.ZCard(ctx, l.key)
	pipe.Expire(ctx, l.key, l.windowSize*2)

	cmds, err := pipe.Exec(ctx)
	if err != nil {
		return false, err
	}

	count := cmds[2].(*redis.IntCmd).Val()

	if count > int64(l.limit) {
		l.redisClient.ZRem(ctx, l.key, requestID)
		return false, nil
	}

	return true, nil
}

// StudentRateLimiter layers a per-student bucket under a global one, so a
// single misbehaving client cannot exhaust the vote endpoint for everyone.
type StudentRateLimiter struct {
	redisClient   RedisClient
	globalLimiter RateLimiter
	keyPrefix     string
	rate          int
	burst         int

	mu       sync.Mutex
	limiters map[string]RateLimiter
}

// NewStudentRateLimiter creates the layered limiter.
func NewStudentRateLimiter(client RedisClient, keyPrefix string, globalRate, globalBurst, studentRate, studentBurst int) *StudentRateLimiter {
	return &StudentRateLimiter{
		redisClient:   client,
		globalLimiter: NewTokenBucketRateLimiter(client, keyPrefix+":global", globalRate, globalBurst),
		keyPrefix:     keyPrefix,
		rate:          studentRate,
		burst:         studentBurst,
		limiters:      make(map[string]RateLimiter),
	}
}

func (l *StudentRateLimiter) studentLimiter(studentNumber string) RateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if limiter, ok := l.limiters[studentNumber]; ok {
		return limiter
	}
	limiter := NewTokenBucketRateLimiter(l.redisClient, l.keyPrefix+":student:"+studentNumber, l.rate, l.burst)
	l.limiters[studentNumber] = limiter
	return limiter
}

// AllowStudent checks the global cap first, then the student's own bucket.
func (l *StudentRateLimiter) AllowStudent(ctx context.Context, studentNumber string) (bool, error) {
	allowed, err := l.globalLimiter.Allow(ctx)
	if err != nil || !allowed {
		if err != nil {
			log.Printf("global rate limit check failed: %v", err)
		}
		return allowed, err
	}

	return l.studentLimiter(studentNumber).Allow(ctx)
}
