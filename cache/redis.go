package cache

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	redisClient *redis.Client
	redisCtx    = context.Background()
	initOnce    sync.Once
	initialized bool
)

// InitRedis initializes the Redis connection from environment
// configuration. When Redis is unreachable (or REDIS_MOCK=true) the package
// falls back to an in-process mock so the application keeps working on a
// single instance; sessions and counters then live in process memory.
func InitRedis() error {
	var initErr error

	initOnce.Do(func() {
		if os.Getenv("REDIS_MOCK") == "true" {
			log.Println("redis mock mode forced via REDIS_MOCK")
			mockMode = true
			initialized = true
			return
		}

		redisAddr := os.Getenv("REDIS_ADDR")
		redisPassword := os.Getenv("REDIS_PASSWORD")
		redisDb := 0

		if dbStr := os.Getenv("REDIS_DB"); dbStr != "" {
			if db, err := strconv.Atoi(dbStr); err == nil {
				redisDb = db
			}
		}

		if redisAddr == "" {
			redisAddr = "localhost:6379"
		}

		log.Printf("initializing redis connection, addr: %s", redisAddr)

		client := redis.NewClient(&redis.Options{
			Addr:        redisAddr,
			Password:    redisPassword,
			DB:          redisDb,
			DialTimeout: 3 * time.Second,
			ReadTimeout: 3 * time.Second,
			PoolSize:    10,
		})

		if _, err := client.Ping(redisCtx).Result(); err != nil {
			log.Printf("redis connection failed: %v, falling back to mock mode", err)
			mockMode = true
			initialized = true
			return
		}

		redisClient = client
		initialized = true
		mockMode = false
		log.Println("redis connection initialized")
	})

	return initErr
}

// GetClient returns the raw Redis client, or an error in mock mode.
func GetClient() (*redis.Client, error) {
	if !initialized {
		return nil, fmt.Errorf("redis client not initialized")
	}
	if mockMode {
		return nil, ErrRedisNotAvailable
	}
	return redisClient, nil
}

// IsMockMode reports whether the package runs without a real Redis.
func IsMockMode() bool {
	return mockMode
}

// CloseRedis closes the Redis connection.
func CloseRedis() {
	if initialized && !mockMode && redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Printf("error closing redis connection: %v", err)
		}
		log.Println("redis connection closed")
	}
}
