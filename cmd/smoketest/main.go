// Command smoketest exercises the Redis-backed infrastructure against a
// live Redis: bloom filter, rate limiters, distributed lock and the tally
// cache stampede protection. Run it manually before a deployment.
package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"school-evoting-backend/cache"
	"school-evoting-backend/models"
)

func main() {
	if err := cache.InitRedis(); err != nil {
		log.Fatalf("initializing redis failed: %v", err)
	}
	if cache.IsMockMode() {
		log.Fatal("redis unreachable, smoke test needs a real instance")
	}
	cache.InitDistLock()

	testBloomFilter()
	testRateLimiter()
	testLoginWindow()
	testTallyCache()
}

func testBloomFilter() {
	fmt.Println("=== bloom filter ===")

	filter := cache.InitTokenBloomFilter()
	if filter == nil {
		log.Fatal("bloom filter unavailable")
	}

	ctx := context.Background()
	issued := []string{"KQ2TXM4P", "ZR7WNA93", "BD5HJE62"}
	for _, secret := range issued {
		if err := filter.Add(ctx, secret); err != nil {
			log.Fatalf("adding secret failed: %v", err)
		}
	}

	for _, secret := range issued {
		exists, err := filter.Contains(ctx, secret)
		if err != nil || !exists {
			log.Fatalf("issued secret %s not found (err=%v)", secret, err)
		}
	}

	for _, secret := range []string{"AAAAAAAA", "NEVERISS"} {
		exists, err := filter.Contains(ctx, secret)
		if err != nil {
			log.Fatalf("lookup failed: %v", err)
		}
		if exists {
			log.Printf("false positive on %s (acceptable, should be rare)", secret)
		}
	}

	log.Println("bloom filter ok")
}

func testRateLimiter() {
	fmt.Println("=== token bucket limiter ===")

	client, err := cache.GetClient()
	if err != nil {
		log.Fatalf("getting redis client failed: %v", err)
	}

	// 3 req/s with a burst of 5: of 10 back-to-back requests at most 5 pass
	limiter := cache.NewTokenBucketRateLimiter(client, "smoketest_bucket", 3, 5)

	ctx := context.Background()
	allowed := 0
	for i := 0; i < 10; i++ {
		ok, err := limiter.Allow(ctx)
		if err != nil {
			log.Fatalf("limiter check failed: %v", err)
		}
		if ok {
			allowed++
		}
	}
	log.Printf("burst: %d of 10 allowed", allowed)
	if allowed > 5 {
		log.Fatalf("burst exceeded bucket capacity")
	}

	time.Sleep(2 * time.Second)
	ok, err := limiter.Allow(ctx)
	if err != nil || !ok {
		log.Fatalf("bucket did not refill (err=%v)", err)
	}
	log.Println("token bucket ok")
}

func testLoginWindow() {
	fmt.Println("=== login sliding window ===")

	client, err := cache.GetClient()
	if err != nil {
		log.Fatalf("getting redis client failed: %v", err)
	}

	limiter := cache.NewSlidingWindowRateLimiter(client, "smoketest_login", 10*time.Second, 3)

	ctx := context.Background()
	allowed := 0
	for i := 0; i < 6; i++ {
		ok, err := limiter.Allow(ctx)
		if err != nil {
			log.Fatalf("window check failed: %v", err)
		}
		if ok {
			allowed++
		}
	}
	if allowed != 3 {
		log.Fatalf("expected 3 allowed attempts, got %d", allowed)
	}
	log.Println("sliding window ok")
}

func testTallyCache() {
	fmt.Println("=== tally cache stampede protection ===")

	client, err := cache.GetClient()
	if err != nil {
		log.Fatalf("getting redis client failed: %v", err)
	}

	tally := cache.NewTallyCache(client, cache.GetLockService(), 30*time.Second)
	tally.Invalidate(context.Background())

	var loaderCalls int
	var mu sync.Mutex

	loader := func() (*models.ElectionResults, error) {
		mu.Lock()
		loaderCalls++
		mu.Unlock()
		time.Sleep(500 * time.Millisecond) // simulate a slow tally query
		return &models.ElectionResults{
			TotalVotes:  42,
			TotalVoters: 100,
			Turnout:     42.0,
			GeneratedAt: time.Now(),
		}, nil
	}

	var wg sync.WaitGroup
	start := time.Now()
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			if _, err := tally.Get(context.Background(), loader); err != nil {
				log.Printf("request %d failed: %v", idx+1, err)
			}
		}(i)
	}
	wg.Wait()

	log.Printf("10 concurrent reads finished in %v, loader ran %d time(s)", time.Since(start), loaderCalls)
	if loaderCalls > 2 {
		log.Fatalf("stampede protection failed, loader ran %d times", loaderCalls)
	}
	log.Println("tally cache ok")
}
