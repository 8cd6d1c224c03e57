package handlers

import (
	"log"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"school-evoting-backend/cache"
)

// Rate limiting runs against Redis when available and falls back to an
// in-process token bucket otherwise. Login attempts additionally get a
// per-student sliding window so one student brute-forcing secrets does
// not consume the global budget.
var (
	globalLimiter    cache.RateLimiter
	studentLimiter   *cache.StudentRateLimiter
	localLimiter     *rate.Limiter
	rateLimitEnabled bool

	limitStatistics = map[string]int64{}
	limitStatsLock  sync.RWMutex

	rateLimiterConfig = RateLimiterConfig{
		GlobalRate:   100,
		GlobalBurst:  200,
		StudentRate:  5,
		StudentBurst: 10,
		LoginWindow:  time.Minute,
		LoginLimit:   10,
	}
)

// RateLimiterConfig tunes the request and login limiters.
type RateLimiterConfig struct {
	Enabled      bool          `json:"enabled"`
	GlobalRate   int           `json:"global_rate"`
	GlobalBurst  int           `json:"global_burst"`
	StudentRate  int           `json:"student_rate"`
	StudentBurst int           `json:"student_burst"`
	LoginWindow  time.Duration `json:"-"`
	LoginLimit   int           `json:"login_limit"`
}

// InitRateLimiters reads configuration from the environment and builds
// the limiters.
func InitRateLimiters() {
	rateLimitEnabled = os.Getenv("ENABLE_RATE_LIMIT") == "true"

	if v := os.Getenv("GLOBAL_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateLimiterConfig.GlobalRate = n
			rateLimiterConfig.GlobalBurst = n * 2
		}
	}
	if v := os.Getenv("STUDENT_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			rateLimiterConfig.StudentRate = n
			rateLimiterConfig.StudentBurst = n * 2
		}
	}
	rateLimiterConfig.Enabled = rateLimitEnabled

	if rateLimitEnabled {
		resetRateLimiters()
	}
}

func resetRateLimiters() {
	limitStatsLock.Lock()
	limitStatistics = map[string]int64{"total": 0, "allowed": 0, "rejected": 0}
	limitStatsLock.Unlock()

	client, err := cache.GetClient()
	if err != nil {
		// no Redis, keep a single-process limiter instead
		localLimiter = rate.NewLimiter(rate.Limit(rateLimiterConfig.GlobalRate), rateLimiterConfig.GlobalBurst)
		globalLimiter = nil
		studentLimiter = nil
		log.Printf("rate limiting in-process: %d req/s", rateLimiterConfig.GlobalRate)
		return
	}

	globalLimiter = cache.NewTokenBucketRateLimiter(
		client, "global_api",
		rateLimiterConfig.GlobalRate, rateLimiterConfig.GlobalBurst,
	)
	studentLimiter = cache.NewStudentRateLimiter(
		client, "student_api",
		rateLimiterConfig.GlobalRate, rateLimiterConfig.GlobalBurst,
		rateLimiterConfig.StudentRate, rateLimiterConfig.StudentBurst,
	)
	localLimiter = nil
	log.Printf("rate limiting via redis: global=%d/s student=%d/s",
		rateLimiterConfig.GlobalRate, rateLimiterConfig.StudentRate)
}

func bumpStat(key string) {
	limitStatsLock.Lock()
	limitStatistics[key]++
	limitStatsLock.Unlock()
}

// RateLimitMiddleware applies the global limit, plus the per-student limit
// when a voter session is present.
func RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rateLimitEnabled {
			c.Next()
			return
		}

		bumpStat("total")

		allowed := true
		var err error
		switch {
		case globalLimiter != nil:
			allowed, err = globalLimiter.Allow(c)
		case localLimiter != nil:
			allowed = localLimiter.Allow()
		}
		if err != nil || !allowed {
			bumpStat("rejected")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
			return
		}

		if studentNumber := c.GetString(ctxStudentNumber); studentNumber != "" && studentLimiter != nil {
			allowed, err = studentLimiter.AllowStudent(c, studentNumber)
			if err != nil || !allowed {
				bumpStat("rejected")
				c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "too many requests, slow down"})
				return
			}
		}

		bumpStat("allowed")
		c.Next()
	}
}

// allowLoginAttempt applies a sliding window per student number to slow
// down secret guessing. Without Redis it degrades to the global limiter.
func allowLoginAttempt(c *gin.Context, studentNumber string) bool {
	if !rateLimitEnabled {
		return true
	}

	client, err := cache.GetClient()
	if err != nil {
		if localLimiter != nil {
			return localLimiter.Allow()
		}
		return true
	}

	limiter := cache.NewSlidingWindowRateLimiter(
		client, "login:"+studentNumber,
		rateLimiterConfig.LoginWindow, rateLimiterConfig.LoginLimit,
	)
	allowed, err := limiter.Allow(c)
	if err != nil {
		// limiter trouble must not lock students out
		log.Printf("login rate limiter failed: %v", err)
		return true
	}
	return allowed
}

// GetRateLimiterStats reports limiter counters. Admin only.
func GetRateLimiterStats(c *gin.Context) {
	limitStatsLock.RLock()
	stats := gin.H{
		"total_requests":    limitStatistics["total"],
		"allowed_requests":  limitStatistics["allowed"],
		"rejected_requests": limitStatistics["rejected"],
		"config":            rateLimiterConfig,
	}
	limitStatsLock.RUnlock()

	c.JSON(http.StatusOK, stats)
}
