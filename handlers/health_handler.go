package handlers

import (
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"school-evoting-backend/cache"
	"school-evoting-backend/database"
)

// SystemInfo contains basic system metrics and information.
type SystemInfo struct {
	Status       string                 `json:"status"`
	Version      string                 `json:"version"`
	Uptime       string                 `json:"uptime"`
	StartTime    time.Time              `json:"start_time"`
	CurrentTime  time.Time              `json:"current_time"`
	GoVersion    string                 `json:"go_version"`
	NumGoroutine int                    `json:"num_goroutine"`
	NumCPU       int                    `json:"num_cpu"`
	DBStatus     string                 `json:"db_status"`
	RedisStatus  string                 `json:"redis_status"`
	AuditQueue   map[string]interface{} `json:"audit_queue"`
	Watchers     int                    `json:"turnout_watchers"`
}

var (
	startTime = time.Now()
	version   = "0.1.0" // injected via build flags in releases
)

// HealthCheck is the load balancer probe.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().Format(time.RFC3339),
	})
}

// SystemStatus reports detailed process and dependency health. Admin only.
func SystemStatus(c *gin.Context) {
	dbStatus := "ok"
	sqlDB, err := database.DB.DB()
	if err != nil || sqlDB.Ping() != nil {
		dbStatus = "error"
	}

	redisStatus := "ok"
	if cache.IsMockMode() {
		redisStatus = "mock"
	}

	info := SystemInfo{
		Status:       "ok",
		Version:      version,
		Uptime:       time.Since(startTime).String(),
		StartTime:    startTime,
		CurrentTime:  time.Now(),
		GoVersion:    runtime.Version(),
		NumGoroutine: runtime.NumGoroutine(),
		NumCPU:       runtime.NumCPU(),
		DBStatus:     dbStatus,
		RedisStatus:  redisStatus,
	}
	if mqAdapter != nil {
		info.AuditQueue = mqAdapter.Stats()
	}
	if turnoutHub != nil {
		info.Watchers = turnoutHub.ClientCount()
	}

	c.JSON(http.StatusOK, info)
}

// RetryAuditDeadLetters re-queues failed audit events. Admin only.
func RetryAuditDeadLetters(c *gin.Context) {
	if mqAdapter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "audit queue not configured"})
		return
	}
	if err := mqAdapter.RetryDeadLetters(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "dead letters re-queued"})
}
