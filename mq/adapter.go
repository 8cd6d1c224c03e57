package mq

import (
	"fmt"
	"log"
	"sync"

	"school-evoting-backend/cache"
)

// Adapter selects an audit event transport at startup: RocketMQ when a
// name server is reachable, Redis lists otherwise, and the in-process
// mock when both are unavailable (tests, local development).
type Adapter struct {
	rocketEnabled bool
	redisEnabled  bool
	redisMQ       *RedisMQ
	handler       EventHandler
	initOnce      sync.Once
	initialized   bool
}

func NewAdapter() *Adapter {
	return &Adapter{}
}

// Initialize probes the transports. It never returns an error for an
// unreachable broker, only degrades, so the voting path stays usable.
func (a *Adapter) Initialize() error {
	a.initOnce.Do(func() {
		if err := InitRocketMQ(); err == nil && !IsMockMode() {
			a.rocketEnabled = true
			a.initialized = true
			log.Println("audit events: using RocketMQ transport")
			return
		}

		if client, err := cache.GetClient(); err == nil {
			a.redisMQ = NewRedisMQ(client)
			a.redisEnabled = true
			a.initialized = true
			log.Println("audit events: using Redis list transport")
			return
		}

		// InitRocketMQ already put the package in mock mode; publishes
		// dispatch straight to the registered handler
		a.initialized = true
		log.Println("audit events: using in-process transport")
	})

	return nil
}

// RegisterHandler wires the consumer side and starts it.
func (a *Adapter) RegisterHandler(handler EventHandler) error {
	if !a.initialized {
		return fmt.Errorf("audit event adapter not initialized")
	}

	a.handler = handler

	switch {
	case a.rocketEnabled:
		return StartAuditConsumer(handler)
	case a.redisEnabled:
		a.redisMQ.RegisterHandler(handler)
		return a.redisMQ.Start()
	default:
		return StartAuditConsumer(handler)
	}
}

// PublishAuditEvent sends one committed-ballot event over the active
// transport.
func (a *Adapter) PublishAuditEvent(candidateID uint, castAt int64) error {
	if !a.initialized {
		return fmt.Errorf("audit event adapter not initialized")
	}

	if a.redisEnabled {
		return a.redisMQ.PublishAuditEvent(candidateID, castAt)
	}
	return PublishAuditEvent(candidateID, castAt)
}

// RetryDeadLetters re-queues dead-lettered events. Only the Redis
// transport keeps a dead-letter queue.
func (a *Adapter) RetryDeadLetters() error {
	if !a.initialized {
		return fmt.Errorf("audit event adapter not initialized")
	}
	if !a.redisEnabled {
		return fmt.Errorf("active transport has no dead-letter queue")
	}
	return a.redisMQ.RetryDeadLetters()
}

// Stats describes the active transport for the status endpoint.
func (a *Adapter) Stats() map[string]interface{} {
	stats := make(map[string]interface{})

	if !a.initialized {
		stats["status"] = "uninitialized"
		return stats
	}

	switch {
	case a.rocketEnabled:
		stats["transport"] = "rocketmq"
		stats["status"] = "running"
	case a.redisEnabled:
		stats["transport"] = "redis"
		stats["status"] = "running"
		stats["queues"] = a.redisMQ.QueueStats()
	default:
		stats["transport"] = "in-process"
		stats["status"] = "running"
		stats["buffered"] = QueuedEventCount()
	}
	return stats
}

// Close shuts the active transport down.
func (a *Adapter) Close() {
	if a.redisEnabled && a.redisMQ != nil {
		a.redisMQ.Stop()
	}
	CloseRocketMQ()
}
