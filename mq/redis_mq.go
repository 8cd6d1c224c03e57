package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisMQ is an audit event queue built on Redis lists. Events move from
// the main queue to a processing queue via BRPOPLPUSH, retry with a delay
// on handler failure, and land in a dead-letter queue after maxRetries.
type RedisMQ struct {
	client            *redis.Client
	ctx               context.Context
	processHandler    EventHandler
	isRunning         bool
	stopChan          chan struct{}
	wg                sync.WaitGroup
	processingTimeout time.Duration
	retryDelay        time.Duration
	maxRetries        int
}

const (
	MainQueueName       = "evote_audit_queue"
	ProcessingQueueName = "evote_audit_processing"
	DeadLetterQueueName = "evote_audit_dead_letter"
	RetriesHashName     = "evote_audit_retries"
	seenEventsSetName   = "evote_audit_seen"
)

func NewRedisMQ(redisClient *redis.Client) *RedisMQ {
	return &RedisMQ{
		client:            redisClient,
		ctx:               context.Background(),
		stopChan:          make(chan struct{}),
		processingTimeout: 5 * time.Minute,
		retryDelay:        30 * time.Second,
		maxRetries:        3,
	}
}

func (r *RedisMQ) RegisterHandler(handler EventHandler) {
	r.processHandler = handler
}

// PublishAuditEvent pushes one committed-ballot event onto the main queue.
// The message ID is recorded in a Redis set so redelivered events are
// dropped on the publish side as well.
func (r *RedisMQ) PublishAuditEvent(candidateID uint, castAt int64) error {
	event := AuditEvent{
		CandidateID: candidateID,
		CastAt:      castAt,
		MessageID:   newMessageID(),
	}

	jsonData, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	exists, err := r.client.SIsMember(r.ctx, seenEventsSetName, event.MessageID).Result()
	if err != nil {
		log.Printf("idempotency check failed: %v", err)
	} else if exists {
		return nil
	}

	if err := r.client.SAdd(r.ctx, seenEventsSetName, event.MessageID).Err(); err != nil {
		log.Printf("recording event ID failed: %v", err)
	}
	r.client.Expire(r.ctx, seenEventsSetName, 48*time.Hour)

	if err := r.client.LPush(r.ctx, MainQueueName, jsonData).Err(); err != nil {
		return fmt.Errorf("pushing audit event: %w", err)
	}
	return nil
}

// Start launches the consume loop and the stuck-message sweeper.
func (r *RedisMQ) Start() error {
	if r.processHandler == nil {
		return fmt.Errorf("no event handler registered")
	}
	if r.isRunning {
		return nil
	}

	r.isRunning = true

	r.wg.Add(1)
	go r.consumeLoop()

	r.wg.Add(1)
	go r.timeoutCheckLoop()

	log.Println("Redis audit queue consumer started")
	return nil
}

func (r *RedisMQ) Stop() {
	if !r.isRunning {
		return
	}
	close(r.stopChan)
	r.wg.Wait()
	r.isRunning = false
	log.Println("Redis audit queue consumer stopped")
}

func (r *RedisMQ) consumeLoop() {
	defer r.wg.Done()

	for {
		select {
		case <-r.stopChan:
			return
		default:
			// BRPOPLPUSH moves the event to the processing queue
			// atomically so a crash between pop and handle never
			// loses it
			result, err := r.client.BRPopLPush(r.ctx, MainQueueName, ProcessingQueueName, 1*time.Second).Result()
			if err != nil {
				if err != redis.Nil {
					log.Printf("popping audit event failed: %v", err)
				}
				continue
			}

			go r.processMessage(result)
		}
	}
}

func (r *RedisMQ) timeoutCheckLoop() {
	defer r.wg.Done()

	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			r.requeueStuck()
		}
	}
}

// requeueStuck re-queues events that sat in the processing queue longer
// than processingTimeout, usually because a consumer died mid-handle.
func (r *RedisMQ) requeueStuck() {
	messages, err := r.client.LRange(r.ctx, ProcessingQueueName, 0, -1).Result()
	if err != nil {
		log.Printf("scanning processing queue failed: %v", err)
		return
	}

	now := time.Now().Unix()

	for _, msgData := range messages {
		var event AuditEvent
		if err := json.Unmarshal([]byte(msgData), &event); err != nil {
			log.Printf("decoding stuck event failed: %v", err)
			continue
		}

		if now-event.CastAt <= int64(r.processingTimeout.Seconds()) {
			continue
		}

		retries, _ := r.client.HGet(r.ctx, RetriesHashName, event.MessageID).Int()
		if retries >= r.maxRetries {
			log.Printf("event %s exceeded max retries, dead-lettering", event.MessageID)
			r.moveToDeadLetter(msgData)
			continue
		}

		r.client.HIncrBy(r.ctx, RetriesHashName, event.MessageID, 1)
		r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)

		data := msgData
		time.AfterFunc(r.retryDelay, func() {
			r.client.LPush(r.ctx, MainQueueName, data)
		})
	}
}

func (r *RedisMQ) processMessage(msgData string) {
	var event AuditEvent
	if err := json.Unmarshal([]byte(msgData), &event); err != nil {
		log.Printf("decoding audit event failed: %v", err)
		r.moveToDeadLetter(msgData)
		return
	}

	if err := r.processHandler(event.CandidateID, event.CastAt); err != nil {
		log.Printf("handling audit event %s failed: %v", event.MessageID, err)

		retries, _ := r.client.HGet(r.ctx, RetriesHashName, event.MessageID).Int()
		if retries >= r.maxRetries {
			log.Printf("event %s exceeded max retries, dead-lettering", event.MessageID)
			r.moveToDeadLetter(msgData)
			return
		}

		r.client.HIncrBy(r.ctx, RetriesHashName, event.MessageID, 1)
		r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)

		data := msgData
		time.AfterFunc(r.retryDelay, func() {
			r.client.LPush(r.ctx, MainQueueName, data)
		})
		return
	}

	r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)
}

func (r *RedisMQ) moveToDeadLetter(msgData string) {
	r.client.LPush(r.ctx, DeadLetterQueueName, msgData)
	r.client.LRem(r.ctx, ProcessingQueueName, 1, msgData)
}

// RetryDeadLetters moves every dead-lettered event back to the main queue
// and resets its retry count.
func (r *RedisMQ) RetryDeadLetters() error {
	messages, err := r.client.LRange(r.ctx, DeadLetterQueueName, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("reading dead-letter queue: %w", err)
	}

	count := 0
	for _, msgData := range messages {
		if err := r.client.LPush(r.ctx, MainQueueName, msgData).Err(); err != nil {
			log.Printf("re-queueing dead letter failed: %v", err)
			continue
		}
		r.client.LRem(r.ctx, DeadLetterQueueName, 1, msgData)

		var event AuditEvent
		if json.Unmarshal([]byte(msgData), &event) == nil {
			r.client.HDel(r.ctx, RetriesHashName, event.MessageID)
		}
		count++
	}

	log.Printf("moved %d events from dead-letter back to main queue", count)
	return nil
}

// QueueStats returns the length of each queue.
func (r *RedisMQ) QueueStats() map[string]int64 {
	stats := make(map[string]int64)

	mainLen, _ := r.client.LLen(r.ctx, MainQueueName).Result()
	procLen, _ := r.client.LLen(r.ctx, ProcessingQueueName).Result()
	deadLen, _ := r.client.LLen(r.ctx, DeadLetterQueueName).Result()

	stats["main_queue"] = mainLen
	stats["processing_queue"] = procLen
	stats["dead_letter_queue"] = deadLen
	return stats
}

// ClearAllQueues drops every queue key. Test helper.
func (r *RedisMQ) ClearAllQueues() error {
	return r.client.Del(r.ctx, MainQueueName, ProcessingQueueName, DeadLetterQueueName, RetriesHashName, seenEventsSetName).Err()
}
