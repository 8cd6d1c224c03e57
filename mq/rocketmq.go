package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/google/uuid"
)

// AuditEvent is the record published after a ballot is committed. It
// deliberately carries no voter identity, only the tallied candidate and
// the commit time. MessageID is used for idempotent consumption.
type AuditEvent struct {
	CandidateID uint   `json:"candidate_id"`
	CastAt      int64  `json:"cast_at"`
	MessageID   string `json:"message_id"`
}

// EventHandler processes one committed-ballot event.
type EventHandler func(candidateID uint, castAt int64) error

const TopicAuditEvents = "evote_audit"

var (
	rocketProducer rocketmq.Producer
	rocketConsumer rocketmq.PushConsumer
	initOnce       sync.Once
	isInitialized  bool
	mockMode       bool
	mockEvents     []AuditEvent
	mockMutex      sync.Mutex
	processHandler EventHandler

	// in-process idempotency set; real deployments lean on the Redis set
	// kept by RedisMQ, this one covers the RocketMQ and mock paths
	seenEvents      = make(map[string]bool)
	seenEventsMutex sync.RWMutex
)

// InitRocketMQ starts the audit event producer. When ROCKETMQ_MOCK=true or
// no name server answers, the package degrades to an in-process mock that
// dispatches events directly to the registered handler.
func InitRocketMQ() error {
	var initErr error

	initOnce.Do(func() {
		if os.Getenv("ROCKETMQ_MOCK") == "true" {
			log.Println("RocketMQ mock mode forced via environment")
			mockMode = true
			isInitialized = true
			return
		}

		nameServerAddr := os.Getenv("ROCKETMQ_NAMESRV_ADDR")
		if nameServerAddr == "" {
			nameServerAddr = "localhost:9876"
		}

		p, err := rocketmq.NewProducer(
			producer.WithNameServer([]string{nameServerAddr}),
			producer.WithGroupName("evote_audit_producer"),
			producer.WithRetry(2),
			producer.WithSendMsgTimeout(10*time.Second),
			producer.WithVIPChannel(false),
		)
		if err != nil {
			log.Printf("creating RocketMQ producer failed, using mock mode: %v", err)
			mockMode = true
			isInitialized = true
			return
		}

		if err := p.Start(); err != nil {
			log.Printf("starting RocketMQ producer failed, using mock mode: %v", err)
			mockMode = true
			isInitialized = true
			return
		}

		rocketProducer = p
		isInitialized = true
		log.Printf("RocketMQ audit producer connected to %s", nameServerAddr)
	})

	return initErr
}

// IsMockMode reports whether the package fell back to the in-process mock.
func IsMockMode() bool {
	return mockMode
}

// IsInitialized reports whether InitRocketMQ has run.
func IsInitialized() bool {
	return isInitialized
}

func newMessageID() string {
	return uuid.New().String()
}

func isEventSeen(messageID string) bool {
	seenEventsMutex.RLock()
	defer seenEventsMutex.RUnlock()
	return seenEvents[messageID]
}

func markEventSeen(messageID string) {
	seenEventsMutex.Lock()
	defer seenEventsMutex.Unlock()
	seenEvents[messageID] = true

	// expire the entry so the map does not grow without bound
	go func(id string) {
		time.Sleep(24 * time.Hour)
		seenEventsMutex.Lock()
		delete(seenEvents, id)
		seenEventsMutex.Unlock()
	}(messageID)
}

// PublishAuditEvent sends one committed-ballot event. In mock mode the
// event is stored locally and handed straight to the registered handler.
func PublishAuditEvent(candidateID uint, castAt int64) error {
	if !isInitialized {
		return fmt.Errorf("audit event producer not initialized")
	}

	event := AuditEvent{
		CandidateID: candidateID,
		CastAt:      castAt,
		MessageID:   newMessageID(),
	}

	if mockMode {
		mockMutex.Lock()
		mockEvents = append(mockEvents, event)
		handler := processHandler
		mockMutex.Unlock()

		if handler != nil {
			go func() {
				if isEventSeen(event.MessageID) {
					return
				}
				if err := handler(event.CandidateID, event.CastAt); err != nil {
					log.Printf("mock mode: handling audit event failed: %v", err)
					return
				}
				markEventSeen(event.MessageID)
			}()
		}
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}

	message := primitive.NewMessage(TopicAuditEvents, body)
	message.WithTag("ballot")
	message.WithKeys([]string{event.MessageID})
	// shard by candidate so per-candidate tallies replay in order
	message.WithShardingKey(fmt.Sprintf("%d", candidateID))

	res, err := rocketProducer.SendSync(context.Background(), message)
	if err != nil {
		return fmt.Errorf("sending audit event: %w", err)
	}

	log.Printf("audit event sent, msg=%s queue=%s", res.MsgID, res.MessageQueue.String())
	return nil
}

// StartAuditConsumer subscribes handler to committed-ballot events. In mock
// mode no real consumer exists; PublishAuditEvent dispatches directly.
func StartAuditConsumer(handler EventHandler) error {
	mockMutex.Lock()
	processHandler = handler
	mockMutex.Unlock()

	if mockMode {
		log.Println("mock mode: audit consumer registered in-process")
		return nil
	}

	nameServerAddr := os.Getenv("ROCKETMQ_NAMESRV_ADDR")
	if nameServerAddr == "" {
		nameServerAddr = "localhost:9876"
	}

	c, err := rocketmq.NewPushConsumer(
		consumer.WithNameServer([]string{nameServerAddr}),
		consumer.WithGroupName("evote_audit_consumer"),
		consumer.WithConsumerModel(consumer.Clustering),
		consumer.WithConsumeFromWhere(consumer.ConsumeFromLastOffset),
	)
	if err != nil {
		return fmt.Errorf("creating audit consumer: %w", err)
	}

	err = c.Subscribe(TopicAuditEvents, consumer.MessageSelector{
		Type:       consumer.TAG,
		Expression: "ballot",
	}, func(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
		for _, msg := range msgs {
			var event AuditEvent
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				log.Printf("decoding audit event failed: %v", err)
				continue
			}

			if isEventSeen(event.MessageID) {
				continue
			}

			if err := handler(event.CandidateID, event.CastAt); err != nil {
				log.Printf("handling audit event failed: %v", err)
				return consumer.ConsumeRetryLater, nil
			}

			markEventSeen(event.MessageID)
		}
		return consumer.ConsumeSuccess, nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to audit topic: %w", err)
	}

	if err := c.Start(); err != nil {
		return fmt.Errorf("starting audit consumer: %w", err)
	}

	rocketConsumer = c
	log.Println("RocketMQ audit consumer started")
	return nil
}

// CloseRocketMQ shuts down the producer and consumer.
func CloseRocketMQ() {
	if mockMode {
		return
	}

	if rocketConsumer != nil {
		if err := rocketConsumer.Shutdown(); err != nil {
			log.Printf("shutting down audit consumer: %v", err)
		}
	}
	if rocketProducer != nil {
		if err := rocketProducer.Shutdown(); err != nil {
			log.Printf("shutting down audit producer: %v", err)
		}
	}
}

// QueuedEventCount returns how many events the mock has buffered. Returns
// -1 outside mock mode.
func QueuedEventCount() int {
	if !mockMode {
		return -1
	}
	mockMutex.Lock()
	defer mockMutex.Unlock()
	return len(mockEvents)
}
