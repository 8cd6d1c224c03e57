package handlers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"school-evoting-backend/models"
)

// sseClient is one open event-stream connection watching turnout.
type sseClient struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
	done    chan struct{}
}

var (
	sseClients     = make(map[*sseClient]bool)
	sseClientsLock sync.Mutex
)

// HandleTurnoutSSE serves the live turnout feed over Server-Sent Events,
// for clients that cannot hold a WebSocket.
func HandleTurnoutSSE(c *gin.Context) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	client := &sseClient{
		writer:  c.Writer,
		flusher: flusher,
		done:    make(chan struct{}),
	}

	sseClientsLock.Lock()
	sseClients[client] = true
	sseClientsLock.Unlock()

	defer func() {
		sseClientsLock.Lock()
		delete(sseClients, client)
		sseClientsLock.Unlock()
	}()

	// initial snapshot so the page renders without waiting for a vote
	if results, err := currentResults(); err == nil {
		client.sendEvent("turnout", results)
	} else {
		log.Printf("sending initial turnout snapshot failed: %v", err)
	}

	heartbeat := time.NewTicker(15 * time.Second)
	defer heartbeat.Stop()

	notify := c.Request.Context().Done()
	for {
		select {
		case <-notify:
			return
		case <-client.done:
			return
		case <-heartbeat.C:
			client.sendComment("heartbeat")
		}
	}
}

// PushTurnoutUpdate fans the latest tally out to every SSE client.
func PushTurnoutUpdate(results *models.ElectionResults) {
	sseClientsLock.Lock()
	clients := make([]*sseClient, 0, len(sseClients))
	for client := range sseClients {
		clients = append(clients, client)
	}
	sseClientsLock.Unlock()

	for _, client := range clients {
		client.sendEvent("turnout", results)
	}
}

func (c *sseClient) sendEvent(event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		log.Printf("encoding SSE payload failed: %v", err)
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.writer, "event: %s\ndata: %s\n\n", event, payload); err != nil {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		return
	}
	c.flusher.Flush()
}

func (c *sseClient) sendComment(comment string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := fmt.Fprintf(c.writer, ": %s\n\n", comment); err != nil {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		return
	}
	c.flusher.Flush()
}
