package websocket

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"ai-tutor-be/internal/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// CanvasUpdate is pushed to a student's connected clients when a new canvas
// image has been ingested.
type CanvasUpdate struct {
	StudentId  string    `json:"student_id"`
	SessionId  string    `json:"session_id"`
	ImageUrl   string    `json:"image_url"`
	UploadedAt time.Time `json:"uploaded_at"`
}

type Hub struct {
	// Registered clients map: StudentID -> List of Clients (multi-device)
	clients map[string][]*Client

	// Register requests from the clients.
	register chan *Client

	// Unregister requests from clients.
	unregister chan *Client

	// Lock for safe map access
	mu sync.RWMutex

	// Redis connection for cross-instance communication
	rdb *redis.Client

	// Dedicated Logger
	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		register:   make(chan *Client),
		unregister: make(chan *Client),
		clients:    make(map[string][]*Client),
		rdb:        rdb,
		logger:     log,
	}
}

func (h *Hub) Run() {
	// Start Redis Subscriber if Redis is available
	if h.rdb != nil {
		go h.subscribeToRedis()
	}

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.StudentId] = append(h.clients[client.StudentId], client)
			h.mu.Unlock()
			h.logger.Info("Hub", "Client registered", map[string]interface{}{"student_id": client.StudentId})

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.clients[client.StudentId]; ok {
				for i, c := range clients {
					if c == client {
						h.clients[client.StudentId] = append(clients[:i], clients[i+1:]...)
						close(client.Send)
						break
					}
				}
				if len(h.clients[client.StudentId]) == 0 {
					delete(h.clients, client.StudentId)
					h.logger.Info("Hub", "Client completely unregistered", map[string]interface{}{"student_id": client.StudentId})
				}
			}
			h.mu.Unlock()
		}
	}
}

// NotifyCanvasUpdated pushes a canvas update to every device the student has
// connected, locally and on other instances via Redis.
func (h *Hub) NotifyCanvasUpdated(update CanvasUpdate) {
	data, _ := json.Marshal(map[string]interface{}{
		"type": "canvas_updated",
		"data": update,
	})

	// With Redis, every instance (this one included) delivers through the
	// cluster channel, so local delivery is not duplicated.
	if h.rdb != nil {
		payload := map[string]interface{}{
			"target_student_id": update.StudentId,
			"message":           string(data),
		}
		jsonPayload, _ := json.Marshal(payload)
		if err := h.rdb.Publish(context.Background(), "cluster_events", jsonPayload).Err(); err == nil {
			return
		}
		h.logger.Warn("Hub", "Redis publish failed, delivering locally only", map[string]interface{}{"student_id": update.StudentId})
	}

	h.sendLocal(update.StudentId, data)
}

func (h *Hub) sendLocal(studentId string, data []byte) {
	h.mu.RLock()
	clients, found := h.clients[studentId]
	h.mu.RUnlock()

	if !found {
		return
	}
	for _, client := range clients {
		select {
		case client.Send <- data:
		default:
			// Slow consumer. Unregister closes Send and drops the client.
			h.logger.Warn("Hub", "Client Send buffer full, dropping client", map[string]interface{}{"student_id": studentId})
			h.unregister <- client
		}
	}
}

func (h *Hub) subscribeToRedis() {
	// All instances subscribe to one channel carrying {target_student_id,
	// message}. Each instance forwards to students it holds locally.
	ctx := context.Background()
	pubsub := h.rdb.Subscribe(ctx, "cluster_events")
	defer pubsub.Close()

	ch := pubsub.Channel()

	for msg := range ch {
		var payload struct {
			TargetStudentId string `json:"target_student_id"`
			Message         string `json:"message"`
		}
		if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
			log.Printf("Redis msg parse error: %v", err)
			continue
		}

		h.sendLocal(payload.TargetStudentId, []byte(payload.Message))
	}
}
