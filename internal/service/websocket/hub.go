package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"farmsentry/internal/dto"
	"farmsentry/internal/logger"

	"github.com/gorilla/websocket"
)

// ErrBroadcastFailure is returned when at least one subscriber could not be
// reached. The others still received the message.
var ErrBroadcastFailure = errors.New("broadcast failure")

// ErrHubStopped is returned once Run has exited.
var ErrHubStopped = errors.New("hub stopped")

const writeWait = 10 * time.Second

type outbound struct {
	data   []byte
	result chan int // number of failed clients
}

// HubService fans alert messages out to websocket subscribers.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan outbound
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

// NewHubService creates a hub. Nothing is delivered until Run is started and
// Run can only be started once.
func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan outbound),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes every
// client.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client connected. Total: %d", count)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			count := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Client disconnected. Total: %d", count)

		case msg := <-h.broadcast:
			msg.result <- h.deliver(msg.data)
		}
	}
}

// deliver writes data to every client, dropping those whose write fails.
func (h *HubService) deliver(data []byte) int {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	failed := 0
	for client := range h.clients {
		client.SetWriteDeadline(time.Now().Add(writeWait))
		if err := client.WriteMessage(websocket.TextMessage, data); err != nil {
			h.logger.Error("Error sending message: %v", err)
			delete(h.clients, client)
			client.Close()
			failed++
		}
	}
	return failed
}

// Register adds a subscriber.
func (h *HubService) Register(ctx context.Context, client *websocket.Conn) error {
	select {
	case h.register <- client:
		return nil
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Unregister removes and closes a subscriber.
func (h *HubService) Unregister(ctx context.Context, client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
		client.Close()
	case <-ctx.Done():
	}
}

// Broadcast sends a raw message to every subscriber and waits for delivery.
func (h *HubService) Broadcast(ctx context.Context, data []byte) error {
	msg := outbound{data: data, result: make(chan int, 1)}

	select {
	case h.broadcast <- msg:
	case <-h.done:
		return ErrHubStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case failed := <-msg.result:
		if failed > 0 {
			return fmt.Errorf("%w: %d client(s) dropped", ErrBroadcastFailure, failed)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BroadcastAlert wraps payload in an "alert" envelope and broadcasts it.
func (h *HubService) BroadcastAlert(ctx context.Context, payload dto.AlertPayload) error {
	data, err := json.Marshal(dto.Envelope{
		Type:      "alert",
		Data:      payload,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBroadcastFailure, err)
	}

	if err := h.Broadcast(ctx, data); err != nil {
		return err
	}
	h.logger.Info("📣 Alert %s broadcast to %d client(s)", payload.ID, h.GetClientCount())
	return nil
}

// GetClientCount returns the number of connected subscribers.
func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
