package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	defaultChannel = "relay:orders"
	presenceTTL    = 60 * time.Second
)

// Message is a single event delivered to a connected client.
type Message struct {
	Event string
	Data  []byte
}

type envelope struct {
	UserID string          `json:"user_id"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// Hub fans order events out to connected SSE clients. Events travel
// through a Redis channel so every relay instance sees them no matter
// which instance accepted a given client, and presence keys let other
// services check whether a user is currently connected anywhere.
type Hub struct {
	rdb     *redis.Client
	channel string
	logger  *slog.Logger

	mu      sync.RWMutex
	clients map[string]map[chan Message]struct{}
	closed  bool
}

func NewHub(rdb *redis.Client, logger *slog.Logger) *Hub {
	return &Hub{
		rdb:     rdb,
		channel: defaultChannel,
		logger:  logger,
		clients: make(map[string]map[chan Message]struct{}),
	}
}

// Publish sends an event addressed to a single user through Redis.
// Local delivery happens when Run receives it back, same as for
// clients connected to other instances.
func (h *Hub) Publish(ctx context.Context, userID, event string, data []byte) error {
	payload, err := json.Marshal(envelope{UserID: userID, Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("failed to marshal relay envelope: %w", err)
	}
	if err := h.rdb.Publish(ctx, h.channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish relay event: %w", err)
	}
	return nil
}

// Subscribe registers a client for a user and marks the user online.
// The returned cancel func must be called when the client disconnects.
func (h *Hub) Subscribe(ctx context.Context, userID string) (<-chan Message, func(), error) {
	ch := make(chan Message, 16)

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, nil, fmt.Errorf("hub is shut down")
	}
	if h.clients[userID] == nil {
		h.clients[userID] = make(map[chan Message]struct{})
	}
	h.clients[userID][ch] = struct{}{}
	h.mu.Unlock()

	if err := h.rdb.Set(ctx, presenceKey(userID), "1", presenceTTL).Err(); err != nil {
		h.logger.Warn("failed to set presence key", "error", err, "user_id", userID)
	}

	cancel := func() {
		h.mu.Lock()
		if conns, ok := h.clients[userID]; ok {
			if _, ok := conns[ch]; ok {
				delete(conns, ch)
				close(ch)
			}
			if len(conns) == 0 {
				delete(h.clients, userID)
			}
		}
		remaining := len(h.clients[userID])
		h.mu.Unlock()

		if remaining == 0 {
			if err := h.rdb.Del(context.Background(), presenceKey(userID)).Err(); err != nil {
				h.logger.Warn("failed to clear presence key", "error", err, "user_id", userID)
			}
		}
	}
	return ch, cancel, nil
}

// Heartbeat refreshes the presence TTL for a connected user.
func (h *Hub) Heartbeat(ctx context.Context, userID string) {
	if err := h.rdb.Expire(ctx, presenceKey(userID), presenceTTL).Err(); err != nil {
		h.logger.Warn("failed to refresh presence key", "error", err, "user_id", userID)
	}
}

// Online reports whether the user has a live connection on any instance.
func (h *Hub) Online(ctx context.Context, userID string) (bool, error) {
	n, err := h.rdb.Exists(ctx, presenceKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check presence: %w", err)
	}
	return n > 0, nil
}

// Run subscribes to the Redis channel and dispatches incoming events to
// local clients until the context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	pubsub := h.rdb.Subscribe(ctx, h.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to relay channel: %w", err)
	}

	h.logger.Info("relay hub running", "channel", h.channel)

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				h.logger.Error("failed to decode relay envelope", "error", err)
				continue
			}
			h.deliver(env)
		}
	}
}

func (h *Hub) deliver(env envelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients[env.UserID] {
		select {
		case ch <- Message{Event: env.Event, Data: env.Data}:
		default:
			// Slow client; drop rather than block the hub. The pull
			// API remains the source of truth for anything missed.
			h.logger.Warn("dropping event for slow client", "user_id", env.UserID, "event", env.Event)
		}
	}
}

// Shutdown closes every client channel. Subscribe fails afterwards.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for userID, conns := range h.clients {
		for ch := range conns {
			close(ch)
		}
		delete(h.clients, userID)
	}
}

func presenceKey(userID string) string {
	return "relay:online:" + userID
}
