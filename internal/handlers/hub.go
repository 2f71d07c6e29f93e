// internal/handlers/hub.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jason-s-yu/rummy/internal/game"
	"github.com/jason-s-yu/rummy/internal/store"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const outQueueSize = 64

// client is one local websocket connection.
type client struct {
	id     string
	userID string
	out    chan []byte

	mu     sync.Mutex
	roomID string
	closed bool
	kick   context.CancelFunc
}

func newClient(userID string, kick context.CancelFunc) *client {
	return &client{
		id:     uuid.NewString(),
		userID: userID,
		out:    make(chan []byte, outQueueSize),
		kick:   kick,
	}
}

func (c *client) room() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

func (c *client) setRoom(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.roomID = id
}

// enqueue never blocks; a client that cannot keep up is dropped.
func (c *client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.out <- data:
		return true
	default:
		c.closed = true
		close(c.out)
		if c.kick != nil {
			c.kick()
		}
		return false
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.out)
	}
}

// envelope carries an event for a connection held by another instance.
type envelope struct {
	ConnID string          `json:"connId"`
	Data   json.RawMessage `json:"data"`
}

// Hub routes events to connections. Connections held by this instance are
// written directly; anything else is published on the shared delivery
// channel for whichever instance holds it.
type Hub struct {
	store  *store.Store
	rdb    *redis.Client
	logger logrus.FieldLogger

	mu      sync.RWMutex
	clients map[string]*client
}

// NewHub returns a hub delivering through st.
func NewHub(st *store.Store, logger logrus.FieldLogger) *Hub {
	return &Hub{
		store:   st,
		rdb:     st.Client(),
		logger:  logger.WithField("component", "hub"),
		clients: make(map[string]*client),
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c.id] = c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	if h.clients[c.id] == c {
		delete(h.clients, c.id)
	}
	h.mu.Unlock()
	c.close()
}

func (h *Hub) local(connID string) (*client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[connID]
	return c, ok
}

// Start subscribes to the delivery channel and serves it until ctx is done.
// It returns once the subscription is confirmed.
func (h *Hub) Start(ctx context.Context) error {
	sub := h.rdb.Subscribe(ctx, store.DeliverChannel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return fmt.Errorf("failed to subscribe to %s: %w", store.DeliverChannel, err)
	}
	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var env envelope
				if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
					h.logger.WithError(err).Warn("dropping malformed delivery")
					continue
				}
				if c, ok := h.local(env.ConnID); ok {
					c.enqueue(env.Data)
				}
			}
		}
	}()
	return nil
}

func (h *Hub) deliver(ctx context.Context, connID string, data []byte) {
	if c, ok := h.local(connID); ok {
		if !c.enqueue(data) {
			h.logger.WithField("conn", connID).Warn("outbound queue full, dropping client")
		}
		return
	}
	env, err := json.Marshal(envelope{ConnID: connID, Data: data})
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal delivery")
		return
	}
	if err := h.rdb.Publish(ctx, store.DeliverChannel, env).Err(); err != nil {
		h.logger.WithError(err).WithField("conn", connID).Error("failed to publish delivery")
	}
}

// Broadcast implements game.Notifier.
func (h *Hub) Broadcast(ctx context.Context, roomID string, ev game.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).WithField("type", ev.Type).Error("failed to marshal event")
		return
	}
	ids, err := h.store.Connections(ctx, roomID)
	if err != nil {
		h.logger.WithError(err).WithField("room", roomID).Error("failed to read roster")
		return
	}
	for _, id := range ids {
		h.deliver(ctx, id, data)
	}
}

// SendToUser implements game.Notifier.
func (h *Hub) SendToUser(ctx context.Context, userID string, ev game.Event) {
	connID, ok, err := h.store.LookupConnection(ctx, userID)
	if err != nil {
		h.logger.WithError(err).WithField("user", userID).Error("failed to look up connection")
		return
	}
	if !ok {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		h.logger.WithError(err).WithField("type", ev.Type).Error("failed to marshal event")
		return
	}
	h.deliver(ctx, connID, data)
}

// sendDirect writes to a local client regardless of identity bindings.
func (h *Hub) sendDirect(c *client, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.WithError(err).Error("failed to marshal message")
		return
	}
	c.enqueue(data)
}
