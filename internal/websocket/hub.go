package websocket

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"chatengine/server/internal/config"
)

const hookTimeout = 5 * time.Second

func UserChannel(userID int64) string     { return fmt.Sprintf("user:%d", userID) }
func ThreadChannel(threadID int64) string { return fmt.Sprintf("thread:%d", threadID) }
func TenantChannel(tenantID int64) string { return fmt.Sprintf("tenant:%d", tenantID) }

// SessionHooks is told about every session that opens or closes
type SessionHooks interface {
	SessionOpened(ctx context.Context, sessionID string, tenantID, userID int64) error
	SessionClosed(ctx context.Context, sessionID string) error
}

// ThreadGuard decides who may subscribe to a thread channel
type ThreadGuard interface {
	CanJoinThread(ctx context.Context, tenantID, userID, threadID int64) bool
}

// Stats is a snapshot of this instance's connections
type Stats struct {
	Sessions int `json:"sessions"`
	Users    int `json:"users"`
	Channels int `json:"channels"`
}

// Hub maintains the set of active sessions and the channels they listen on
type Hub struct {
	// sessions by session id
	sessions map[string]*Client

	// channel name -> session id -> client
	channels map[string]map[string]*Client

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	// Mutex for thread-safe operations
	mu sync.RWMutex

	cfg     config.GatewayConfig
	hooks   SessionHooks
	guard   ThreadGuard
	relay   Relay
	metrics *Metrics
	origin  string
}

type HubOption func(*Hub)

func WithSessionHooks(hooks SessionHooks) HubOption {
	return func(h *Hub) { h.hooks = hooks }
}

func WithThreadGuard(guard ThreadGuard) HubOption {
	return func(h *Hub) { h.guard = guard }
}

// WithRelay shares every publish with the other gateway instances
func WithRelay(relay Relay) HubOption {
	return func(h *Hub) { h.relay = relay }
}

func WithMetrics(m *Metrics) HubOption {
	return func(h *Hub) { h.metrics = m }
}

// NewHub creates a new WebSocket hub
func NewHub(cfg config.GatewayConfig, opts ...HubOption) *Hub {
	h := &Hub{
		sessions:   make(map[string]*Client),
		channels:   make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		cfg:        cfg,
		origin:     uuid.NewString(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.metrics == nil {
		h.metrics = NewMetrics(nil)
	}
	return h
}

// Configure applies options after construction, for dependencies that
// themselves need the hub. It must be called before Run.
func (h *Hub) Configure(opts ...HubOption) {
	for _, opt := range opts {
		opt(h)
	}
}

// Run starts the hub's main loop. When ctx ends every session is closed.
func (h *Hub) Run(ctx context.Context) {
	if h.relay != nil {
		go h.consumeRelay(ctx)
	}

	for {
		select {
		case client := <-h.register:
			h.registerClient(client)
		case client := <-h.unregister:
			h.unregisterClient(client)
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Register adds a client to the hub. It is a no-op after shutdown.
func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// Unregister removes a client and closes its send queue. Safe to call twice.
func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

func (h *Hub) registerClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	h.sessions[c.ID] = c
	h.join(c, UserChannel(c.UserID))
	h.join(c, TenantChannel(c.TenantID))
	h.metrics.Sessions.Inc()

	log.Info().Str("session", c.ID).Int64("userId", c.UserID).Msg("Client connected")
}

func (h *Hub) unregisterClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true

	for name := range c.channels {
		h.leave(c, name)
	}
	if _, ok := h.sessions[c.ID]; ok {
		delete(h.sessions, c.ID)
		h.metrics.Sessions.Dec()
	}
	close(c.Send)

	log.Info().Str("session", c.ID).Int64("userId", c.UserID).Msg("Client disconnected")
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, c := range h.sessions {
		if !c.closed {
			c.closed = true
			close(c.Send)
		}
	}
	h.sessions = make(map[string]*Client)
	h.channels = make(map[string]map[string]*Client)
	h.metrics.Sessions.Set(0)
	close(h.done)
}

// join and leave expect h.mu to be held
func (h *Hub) join(c *Client, name string) {
	members, ok := h.channels[name]
	if !ok {
		members = make(map[string]*Client)
		h.channels[name] = members
	}
	members[c.ID] = c
	c.channels[name] = struct{}{}
}

func (h *Hub) leave(c *Client, name string) {
	if members, ok := h.channels[name]; ok {
		delete(members, c.ID)
		if len(members) == 0 {
			delete(h.channels, name)
		}
	}
	delete(c.channels, name)
}

// JoinThread subscribes a session to a thread's channel if the guard allows it
func (h *Hub) JoinThread(ctx context.Context, c *Client, threadID int64) bool {
	if h.guard != nil && !h.guard.CanJoinThread(ctx, c.TenantID, c.UserID, threadID) {
		log.Debug().Str("session", c.ID).Int64("threadId", threadID).Msg("Thread join refused")
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return false
	}
	h.join(c, ThreadChannel(threadID))
	return true
}

func (h *Hub) LeaveThread(c *Client, threadID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leave(c, ThreadChannel(threadID))
}

// InChannel reports whether the session listens on a channel
func (h *Hub) InChannel(c *Client, name string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := c.channels[name]
	return ok
}

// ToUsers sends an event to every session of the given users
func (h *Hub) ToUsers(userIDs []int64, ev Event) {
	names := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		names = append(names, UserChannel(id))
	}
	h.Publish(names, ev, 0)
}

// ToThread sends an event to the sessions that joined a thread
func (h *Hub) ToThread(threadID int64, ev Event) {
	h.Publish([]string{ThreadChannel(threadID)}, ev, 0)
}

// ToTenant sends an event to every session of a tenant
func (h *Hub) ToTenant(tenantID int64, ev Event) {
	h.Publish([]string{TenantChannel(tenantID)}, ev, 0)
}

// Publish delivers an event to the channels on this instance and, with a
// relay, on every other instance. Sessions of excludeUser are skipped.
// Nobody listening means the event is dropped.
func (h *Hub) Publish(channels []string, ev Event, excludeUser int64) {
	data, err := Encode(ev)
	if err != nil {
		log.Error().Err(err).Str("kind", string(ev.Kind())).Msg("Failed to marshal event")
		return
	}
	h.metrics.Events.WithLabelValues(string(ev.Kind())).Inc()

	h.deliver(channels, data, excludeUser)

	if h.relay == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	err = h.relay.Publish(ctx, RelayEnvelope{Origin: h.origin, Channels: channels, ExcludeUser: excludeUser, Data: data})
	if err != nil {
		h.metrics.RelayErrors.Inc()
		log.Warn().Err(err).Str("kind", string(ev.Kind())).Msg("Failed to relay event")
	}
}

func (h *Hub) deliver(channels []string, data []byte, excludeUser int64) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[string]bool)
	for _, name := range channels {
		for id, c := range h.channels[name] {
			if seen[id] || (excludeUser != 0 && c.UserID == excludeUser) {
				continue
			}
			seen[id] = true

			select {
			case c.Send <- data:
			default:
				// too slow to keep up; drop the session, the client refetches on reconnect
				h.metrics.Dropped.Inc()
				log.Warn().Str("session", id).Int64("userId", c.UserID).Msg("Send buffer full, closing session")
				go h.Unregister(c)
			}
		}
	}
}

func (h *Hub) consumeRelay(ctx context.Context) {
	err := h.relay.Subscribe(ctx, func(env RelayEnvelope) {
		if env.Origin == h.origin {
			return
		}
		h.deliver(env.Channels, env.Data, env.ExcludeUser)
	})
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Relay subscription ended")
	}
}

func (h *Hub) sessionOpened(c *Client) {
	if h.hooks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := h.hooks.SessionOpened(ctx, c.ID, c.TenantID, c.UserID); err != nil {
		log.Error().Err(err).Str("session", c.ID).Msg("Failed to record session start")
	}
}

func (h *Hub) sessionClosed(c *Client) {
	if h.hooks == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), hookTimeout)
	defer cancel()
	if err := h.hooks.SessionClosed(ctx, c.ID); err != nil {
		log.Error().Err(err).Str("session", c.ID).Msg("Failed to record session end")
	}
}

func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	users := make(map[int64]struct{})
	for _, c := range h.sessions {
		users[c.UserID] = struct{}{}
	}
	return Stats{Sessions: len(h.sessions), Users: len(users), Channels: len(h.channels)}
}
