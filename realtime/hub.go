package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/meinhoongagan/availability-engine/models"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 64
)

// TokenParser resolves a bearer token to the user id it was issued for.
type TokenParser func(token string) (string, error)

// InboundHandler receives client-sent envelopes other than keepalives.
type InboundHandler interface {
	HandleInbound(ctx context.Context, userID string, env Envelope)
}

// Hub tracks every live websocket, tells clients who else is online and
// delivers server events to the users they concern.
type Hub struct {
	upgrader websocket.Upgrader
	parse    TokenParser
	inbound  InboundHandler
	bus      Bus
	logger   *slog.Logger

	mu       sync.RWMutex
	clients  map[string]map[*client]struct{}
	statuses map[string]models.AvailabilityStatus
}

type HubOption func(*Hub)

func WithBus(bus Bus) HubOption {
	return func(h *Hub) { h.bus = bus }
}

func WithInbound(handler InboundHandler) HubOption {
	return func(h *Hub) { h.inbound = handler }
}

func WithHubLogger(logger *slog.Logger) HubOption {
	return func(h *Hub) { h.logger = logger }
}

func NewHub(parse TokenParser, opts ...HubOption) *Hub {
	h := &Hub{
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		parse:    parse,
		logger:   slog.Default(),
		clients:  make(map[string]map[*client]struct{}),
		statuses: make(map[string]models.AvailabilityStatus),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// SetInbound replaces the handler for client-sent events.
func (h *Hub) SetInbound(handler InboundHandler) {
	h.mu.Lock()
	h.inbound = handler
	h.mu.Unlock()
}

// Router exposes the websocket endpoint and a health probe.
func (h *Hub) Router() *mux.Router {
	router := mux.NewRouter()
	router.HandleFunc("/ws", h.HandleWebSocket)
	router.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	return router
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	users := len(h.clients)
	h.mu.RUnlock()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok", "onlineUsers": users})
}

// HandleWebSocket authenticates the caller, upgrades the connection and
// serves it until either side closes.
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := h.parse(bearerToken(r))
	if err != nil || userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "user_id", userID, "error", err)
		return
	}

	c := &client{hub: h, userID: userID, conn: conn, send: make(chan []byte, sendBuffer)}
	first := h.register(c)
	h.logger.Info("websocket connected", "user_id", userID)

	go c.writePump()
	if first {
		h.broadcastPresence(r.Context(), userID, true)
	}

	c.readPump()

	if last := h.unregister(c); last {
		h.broadcastPresence(context.Background(), userID, false)
	}
	h.logger.Info("websocket disconnected", "user_id", userID)
}

// register adds c and queues its presence:init snapshot before any other
// message can reach it. It reports whether c is the user's first connection.
func (h *Hub) register(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[c.userID]
	if !ok {
		conns = make(map[*client]struct{})
		h.clients[c.userID] = conns
	}
	conns[c] = struct{}{}

	if env, err := NewEnvelope(EventPresenceInit, h.snapshotLocked()); err == nil {
		if raw, err := json.Marshal(env); err == nil {
			c.send <- raw
		}
	}
	return !ok
}

func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.clients[c.userID]
	if !ok {
		return false
	}
	if _, ok := conns[c]; !ok {
		return false
	}
	delete(conns, c)
	c.closeSend()
	if len(conns) == 0 {
		delete(h.clients, c.userID)
		return true
	}
	return false
}

func (h *Hub) snapshotLocked() PresenceInit {
	snap := PresenceInit{
		OnlineUsers: make([]PresenceEntry, 0, len(h.clients)),
		Statuses:    make(map[string]models.AvailabilityStatus, len(h.statuses)),
	}
	for userID := range h.clients {
		snap.OnlineUsers = append(snap.OnlineUsers, PresenceEntry{UserID: userID, Online: true})
	}
	sort.Slice(snap.OnlineUsers, func(i, j int) bool { return snap.OnlineUsers[i].UserID < snap.OnlineUsers[j].UserID })
	for userID, status := range h.statuses {
		snap.Statuses[userID] = status
	}
	return snap
}

// IsOnline reports whether userID holds at least one connection to this instance.
func (h *Hub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.clients[userID]
	return ok
}

// SeedStatuses records known availability statuses for future snapshots.
func (h *Hub) SeedStatuses(statuses map[string]models.AvailabilityStatus) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, status := range statuses {
		h.statuses[userID] = status
	}
}

func (h *Hub) setStatus(userID string, status models.AvailabilityStatus) {
	h.mu.Lock()
	h.statuses[userID] = status
	h.mu.Unlock()
}

func (h *Hub) broadcastPresence(ctx context.Context, userID string, online bool) {
	env, err := NewEnvelope(EventPresenceUpdate, PresenceEntry{UserID: userID, Online: online})
	if err != nil {
		return
	}
	h.Broadcast(ctx, env)
}

// SendTo delivers env to every connection of the given users, on every
// instance when a bus is configured.
func (h *Hub) SendTo(ctx context.Context, env Envelope, userIDs ...string) {
	h.dispatch(ctx, Message{Users: userIDs, Envelope: env})
}

// Broadcast delivers env to every connected user.
func (h *Hub) Broadcast(ctx context.Context, env Envelope) {
	h.dispatch(ctx, Message{Broadcast: true, Envelope: env})
}

func (h *Hub) dispatch(ctx context.Context, msg Message) {
	if h.bus != nil {
		err := h.bus.Publish(ctx, msg)
		if err == nil {
			return
		}
		h.logger.Warn("realtime bus publish failed, delivering locally", "event", msg.Envelope.Event, "error", err)
	}
	h.deliver(msg)
}

// deliver writes msg to the matching local connections. A connection whose
// buffer is full is dropped rather than blocking the sender.
func (h *Hub) deliver(msg Message) {
	raw, err := json.Marshal(msg.Envelope)
	if err != nil {
		h.logger.Error("encode envelope", "event", msg.Envelope.Event, "error", err)
		return
	}

	h.mu.RLock()
	var targets []*client
	if msg.Broadcast {
		for _, conns := range h.clients {
			for c := range conns {
				targets = append(targets, c)
			}
		}
	} else {
		for _, userID := range msg.Users {
			for c := range h.clients[userID] {
				targets = append(targets, c)
			}
		}
	}
	h.mu.RUnlock()

	for _, c := range targets {
		if !c.enqueue(raw) {
			h.logger.Warn("dropping slow websocket client", "user_id", c.userID)
			c.conn.Close()
		}
	}
}

// Run relays bus messages to local connections until ctx is done. Without a
// bus it only waits for ctx.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus == nil {
		<-ctx.Done()
		return nil
	}
	err := h.bus.Subscribe(ctx, h.deliver)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, conns := range h.clients {
		for c := range conns {
			c.conn.Close()
		}
	}
}

func (h *Hub) handleInbound(userID string, raw []byte) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.logger.Debug("ignoring malformed websocket frame", "user_id", userID, "error", err)
		return
	}
	h.mu.RLock()
	handler := h.inbound
	h.mu.RUnlock()
	if handler == nil {
		return
	}
	handler.HandleInbound(context.Background(), userID, env)
}

func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
	}
	return ""
}

type client struct {
	hub    *Hub
	userID string
	conn   *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func (c *client) enqueue(raw []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return true
	}
	select {
	case c.send <- raw:
		return true
	default:
		return false
	}
}

func (c *client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *client) readPump() {
	defer c.conn.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("websocket read failed", "user_id", c.userID, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if messageType == websocket.TextMessage {
			c.hub.handleInbound(c.userID, message)
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
