package presence

import (
	"log/slog"
	"sync"

	"github.com/meinhoongagan/availability-engine/realtime"
)

// Handler consumes the envelopes of one connection.
type Handler interface {
	HandleEnvelope(env realtime.Envelope)
	// HandleClose is called once when the connection ends.
	HandleClose()
}

// Source is one transport connection. AddHandler must deliver envelopes in
// arrival order.
type Source interface {
	AddHandler(h Handler)
}

// Sync applies the presence protocol to a Registry: a presence:init snapshot
// rebuilds it, presence:update and availability:changed adjust one user and
// a closed connection clears it until the next snapshot.
type Sync struct {
	registry *Registry
	forward  func(realtime.Envelope)
	logger   *slog.Logger

	mu       sync.Mutex
	attached map[Source]bool
}

type SyncOption func(*Sync)

// WithForward receives every envelope the protocol does not consume itself,
// such as appointment events.
func WithForward(fn func(realtime.Envelope)) SyncOption {
	return func(s *Sync) { s.forward = fn }
}

func WithSyncLogger(logger *slog.Logger) SyncOption {
	return func(s *Sync) { s.logger = logger }
}

func NewSync(registry *Registry, opts ...SyncOption) *Sync {
	s := &Sync{
		registry: registry,
		logger:   slog.Default(),
		attached: make(map[Source]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Attach starts listening on src. Attaching the same source again does nothing
// and returns false.
func (s *Sync) Attach(src Source) bool {
	s.mu.Lock()
	if s.attached[src] {
		s.mu.Unlock()
		return false
	}
	s.attached[src] = true
	s.mu.Unlock()

	src.AddHandler(&connectionHandler{sync: s, source: src})
	return true
}

type connectionHandler struct {
	sync   *Sync
	source Source
}

func (h *connectionHandler) HandleEnvelope(env realtime.Envelope) {
	h.sync.apply(env)
}

func (h *connectionHandler) HandleClose() {
	h.sync.mu.Lock()
	delete(h.sync.attached, h.source)
	h.sync.mu.Unlock()
	h.sync.registry.clear()
}

func (s *Sync) apply(env realtime.Envelope) {
	switch env.Event {
	case realtime.EventPresenceInit:
		var snap realtime.PresenceInit
		if err := env.Decode(&snap); err != nil {
			s.logger.Warn("malformed presence snapshot", "error", err)
			return
		}
		online := make(map[string]bool, len(snap.OnlineUsers))
		for _, entry := range snap.OnlineUsers {
			if entry.UserID != "" {
				online[entry.UserID] = entry.Online
			}
		}
		s.registry.reset(online, snap.Statuses)

	case realtime.EventPresenceUpdate:
		var update realtime.PresenceEntry
		if err := env.Decode(&update); err != nil || update.UserID == "" {
			s.logger.Warn("malformed presence update", "error", err)
			return
		}
		if !s.registry.Synced() {
			s.logger.Debug("presence update before snapshot ignored", "user_id", update.UserID)
			return
		}
		s.registry.setOnline(update.UserID, update.Online)

	case realtime.EventAvailabilityChanged:
		var change realtime.AvailabilityChanged
		if err := env.Decode(&change); err != nil || change.UserID == "" {
			s.logger.Warn("malformed availability change", "error", err)
			return
		}
		if !s.registry.Synced() {
			s.logger.Debug("availability change before snapshot ignored", "user_id", change.UserID)
			return
		}
		status := change.AvailabilityStatus
		if status == "" {
			status = change.Availability.Status()
		}
		s.registry.setStatus(change.UserID, status)
		if s.forward != nil {
			s.forward(env)
		}

	default:
		if s.forward != nil {
			s.forward(env)
		}
	}
}
