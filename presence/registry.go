// Package presence keeps a client-side view of who is online and of every
// user's availability status, rebuilt from the server's snapshot on each
// connection and kept current by incremental events.
package presence

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/meinhoongagan/availability-engine/models"
)

// Listener is called after the registry changed. userID is the user whose
// entry changed, or "" after a full resync or a clear.
type Listener func(userID string)

// Registry is the in-memory presence state. Reads and subscriptions are safe
// from any goroutine; mutation only happens through Sync.
type Registry struct {
	mu       sync.RWMutex
	online   map[string]bool
	statuses map[string]models.AvailabilityStatus
	synced   bool

	subMu  sync.Mutex
	subs   map[uint64]*Subscription
	nextID uint64
}

func NewRegistry() *Registry {
	return &Registry{
		online:   make(map[string]bool),
		statuses: make(map[string]models.AvailabilityStatus),
		subs:     make(map[uint64]*Subscription),
	}
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.online[userID]
}

// Status returns the last known availability status of userID.
func (r *Registry) Status(userID string) (models.AvailabilityStatus, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	status, ok := r.statuses[userID]
	return status, ok
}

// Synced reports whether a snapshot arrived since the last clear.
func (r *Registry) Synced() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.synced
}

// OnlineUsers lists the online users in ascending order.
func (r *Registry) OnlineUsers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]string, 0, len(r.online))
	for userID, on := range r.online {
		if on {
			users = append(users, userID)
		}
	}
	sort.Strings(users)
	return users
}

// Subscription is the handle returned by Subscribe.
type Subscription struct {
	registry *Registry
	id       uint64
	listener Listener
	active   atomic.Bool
}

// Unsubscribe stops deliveries to the listener. A call already running on the
// writer goroutine may finish, nothing new is delivered. Calling it more than
// once is harmless.
func (s *Subscription) Unsubscribe() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.registry.subMu.Lock()
	delete(s.registry.subs, s.id)
	s.registry.subMu.Unlock()
}

func (s *Subscription) deliver(userID string) {
	if s.active.Load() {
		s.listener(userID)
	}
}

// Subscribe registers l. If the registry already holds data, l is called once
// right away with "" so it can read the current state.
func (r *Registry) Subscribe(l Listener) *Subscription {
	r.subMu.Lock()
	r.nextID++
	sub := &Subscription{registry: r, id: r.nextID, listener: l}
	sub.active.Store(true)
	r.subs[sub.id] = sub
	r.subMu.Unlock()

	r.mu.RLock()
	hasData := r.synced || len(r.online) > 0 || len(r.statuses) > 0
	r.mu.RUnlock()
	if hasData {
		sub.deliver("")
	}
	return sub
}

// Teardown clears the registry and drops every subscription.
func (r *Registry) Teardown() {
	r.mu.Lock()
	r.online = make(map[string]bool)
	r.statuses = make(map[string]models.AvailabilityStatus)
	r.synced = false
	r.mu.Unlock()

	r.subMu.Lock()
	subs := r.subs
	r.subs = make(map[uint64]*Subscription)
	r.subMu.Unlock()
	for _, sub := range subs {
		sub.active.Store(false)
	}
}

// notify runs outside r.mu so listeners may read the registry.
func (r *Registry) notify(userID string) {
	r.subMu.Lock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.subMu.Unlock()
	sort.Slice(subs, func(i, j int) bool { return subs[i].id < subs[j].id })

	for _, sub := range subs {
		sub.deliver(userID)
	}
}

// reset replaces the whole state with a snapshot and notifies a resync.
func (r *Registry) reset(online map[string]bool, statuses map[string]models.AvailabilityStatus) {
	r.mu.Lock()
	r.online = make(map[string]bool, len(online))
	for userID, on := range online {
		if on {
			r.online[userID] = true
		}
	}
	r.statuses = make(map[string]models.AvailabilityStatus, len(statuses))
	for userID, status := range statuses {
		r.statuses[userID] = status
	}
	r.synced = true
	r.mu.Unlock()

	r.notify("")
}

// setOnline reports whether the belief changed; only a change notifies.
func (r *Registry) setOnline(userID string, online bool) bool {
	r.mu.Lock()
	if r.online[userID] == online {
		r.mu.Unlock()
		return false
	}
	if online {
		r.online[userID] = true
	} else {
		delete(r.online, userID)
	}
	r.mu.Unlock()

	r.notify(userID)
	return true
}

func (r *Registry) setStatus(userID string, status models.AvailabilityStatus) bool {
	r.mu.Lock()
	if current, ok := r.statuses[userID]; ok && current == status {
		r.mu.Unlock()
		return false
	}
	r.statuses[userID] = status
	r.mu.Unlock()

	r.notify(userID)
	return true
}

// clear forgets everything and waits for the next snapshot.
func (r *Registry) clear() {
	r.mu.Lock()
	hadData := r.synced || len(r.online) > 0 || len(r.statuses) > 0
	r.online = make(map[string]bool)
	r.statuses = make(map[string]models.AvailabilityStatus)
	r.synced = false
	r.mu.Unlock()

	if hadData {
		r.notify("")
	}
}
