package bcp

import (
	"sync"

	"github.com/google/uuid"
)

// ListenerID identifies one local consumer of a subscription.
type ListenerID uuid.UUID

// NewListenerID returns a random ListenerID.
func NewListenerID() ListenerID {
	return ListenerID(uuid.New())
}

func (id ListenerID) String() string {
	return uuid.UUID(id).String()
}

// EventRequester multiplexes local listeners onto one remote subscription
// per key. The peer is told to start sending when a key gets its first
// listener and to stop when it loses its last one.
//
// A requester starts paused: the ledger is kept but nothing is sent until
// Resume, which also announces every key that currently has listeners.
type EventRequester[K comparable] struct {
	logger Logger
	send   func(OutboundMessage)
	start  func(K) OutboundMessage
	stop   func(K) OutboundMessage

	mu        sync.Mutex
	listeners map[K]map[ListenerID]struct{}
	keys      []K
	active    bool
}

// NewEventRequester creates a requester that sends start(key) and stop(key)
// through send.
func NewEventRequester[K comparable](
	send func(OutboundMessage),
	start, stop func(K) OutboundMessage,
	logger Logger,
) *EventRequester[K] {
	if logger == nil {
		logger = defaultLogger("bcp.requester")
	}
	return &EventRequester[K]{
		logger:    logger,
		send:      send,
		start:     start,
		stop:      stop,
		listeners: make(map[K]map[ListenerID]struct{}),
	}
}

// AddListener records interest of id in key. Adding the same listener twice
// is logged and ignored.
func (r *EventRequester[K]) AddListener(id ListenerID, key K) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.listeners[key]
	if !ok {
		set = make(map[ListenerID]struct{})
		r.listeners[key] = set
		r.keys = append(r.keys, key)
	}
	if _, dup := set[id]; dup {
		r.logger.Error("listener already registered", "listener", id, "key", key)
		return
	}

	set[id] = struct{}{}
	if len(set) == 1 && r.active {
		r.send(r.start(key))
	}
}

// RemoveListener drops interest of id in key. Removing a listener that was
// never added is logged and ignored.
func (r *EventRequester[K]) RemoveListener(id ListenerID, key K) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set := r.listeners[key]
	if _, ok := set[id]; !ok {
		r.logger.Error("listener not registered", "listener", id, "key", key)
		return
	}

	delete(set, id)
	if len(set) > 0 {
		return
	}

	delete(r.listeners, key)
	for i, k := range r.keys {
		if k == key {
			r.keys = append(r.keys[:i], r.keys[i+1:]...)
			break
		}
	}
	if r.active {
		r.send(r.stop(key))
	}
}

// Keys returns every key with at least one listener, in the order they
// were first requested.
func (r *EventRequester[K]) Keys() []K {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([]K, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// Listeners returns the number of listeners registered for key.
func (r *EventRequester[K]) Listeners(key K) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.listeners[key])
}

// Resume enables sending and announces every key that has listeners.
func (r *EventRequester[K]) Resume() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.active = true
	for _, key := range r.keys {
		r.send(r.start(key))
	}
}

// Pause stops sending. The ledger keeps changing while paused.
func (r *EventRequester[K]) Pause() {
	r.mu.Lock()
	r.active = false
	r.mu.Unlock()
}
