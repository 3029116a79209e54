package bcp

import "sync"

// OutboundMessage is a typed message that can be sent to the peer.
type OutboundMessage interface {
	ToMessage() *Message
}

// MessageHandler owns one command. Handle parses a generic message and
// delivers the typed result to subscribers.
type MessageHandler interface {
	// Command returns the wire command this handler owns.
	Command() string
	// Category returns the monitoring category the peer must be subscribed
	// to before it sends this command, or CategoryNone.
	Category() MonitoringCategory
	// Handle parses m and notifies subscribers. It panics with a
	// *WrongHandlerError if m is for a different command.
	Handle(m *Message) error
}

// Handler is the MessageHandler for messages of type T.
type Handler[T any] struct {
	command  string
	category MonitoringCategory
	parse    func(*Message) (T, error)

	id         ListenerID
	categories *EventRequester[MonitoringCategory]

	// subMu keeps a subscriber change and its category request together.
	subMu    sync.Mutex
	received observers[T]

	// before and after run around subscriber notification; the Interface
	// uses them for the handshake.
	before func(*Message, T)
	after  func(*Message, T)
}

// NewHandler creates a handler for command. When category is not
// CategoryNone and categories is non-nil, the first subscriber makes the
// handler request the category from the peer and the last unsubscribe
// releases it.
func NewHandler[T any](
	command string,
	category MonitoringCategory,
	parse func(*Message) (T, error),
	categories *EventRequester[MonitoringCategory],
) *Handler[T] {
	return &Handler[T]{
		command:    command,
		category:   category,
		parse:      parse,
		id:         NewListenerID(),
		categories: categories,
	}
}

// Command implements MessageHandler.
func (h *Handler[T]) Command() string {
	return h.command
}

// Category implements MessageHandler.
func (h *Handler[T]) Category() MonitoringCategory {
	return h.category
}

// Subscribe registers fn for every received message and returns a func
// that unregisters it.
func (h *Handler[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	h.subMu.Lock()
	id, first := h.received.add(fn)
	if first && h.requestsCategory() {
		h.categories.AddListener(h.id, h.category)
	}
	h.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.subMu.Lock()
			defer h.subMu.Unlock()

			removed, last := h.received.remove(id)
			if removed && last && h.requestsCategory() {
				h.categories.RemoveListener(h.id, h.category)
			}
		})
	}
}

// Subscribers returns the number of registered subscribers.
func (h *Handler[T]) Subscribers() int {
	return h.received.len()
}

func (h *Handler[T]) requestsCategory() bool {
	return h.category != CategoryNone && h.categories != nil
}

// Handle implements MessageHandler.
func (h *Handler[T]) Handle(m *Message) error {
	if m.Command() != h.command {
		panic(&WrongHandlerError{Expected: h.command, Actual: m.Command()})
	}

	v, err := h.parse(m)
	if err != nil {
		return err
	}

	if h.before != nil {
		h.before(m, v)
	}
	h.received.notify(v)
	if h.after != nil {
		h.after(m, v)
	}
	return nil
}
