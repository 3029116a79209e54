package bcp

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Interface is the single facade a host holds. It owns the Server, drains
// received messages into their handlers on every host tick and answers the
// hello/reset/goodbye handshake.
type Interface struct {
	server   *Server
	logger   Logger
	opts     interfaceOptions
	handlers *Handlers

	categories *EventRequester[MonitoringCategory]
	events     *EventRequester[string]

	resetRequested observers[struct{}]
	resetCompleted observers[struct{}]

	// lifecycle serializes StartServer and StopServer.
	lifecycle   *semaphore.Weighted
	drainCtx    context.Context
	drainCancel context.CancelFunc
	drainDone   chan struct{}

	tickMu sync.Mutex
}

// NewInterface creates an Interface listening on addr once started.
func NewInterface(addr *net.TCPAddr, opt ...InterfaceOption) *Interface {
	var opts interfaceOptions
	for _, o := range opt {
		o(&opts)
	}
	checkInterfaceOptions(&opts)

	serverOpts := append([]Option{LoggerOption(opts.logger), MetricsOption(opts.metrics)}, opts.serverOptions...)

	i := &Interface{
		server:    NewServer(addr, serverOpts...),
		logger:    opts.logger,
		opts:      opts,
		lifecycle: semaphore.NewWeighted(1),
	}

	i.categories = NewEventRequester(i.EnqueueMessage,
		func(c MonitoringCategory) OutboundMessage { return MonitorStart{Category: c} },
		func(c MonitoringCategory) OutboundMessage { return MonitorStop{Category: c} },
		opts.logger,
	)
	i.events = NewEventRequester(i.EnqueueMessage,
		func(event string) OutboundMessage { return RegisterTrigger{Event: event} },
		func(event string) OutboundMessage { return RemoveTrigger{Event: event} },
		opts.logger,
	)
	i.handlers = newHandlers(i.categories, opts.handlers, opts.logger)
	i.installHandshake()

	// Subscriptions only reach a peer that has completed a handshake.
	i.server.OnStateChanged(func(StateChange) {
		i.categories.Pause()
		i.events.Pause()
	})
	i.resetCompleted.subscribe(func(struct{}) {
		i.categories.Resume()
		i.events.Resume()
	})

	return i
}

func (i *Interface) installHandshake() {
	i.handlers.Hello.before = func(*Message, Hello) {
		i.resetRequested.notify(struct{}{})
	}
	i.handlers.Hello.after = func(m *Message, h Hello) {
		if h.Version == ProtocolVersion {
			i.EnqueueMessage(Hello{
				Version:           ProtocolVersion,
				ControllerName:    i.opts.controllerName,
				ControllerVersion: i.opts.controllerVersion,
			})
		} else {
			i.logger.Warn("unsupported protocol version", "version", h.Version, "supported", ProtocolVersion)
			i.EnqueueMessage(ErrorMessage{Message: "unknown protocol version", Command: m.String()})
		}
		i.resetCompleted.notify(struct{}{})
	}

	i.handlers.Reset.before = func(*Message, Reset) {
		i.resetRequested.notify(struct{}{})
	}
	i.handlers.Reset.after = func(*Message, Reset) {
		i.EnqueueMessage(ResetComplete{})
		i.resetCompleted.notify(struct{}{})
	}

	i.handlers.Goodbye.after = func(*Message, Goodbye) {
		i.server.RequestDisconnect()
	}
}

// StartServer opens the transport and starts the drain loop. Both run
// until ctx is canceled or StopServer is called. It is a no-op when the
// server is already running.
func (i *Interface) StartServer(ctx context.Context) error {
	if err := i.lifecycle.Acquire(ctx, 1); err != nil {
		return err
	}
	defer i.lifecycle.Release(1)

	if err := i.server.OpenConnection(ctx); err != nil {
		return err
	}

	// A drain bound to an earlier, canceled ctx is on its way out.
	if i.drainDone != nil && i.drainCtx.Err() != nil {
		select {
		case <-i.drainDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		i.drainCancel()
		i.drainCtx, i.drainCancel, i.drainDone = nil, nil, nil
	}

	if i.drainDone == nil {
		drainCtx, cancel := context.WithCancel(ctx)
		i.drainCtx, i.drainCancel, i.drainDone = drainCtx, cancel, make(chan struct{})
		go i.drain(drainCtx, i.drainDone)
	}
	return nil
}

// StopServer says goodbye to a connected peer, stops the drain loop and
// closes the transport, waiting for both. It is a no-op when nothing runs.
func (i *Interface) StopServer(ctx context.Context) error {
	if err := i.lifecycle.Acquire(ctx, 1); err != nil {
		return err
	}
	defer i.lifecycle.Release(1)

	if i.server.State() == Connected {
		i.EnqueueMessage(Goodbye{})
	}

	if i.drainDone != nil {
		i.drainCancel()
		select {
		case <-i.drainDone:
		case <-ctx.Done():
			return ctx.Err()
		}
		i.drainCtx, i.drainCancel, i.drainDone = nil, nil, nil
	}

	return i.server.CloseConnection(ctx)
}

// drain calls Tick on every host tick.
func (i *Interface) drain(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticks := i.opts.ticks
	if ticks == nil {
		ticker := time.NewTicker(i.opts.tickInterval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ticks:
			if !ok {
				return
			}
			i.Tick()
		}
	}
}

// Tick dispatches received messages until the queue is empty or the frame
// budget is spent, and returns how many were dispatched. A Tick started
// from a handler returns 0.
func (i *Interface) Tick() int {
	if !i.tickMu.TryLock() {
		return 0
	}
	defer i.tickMu.Unlock()

	start := i.opts.clock.Now()
	n := 0
	for i.opts.clock.Now().Sub(start) < i.opts.frameBudget {
		msg, ok := i.server.TryDequeueReceived()
		if !ok {
			break
		}
		i.dispatch(msg)
		n++
	}
	return n
}

func (i *Interface) dispatch(m *Message) {
	if i.opts.logReceived {
		i.logger.Info("message received", "message", m.String())
	}

	handler, ok := i.handlers.Lookup(m.Command())
	if !ok {
		i.opts.metrics.unknownCommand()
		i.logger.Error("no handler registered for command", "command", m.Command(), "message", m.String())
		i.EnqueueMessage(ErrorMessage{Message: "unknown command", Command: m.String()})
		return
	}

	start := i.opts.clock.Now()
	err := handler.Handle(m)
	i.opts.metrics.observeDispatch(i.opts.clock.Now().Sub(start))
	if err == nil {
		return
	}

	if errors.Is(err, ErrParse) {
		i.opts.metrics.parseError()
		i.logger.Error("failed to parse message", "message", m.String(), "error", err)
		return
	}
	i.logger.Error("message handler failed", "command", m.Command(), "error", err)
}

// EnqueueMessage queues a message for the peer.
func (i *Interface) EnqueueMessage(m OutboundMessage) {
	msg := m.ToMessage()
	if i.opts.logSent {
		i.logger.Info("message sent", "message", msg.String())
	}
	i.server.Enqueue(msg)
}

// ConnectionState returns the transport state.
func (i *Interface) ConnectionState() ConnectionState {
	return i.server.State()
}

// OnConnectionStateChanged registers fn for transport state changes.
func (i *Interface) OnConnectionStateChanged(fn func(StateChange)) func() {
	return i.server.OnStateChanged(fn)
}

// OnResetRequested registers fn to run when the peer starts a session or
// asks for a reset, before the reply is queued.
func (i *Interface) OnResetRequested(fn func()) func() {
	return i.resetRequested.subscribe(func(struct{}) { fn() })
}

// OnResetCompleted registers fn to run after the hello or reset reply has
// been queued.
func (i *Interface) OnResetCompleted(fn func()) func() {
	return i.resetCompleted.subscribe(func(struct{}) { fn() })
}

// Handlers returns the handler registry.
func (i *Interface) Handlers() *Handlers {
	return i.handlers
}

// Categories returns the monitoring category requester.
func (i *Interface) Categories() *EventRequester[MonitoringCategory] {
	return i.categories
}

// Events returns the trigger requester.
func (i *Interface) Events() *EventRequester[string] {
	return i.events
}

// Addr returns the listening address, or nil when not listening.
func (i *Interface) Addr() net.Addr {
	return i.server.Addr()
}
