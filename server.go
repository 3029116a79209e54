// Package bcp implements the BCP protocol engine used to talk to an external
// pinball rules engine. It provides the line-oriented text codec, a
// single-peer TCP transport with a connection state machine, and a
// dispatcher with typed handlers and reference-counted remote subscriptions.
package bcp

import (
	"context"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// Server is the BCP transport. It owns one listening port, accepts at most
// one peer at a time and moves messages between the socket and its inbound
// and outbound queues.
type Server struct {
	addr   *net.TCPAddr
	logger Logger
	opts   options

	stateMu        sync.Mutex
	state          ConnectionState
	stateObservers observers[StateChange]

	inbound       messageQueue
	outbound      messageQueue
	outboundReady chan struct{}
	disconnect    chan struct{}

	runMu    sync.Mutex
	listener *net.TCPListener
	loopCtx  context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	stopping bool
}

// NewServer creates a transport for addr. No socket is opened until
// OpenConnection is called.
func NewServer(addr *net.TCPAddr, opt ...Option) *Server {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Server{
		addr:          addr,
		logger:        opts.logger,
		opts:          opts,
		outboundReady: make(chan struct{}, 1),
		disconnect:    make(chan struct{}, 1),
	}
}

// OpenConnection binds the listener and starts the connection loop, which
// runs until ctx is canceled or CloseConnection is called. It is a no-op
// while the loop is running, including the Disconnecting step between two
// peers. If the previous loop is shutting down, OpenConnection waits until
// it has reached NotConnected before binding again.
func (s *Server) OpenConnection(ctx context.Context) error {
	s.runMu.Lock()
	for s.done != nil {
		if !s.stopping && s.loopCtx.Err() == nil {
			s.runMu.Unlock()
			return nil
		}

		done := s.done
		s.runMu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		s.runMu.Lock()
	}

	listener, err := net.ListenTCP("tcp", s.addr)
	if err != nil {
		s.runMu.Unlock()
		return errors.Wrapf(err, "failed to listen on %s", s.addr)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.listener, s.loopCtx, s.cancel, s.done = listener, loopCtx, cancel, done
	s.stopping = false
	s.runMu.Unlock()

	s.setState(Connecting)
	s.logger.Info("server started", "addr", listener.Addr())

	go s.run(loopCtx, listener, done)
	return nil
}

// CloseConnection stops the connection loop and waits until it has reached
// NotConnected. Queued outbound messages are flushed to a connected peer
// before its socket is closed.
func (s *Server) CloseConnection(ctx context.Context) error {
	s.runMu.Lock()
	if s.done == nil {
		s.runMu.Unlock()
		return nil
	}
	s.stopping = true
	cancel, done := s.cancel, s.done
	s.runMu.Unlock()

	if !s.compareAndSetState(Connected, Disconnecting) {
		s.compareAndSetState(Connecting, Disconnecting)
	}
	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// markStopping flags the running loop as on its way to NotConnected, so a
// concurrent OpenConnection waits for it instead of returning early.
func (s *Server) markStopping() {
	s.runMu.Lock()
	if s.done != nil {
		s.stopping = true
	}
	s.runMu.Unlock()
}

// release forgets the loop that owns done.
func (s *Server) release(done chan struct{}) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.done != done {
		return
	}
	s.cancel()
	s.listener, s.loopCtx, s.cancel, s.done = nil, nil, nil, nil
	s.stopping = false
}

// RequestDisconnect ends the current peer session. The listener stays open
// and accepts the next peer.
func (s *Server) RequestDisconnect() {
	if s.State() != Connected {
		return
	}
	select {
	case s.disconnect <- struct{}{}:
	default:
	}
}

// Enqueue queues a message for the peer. Messages queued while no peer is
// connected are kept and sent once one connects.
func (s *Server) Enqueue(m *Message) {
	s.outbound.push(m)
	select {
	case s.outboundReady <- struct{}{}:
	default:
	}
}

// TryDequeueReceived pops the oldest received message, if any.
func (s *Server) TryDequeueReceived() (*Message, bool) {
	return s.inbound.pop()
}

// State returns the current connection state.
func (s *Server) State() ConnectionState {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()
	return s.state
}

// OnStateChanged registers fn to be called on every state transition. The
// returned func unregisters it. fn runs on the goroutine that changed the
// state.
func (s *Server) OnStateChanged(fn func(StateChange)) func() {
	return s.stateObservers.subscribe(fn)
}

// Addr returns the listener's network address, or nil when not listening.
func (s *Server) Addr() net.Addr {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// run is the connection loop: accept a peer, serve it, repeat.
func (s *Server) run(ctx context.Context, listener *net.TCPListener, done chan struct{}) {
	defer func() {
		s.markStopping()
		s.compareAndSetState(Connecting, Disconnecting)
		_ = listener.Close()
		s.setState(NotConnected)
		s.logger.Info("server stopped", "addr", listener.Addr())
		s.release(done)
		close(done)
	}()

	stop := context.AfterFunc(ctx, func() {
		// Set a deadline to unblock Accept
		_ = listener.SetDeadline(aLongTimeAgo)
	})
	defer stop()

	for {
		s.compareAndSetState(NotConnected, Connecting)

		raw, err := listener.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			s.logger.Error("accept error", "error", err)
			return
		}

		s.logger.Debug("accepted connection", "remote_addr", raw.RemoteAddr())
		if err := s.serve(ctx, raw); err != nil {
			s.logger.Error("connection loop stopped", "error", err)
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.compareAndSetState(Disconnecting, NotConnected)
	}
}

// serve runs one peer session. It returns nil when the session ended
// cleanly and the loop may accept the next peer.
func (s *Server) serve(ctx context.Context, raw *net.TCPConn) error {
	if !s.compareAndSetState(Connecting, Connected) {
		_ = raw.Close()
		return nil
	}
	_ = raw.SetNoDelay(true)
	s.opts.metrics.sessionStarted()

	// A request aimed at a previous peer does not apply to this one.
	select {
	case <-s.disconnect:
	default:
	}

	err := newConn(raw, s).run(ctx)
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, errPeerClosed),
		errors.Is(err, errDisconnectRequested):
		err = nil
	}
	if err != nil || ctx.Err() != nil {
		s.markStopping()
	}
	s.compareAndSetState(Connected, Disconnecting)
	return err
}

// receiveLines decodes framed lines into the inbound queue. Comments and
// malformed lines never reach the queue.
func (s *Server) receiveLines(lines []string) {
	for _, line := range lines {
		if isComment(line) {
			continue
		}

		msg, err := s.opts.codec.Decode(line)
		if err != nil {
			s.opts.metrics.parseError()
			s.logger.Error("failed to decode message", "line", line, "error", err)
			continue
		}

		s.opts.metrics.messageReceived(msg.Command())
		s.inbound.push(msg)
	}
}

func (s *Server) setState(to ConnectionState) {
	s.stateMu.Lock()
	prev := s.state
	if prev == to {
		s.stateMu.Unlock()
		return
	}
	s.state = to
	s.stateMu.Unlock()

	s.stateChanged(to, prev)
}

func (s *Server) compareAndSetState(from, to ConnectionState) bool {
	s.stateMu.Lock()
	if s.state != from {
		s.stateMu.Unlock()
		return false
	}
	s.state = to
	s.stateMu.Unlock()

	s.stateChanged(to, from)
	return true
}

func (s *Server) stateChanged(current, previous ConnectionState) {
	s.opts.metrics.setState(current)
	s.logger.Debug("connection state changed", "state", current, "previous", previous)
	s.stateObservers.notify(StateChange{Current: current, Previous: previous})
}
