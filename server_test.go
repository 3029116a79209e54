package bcp

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"
)

const testTimeout = 5 * time.Second

func loopbackAddr() *net.TCPAddr {
	return &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}
}

// stateRecorder records state transitions of a Server.
type stateRecorder struct {
	mu     sync.Mutex
	states []ConnectionState
}

func (r *stateRecorder) record(c StateChange) {
	r.mu.Lock()
	r.states = append(r.states, c.Current)
	r.mu.Unlock()
}

func (r *stateRecorder) get() []ConnectionState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]ConnectionState(nil), r.states...)
}

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()

	opts = append([]Option{LoggerOption(newRecordingLogger())}, opts...)
	s := NewServer(loopbackAddr(), opts...)
	t.Cleanup(func() {
		_ = s.CloseConnection(context.Background())
	})
	return s
}

func openTestServer(t *testing.T, s *Server) {
	t.Helper()
	if err := s.OpenConnection(context.Background()); err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
}

// testPeer is the remote end of a connection, standing in for the rules engine.
type testPeer struct {
	t      *testing.T
	conn   *net.TCPConn
	reader *bufio.Reader
}

func dialTestPeer(t *testing.T, addr net.Addr) *testPeer {
	t.Helper()

	conn, err := net.DialTCP("tcp", nil, addr.(*net.TCPAddr))
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return &testPeer{t: t, conn: conn, reader: bufio.NewReader(conn)}
}

func (p *testPeer) write(data string) {
	p.t.Helper()
	if _, err := p.conn.Write([]byte(data)); err != nil {
		p.t.Fatalf("peer write failed: %v", err)
	}
}

func (p *testPeer) readLine() string {
	p.t.Helper()

	_ = p.conn.SetReadDeadline(time.Now().Add(testTimeout))
	line, err := p.reader.ReadString('\n')
	if err != nil {
		p.t.Fatalf("peer read failed: %v", err)
	}
	return strings.TrimSuffix(line, "\n")
}

func (p *testPeer) expectEOF() {
	p.t.Helper()

	_ = p.conn.SetReadDeadline(time.Now().Add(testTimeout))
	line, err := p.reader.ReadString('\n')
	if err != io.EOF {
		p.t.Fatalf("expected EOF, got line %q err %v", line, err)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func waitState(t *testing.T, s *Server, want ConnectionState) {
	t.Helper()
	waitFor(t, "state "+want.String(), func() bool { return s.State() == want })
}

func receivedLines(s *Server) []string {
	var lines []string
	for {
		m, ok := s.TryDequeueReceived()
		if !ok {
			return lines
		}
		lines = append(lines, m.String())
	}
}

func TestServer_StateMachine(t *testing.T) {
	s := newTestServer(t)
	rec := &stateRecorder{}
	s.OnStateChanged(rec.record)

	if s.State() != NotConnected {
		t.Fatalf("initial state = %v, want %v", s.State(), NotConnected)
	}

	openTestServer(t, s)
	if s.State() != Connecting {
		t.Fatalf("state after open = %v, want %v", s.State(), Connecting)
	}

	dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)

	if err := s.CloseConnection(context.Background()); err != nil {
		t.Fatalf("CloseConnection failed: %v", err)
	}
	if s.State() != NotConnected {
		t.Fatalf("state after close = %v, want %v", s.State(), NotConnected)
	}

	want := []ConnectionState{Connecting, Connected, Disconnecting, NotConnected}
	got := rec.get()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestServer_OpenConnectionTwice(t *testing.T) {
	s := newTestServer(t)
	rec := &stateRecorder{}
	s.OnStateChanged(rec.record)

	openTestServer(t, s)
	addr := s.Addr()
	openTestServer(t, s)

	if s.Addr().String() != addr.String() {
		t.Errorf("listener changed from %v to %v", addr, s.Addr())
	}
	if got := rec.get(); len(got) != 1 || got[0] != Connecting {
		t.Errorf("transitions = %v, want [connecting]", got)
	}

	dialTestPeer(t, addr)
	waitState(t, s, Connected)
}

func TestServer_CloseWithoutPeer(t *testing.T) {
	s := newTestServer(t)

	if err := s.CloseConnection(context.Background()); err != nil {
		t.Fatalf("CloseConnection on idle server failed: %v", err)
	}

	openTestServer(t, s)
	if err := s.CloseConnection(context.Background()); err != nil {
		t.Fatalf("CloseConnection failed: %v", err)
	}
	if s.State() != NotConnected {
		t.Errorf("state = %v, want %v", s.State(), NotConnected)
	}
	if s.Addr() != nil {
		t.Errorf("Addr = %v, want nil", s.Addr())
	}

	// The server can be opened again after a close.
	openTestServer(t, s)
	if s.State() != Connecting {
		t.Errorf("state after reopen = %v, want %v", s.State(), Connecting)
	}
}

func TestServer_BindError(t *testing.T) {
	occupied, err := net.ListenTCP("tcp", loopbackAddr())
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}
	defer occupied.Close()

	s := NewServer(occupied.Addr().(*net.TCPAddr), LoggerOption(newRecordingLogger()))
	if err := s.OpenConnection(context.Background()); err == nil {
		t.Fatal("expected error for occupied port")
	}
	if s.State() != NotConnected {
		t.Errorf("state = %v, want %v", s.State(), NotConnected)
	}
}

func TestServer_Framing(t *testing.T) {
	s := newTestServer(t)
	openTestServer(t, s)
	peer := dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)

	peer.write("hello?version=1.1\nswitch?name=a&state=1\n")
	waitFor(t, "two messages", func() bool { return s.inbound.len() == 2 })

	got := receivedLines(s)
	want := []string{"hello?version=1.1", "switch?name=a&state=1"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("message %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestServer_PartialLine(t *testing.T) {
	s := newTestServer(t)
	openTestServer(t, s)
	peer := dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)

	peer.write("trigger?name=")
	time.Sleep(50 * time.Millisecond)
	if n := s.inbound.len(); n != 0 {
		t.Fatalf("inbound = %d before terminator, want 0", n)
	}

	peer.write("ball_started\n")
	waitFor(t, "terminated message", func() bool { return s.inbound.len() == 1 })

	if got := receivedLines(s); got[0] != "trigger?name=ball_started" {
		t.Errorf("message = %q", got[0])
	}
}

func TestServer_CommentsAndMalformedLines(t *testing.T) {
	logger := newRecordingLogger()
	s := newTestServer(t, LoggerOption(logger))
	openTestServer(t, s)
	peer := dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)

	peer.write("# comment\n\n#hello?version=1.1\nswitch?name=a&state=int:x\ntrigger?name=after\n")
	waitFor(t, "valid message", func() bool { return s.inbound.len() == 1 })

	if got := receivedLines(s); got[0] != "trigger?name=after" {
		t.Errorf("message = %q, want trigger?name=after", got[0])
	}
	if s.State() != Connected {
		t.Errorf("state = %v, want %v", s.State(), Connected)
	}
	if !logger.has(slog.LevelError, "failed to decode message") {
		t.Error("malformed line was not logged")
	}
}

func TestServer_SendRetainedAndQueued(t *testing.T) {
	s := newTestServer(t)
	s.Enqueue(NewMessage("trigger", Param("name", "queued while disconnected")))

	openTestServer(t, s)
	peer := dialTestPeer(t, s.Addr())

	if got := peer.readLine(); got != "trigger?name=queued%20while%20disconnected" {
		t.Errorf("first line = %q", got)
	}

	s.Enqueue(NewMessage("switch", Param("name", "s1"), Param("state", 1)))
	s.Enqueue(NewMessage("goodbye"))
	if got := peer.readLine(); got != "switch?name=s1&state=int:1" {
		t.Errorf("second line = %q", got)
	}
	if got := peer.readLine(); got != "goodbye" {
		t.Errorf("third line = %q", got)
	}
}

func TestServer_FinalFlushOnClose(t *testing.T) {
	s := newTestServer(t)
	openTestServer(t, s)
	peer := dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)

	s.Enqueue(NewMessage("goodbye"))
	if err := s.CloseConnection(context.Background()); err != nil {
		t.Fatalf("CloseConnection failed: %v", err)
	}

	if got := peer.readLine(); got != "goodbye" {
		t.Errorf("line = %q, want goodbye", got)
	}
	peer.expectEOF()
}

func TestServer_PeerCloseAcceptsNextPeer(t *testing.T) {
	s := newTestServer(t)
	rec := &stateRecorder{}
	s.OnStateChanged(rec.record)
	openTestServer(t, s)

	first := dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)
	first.conn.Close()

	waitFor(t, "second connecting", func() bool {
		states := rec.get()
		return len(states) >= 5 && states[4] == Connecting
	})

	second := dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)
	second.write("trigger?name=again\n")
	waitFor(t, "message from second peer", func() bool { return s.inbound.len() == 1 })

	want := []ConnectionState{Connecting, Connected, Disconnecting, NotConnected, Connecting, Connected}
	got := rec.get()
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("transitions = %v, want %v", got, want)
		}
	}
}

func TestServer_RequestDisconnect(t *testing.T) {
	s := newTestServer(t)
	openTestServer(t, s)
	peer := dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)

	s.RequestDisconnect()
	peer.expectEOF()
	waitState(t, s, Connecting)
}

func TestServer_LineTooLong(t *testing.T) {
	s := newTestServer(t, MaxLineLengthOption(16))
	openTestServer(t, s)
	peer := dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)

	peer.write(strings.Repeat("x", 64))
	waitState(t, s, NotConnected)

	// A failed loop does not block the next open.
	openTestServer(t, s)
	if s.State() != Connecting {
		t.Errorf("state after reopen = %v, want %v", s.State(), Connecting)
	}
}

func TestServer_ContextCancel(t *testing.T) {
	s := newTestServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.OpenConnection(ctx); err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
	peer := dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)

	cancel()
	peer.expectEOF()
	waitState(t, s, NotConnected)
}

func TestServer_OpenConnectionBetweenPeers(t *testing.T) {
	s := newTestServer(t)
	result := make(chan error, 1)
	var once sync.Once
	s.OnStateChanged(func(c StateChange) {
		if c.Previous != Connected || c.Current != Disconnecting {
			return
		}
		// Runs on the loop goroutine, so waiting for the loop here would hang.
		once.Do(func() {
			ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
			defer cancel()
			result <- s.OpenConnection(ctx)
		})
	})
	openTestServer(t, s)
	addr := s.Addr()

	peer := dialTestPeer(t, addr)
	waitState(t, s, Connected)
	peer.conn.Close()

	select {
	case err := <-result:
		if err != nil {
			t.Fatalf("OpenConnection between peers failed: %v", err)
		}
	case <-time.After(2 * testTimeout):
		t.Fatal("OpenConnection between peers did not return")
	}

	waitState(t, s, Connecting)
	if s.Addr().String() != addr.String() {
		t.Errorf("listener changed from %v to %v", addr, s.Addr())
	}
	dialTestPeer(t, addr)
	waitState(t, s, Connected)

	if err := s.CloseConnection(context.Background()); err != nil {
		t.Fatalf("CloseConnection failed: %v", err)
	}
	if s.State() != NotConnected {
		t.Errorf("state after close = %v, want %v", s.State(), NotConnected)
	}
}

func TestServer_OpenConnectionWaitsForShutdown(t *testing.T) {
	s := newTestServer(t)
	rec := &stateRecorder{}
	s.OnStateChanged(rec.record)

	type openResult struct {
		err    error
		states []ConnectionState
	}
	result := make(chan openResult, 1)
	var once sync.Once
	s.OnStateChanged(func(c StateChange) {
		if c.Previous != Connected || c.Current != Disconnecting {
			return
		}
		once.Do(func() {
			go func() {
				err := s.OpenConnection(context.Background())
				result <- openResult{err: err, states: rec.get()}
			}()
		})
	})
	openTestServer(t, s)
	dialTestPeer(t, s.Addr())
	waitState(t, s, Connected)

	if err := s.CloseConnection(context.Background()); err != nil {
		t.Fatalf("CloseConnection failed: %v", err)
	}

	var got openResult
	select {
	case got = <-result:
	case <-time.After(testTimeout):
		t.Fatal("OpenConnection did not return after close")
	}
	if got.err != nil {
		t.Fatalf("OpenConnection failed: %v", got.err)
	}
	if len(got.states) < 4 || got.states[3] != NotConnected {
		t.Fatalf("OpenConnection returned before shutdown finished: %v", got.states)
	}

	waitState(t, s, Connecting)
	want := []ConnectionState{Connecting, Connected, Disconnecting, NotConnected, Connecting}
	states := rec.get()
	if len(states) != len(want) {
		t.Fatalf("transitions = %v, want %v", states, want)
	}
	for i := range want {
		if states[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, states[i], want[i])
		}
	}
	if s.Addr() == nil {
		t.Error("reopened server has no listener")
	}
}
