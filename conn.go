package bcp

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Reasons a session ends without being a transport failure.
var (
	errPeerClosed          = errors.New("peer closed the connection")
	errDisconnectRequested = errors.New("disconnect requested")
)

// aLongTimeAgo is a deadline in the past, used to unblock pending I/O.
var aLongTimeAgo = time.Unix(1, 0)

// conn is a single peer session. It reads and frames inbound lines and
// writes queued outbound messages concurrently until the session ends.
type conn struct {
	rawConn *net.TCPConn
	server  *Server
	logger  Logger
	framer  *lineFramer
}

func newConn(c *net.TCPConn, s *Server) *conn {
	return &conn{
		rawConn: c,
		server:  s,
		logger:  s.logger,
		framer:  newLineFramer(s.opts.maxLineLength),
	}
}

// run starts the read and write loops and blocks until one of them stops.
// Outbound messages still queued at that point are flushed before the
// socket is closed.
func (c *conn) run(ctx context.Context) error {
	c.logger.Info("connection established", "addr", c.addr())

	group, child := errgroup.WithContext(ctx)

	group.Go(func() error {
		return c.readLoop(child)
	})

	group.Go(func() error {
		return c.writeLoop(child)
	})

	err := group.Wait()

	if ferr := c.flush(); ferr != nil {
		c.logger.Debug("final flush failed", "addr", c.addr(), "error", ferr)
	}
	_ = c.rawConn.Close()

	switch {
	case err == nil, errors.Is(err, context.Canceled), errors.Is(err, errDisconnectRequested):
		c.logger.Info("connection closed", "addr", c.addr())
	case errors.Is(err, errPeerClosed):
		c.logger.Info("connection closed by peer", "addr", c.addr())
	default:
		c.logger.Info("connection closed with error", "addr", c.addr(), "error", err)
	}

	return err
}

func (c *conn) addr() net.Addr {
	return c.rawConn.RemoteAddr()
}

// readLoop reads from the socket, frames lines and hands them to the server.
// A pending read is unblocked when ctx is canceled.
func (c *conn) readLoop(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = c.rawConn.SetReadDeadline(aLongTimeAgo)
	})
	defer stop()

	buf := make([]byte, c.server.opts.readBufferSize)
	for {
		n, err := c.rawConn.Read(buf)
		if n > 0 {
			lines, ferr := c.framer.push(buf[:n])
			c.server.receiveLines(lines)
			if ferr != nil {
				return ferr
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, io.EOF) {
				return errPeerClosed
			}
			return errors.Wrap(err, "read failed")
		}
	}
}

// writeLoop flushes the outbound queue every time it is signalled.
func (c *conn) writeLoop(ctx context.Context) error {
	for {
		if err := c.flush(); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.server.disconnect:
			return errDisconnectRequested
		case <-c.server.outboundReady:
		}
	}
}

// flush writes every queued outbound message, oldest first.
func (c *conn) flush() error {
	for {
		msg, ok := c.server.outbound.pop()
		if !ok {
			return nil
		}

		data, err := c.server.opts.codec.Encode(msg)
		if err != nil {
			c.logger.Error("failed to encode message", "command", msg.Command(), "error", err)
			continue
		}

		_ = c.rawConn.SetWriteDeadline(time.Now().Add(c.server.opts.writeTimeout))
		if _, err := c.rawConn.Write(data); err != nil {
			return errors.Wrap(err, "write failed")
		}
		c.server.opts.metrics.messageSent(msg.Command())
	}
}
