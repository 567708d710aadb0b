//go:build linux

// Package netfront is BLINK's NetworkFrontEnd: a single goroutine driving
// one non-blocking listening socket and a table of non-blocking client
// sockets through a reactor.Reactor, parsing RESP commands off each
// connection's inbound buffer and dispatching them against an
// engine.Engine. There is exactly one reader of the engine at a time and
// no per-connection goroutine, matching the "single-threaded, event-driven"
// shape the source describes — the concurrency the engine itself needs
// (the background writer, singleflight) lives below this layer.
package netfront

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"

	"github.com/blinkdb/blink/internal/engine"
	"github.com/blinkdb/blink/internal/reactor"
	"github.com/blinkdb/blink/internal/resp"
)

// readBufSize is how many bytes are pulled off a readable socket per
// readiness event, matching the original's fixed-size recv buffer.
const readBufSize = 4096

// Options configures a Server.
type Options struct {
	Logger zerolog.Logger
}

// Server is BLINK's front end: one listening socket, one reactor, and a
// table of connections, all driven from the goroutine that calls Run.
type Server struct {
	engine *engine.Engine
	log    zerolog.Logger

	react *reactor.Reactor

	listenFd int
	stopR    int // read end of the self-pipe used to wake epoll_wait
	stopW    int // write end; Stop() writes one byte here

	conns map[int]*conn

	stopped chan struct{}
}

// New creates a Server bound to addr but not yet accepting connections;
// call Run to start serving.
func New(addr string, eng *engine.Engine, opt Options) (*Server, error) {
	listenFd, err := listen(addr)
	if err != nil {
		return nil, err
	}

	r, err := reactor.Open()
	if err != nil {
		unix.Close(listenFd)
		return nil, err
	}

	stopR, stopW, err := selfPipe()
	if err != nil {
		r.Close()
		unix.Close(listenFd)
		return nil, err
	}

	if err := r.AddRead(listenFd); err != nil {
		return nil, err
	}
	if err := r.AddRead(stopR); err != nil {
		return nil, err
	}

	return &Server{
		engine:   eng,
		log:      opt.Logger,
		react:    r,
		listenFd: listenFd,
		stopR:    stopR,
		stopW:    stopW,
		conns:    make(map[int]*conn),
		stopped:  make(chan struct{}),
	}, nil
}

// listen builds the raw non-blocking listening socket the spec's readiness
// model requires: accept4 with SOCK_NONBLOCK rather than the net package's
// blocking Accept, so a slow accept never stalls the reactor loop.
func listen(addr string) (int, error) {
	sa, err := resolveAddr(addr)
	if err != nil {
		return -1, err
	}

	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return -1, fmt.Errorf("netfront: socket: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netfront: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netfront: bind: %w", err)
	}
	if err := unix.Listen(fd, 1024); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("netfront: listen: %w", err)
	}
	return fd, nil
}

// selfPipe opens a non-blocking pipe used purely as a wake-up signal: Stop
// writes a byte to stopW so the blocked epoll_wait returns immediately
// rather than waiting for the next client event.
func selfPipe() (r, w int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK); err != nil {
		return -1, -1, fmt.Errorf("netfront: pipe2: %w", err)
	}
	return fds[0], fds[1], nil
}

// Run drives the reactor loop until Stop is called. It returns once the
// loop has exited and every connection has been closed.
func (s *Server) Run() error {
	defer close(s.stopped)

	events := make([]reactor.Event, 256)
	for {
		n, err := s.react.Wait(events)
		if err != nil {
			return fmt.Errorf("netfront: epoll wait: %w", err)
		}
		for i := 0; i < n; i++ {
			ev := events[i]
			switch ev.Fd {
			case s.stopR:
				return s.shutdown()
			case s.listenFd:
				s.acceptLoop()
			default:
				s.handleConnEvent(ev)
			}
		}
	}
}

// Stop wakes the reactor loop and tells it to shut down gracefully. Safe
// to call from a different goroutine (a signal handler, typically).
func (s *Server) Stop() {
	unix.Write(s.stopW, []byte{0})
	<-s.stopped
}

func (s *Server) acceptLoop() {
	for {
		fd, _, err := unix.Accept4(s.listenFd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			s.log.Error().Err(err).Msg("netfront: accept failed")
			return
		}

		unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, 64*1024)

		if err := s.react.AddRead(fd); err != nil {
			s.log.Error().Err(err).Msg("netfront: failed to register new connection")
			unix.Close(fd)
			continue
		}
		s.conns[fd] = &conn{fd: fd}
	}
}

func (s *Server) handleConnEvent(ev reactor.Event) {
	c, ok := s.conns[ev.Fd]
	if !ok {
		return
	}

	if ev.Readable {
		s.handleReadable(c)
	}
	if c.closed {
		return
	}
	if ev.Writable {
		s.flushPending(c)
	}
	if ev.Closed && len(c.outbuf) == 0 {
		s.closeConn(c)
	}
}

func (s *Server) handleReadable(c *conn) {
	buf := make([]byte, readBufSize)
	for {
		n, err := unix.Read(c.fd, buf)
		if n > 0 {
			c.appendInbound(buf[:n])
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			s.closeConn(c)
			return
		}
		if n == 0 {
			s.closeConn(c)
			return
		}
		if n < len(buf) {
			break
		}
	}

	if !s.processBuffer(c) {
		return
	}
	s.flushPending(c)
}

// processBuffer parses as many complete commands as are buffered, queuing
// a reply for each. It returns false if the connection was closed while
// processing (a fatal protocol error, or an EXIT command).
func (s *Server) processBuffer(c *conn) bool {
	for {
		args, consumed, err := resp.ParseCommand(c.inbuf)
		if err == resp.ErrIncomplete {
			return true
		}
		if perr, ok := err.(*resp.ProtocolError); ok {
			if perr.Consumed == 0 {
				s.closeConn(c)
				return false
			}
			c.queue(resp.Err(perr.Msg))
			c.consume(perr.Consumed)
			continue
		}

		c.consume(consumed)
		if len(args) == 0 {
			continue
		}

		reply, shutdown := s.dispatch(args)
		c.queue(reply)
		if shutdown {
			s.flushPending(c)
			s.closeConn(c)
			return false
		}
	}
}

// flushPending writes as much of outbuf as the socket will accept without
// blocking. Anything left over keeps the connection registered for write
// readiness; once fully drained, write interest is dropped again.
func (s *Server) flushPending(c *conn) {
	for len(c.outbuf) > 0 {
		n, err := unix.Write(c.fd, c.outbuf)
		if n > 0 {
			c.outbuf = c.outbuf[n:]
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			s.closeConn(c)
			return
		}
		if n == 0 {
			break
		}
	}

	wantWrite := len(c.outbuf) > 0
	if wantWrite != c.wantWrite {
		c.wantWrite = wantWrite
		if err := s.react.SetWriteInterest(c.fd, wantWrite); err != nil {
			s.log.Error().Err(err).Msg("netfront: failed to update write interest")
		}
	}
}

func (s *Server) closeConn(c *conn) {
	if c.closed {
		return
	}
	c.closed = true
	s.react.Remove(c.fd)
	unix.Close(c.fd)
	delete(s.conns, c.fd)
}

// shutdown runs once, when Run's loop observes the stop signal: it stops
// accepting new work, gives every connection a chance to flush what it
// already owes its peer, closes every socket, and hands off to the
// engine's own shutdown sequence.
func (s *Server) shutdown() error {
	s.react.Remove(s.listenFd)
	unix.Close(s.listenFd)

	for _, c := range s.conns {
		s.flushPending(c)
		s.closeConn(c)
	}

	unix.Close(s.stopR)
	unix.Close(s.stopW)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.engine.Shutdown(ctx); err != nil {
		s.log.Error().Err(err).Msg("netfront: engine shutdown")
	}

	return s.react.Close()
}
