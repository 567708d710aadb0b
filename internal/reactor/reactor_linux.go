//go:build linux

// Package reactor is BLINK's readiness-notification primitive: the host
// collaborator the spec deliberately leaves unspecified ("the core
// requires only a readiness-notification primitive from the host... the
// choice of kernel event facility is out of scope"). On Linux that
// primitive is epoll, reached directly through golang.org/x/sys/unix
// rather than through net.Conn's blocking facade, so the front end's
// accept/read/write loop can be driven explicitly by readiness events the
// way the spec describes it.
package reactor

import "golang.org/x/sys/unix"

// Event reports one fd's readiness after a Wait call.
type Event struct {
	Fd       int
	Readable bool
	Writable bool
	Closed   bool // peer hangup or an error condition; treat as EOF
}

// Reactor wraps a single epoll instance, level-triggered (the simplest
// mode, and the one that matches the original kqueue-based design: a
// readiness event keeps firing until the socket is fully drained).
type Reactor struct {
	epfd int
}

// Open creates a new epoll instance.
func Open() (*Reactor, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &Reactor{epfd: fd}, nil
}

// Close releases the epoll instance.
func (r *Reactor) Close() error { return unix.Close(r.epfd) }

// AddRead registers fd for read readiness.
func (r *Reactor) AddRead(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_ADD, fd, &ev)
}

// SetWriteInterest switches fd between read-only and read+write interest.
// Connections register for write readiness only while a pending write
// would otherwise block (EAGAIN), and drop it again once drained.
func (r *Reactor) SetWriteInterest(fd int, want bool) error {
	events := uint32(unix.EPOLLIN)
	if want {
		events |= unix.EPOLLOUT
	}
	ev := unix.EpollEvent{Events: events, Fd: int32(fd)}
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
}

// Remove deregisters fd. Safe to call after the fd has already been
// closed by the kernel's own implicit epoll cleanup.
func (r *Reactor) Remove(fd int) error {
	return unix.EpollCtl(r.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks until at least one registered fd is ready (or the call is
// interrupted), filling events and returning how many were written.
func (r *Reactor) Wait(events []Event) (int, error) {
	raw := make([]unix.EpollEvent, len(events))
	n, err := unix.EpollWait(r.epfd, raw, -1)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	for i := 0; i < n; i++ {
		e := raw[i]
		events[i] = Event{
			Fd:       int(e.Fd),
			Readable: e.Events&unix.EPOLLIN != 0,
			Writable: e.Events&unix.EPOLLOUT != 0,
			Closed:   e.Events&(unix.EPOLLHUP|unix.EPOLLRDHUP|unix.EPOLLERR) != 0,
		}
	}
	return n, nil
}
