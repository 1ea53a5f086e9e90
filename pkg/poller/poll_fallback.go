//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package poller

import (
	"golang.org/x/sys/unix"

	"github.com/cuemby/shardha/pkg/log"
)

type pollEntry struct {
	fd       int
	dir      Direction
	userData any
}

// pollPoller is the portable fallback backend, built on poll(2) via
// x/sys/unix, for platforms with neither epoll nor kqueue.
type pollPoller struct {
	entries map[int]*pollEntry
	ready   []Event
	closed  bool
	warned  map[error]bool
}

// New returns the portable poll(2)-based Poller.
func New() (Poller, error) {
	return &pollPoller{
		entries: make(map[int]*pollEntry),
		warned:  make(map[error]bool),
	}, nil
}

func (p *pollPoller) Register(fd int, dir Direction, userData any) error {
	if p.closed {
		return ErrClosed
	}
	if _, exists := p.entries[fd]; exists {
		return ErrAlreadyRegistered
	}
	p.entries[fd] = &pollEntry{fd: fd, dir: dir, userData: userData}
	return nil
}

func (p *pollPoller) Modify(fd int, dir Direction) error {
	if p.closed {
		return ErrClosed
	}
	entry, exists := p.entries[fd]
	if !exists {
		return ErrFDNotRegistered
	}
	entry.dir = dir
	return nil
}

func (p *pollPoller) Remove(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, exists := p.entries[fd]; !exists {
		return ErrFDNotRegistered
	}
	delete(p.entries, fd)
	return nil
}

func (p *pollPoller) Wait(timeoutMs int) (bool, error) {
	if p.closed {
		return false, ErrClosed
	}

	fds := make([]unix.PollFd, 0, len(p.entries))
	order := make([]*pollEntry, 0, len(p.entries))
	for _, entry := range p.entries {
		var events int16 = unix.POLLIN
		if entry.dir == Write {
			events = unix.POLLOUT
		}
		fds = append(fds, unix.PollFd{Fd: int32(entry.fd), Events: events})
		order = append(order, entry)
	}

	n, err := unix.Poll(fds, timeoutMs)
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return false, nil
		}
		if !p.warned[err] {
			p.warned[err] = true
			log.WithComponent("poller").Warn().Err(err).Msg("poll failed")
		}
		return false, err
	}
	if n == 0 {
		p.ready = p.ready[:0]
		return false, nil
	}

	p.ready = p.ready[:0]
	for i, pfd := range fds {
		if pfd.Revents == 0 {
			continue
		}
		entry := order[i]
		p.ready = append(p.ready, Event{
			UserData: entry.userData,
			Readable: pfd.Revents&unix.POLLIN != 0,
			Writable: pfd.Revents&unix.POLLOUT != 0,
			Error:    pfd.Revents&unix.POLLERR != 0,
			Hangup:   pfd.Revents&unix.POLLHUP != 0,
		})
	}
	return len(p.ready) > 0, nil
}

func (p *pollPoller) Ready() []Event {
	return p.ready
}

func (p *pollPoller) Close() error {
	p.closed = true
	return nil
}
