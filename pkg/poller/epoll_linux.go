//go:build linux

package poller

import (
	"golang.org/x/sys/unix"

	"github.com/cuemby/shardha/pkg/log"
)

const maxEpollEvents = 256

type epollPoller struct {
	epfd     int
	entries  map[int]*epollEntry
	eventBuf [maxEpollEvents]unix.EpollEvent
	ready    []Event
	closed   bool
	warned   map[error]bool
}

type epollEntry struct {
	dir      Direction
	userData any
}

// New returns the platform-native Poller: epoll on Linux.
func New() (Poller, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		epfd:    epfd,
		entries: make(map[int]*epollEntry),
		warned:  make(map[error]bool),
	}, nil
}

func directionToEpoll(dir Direction) uint32 {
	if dir == Write {
		return unix.EPOLLOUT
	}
	return unix.EPOLLIN
}

func (p *epollPoller) Register(fd int, dir Direction, userData any) error {
	if p.closed {
		return ErrClosed
	}
	if _, exists := p.entries[fd]; exists {
		return ErrAlreadyRegistered
	}

	ev := &unix.EpollEvent{Events: directionToEpoll(dir), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, ev); err != nil {
		return err
	}
	p.entries[fd] = &epollEntry{dir: dir, userData: userData}
	return nil
}

func (p *epollPoller) Modify(fd int, dir Direction) error {
	if p.closed {
		return ErrClosed
	}
	entry, exists := p.entries[fd]
	if !exists {
		return ErrFDNotRegistered
	}
	ev := &unix.EpollEvent{Events: directionToEpoll(dir), Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, ev); err != nil {
		return err
	}
	entry.dir = dir
	return nil
}

func (p *epollPoller) Remove(fd int) error {
	if p.closed {
		return ErrClosed
	}
	if _, exists := p.entries[fd]; !exists {
		return ErrFDNotRegistered
	}
	delete(p.entries, fd)
	return unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

func (p *epollPoller) Wait(timeoutMs int) (bool, error) {
	if p.closed {
		return false, ErrClosed
	}

	n, err := unix.EpollWait(p.epfd, p.eventBuf[:], timeoutMs)
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return false, nil
		}
		if !p.warned[err] {
			p.warned[err] = true
			log.WithComponent("poller").Warn().Err(err).Msg("epoll_wait failed")
		}
		return false, err
	}
	if n == 0 {
		p.ready = p.ready[:0]
		return false, nil
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Fd)
		entry, exists := p.entries[fd]
		if !exists {
			continue
		}
		mask := p.eventBuf[i].Events
		p.ready = append(p.ready, Event{
			UserData: entry.userData,
			Readable: mask&unix.EPOLLIN != 0,
			Writable: mask&unix.EPOLLOUT != 0,
			Error:    mask&unix.EPOLLERR != 0,
			Hangup:   mask&unix.EPOLLHUP != 0 || mask&unix.EPOLLRDHUP != 0,
		})
	}
	return len(p.ready) > 0, nil
}

func (p *epollPoller) Ready() []Event {
	return p.ready
}

func (p *epollPoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}
