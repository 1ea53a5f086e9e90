//go:build darwin || freebsd || netbsd || openbsd

package poller

import (
	"golang.org/x/sys/unix"

	"github.com/cuemby/shardha/pkg/log"
)

const maxKqueueEvents = 256

type kqueuePoller struct {
	kq       int
	entries  map[int]*kqueueEntry
	eventBuf [maxKqueueEvents]unix.Kevent_t
	ready    []Event
	closed   bool
	warned   map[error]bool
}

type kqueueEntry struct {
	dir      Direction
	userData any
}

// New returns the platform-native Poller: kqueue on Darwin/BSD.
func New() (Poller, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)
	return &kqueuePoller{
		kq:      kq,
		entries: make(map[int]*kqueueEntry),
		warned:  make(map[error]bool),
	}, nil
}

func filterFor(dir Direction) int16 {
	if dir == Write {
		return unix.EVFILT_WRITE
	}
	return unix.EVFILT_READ
}

func (p *kqueuePoller) changeOne(fd int, filter int16, flags uint16) error {
	kev := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flags}
	_, err := unix.Kevent(p.kq, []unix.Kevent_t{kev}, nil, nil)
	return err
}

func (p *kqueuePoller) Register(fd int, dir Direction, userData any) error {
	if p.closed {
		return ErrClosed
	}
	if _, exists := p.entries[fd]; exists {
		return ErrAlreadyRegistered
	}
	if err := p.changeOne(fd, filterFor(dir), unix.EV_ADD|unix.EV_ENABLE); err != nil {
		return err
	}
	p.entries[fd] = &kqueueEntry{dir: dir, userData: userData}
	return nil
}

func (p *kqueuePoller) Modify(fd int, dir Direction) error {
	if p.closed {
		return ErrClosed
	}
	entry, exists := p.entries[fd]
	if !exists {
		return ErrFDNotRegistered
	}
	if entry.dir == dir {
		return nil
	}
	if err := p.changeOne(fd, filterFor(entry.dir), unix.EV_DELETE); err != nil {
		return err
	}
	if err := p.changeOne(fd, filterFor(dir), unix.EV_ADD|unix.EV_ENABLE); err != nil {
		return err
	}
	entry.dir = dir
	return nil
}

func (p *kqueuePoller) Remove(fd int) error {
	if p.closed {
		return ErrClosed
	}
	entry, exists := p.entries[fd]
	if !exists {
		return ErrFDNotRegistered
	}
	delete(p.entries, fd)
	return p.changeOne(fd, filterFor(entry.dir), unix.EV_DELETE)
}

func (p *kqueuePoller) Wait(timeoutMs int) (bool, error) {
	if p.closed {
		return false, ErrClosed
	}

	var ts *unix.Timespec
	if timeoutMs >= 0 {
		ts = &unix.Timespec{
			Sec:  int64(timeoutMs / 1000),
			Nsec: int64((timeoutMs % 1000) * 1000000),
		}
	}

	n, err := unix.Kevent(p.kq, nil, p.eventBuf[:], ts)
	if err != nil {
		if err == unix.EINTR || err == unix.EAGAIN || err == unix.EWOULDBLOCK {
			return false, nil
		}
		if !p.warned[err] {
			p.warned[err] = true
			log.WithComponent("poller").Warn().Err(err).Msg("kevent wait failed")
		}
		return false, err
	}
	if n == 0 {
		p.ready = p.ready[:0]
		return false, nil
	}

	p.ready = p.ready[:0]
	for i := 0; i < n; i++ {
		fd := int(p.eventBuf[i].Ident)
		entry, exists := p.entries[fd]
		if !exists {
			continue
		}
		kev := &p.eventBuf[i]
		p.ready = append(p.ready, Event{
			UserData: entry.userData,
			Readable: kev.Filter == unix.EVFILT_READ,
			Writable: kev.Filter == unix.EVFILT_WRITE,
			Error:    kev.Flags&unix.EV_ERROR != 0,
			Hangup:   kev.Flags&unix.EV_EOF != 0,
		})
	}
	return len(p.ready) > 0, nil
}

func (p *kqueuePoller) Ready() []Event {
	return p.ready
}

func (p *kqueuePoller) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.kq)
}
