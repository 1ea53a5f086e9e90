package pool

import (
	"sync"

	"golang.org/x/sys/unix"
)

// RentOutcome classifies what Rent handed back.
type RentOutcome int

const (
	// RentMustConnect means no parked descriptor was available, but the
	// pool has headroom: the caller owns a reserved slot and must connect
	// fresh, then Return the resulting descriptor.
	RentMustConnect RentOutcome = iota
	// RentReused means fd is a live, already-connected descriptor handed
	// back from the ring.
	RentReused
	// RentCapacityReached means the pool is at capacity and holds no
	// parked descriptor; the caller must not use pooling for this attempt.
	RentCapacityReached
)

// NoFD is the sentinel returned alongside RentMustConnect/RentCapacityReached.
const NoFD = -1

// ConnPool is a fixed-capacity ring of reusable socket descriptors for one
// host. Safe for concurrent use.
type ConnPool struct {
	mu         sync.Mutex
	capacity   int
	sockets    []int
	rit, wit   int
	freeWindow int
	shutdown   bool
}

// New returns an empty pool with the given capacity. A capacity of 0
// disables pooling: Rent always reports RentCapacityReached once no slots
// remain to grow into.
func New(capacity int) *ConnPool {
	return &ConnPool{capacity: capacity}
}

// step returns the ring value at *idx, then advances *idx, wrapping to 0
// once it reaches the length of the backing slice.
func (p *ConnPool) step(idx *int) int {
	cur := *idx
	*idx++
	if *idx >= len(p.sockets) {
		*idx = 0
	}
	return cur
}

// Rent returns a parked descriptor if one is available, otherwise reserves
// a slot for the caller to fill via Return once connected.
func (p *ConnPool) Rent() (fd int, outcome RentOutcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freeWindow > 0 {
		p.freeWindow--
		return p.sockets[p.step(&p.rit)], RentReused
	}
	if len(p.sockets) == p.capacity {
		return NoFD, RentCapacityReached
	}
	p.sockets = append(p.sockets, NoFD)
	return NoFD, RentMustConnect
}

// Return parks fd for reuse, or closes it immediately if the pool is shut
// down or has no room left to grow into.
func (p *ConnPool) Return(fd int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.freeWindow >= len(p.sockets) {
		if len(p.sockets) == p.capacity {
			closeFD(fd)
			return
		}
		p.sockets = append(p.sockets, NoFD)
		p.wit = len(p.sockets) - 1
	}

	p.freeWindow++
	if p.shutdown {
		closeFD(fd)
		fd = NoFD
	}
	if p.freeWindow == 1 {
		p.rit = p.wit
	}
	p.sockets[p.step(&p.wit)] = fd
}

// Shutdown closes every currently parked descriptor and flips a flag so
// future Returns close their descriptor immediately instead of parking it.
// Descriptors still checked out to in-flight attempts are untouched; they
// get closed as each one is eventually Returned.
func (p *ConnPool) Shutdown() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.shutdown = true
	for i := 0; i < p.freeWindow; i++ {
		idx := p.step(&p.rit)
		if p.sockets[idx] >= 0 {
			closeFD(p.sockets[idx])
			p.sockets[idx] = NoFD
		}
	}
	p.freeWindow = 0
}

// Len reports the number of slots the pool has grown into so far (parked
// plus rented-and-not-yet-returned).
func (p *ConnPool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sockets)
}

func closeFD(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}
