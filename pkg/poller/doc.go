// Package poller provides a uniform, single-threaded readiness abstraction
// over the platform's native I/O multiplexer: epoll on Linux, kqueue on
// Darwin/BSD, and a poll(2) fallback everywhere else x/sys/unix reaches.
// pkg/driver and pkg/dispatch are the only callers; each worker goroutine owns
// exactly one Poller instance over its own subset of connection attempts, so
// no Poller is ever shared across goroutines.
//
// A call to Wait blocks up to a millisecond deadline and reports whether any
// registered descriptor became ready. Ready then yields every descriptor
// reported by that call exactly once, each tagged with the opaque user data
// it was registered with, so the driver never has to map a raw fd back to an
// attempt itself.
package poller
