package agent

import (
	"errors"
	"fmt"
	"net"

	"golang.org/x/sys/unix"

	"github.com/cuemby/shardha/pkg/config"
)

// errConnectInProgress marks a connect(2) that returned EINPROGRESS (or the
// EINTR/EWOULDBLOCK variants some platforms surface for the same
// condition) — an async connect in flight, not a failure.
var errConnectInProgress = errors.New("agent: connect in progress")

// connectSocket issues connect(2) on fd. A nil error means the connection
// completed synchronously; errConnectInProgress means the caller must wait
// for a writability event and call Conn.CompleteConnect.
func connectSocket(fd int, sa unix.Sockaddr) error {
	err := unix.Connect(fd, sa)
	if err == nil {
		return nil
	}
	if errors.Is(err, unix.EINPROGRESS) || errors.Is(err, unix.EINTR) || errors.Is(err, unix.EWOULDBLOCK) {
		return errConnectInProgress
	}
	return err
}

// closeFD closes fd, ignoring the error the way the rest of pkg/agent
// treats a socket close — there is nothing actionable left to do with it.
func closeFD(fd int) {
	if fd >= 0 {
		_ = unix.Close(fd)
	}
}

// dialSocket creates a non-blocking stream socket for addr, without
// connecting it.
func dialSocket(addr config.Address) (int, error) {
	domain := unix.AF_INET
	if addr.Family == config.FamilyUnix {
		domain = unix.AF_UNIX
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket(): %w", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return -1, fmt.Errorf("set non-blocking: %w", err)
	}
	if domain == unix.AF_INET {
		_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
	}
	return fd, nil
}

// buildSockaddr resolves addr (doing a fresh DNS lookup for inet hosts)
// into the unix.Sockaddr connect(2) needs.
func buildSockaddr(addr config.Address) (unix.Sockaddr, error) {
	if addr.Family == config.FamilyUnix {
		return &unix.SockaddrUnix{Name: addr.Path}, nil
	}

	ip, err := resolveIPv4(addr.Host)
	if err != nil {
		return nil, err
	}
	sa := &unix.SockaddrInet4{Port: addr.Port}
	copy(sa.Addr[:], ip)
	return sa, nil
}

func resolveIPv4(host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("resolve %q: not an IPv4 address", host)
	}
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", host, err)
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, fmt.Errorf("resolve %q: no A record", host)
}

// socketClosedByPeer peeks one byte without consuming it to tell whether a
// pooled, supposedly-idle descriptor was actually closed by the remote end
// while it sat parked.
func socketClosedByPeer(fd int) bool {
	buf := make([]byte, 1)
	n, _, err := unix.Recvfrom(fd, buf, unix.MSG_PEEK)
	if err != nil {
		return false
	}
	return n == 0
}

// socketError reads SO_ERROR off fd, the standard way to learn why an
// asynchronous connect(2) failed once the poller reports it writable with
// the error bit set.
func socketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return fmt.Errorf("connect failed (no errno available)")
	}
	return unix.Errno(errno)
}
