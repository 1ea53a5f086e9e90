package agent

import (
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

// ClientProtocolVersion is the 4-byte value this dispatcher announces
// during the handshake.
const ClientProtocolVersion uint32 = 1

// staleHostOrderVersion is a historical quirk: a handful of daemon builds
// echoed the protocol version back in host byte order instead of network
// order. Accepting this exact value alongside the correct one avoids
// treating every such daemon as a protocol mismatch.
const staleHostOrderVersion uint32 = 0x01000000

// commandPersist is the wire opcode that asks the remote host to keep this
// connection open for reuse.
const commandPersist uint16 = 0x0003

// maxReplyPacketSize bounds the length field of an incoming reply header;
// anything larger is treated as a corrupt/malicious frame rather than an
// allocation request.
const maxReplyPacketSize = 128 << 20

// ReplyStatus is the status word carried by a reply header.
type ReplyStatus uint16

const (
	StatusOK      ReplyStatus = 0
	StatusError   ReplyStatus = 1
	StatusRetry   ReplyStatus = 2
	StatusWarning ReplyStatus = 3
)

func (s ReplyStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusRetry:
		return "retry"
	case StatusWarning:
		return "warning"
	default:
		return "unknown"
	}
}

// replyHeaderSize is the fixed 8-byte layout: uint16 status, uint16
// version, int32 length.
const replyHeaderSize = 8

// ErrWouldBlock signals that a readiness-triggered syscall came back empty
// handed (EAGAIN/EWOULDBLOCK) despite the poller reporting the descriptor
// ready — a level-triggered poller can still report this on a shared
// listener or a genuinely spurious wakeup. Every Conn step method returns
// this verbatim so callers can tell "no progress yet, try again next
// event" apart from a real failure.
var ErrWouldBlock = errors.New("agent: socket not actually ready")

func wouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK)
}

// rawWrite writes the entirety of buf to fd in one call. Because pkg/agent
// only ever writes small, fixed messages (the handshake word, the persist
// prelude, one request frame) after the poller reports writability, a
// short write is treated the same as the reference implementation treats
// it: a network failure, not something to resume.
func rawWrite(fd int, buf []byte) error {
	n, err := unix.Write(fd, buf)
	if err != nil {
		if wouldBlock(err) {
			return ErrWouldBlock
		}
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("agent: short write (sent %d of %d bytes)", n, len(buf))
	}
	return nil
}

// rawReadFull issues a single read of up to len(buf) bytes from fd and
// returns how many arrived, which can be fewer than len(buf); callers that
// need a whole fixed-size message check the count themselves.
func rawReadFull(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		if wouldBlock(err) {
			return 0, ErrWouldBlock
		}
		return 0, err
	}
	return n, nil
}

// writeHandshake sends this dispatcher's protocol version.
func writeHandshake(fd int) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], ClientProtocolVersion)
	return rawWrite(fd, buf[:])
}

// readHandshakeVersion reads the remote's protocol version without checking
// it. n is 0 and err is nil for an orderly close; callers check n and the
// version (isAcceptedVersion) themselves, since the right Outcome differs
// between the two.
func readHandshakeVersion(fd int) (version uint32, n int, err error) {
	var buf [4]byte
	n, err = rawReadFull(fd, buf[:])
	if err != nil {
		return 0, n, err
	}
	version = binary.BigEndian.Uint32(buf[:])
	return version, n, nil
}

func isAcceptedVersion(v uint32) bool {
	return v == ClientProtocolVersion || v == staleHostOrderVersion
}

// writeCommandPersist sends the fixed command-persist prelude: opcode,
// dummy version, a 4-byte body length, and a body of exactly "1".
func writeCommandPersist(fd int) error {
	var buf [12]byte
	binary.BigEndian.PutUint16(buf[0:2], commandPersist)
	binary.BigEndian.PutUint16(buf[2:4], 0)
	binary.BigEndian.PutUint32(buf[4:8], 4)
	binary.BigEndian.PutUint32(buf[8:12], 1)
	return rawWrite(fd, buf[:])
}

// replyHeader is the 8-byte prefix of every reply frame.
type replyHeader struct {
	status  ReplyStatus
	version uint16
	length  int32
}

// readReplyHeader reads and validates the reply frame's fixed header.
func readReplyHeader(fd int) (replyHeader, error) {
	var buf [replyHeaderSize]byte
	n, err := rawReadFull(fd, buf[:])
	if err != nil {
		return replyHeader{}, err
	}
	if n != replyHeaderSize {
		return replyHeader{}, fmt.Errorf("agent: incomplete reply header (got %d of %d bytes)", n, replyHeaderSize)
	}

	hdr := replyHeader{
		status:  ReplyStatus(binary.BigEndian.Uint16(buf[0:2])),
		version: binary.BigEndian.Uint16(buf[2:4]),
		length:  int32(binary.BigEndian.Uint32(buf[4:8])),
	}
	if hdr.length < 0 || hdr.length > maxReplyPacketSize {
		return replyHeader{}, fmt.Errorf("agent: invalid reply packet size %d", hdr.length)
	}
	return hdr, nil
}
