// Package ioudp is the minimal UDP touch-point the core's egress/ingress
// threads drive (spec.md §1 "Sound-card I/O... out of scope" names the
// analogous boundary for audio; this is its network twin — transport
// negotiation, discovery, and encryption live outside this package).
// Listen follows transport.IPTransport.DialPacket's listen idiom (there
// is no Dial); enabling kernel receive timestamps follows facebook-time's
// timestamp package, since an accurate packet arrival time matters to
// the jitter-buffer and watchdog timing spec.md §5 describes.
package ioudp

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
)

// DefaultReadBufferBytes sizes the kernel socket receive buffer large
// enough to absorb a burst of packets between Go scheduler ticks without
// the kernel dropping them before Conn.ReadFrom is called.
const DefaultReadBufferBytes = 1 << 20

// Conn is a UDP socket with kernel receive timestamping enabled where
// supported, so ReadFrom can report when a packet actually arrived
// rather than when the caller got around to reading it.
type Conn struct {
	pc  *net.UDPConn
	ts  bool
}

// Listen binds a UDP socket at address ("host:port" or ":port") and
// enables the options the data-plane ingress thread needs: an enlarged
// receive buffer and, where the platform supports it, SO_TIMESTAMP.
func Listen(address string) (*Conn, error) {
	addr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("ioudp: listen: resolve %q: %w", address, err)
	}
	pc, err := net.ListenUDP("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("ioudp: listen: %w", err)
	}

	c := &Conn{pc: pc}
	if err := pc.SetReadBuffer(DefaultReadBufferBytes); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Listen",
			"error":    err.Error(),
		}).Warn("ioudp: could not enlarge socket receive buffer")
	}
	c.ts = c.enableTimestamping()

	logrus.WithFields(logrus.Fields{
		"function":   "Listen",
		"local_addr": pc.LocalAddr().String(),
		"timestamps": c.ts,
	}).Info("ioudp: socket listening")

	return c, nil
}

func (c *Conn) enableTimestamping() bool {
	raw, err := c.pc.SyscallConn()
	if err != nil {
		return false
	}
	var sockErr error
	err = raw.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_TIMESTAMP, 1)
	})
	if err != nil || sockErr != nil {
		logrus.WithFields(logrus.Fields{
			"function": "enableTimestamping",
		}).Debug("ioudp: kernel receive timestamping unavailable, falling back to time.Now()")
		return false
	}
	return true
}

// oobBufferSize comfortably holds one SCM_TIMESTAMP control message.
const oobBufferSize = 128

// ReadFrom reads one datagram into buf, returning its length, source
// address, and the time it arrived at the kernel. When SO_TIMESTAMP is
// enabled and the kernel attaches a control message, that timestamp is
// used; otherwise it falls back to time.Now() at the point ReadFrom
// returns.
func (c *Conn) ReadFrom(buf []byte) (n int, addr net.Addr, arrival time.Time, err error) {
	if !c.ts {
		n, addr, err = c.pc.ReadFrom(buf)
		if err != nil {
			return 0, nil, time.Time{}, fmt.Errorf("ioudp: read: %w", err)
		}
		return n, addr, time.Now(), nil
	}

	oob := make([]byte, oobBufferSize)
	n, oobn, _, udpAddr, err := c.pc.ReadMsgUDP(buf, oob)
	if err != nil {
		return 0, nil, time.Time{}, fmt.Errorf("ioudp: read: %w", err)
	}
	if ts, ok := parseKernelTimestamp(oob[:oobn]); ok {
		return n, udpAddr, ts, nil
	}
	return n, udpAddr, time.Now(), nil
}

// parseKernelTimestamp extracts a SCM_TIMESTAMP control message's
// (seconds, microseconds) timeval payload, grounded on
// facebook-time/timestamp's scmDataToTime approach to decoding the same
// control message. Timeval field widths are platform-native (8 bytes
// each on every platform this module targets), so the values are read
// directly off the control message bytes rather than through an
// unsafe.Pointer cast onto unix.Timeval.
func parseKernelTimestamp(oob []byte) (time.Time, bool) {
	messages, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return time.Time{}, false
	}
	for _, m := range messages {
		if m.Header.Level != unix.SOL_SOCKET || m.Header.Type != unix.SO_TIMESTAMP {
			continue
		}
		if len(m.Data) < 16 {
			continue
		}
		sec := int64(binary.LittleEndian.Uint64(m.Data[0:8]))
		usec := int64(binary.LittleEndian.Uint64(m.Data[8:16]))
		return time.Unix(sec, usec*1000), true
	}
	return time.Time{}, false
}

// WriteTo writes buf as a single datagram to addr.
func (c *Conn) WriteTo(buf []byte, addr net.Addr) error {
	if _, err := c.pc.WriteTo(buf, addr); err != nil {
		return fmt.Errorf("ioudp: write: %w", err)
	}
	return nil
}

// LocalAddr returns the socket's bound local address.
func (c *Conn) LocalAddr() net.Addr { return c.pc.LocalAddr() }

// Close closes the underlying socket.
func (c *Conn) Close() error {
	if err := c.pc.Close(); err != nil {
		return fmt.Errorf("ioudp: close: %w", err)
	}
	return nil
}
