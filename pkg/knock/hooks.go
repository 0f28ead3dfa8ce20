package knock

import (
	"crypto/rand"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/merlos/openmelib-go/pkg/protocol"
)

// Clock supplies the wall-clock timestamp sealed into each knock. The
// server rejects timestamps outside its replay window, so the clock
// must stay within protocol.ReplayWindowDuration of real time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now calls f.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the operating system clock.
var SystemClock Clock = ClockFunc(time.Now)

// BaseClock serves platforms without a battery-backed RTC: an external
// time source (an NTP reply, provisioning data, a human) anchors the
// clock once via SetBase, and Now returns the anchor advanced by the
// monotonic time elapsed since.
//
// The zero value anchors the Unix epoch on first use. Epoch-based
// timestamps fall outside every server's replay window, so call
// SetBase with real time before knocking.
type BaseClock struct {
	mu    sync.Mutex
	base  time.Time
	setAt time.Time
}

// NewBaseClock returns a BaseClock anchored at base.
func NewBaseClock(base time.Time) *BaseClock {
	c := &BaseClock{}
	c.SetBase(base)
	return c
}

// SetBase anchors the clock: subsequent Now calls return t advanced by
// the monotonic time elapsed since this call.
func (c *BaseClock) SetBase(t time.Time) {
	c.mu.Lock()
	c.base = t
	c.setAt = time.Now()
	c.mu.Unlock()
}

// Now returns the anchored time advanced by the elapsed monotonic time.
func (c *BaseClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.setAt.IsZero() {
		c.base = time.Unix(0, 0)
		c.setAt = time.Now()
	}
	return c.base.Add(time.Since(c.setAt))
}

// Sender delivers a finished knock datagram to the server.
type Sender interface {
	Send(host string, port uint16, packet []byte) error
}

// UDPSender sends knocks through the kernel UDP stack. The host is
// resolved first (IPv4 or IPv6); the datagram is written exactly once.
// The zero value sends without a timeout.
type UDPSender struct {
	// Timeout bounds name resolution, connecting and the socket write.
	// Zero means no limit.
	Timeout time.Duration
}

// Send resolves host, dials UDP and writes the packet as one datagram.
// All failures wrap protocol.ErrSend.
func (s *UDPSender) Send(host string, port uint16, packet []byte) error {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	d := net.Dialer{Timeout: s.Timeout}
	conn, err := d.Dial("udp", addr)
	if err != nil {
		return fmt.Errorf("dialing UDP %s: %w: %v", addr, protocol.ErrSend, err)
	}
	defer conn.Close()

	if s.Timeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(s.Timeout))
	}
	n, err := conn.Write(packet)
	if err != nil {
		return fmt.Errorf("sending knock packet: %w: %v", protocol.ErrSend, err)
	}
	if n != len(packet) {
		return fmt.Errorf("short write (%d of %d bytes): %w", n, len(packet), protocol.ErrSend)
	}
	return nil
}

// Hooks bundles the platform capabilities KnockPacket and Knock depend
// on. A nil *Hooks or a nil field selects the default: crypto/rand, the
// system clock and a plain UDP socket.
type Hooks struct {
	// Rand supplies entropy. A read must fill the buffer completely.
	Rand io.Reader

	// Clock supplies the knock timestamp.
	Clock Clock

	// Sender delivers the finished datagram.
	Sender Sender
}

var defaultSender Sender = &UDPSender{}

func (h *Hooks) rand() io.Reader {
	if h == nil || h.Rand == nil {
		return rand.Reader
	}
	return h.Rand
}

func (h *Hooks) clock() Clock {
	if h == nil || h.Clock == nil {
		return SystemClock
	}
	return h.Clock
}

func (h *Hooks) sender() Sender {
	if h == nil || h.Sender == nil {
		return defaultSender
	}
	return h.Sender
}
