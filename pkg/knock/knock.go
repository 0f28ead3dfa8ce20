package knock

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/merlos/openmelib-go/internal/crypto"
	"github.com/merlos/openmelib-go/pkg/protocol"
)

// KnockOptions holds the parameters for a single SPA knock.
type KnockOptions struct {
	// ServerHost is the hostname or IP address of the openme server.
	ServerHost string

	// ServerUDPPort is the UDP port to send the knock to.
	ServerUDPPort uint16

	// ServerCurve25519PubKey is the server's static Curve25519 public key (32 bytes).
	ServerCurve25519PubKey [crypto.Curve25519KeySize]byte

	// ClientEd25519Seed is the client's signing seed: 32 bytes, or a
	// 64-byte libsodium-style secret key whose first 32 bytes are used.
	ClientEd25519Seed []byte

	// TargetIP is the IP address the server should open the firewall to.
	// Leave nil (or pass an unspecified address) for "use my source IP".
	// Ports are determined by the server's per-client config, not by the client.
	TargetIP net.IP

	// Hooks overrides the platform capabilities. nil uses crypto/rand,
	// the system clock and a plain UDP socket.
	Hooks *Hooks
}

// Knock builds and sends a single SPA knock packet to the server.
// Construction failures are returned as-is; delivery failures wrap
// protocol.ErrSend. The protocol is fire-and-forget: a nil return means
// the datagram was handed to the network, not that the server accepted it.
func Knock(opts *KnockOptions) error {
	if opts == nil || opts.ServerHost == "" {
		return fmt.Errorf("server host: %w", protocol.ErrMissingArgument)
	}

	var pkt [protocol.PacketSize]byte
	err := KnockPacket(&pkt, &opts.ServerCurve25519PubKey, opts.ClientEd25519Seed, opts.TargetIP, opts.Hooks)
	if err != nil {
		return fmt.Errorf("building knock packet: %w", err)
	}

	return opts.Hooks.sender().Send(opts.ServerHost, opts.ServerUDPPort, pkt[:])
}

// HealthCheck attempts a TCP connection to the server's health port and
// returns true if the connection succeeds.
//
// Important: the health port is only open after a successful knock. A
// false return may mean the server is unreachable, but it more commonly
// means the client has not knocked yet (or the knock timeout has
// expired). Use openme-knock status --knock to knock and check in one step.
func HealthCheck(host string, port uint16, timeout time.Duration) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(int(port)))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
