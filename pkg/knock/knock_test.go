package knock_test

import (
	"errors"
	"net"
	"testing"
	"time"

	"github.com/merlos/openmelib-go/internal/crypto"
	"github.com/merlos/openmelib-go/pkg/knock"
	"github.com/merlos/openmelib-go/pkg/protocol"
)

func buildTestOptions(t *testing.T, f *fixture, host string, port uint16) *knock.KnockOptions {
	t.Helper()
	opts := &knock.KnockOptions{
		ServerHost:             host,
		ServerUDPPort:          port,
		ServerCurve25519PubKey: f.serverPub,
		ClientEd25519Seed:      f.seed,
	}
	return opts
}

func TestKnock_DeliversVerifiablePacket(t *testing.T) {
	f := newFixture(t)

	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer conn.Close()
	port := uint16(conn.LocalAddr().(*net.UDPAddr).Port)

	opts := buildTestOptions(t, f, "127.0.0.1", port)
	opts.TargetIP = net.ParseIP("192.0.2.7")
	if err := knock.Knock(opts); err != nil {
		t.Fatalf("Knock error = %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 512)
	n, _, err := conn.ReadFrom(buf)
	if err != nil {
		t.Fatalf("reading knock datagram: %v", err)
	}
	if n != protocol.PacketSize {
		t.Fatalf("datagram size = %d, want %d", n, protocol.PacketSize)
	}

	pkt := buf[:n]
	if !crypto.Verify(f.clientPub, pkt[:protocol.SignedPortionSize], pkt[protocol.OffSignature:]) {
		t.Error("received packet signature does not verify")
	}
	pt := f.open(t, pkt)
	if !pt.TargetIP.Equal(net.ParseIP("192.0.2.7")) {
		t.Errorf("target IP = %v, want 192.0.2.7", pt.TargetIP)
	}
	if d := time.Since(pt.Timestamp); d < 0 || d > protocol.ReplayWindowDuration {
		t.Errorf("timestamp %v is outside the replay window", pt.Timestamp)
	}
}

func TestKnock_MissingArguments(t *testing.T) {
	f := newFixture(t)

	if err := knock.Knock(nil); !errors.Is(err, protocol.ErrMissingArgument) {
		t.Errorf("Knock(nil) error = %v, want ErrMissingArgument", err)
	}

	opts := buildTestOptions(t, f, "", 54154)
	if err := knock.Knock(opts); !errors.Is(err, protocol.ErrMissingArgument) {
		t.Errorf("Knock with empty host error = %v, want ErrMissingArgument", err)
	}
}

func TestKnock_UnresolvableHost(t *testing.T) {
	f := newFixture(t)
	opts := buildTestOptions(t, f, "host.invalid", 54154)
	opts.Hooks = &knock.Hooks{Sender: &knock.UDPSender{Timeout: 2 * time.Second}}

	err := knock.Knock(opts)
	if !errors.Is(err, protocol.ErrSend) {
		t.Errorf("Knock error = %v, want ErrSend", err)
	}
}

func TestKnock_SenderHookReceivesDestination(t *testing.T) {
	f := newFixture(t)

	var gotHost string
	var gotPort uint16
	var gotLen int
	opts := buildTestOptions(t, f, "gate.example.com", 12345)
	opts.Hooks = &knock.Hooks{
		Sender: senderFunc(func(host string, port uint16, packet []byte) error {
			gotHost, gotPort, gotLen = host, port, len(packet)
			return nil
		}),
	}

	if err := knock.Knock(opts); err != nil {
		t.Fatalf("Knock error = %v", err)
	}
	if gotHost != "gate.example.com" || gotPort != 12345 {
		t.Errorf("sender got %s:%d, want gate.example.com:12345", gotHost, gotPort)
	}
	if gotLen != protocol.PacketSize {
		t.Errorf("sender got %d bytes, want %d", gotLen, protocol.PacketSize)
	}
}

// senderFunc adapts a function to the Sender interface.
type senderFunc func(host string, port uint16, packet []byte) error

func (f senderFunc) Send(host string, port uint16, packet []byte) error {
	return f(host, port, packet)
}

func TestHealthCheck_Open(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			c.Close()
		}
	}()

	port := uint16(ln.Addr().(*net.TCPAddr).Port)
	if !knock.HealthCheck("127.0.0.1", port, 2*time.Second) {
		t.Error("HealthCheck = false for a listening port")
	}
}

func TestHealthCheck_NoServer(t *testing.T) {
	// Port 1 is almost never listening.
	if knock.HealthCheck("127.0.0.1", 1, 200*time.Millisecond) {
		t.Error("HealthCheck = true for a closed port")
	}
}
