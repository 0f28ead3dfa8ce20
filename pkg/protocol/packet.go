// Package protocol defines the openme Single Packet Authentication (SPA)
// wire format.
//
// Packet layout (165 bytes total):
//
//	offset   0  version        (1)
//	offset   1  ephemeral Curve25519 public key (32)
//	offset  33  ChaCha20-Poly1305 nonce         (12)
//	offset  45  ciphertext                      (40)
//	offset  85  Poly1305 tag                    (16)
//	offset 101  Ed25519 signature               (64)
//
// The Ed25519 signature covers bytes [0,101), everything before itself.
// The ciphertext decrypts to:
//
//	[timestamp(8)] [random_nonce(16)] [target_ip(16)]
//
// Ports to open are determined entirely by the server's per-client
// configuration. The client does not specify ports in the knock packet;
// this simplifies the wire format and prevents clients from requesting
// ports they are not authorised for. A target IP of sixteen zero bytes
// asks the server to use the knock's source address.
//
// Security properties:
//   - Forward secrecy via an ephemeral Curve25519 ECDH key per knock
//   - Payload opacity via ChaCha20-Poly1305 AEAD encryption
//   - Authentication via an Ed25519 signature over the signed portion
//   - Replay protection material (timestamp + random nonce) for the server
package protocol

import (
	"encoding/binary"
	"net"
	"time"
)

const (
	// Version is the current protocol version.
	Version = 1

	// EphemeralPubKeySize is the size of the ephemeral Curve25519 public key in bytes.
	EphemeralPubKeySize = 32

	// NonceSize is the ChaCha20-Poly1305 nonce size in bytes.
	NonceSize = 12

	// TagSize is the ChaCha20-Poly1305 authentication tag size in bytes.
	TagSize = 16

	// Ed25519SigSize is the Ed25519 signature size in bytes.
	Ed25519SigSize = 64

	// TimestampSize is the size of the Unix timestamp (int64) in bytes.
	TimestampSize = 8

	// RandomNonceSize is the size of the random replay-protection nonce in bytes.
	RandomNonceSize = 16

	// TargetIPSize is the size of the target IP field (IPv6-compatible, 16 bytes).
	TargetIPSize = 16

	// PlaintextSize is the total size of the unencrypted payload.
	// timestamp(8) + random_nonce(16) + target_ip(16) = 40 bytes.
	PlaintextSize = TimestampSize + RandomNonceSize + TargetIPSize // 40 bytes

	// CiphertextSize is PlaintextSize + TagSize, the AEAD output.
	CiphertextSize = PlaintextSize + TagSize // 56 bytes

	// PacketSize is the total wire size of a SPA packet.
	PacketSize = 1 + EphemeralPubKeySize + NonceSize + CiphertextSize + Ed25519SigSize // 165 bytes

	// SignedPortionSize is the number of bytes covered by the Ed25519 signature.
	SignedPortionSize = PacketSize - Ed25519SigSize // 101 bytes

	// ReplayWindowDuration is the maximum age of a knock timestamp a
	// server will accept. Clients on RTC-less hardware must keep their
	// clock hook within this window of real time.
	ReplayWindowDuration = 60 * time.Second

	// DefaultUDPPort is the UDP port openme servers conventionally
	// listen on for knock packets.
	DefaultUDPPort = 54154

	// WildcardIP represents "use the connecting client's source IP".
	WildcardIP = "0.0.0.0"

	// HKDFInfo is the domain-separation label bound into the key
	// derivation from the raw ECDH output to the AEAD key. It is part
	// of the wire contract: both ends must derive with the same label.
	HKDFInfo = "openme-v1-chacha20poly1305"
)

// Offsets into the raw packet byte slice.
const (
	OffVersion         = 0
	OffEphemeralPubKey = 1
	OffNonce           = OffEphemeralPubKey + EphemeralPubKeySize // 33
	OffCiphertext      = OffNonce + NonceSize                     // 45
	OffTag             = OffCiphertext + PlaintextSize            // 85
	OffSignature       = OffCiphertext + CiphertextSize           // 101
)

// Plaintext holds the decrypted payload of a SPA packet.
type Plaintext struct {
	// Timestamp is the Unix nanosecond time the knock was created.
	Timestamp time.Time

	// RandomNonce is a random 16-byte value used for replay protection.
	RandomNonce [RandomNonceSize]byte

	// TargetIP is the IP address the server should open the firewall to.
	// Use net.IPv4zero or net.IPv6zero for "source IP of knock packet".
	// Ports are determined by the server's per-client configuration, not
	// by this field; the client has no say over which ports are opened.
	TargetIP net.IP
}

// MarshalPlaintext serialises a Plaintext into a fixed-size byte slice.
// The target IP is encoded as 16 bytes (IPv4 becomes IPv4-mapped IPv6);
// a nil or unrepresentable IP encodes as sixteen zero bytes.
func MarshalPlaintext(p *Plaintext) []byte {
	buf := make([]byte, PlaintextSize)

	binary.BigEndian.PutUint64(buf[0:], uint64(p.Timestamp.UnixNano()))
	copy(buf[TimestampSize:], p.RandomNonce[:])

	ip := p.TargetIP.To16()
	if ip == nil {
		ip = make([]byte, TargetIPSize) // zero = wildcard → use knock source IP
	}
	copy(buf[TimestampSize+RandomNonceSize:], ip)

	return buf
}

// UnmarshalPlaintext deserialises a fixed-size byte slice into a Plaintext.
// Returns an error if the slice is not exactly PlaintextSize bytes.
func UnmarshalPlaintext(raw []byte) (*Plaintext, error) {
	if len(raw) != PlaintextSize {
		return nil, ErrInvalidPacketSize
	}

	ts := int64(binary.BigEndian.Uint64(raw[0:]))

	var rn [RandomNonceSize]byte
	copy(rn[:], raw[TimestampSize:TimestampSize+RandomNonceSize])

	ip := make(net.IP, TargetIPSize)
	copy(ip, raw[TimestampSize+RandomNonceSize:])

	return &Plaintext{
		Timestamp:   time.Unix(0, ts),
		RandomNonce: rn,
		TargetIP:    ip,
	}, nil
}

// Packet is a parsed view over a raw knock packet. The fields alias the
// buffer handed to ParsePacket; they are not copies.
type Packet struct {
	Version         byte
	EphemeralPubKey []byte // 32 bytes
	Nonce           []byte // 12 bytes
	Ciphertext      []byte // 56 bytes, AEAD ciphertext plus tag
	Signature       []byte // 64 bytes
	raw             []byte
}

// ParsePacket splits a raw datagram into its fields after checking the
// size and version byte. It performs no cryptographic verification.
func ParsePacket(raw []byte) (*Packet, error) {
	if len(raw) != PacketSize {
		return nil, ErrInvalidPacketSize
	}
	if raw[OffVersion] != Version {
		return nil, ErrInvalidVersion
	}
	return &Packet{
		Version:         raw[OffVersion],
		EphemeralPubKey: raw[OffEphemeralPubKey:OffNonce],
		Nonce:           raw[OffNonce:OffCiphertext],
		Ciphertext:      raw[OffCiphertext:OffSignature],
		Signature:       raw[OffSignature:],
		raw:             raw,
	}, nil
}

// SignedPortion returns the bytes covered by the Ed25519 signature.
func (p *Packet) SignedPortion() []byte {
	return p.raw[:SignedPortionSize]
}
