// Package knock builds and sends openme SPA knock packets.
//
// BuildPacket is the deterministic core: every byte of the 165-byte
// packet is a pure function of its arguments, which makes the engine
// testable and portable. Entropy, time and the network enter only
// through explicit parameters or the Hooks capabilities. To send a
// knock:
//
//  1. Derive the ephemeral Curve25519 public key from the ephemeral secret.
//  2. ECDH with the server's static public key, then HKDF-SHA-256 with
//     the protocol info label → 32-byte ChaCha20-Poly1305 key.
//  3. Encrypt the plaintext payload (timestamp + nonce + target IP).
//  4. Sign everything before the signature field with the client's
//     Ed25519 key, derived from its seed on demand.
//  5. Send the packet as a single UDP datagram. The server never replies.
//
// Every piece of key material derived along the way (shared secret,
// symmetric key, plaintext, expanded signing key) is wiped before the
// call returns, on success and on error alike.
//
// Ports to open are not specified in the packet. They are determined
// entirely by the server's per-client configuration, which prevents
// clients from requesting ports they are not authorised for.
package knock

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/merlos/openmelib-go/internal/crypto"
	"github.com/merlos/openmelib-go/pkg/kdf"
	"github.com/merlos/openmelib-go/pkg/protocol"
)

// entropySize is the single random read KnockPacket performs:
// ephemeral secret (32) + AEAD nonce (12) + random nonce (16).
const entropySize = crypto.Curve25519KeySize + protocol.NonceSize + protocol.RandomNonceSize

// BuildPacket assembles a complete knock packet into out. It is fully
// deterministic: identical arguments produce identical packets.
//
// serverPub is the server's static Curve25519 public key. clientSeed is
// the client's Ed25519 seed: 32 bytes, or a 64-byte libsodium-style
// secret key whose first 32 bytes are used. ephemeralSecret, aeadNonce
// and randomNonce must be fresh random bytes, never reused across
// knocks. targetIP may be nil or unspecified to ask the server to use
// the knock's source address.
//
// On argument errors out is untouched. On every path, all key material
// derived inside the call is wiped before returning.
func BuildPacket(
	out *[protocol.PacketSize]byte,
	serverPub *[crypto.Curve25519KeySize]byte,
	clientSeed []byte,
	timestampNano int64,
	ephemeralSecret *[crypto.Curve25519KeySize]byte,
	aeadNonce *[protocol.NonceSize]byte,
	randomNonce *[protocol.RandomNonceSize]byte,
	targetIP net.IP,
) error {
	if out == nil || serverPub == nil || clientSeed == nil ||
		ephemeralSecret == nil || aeadNonce == nil || randomNonce == nil {
		return protocol.ErrMissingArgument
	}
	if len(clientSeed) != crypto.Ed25519SeedSize && len(clientSeed) != crypto.Ed25519PrivateKeySize {
		return protocol.ErrInvalidSeedSize
	}
	ip16, err := encodeTargetIP(targetIP)
	if err != nil {
		return err
	}

	// Step 1: ephemeral Curve25519 public key.
	ephemPub, err := crypto.Curve25519Public(*ephemeralSecret)
	if err != nil {
		return fmt.Errorf("deriving ephemeral public key: %w", err)
	}

	// Step 2: ECDH → raw shared secret.
	shared, err := crypto.SharedSecret(*ephemeralSecret, *serverPub)
	if err != nil {
		return fmt.Errorf("ECDH: %w", err)
	}
	defer wipe(shared[:])

	// Step 3: HKDF-SHA-256 (no salt, protocol info label) → symmetric key.
	var symKey [kdf.DigestSize]byte
	defer wipe(symKey[:])
	if err := kdf.Derive(symKey[:], shared[:], nil, []byte(protocol.HKDFInfo)); err != nil {
		return fmt.Errorf("deriving session key: %w", err)
	}

	// Step 4: 40-byte plaintext: timestamp ‖ random nonce ‖ target IP.
	var plaintext [protocol.PlaintextSize]byte
	defer wipe(plaintext[:])
	binary.BigEndian.PutUint64(plaintext[0:], uint64(timestampNano))
	copy(plaintext[protocol.TimestampSize:], randomNonce[:])
	copy(plaintext[protocol.TimestampSize+protocol.RandomNonceSize:], ip16[:])

	// Step 5: lay out the signed portion and seal the payload directly
	// into the ciphertext+tag region.
	out[protocol.OffVersion] = protocol.Version
	copy(out[protocol.OffEphemeralPubKey:protocol.OffNonce], ephemPub[:])
	copy(out[protocol.OffNonce:protocol.OffCiphertext], aeadNonce[:])
	if _, err := crypto.Encrypt(out[protocol.OffCiphertext:protocol.OffCiphertext], symKey[:], aeadNonce[:], plaintext[:]); err != nil {
		return fmt.Errorf("encrypting payload: %w", err)
	}

	// Step 6: sign bytes [0, SignedPortionSize) with the seed-derived
	// Ed25519 key; the expanded key is wiped inside SignWithSeed.
	sig, err := crypto.SignWithSeed(clientSeed[:crypto.Ed25519SeedSize], out[:protocol.SignedPortionSize])
	if err != nil {
		return fmt.Errorf("signing packet: %w", err)
	}
	copy(out[protocol.OffSignature:], sig)

	return nil
}

// KnockPacket builds a knock packet from ambient entropy and time. It
// performs exactly one read from the random hook (60 bytes covering
// the ephemeral secret, AEAD nonce and random nonce, in that order)
// because embedded entropy sources are often block-oriented and
// per-field reads would triple the cost. The timestamp comes from the
// clock hook. Everything else is BuildPacket.
func KnockPacket(
	out *[protocol.PacketSize]byte,
	serverPub *[crypto.Curve25519KeySize]byte,
	clientSeed []byte,
	targetIP net.IP,
	hooks *Hooks,
) error {
	var entropy [entropySize]byte
	defer wipe(entropy[:])
	if _, err := io.ReadFull(hooks.rand(), entropy[:]); err != nil {
		return fmt.Errorf("reading %d random bytes: %w: %v", entropySize, protocol.ErrRandomSource, err)
	}

	ephemeralSecret := (*[crypto.Curve25519KeySize]byte)(entropy[0:32])
	aeadNonce := (*[protocol.NonceSize]byte)(entropy[32:44])
	randomNonce := (*[protocol.RandomNonceSize]byte)(entropy[44:60])

	timestampNano := hooks.clock().Now().UnixNano()

	return BuildPacket(out, serverPub, clientSeed, timestampNano,
		ephemeralSecret, aeadNonce, randomNonce, targetIP)
}

// encodeTargetIP returns the 16-byte wire form of ip. nil and
// unspecified addresses become all zeros, which asks the server to use
// the knock's source address; IPv4 addresses become IPv4-mapped IPv6.
func encodeTargetIP(ip net.IP) ([protocol.TargetIPSize]byte, error) {
	var out [protocol.TargetIPSize]byte
	if ip == nil || ip.IsUnspecified() {
		return out, nil
	}
	ip16 := ip.To16()
	if ip16 == nil {
		return out, fmt.Errorf("%q: %w", ip.String(), protocol.ErrInvalidTargetIP)
	}
	copy(out[:], ip16)
	return out, nil
}

// wipe zeroes b in place.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
