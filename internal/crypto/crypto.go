// Package crypto provides the cryptographic primitives behind knock packets.
//
// Key types:
//   - Curve25519 (ECDH): ephemeral key exchange to derive per-knock secrets.
//   - Ed25519 (signing): authenticates knock packets; the private key is
//     derived from a 32-byte seed on demand and wiped after use.
//
// Encryption: ChaCha20-Poly1305 AEAD keyed by the HKDF-derived session key.
// The HKDF step itself lives in pkg/kdf so its intermediates can be wiped;
// this package hands out only the raw ECDH output.
package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"

	"github.com/merlos/openmelib-go/pkg/b64"
	"github.com/merlos/openmelib-go/pkg/protocol"
)

const (
	// Curve25519KeySize is the size in bytes of a Curve25519 key (public or private).
	Curve25519KeySize = 32

	// Ed25519PrivateKeySize is the size in bytes of an Ed25519 private key (seed + public).
	Ed25519PrivateKeySize = ed25519.PrivateKeySize

	// Ed25519PublicKeySize is the size in bytes of an Ed25519 public key.
	Ed25519PublicKeySize = ed25519.PublicKeySize

	// Ed25519SeedSize is the size in bytes of an Ed25519 seed.
	Ed25519SeedSize = ed25519.SeedSize
)

// Curve25519KeyPair holds a static or ephemeral Curve25519 keypair.
type Curve25519KeyPair struct {
	PrivateKey [Curve25519KeySize]byte
	PublicKey  [Curve25519KeySize]byte
}

// Ed25519KeyPair holds an Ed25519 signing keypair.
type Ed25519KeyPair struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// GenerateCurve25519KeyPair generates a new random Curve25519 keypair.
// The private key is clamped per RFC 7748.
func GenerateCurve25519KeyPair() (*Curve25519KeyPair, error) {
	var priv [Curve25519KeySize]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, fmt.Errorf("generating curve25519 private key: %w", err)
	}

	// Clamp per RFC 7748 §5
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("deriving curve25519 public key: %w", err)
	}

	kp := &Curve25519KeyPair{}
	copy(kp.PrivateKey[:], priv[:])
	copy(kp.PublicKey[:], pub)
	wipe(priv[:])
	return kp, nil
}

// GenerateEd25519KeyPair generates a new random Ed25519 signing keypair.
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating ed25519 keypair: %w", err)
	}
	return &Ed25519KeyPair{PrivateKey: priv, PublicKey: pub}, nil
}

// Curve25519Public derives the public key for secret. The secret is
// clamped on a copy inside X25519; the caller's value is not modified.
func Curve25519Public(secret [Curve25519KeySize]byte) ([Curve25519KeySize]byte, error) {
	var pub [Curve25519KeySize]byte
	raw, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return pub, fmt.Errorf("deriving curve25519 public key: %w", err)
	}
	copy(pub[:], raw)
	return pub, nil
}

// SharedSecret computes the raw Curve25519 ECDH output from a local
// private key and a remote public key. An all-zero result (low-order
// remote point) is rejected. The raw output must go through the HKDF
// in pkg/kdf before use as an AEAD key.
func SharedSecret(localPriv, remotePub [Curve25519KeySize]byte) ([Curve25519KeySize]byte, error) {
	var out [Curve25519KeySize]byte
	raw, err := curve25519.X25519(localPriv[:], remotePub[:])
	if err != nil {
		return out, fmt.Errorf("curve25519 ECDH: %w", err)
	}
	copy(out[:], raw)
	wipe(raw)
	return out, nil
}

// Encrypt seals plaintext with ChaCha20-Poly1305 under the given 32-byte
// key and 12-byte nonce, appending ciphertext+tag to dst. Pass a zero-
// length slice of an existing buffer as dst to seal in place without
// allocating.
func Encrypt(dst, key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD cipher: %w", err)
	}
	return aead.Seal(dst, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext with ChaCha20-Poly1305 under the given key and
// nonce. Fails with protocol.ErrDecrypt when authentication fails
// (tampered data or wrong key).
func Decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD cipher: %w", err)
	}
	plain, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrDecrypt, err)
	}
	return plain, nil
}

// Sign signs message with the Ed25519 private key and returns the 64-byte signature.
func Sign(priv ed25519.PrivateKey, message []byte) []byte {
	return ed25519.Sign(priv, message)
}

// SignWithSeed derives the Ed25519 private key from a 32-byte seed, signs
// message, and wipes the derived key before returning.
func SignWithSeed(seed, message []byte) ([]byte, error) {
	if len(seed) != Ed25519SeedSize {
		return nil, protocol.ErrInvalidSeedSize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	sig := ed25519.Sign(priv, message)
	wipe(priv)
	return sig, nil
}

// Ed25519PublicFromSeed returns the public key for a 32-byte seed,
// wiping the expanded private key before returning.
func Ed25519PublicFromSeed(seed []byte) (ed25519.PublicKey, error) {
	if len(seed) != Ed25519SeedSize {
		return nil, protocol.ErrInvalidSeedSize
	}
	priv := ed25519.NewKeyFromSeed(seed)
	pub := make(ed25519.PublicKey, Ed25519PublicKeySize)
	copy(pub, priv[Ed25519SeedSize:])
	wipe(priv)
	return pub, nil
}

// Verify verifies an Ed25519 signature over message with the given public key.
func Verify(pub ed25519.PublicKey, message, sig []byte) bool {
	return ed25519.Verify(pub, message, sig)
}

// RandomNonce returns n cryptographically random bytes.
func RandomNonce(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("generating random nonce: %w", err)
	}
	return b, nil
}

// EncodeKey base64-encodes a key for storage in config files.
func EncodeKey(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}

// DecodeKey base64-decodes a key from a config file, QR payload or
// pasted input. Stray whitespace and padding are tolerated.
func DecodeKey(s string) ([]byte, error) {
	b, err := b64.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("base64 decode key: %w", err)
	}
	return b, nil
}

// DecodeSizedKey decodes a base64 key and verifies its decoded length.
func DecodeSizedKey(s string, size int) ([]byte, error) {
	b, err := DecodeKey(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, fmt.Errorf("decoded %d bytes, want %d: %w", len(b), size, protocol.ErrInvalidKeySize)
	}
	return b, nil
}

// DecodeSeed decodes a base64 Ed25519 private key and verifies it is either
// a 32-byte seed or a 64-byte seed-plus-public-key as exported by libsodium.
func DecodeSeed(s string) ([]byte, error) {
	b, err := DecodeKey(s)
	if err != nil {
		return nil, err
	}
	if len(b) != Ed25519SeedSize && len(b) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("decoded %d bytes, want %d or %d: %w",
			len(b), Ed25519SeedSize, ed25519.PrivateKeySize, protocol.ErrInvalidSeedSize)
	}
	return b, nil
}

// FingerprintKey returns a short human-readable fingerprint (first 8 bytes hex) of a key.
func FingerprintKey(pub []byte) string {
	h := sha256.Sum256(pub)
	return fmt.Sprintf("%x", h[:8])
}

// wipe zeroes b in place.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
