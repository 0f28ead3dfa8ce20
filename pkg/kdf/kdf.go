// Package kdf implements the hash pipeline that keys knock packets:
// streaming SHA-256, HMAC-SHA-256 and HKDF-SHA-256 (RFC 5869).
//
// The primitives are self-contained rather than wrappers over the
// standard library because the packet assembler requires finalisation
// that consumes the hash state: every intermediate (chaining state,
// block buffers, padded keys, the PRK and expand blocks) is zeroed
// before a call returns. crypto/sha256 and friends keep their state
// alive for reuse and make no such promise. Outputs are bit-identical
// to crypto/sha256, crypto/hmac and golang.org/x/crypto/hkdf.
package kdf

import "errors"

// MaxOutputSize is the largest output HKDF-SHA-256 can produce:
// 255 blocks of DigestSize bytes (RFC 5869 §2.3).
const MaxOutputSize = 255 * DigestSize

// ErrOutputTooLong is returned by Expand and Derive when more than
// MaxOutputSize bytes are requested.
var ErrOutputTooLong = errors.New("kdf: requested output exceeds 255 blocks")

// Extract computes the HKDF extract step: PRK = HMAC-SHA-256(salt, ikm).
// A nil or empty salt is replaced by DigestSize zero bytes (RFC 5869 §2.2).
func Extract(ikm, salt []byte) [DigestSize]byte {
	if len(salt) == 0 {
		var zeroSalt [DigestSize]byte
		return MAC(zeroSalt[:], ikm)
	}
	return MAC(salt, ikm)
}

// Expand fills out with the HKDF expand step keyed by prk:
//
//	T(1) = HMAC(prk, info ‖ 0x01)
//	T(i) = HMAC(prk, T(i-1) ‖ info ‖ byte(i))
//
// out is untouched when its length exceeds MaxOutputSize. Intermediate
// blocks are wiped before returning.
func Expand(out []byte, prk, info []byte) error {
	if len(out) > MaxOutputSize {
		return ErrOutputTooLong
	}

	var t [DigestSize]byte
	block := make([]byte, 0, DigestSize+len(info)+1)
	counter := byte(1)
	for written := 0; written < len(out); counter++ {
		block = block[:0]
		if written > 0 {
			block = append(block, t[:]...)
		}
		block = append(block, info...)
		block = append(block, counter)

		t = MAC(prk, block)
		written += copy(out[written:], t[:])
	}

	wipe(t[:])
	wipe(block)
	return nil
}

// Derive runs Extract followed by Expand in one call, wiping the PRK
// before returning on every path. This is the key schedule the packet
// assembler applies to the raw X25519 shared secret.
func Derive(out, ikm, salt, info []byte) error {
	prk := Extract(ikm, salt)
	err := Expand(out, prk[:], info)
	wipe(prk[:])
	return err
}
