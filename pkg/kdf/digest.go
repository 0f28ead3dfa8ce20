package kdf

import (
	"encoding/binary"
	"math/bits"
)

const (
	// DigestSize is the size in bytes of a SHA-256 digest.
	DigestSize = 32

	// BlockSize is the SHA-256 block size in bytes.
	BlockSize = 64
)

// Digest is a streaming SHA-256 hash (FIPS 180-4) whose finalisation
// consumes the state: Sum writes the digest and then zeroes the
// chaining state, block buffer and length counter. The zero value is
// ready to use, and a finalised Digest behaves like a fresh one.
//
// Digest intentionally does not implement hash.Hash: hash.Hash.Sum
// must leave the state intact, which is exactly what this type avoids.
type Digest struct {
	state   [8]uint32
	buf     [BlockSize]byte
	count   uint64
	started bool
}

// Reset discards any buffered input and restores the initial hash value.
func (d *Digest) Reset() {
	*d = Digest{started: true}
	d.state = [8]uint32{
		0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
		0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
	}
}

// Write absorbs p into the hash. It never returns an error.
func (d *Digest) Write(p []byte) (int, error) {
	if !d.started {
		d.Reset()
	}
	n := len(p)
	off := int(d.count % BlockSize)
	d.count += uint64(n)
	for len(p) > 0 {
		c := copy(d.buf[off:], p)
		p = p[c:]
		off += c
		if off == BlockSize {
			compress(&d.state, &d.buf)
			off = 0
		}
	}
	return n, nil
}

// Sum finalises the hash into out and wipes the internal state. The
// Digest is afterwards indistinguishable from a zero value and may be
// reused for a new message.
func (d *Digest) Sum(out *[DigestSize]byte) {
	if !d.started {
		d.Reset()
	}
	msgBits := d.count << 3

	// Pad per FIPS 180-4 §5.1.1: 0x80, zeros up to 56 mod 64, then the
	// message length in bits as a big-endian 64-bit integer.
	var pad [BlockSize + 8]byte
	pad[0] = 0x80
	padLen := 56 - int(d.count%BlockSize)
	if padLen <= 0 {
		padLen += BlockSize
	}
	binary.BigEndian.PutUint64(pad[padLen:], msgBits)
	d.Write(pad[:padLen+8])

	for i, s := range d.state {
		binary.BigEndian.PutUint32(out[4*i:], s)
	}
	*d = Digest{}
}

// Sum256 returns the SHA-256 digest of data in one shot.
func Sum256(data []byte) [DigestSize]byte {
	var d Digest
	var out [DigestSize]byte
	d.Write(data)
	d.Sum(&out)
	return out
}

// ─── Compression function ──────────────────────────────────────────────────

var roundK = [64]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5,
	0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3,
	0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc,
	0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7,
	0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13,
	0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3,
	0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5,
	0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208,
	0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

func compress(state *[8]uint32, block *[BlockSize]byte) {
	var w [64]uint32
	for i := 0; i < 16; i++ {
		w[i] = binary.BigEndian.Uint32(block[4*i:])
	}
	for i := 16; i < 64; i++ {
		w[i] = smallSigma1(w[i-2]) + w[i-7] + smallSigma0(w[i-15]) + w[i-16]
	}

	a, b, c, d := state[0], state[1], state[2], state[3]
	e, f, g, h := state[4], state[5], state[6], state[7]

	for i := 0; i < 64; i++ {
		t1 := h + bigSigma1(e) + ch(e, f, g) + roundK[i] + w[i]
		t2 := bigSigma0(a) + maj(a, b, c)
		h, g, f, e = g, f, e, d+t1
		d, c, b, a = c, b, a, t1+t2
	}

	state[0] += a
	state[1] += b
	state[2] += c
	state[3] += d
	state[4] += e
	state[5] += f
	state[6] += g
	state[7] += h
}

func ch(x, y, z uint32) uint32  { return (x & y) ^ (^x & z) }
func maj(x, y, z uint32) uint32 { return (x & y) ^ (x & z) ^ (y & z) }

func bigSigma0(x uint32) uint32 {
	return bits.RotateLeft32(x, -2) ^ bits.RotateLeft32(x, -13) ^ bits.RotateLeft32(x, -22)
}

func bigSigma1(x uint32) uint32 {
	return bits.RotateLeft32(x, -6) ^ bits.RotateLeft32(x, -11) ^ bits.RotateLeft32(x, -25)
}

func smallSigma0(x uint32) uint32 {
	return bits.RotateLeft32(x, -7) ^ bits.RotateLeft32(x, -18) ^ (x >> 3)
}

func smallSigma1(x uint32) uint32 {
	return bits.RotateLeft32(x, -17) ^ bits.RotateLeft32(x, -19) ^ (x >> 10)
}
