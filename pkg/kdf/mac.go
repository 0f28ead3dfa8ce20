package kdf

// MAC computes HMAC-SHA-256 of message under key (RFC 2104 / FIPS 198-1).
// Keys longer than BlockSize bytes are hashed down to DigestSize first.
// The padded key material and the inner digest are wiped before returning.
func MAC(key, message []byte) [DigestSize]byte {
	var k [BlockSize]byte
	if len(key) > BlockSize {
		sum := Sum256(key)
		copy(k[:], sum[:])
		wipe(sum[:])
	} else {
		copy(k[:], key)
	}

	var ipad, opad [BlockSize]byte
	for i := range k {
		ipad[i] = k[i] ^ 0x36
		opad[i] = k[i] ^ 0x5c
	}

	var d Digest
	var inner, mac [DigestSize]byte

	d.Write(ipad[:])
	d.Write(message)
	d.Sum(&inner)

	d.Write(opad[:])
	d.Write(inner[:])
	d.Sum(&mac)

	wipe(k[:])
	wipe(ipad[:])
	wipe(opad[:])
	wipe(inner[:])

	return mac
}

// wipe zeroes b in place.
func wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
