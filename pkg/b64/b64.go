// Package b64 decodes base64-encoded key material from config files,
// QR payloads and pasted terminal input. Unlike encoding/base64 it
// tolerates the junk those sources carry: ASCII whitespace and '='
// padding are skipped wherever they appear, and unpadded input is
// accepted with trailing sub-byte bits discarded.
package b64

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCharacter is returned when the input contains a byte that
	// is neither part of the standard alphabet nor skippable.
	ErrInvalidCharacter = errors.New("invalid base64 character")

	// ErrBufferTooSmall is returned by Decode when dst cannot hold the
	// decoded output.
	ErrBufferTooSmall = errors.New("destination buffer too small")
)

// decodeTable maps ASCII bytes to their 6-bit values, -1 for bytes
// outside the standard alphabet.
var decodeTable [256]int8

func init() {
	for i := range decodeTable {
		decodeTable[i] = -1
	}
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"
	for i := 0; i < len(alphabet); i++ {
		decodeTable[alphabet[i]] = int8(i)
	}
}

// Decode decodes base64 src into dst and returns the number of bytes
// written. Space, tab, CR, LF and '=' are skipped anywhere in the
// input; any other byte outside the alphabet fails with
// ErrInvalidCharacter. Six bits are accumulated per alphabet character
// and emitted per full byte; trailing bits that do not fill a byte are
// discarded, so unpadded input decodes cleanly.
func Decode(dst []byte, src string) (int, error) {
	var (
		written int
		accum   uint32
		nbits   int
	)

	for i := 0; i < len(src); i++ {
		c := src[i]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '=' {
			continue
		}
		v := decodeTable[c]
		if v < 0 {
			return written, fmt.Errorf("byte %q at offset %d: %w", c, i, ErrInvalidCharacter)
		}
		accum = accum<<6 | uint32(v)
		nbits += 6
		if nbits >= 8 {
			nbits -= 8
			if written >= len(dst) {
				return written, ErrBufferTooSmall
			}
			dst[written] = byte(accum >> nbits)
			written++
		}
	}
	return written, nil
}

// DecodeString decodes base64 src into a freshly allocated slice sized
// to the decoded length.
func DecodeString(src string) ([]byte, error) {
	buf := make([]byte, 3*len(src)/4)
	n, err := Decode(buf, src)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
