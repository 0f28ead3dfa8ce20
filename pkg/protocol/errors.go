package protocol

import "errors"

var (
	// ErrMissingArgument is returned when a required pointer or buffer
	// argument is nil.
	ErrMissingArgument = errors.New("missing required argument")

	// ErrInvalidSeedSize is returned when an Ed25519 seed is neither 32
	// bytes nor a 64-byte libsodium-style secret key.
	ErrInvalidSeedSize = errors.New("signing seed must be 32 or 64 bytes")

	// ErrInvalidKeySize is returned when a decoded key does not have the
	// length its role requires.
	ErrInvalidKeySize = errors.New("invalid key size")

	// ErrInvalidTargetIP is returned when a target IP cannot be encoded
	// into the 16-byte wire field.
	ErrInvalidTargetIP = errors.New("target IP not representable in 16 bytes")

	// ErrInvalidPacketSize is returned when a packet is not exactly PacketSize bytes.
	ErrInvalidPacketSize = errors.New("invalid packet size")

	// ErrInvalidVersion is returned when the packet version byte does not match Version.
	ErrInvalidVersion = errors.New("invalid protocol version")

	// ErrRandomSource is returned when the entropy source fails or
	// returns fewer bytes than requested.
	ErrRandomSource = errors.New("random source failed")

	// ErrSend is returned when the knock datagram could not be handed to
	// the network.
	ErrSend = errors.New("knock packet send failed")

	// ErrDecrypt is returned when AEAD decryption fails (wrong key or tampered data).
	ErrDecrypt = errors.New("decryption failed")
)
