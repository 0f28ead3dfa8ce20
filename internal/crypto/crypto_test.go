package crypto_test

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/merlos/openmelib-go/internal/crypto"
	"github.com/merlos/openmelib-go/pkg/protocol"
)

func key32(t *testing.T, s string) [32]byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 32 {
		t.Fatalf("bad 32-byte hex vector %q: %v", s, err)
	}
	var out [32]byte
	copy(out[:], b)
	return out
}

func TestGenerateCurve25519KeyPair(t *testing.T) {
	kp, err := crypto.GenerateCurve25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateCurve25519KeyPair() error = %v", err)
	}
	if kp.PrivateKey == [32]byte{} {
		t.Error("private key is all zeros")
	}
	if kp.PublicKey == [32]byte{} {
		t.Error("public key is all zeros")
	}
	// Two calls should produce different keys.
	kp2, _ := crypto.GenerateCurve25519KeyPair()
	if kp.PrivateKey == kp2.PrivateKey {
		t.Error("two keypairs have identical private keys")
	}
}

func TestGenerateEd25519KeyPair(t *testing.T) {
	kp, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("GenerateEd25519KeyPair() error = %v", err)
	}
	if len(kp.PrivateKey) != ed25519.PrivateKeySize {
		t.Errorf("private key size = %d, want %d", len(kp.PrivateKey), ed25519.PrivateKeySize)
	}
	if len(kp.PublicKey) != ed25519.PublicKeySize {
		t.Errorf("public key size = %d, want %d", len(kp.PublicKey), ed25519.PublicKeySize)
	}
}

func TestCurve25519Public_RFC7748Vectors(t *testing.T) {
	tests := []struct {
		name    string
		priv    string
		wantPub string
	}{
		{
			name:    "alice",
			priv:    "77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a",
			wantPub: "8520f0098930a754748b7ddcb43ef75a0dbf3a0d26381af4eba4a98eaa9b4e6a",
		},
		{
			name:    "bob",
			priv:    "5dab087e624a8a4b79e17f8b83800ee66f3bb1292618b6fd1c2f8b27ff88e0eb",
			wantPub: "de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub, err := crypto.Curve25519Public(key32(t, tt.priv))
			if err != nil {
				t.Fatalf("Curve25519Public error = %v", err)
			}
			if pub != key32(t, tt.wantPub) {
				t.Errorf("public key = %x, want %s", pub, tt.wantPub)
			}
		})
	}
}

func TestSharedSecret_RFC7748Vector(t *testing.T) {
	alicePriv := key32(t, "77076d0a7318a57d3c16c17251b26645df4c2f87ebc0992ab177fba51db92c2a")
	bobPub := key32(t, "de9edb7d7b7dc1b4d35b61c2ece435373f8343c85b78674dadfc7e146f882b4f")
	want := key32(t, "4a5d9d5ba4ce2de1728e3bf480350f25e07e21c947d19e3376f09b3c1e161742")

	got, err := crypto.SharedSecret(alicePriv, bobPub)
	if err != nil {
		t.Fatalf("SharedSecret error = %v", err)
	}
	if got != want {
		t.Errorf("shared secret = %x, want %x", got, want)
	}
}

func TestSharedSecret_Symmetric(t *testing.T) {
	// Both sides should derive the same raw secret.
	server, err := crypto.GenerateCurve25519KeyPair()
	if err != nil {
		t.Fatal(err)
	}
	client, err := crypto.GenerateCurve25519KeyPair()
	if err != nil {
		t.Fatal(err)
	}

	serverSide, err := crypto.SharedSecret(server.PrivateKey, client.PublicKey)
	if err != nil {
		t.Fatalf("server SharedSecret error = %v", err)
	}
	clientSide, err := crypto.SharedSecret(client.PrivateKey, server.PublicKey)
	if err != nil {
		t.Fatalf("client SharedSecret error = %v", err)
	}

	if serverSide != clientSide {
		t.Error("ECDH shared secrets do not match")
	}
}

func TestSharedSecret_RejectsLowOrderPoint(t *testing.T) {
	kp, _ := crypto.GenerateCurve25519KeyPair()
	var zeroPub [32]byte
	if _, err := crypto.SharedSecret(kp.PrivateKey, zeroPub); err == nil {
		t.Error("SharedSecret should reject an all-zero public key")
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce, err := crypto.RandomNonce(12)
	if err != nil {
		t.Fatal(err)
	}

	plaintext := []byte("hello openme")
	ct, err := crypto.Encrypt(nil, key, nonce, plaintext)
	if err != nil {
		t.Fatalf("Encrypt error = %v", err)
	}
	if len(ct) != len(plaintext)+protocol.TagSize {
		t.Fatalf("ciphertext length = %d, want %d", len(ct), len(plaintext)+protocol.TagSize)
	}

	got, err := crypto.Decrypt(key, nonce, ct)
	if err != nil {
		t.Fatalf("Decrypt error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Decrypt = %q, want %q", got, plaintext)
	}
}

func TestEncrypt_SealsInPlace(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce := make([]byte, 12)
	plaintext := []byte("0123456789")

	// Seal into a preallocated buffer without extra allocation.
	buf := make([]byte, len(plaintext)+protocol.TagSize)
	ct, err := crypto.Encrypt(buf[:0], key, nonce, plaintext)
	if err != nil {
		t.Fatalf("Encrypt error = %v", err)
	}
	if &ct[0] != &buf[0] {
		t.Error("Encrypt reallocated instead of sealing into the provided buffer")
	}
	if !bytes.Equal(ct, buf) {
		t.Error("sealed bytes not visible through the original buffer")
	}
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x42}, 32)
	nonce := make([]byte, 12)

	ct, _ := crypto.Encrypt(nil, key, nonce, []byte("secret"))
	ct[0] ^= 0xFF // flip bits

	_, err := crypto.Decrypt(key, nonce, ct)
	if !errors.Is(err, protocol.ErrDecrypt) {
		t.Errorf("Decrypt error = %v, want ErrDecrypt", err)
	}
}

func TestSignVerify(t *testing.T) {
	kp, _ := crypto.GenerateEd25519KeyPair()
	msg := []byte("knock knock")

	sig := crypto.Sign(kp.PrivateKey, msg)
	if !crypto.Verify(kp.PublicKey, msg, sig) {
		t.Error("Verify returned false for valid signature")
	}

	// Wrong message should fail.
	if crypto.Verify(kp.PublicKey, []byte("wrong"), sig) {
		t.Error("Verify returned true for wrong message")
	}

	// Wrong key should fail.
	kp2, _ := crypto.GenerateEd25519KeyPair()
	if crypto.Verify(kp2.PublicKey, msg, sig) {
		t.Error("Verify returned true for wrong public key")
	}
}

func TestSignWithSeed_RFC8032Vector(t *testing.T) {
	seed := key32(t, "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60")
	wantPub := "d75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
	wantSig := "e5564300c360ac729086e2cc806e828a84877f1eb8e5d974d873e065224901555fb8821590a33bacc61e39701cf9b46bd25bf5f0595bbe24655141438e7a100b"

	pub, err := crypto.Ed25519PublicFromSeed(seed[:])
	if err != nil {
		t.Fatalf("Ed25519PublicFromSeed error = %v", err)
	}
	if hex.EncodeToString(pub) != wantPub {
		t.Errorf("public key = %x, want %s", pub, wantPub)
	}

	sig, err := crypto.SignWithSeed(seed[:], nil)
	if err != nil {
		t.Fatalf("SignWithSeed error = %v", err)
	}
	if hex.EncodeToString(sig) != wantSig {
		t.Errorf("signature = %x, want %s", sig, wantSig)
	}
	if !crypto.Verify(pub, nil, sig) {
		t.Error("vector signature does not verify")
	}
}

func TestSignWithSeed_RejectsBadSeed(t *testing.T) {
	if _, err := crypto.SignWithSeed(make([]byte, 31), []byte("m")); !errors.Is(err, protocol.ErrInvalidSeedSize) {
		t.Errorf("31-byte seed error = %v, want ErrInvalidSeedSize", err)
	}
	if _, err := crypto.Ed25519PublicFromSeed(make([]byte, 64)); !errors.Is(err, protocol.ErrInvalidSeedSize) {
		t.Errorf("64-byte input error = %v, want ErrInvalidSeedSize", err)
	}
}

func TestEncodeDecodeKey(t *testing.T) {
	original := []byte("0123456789abcdef0123456789abcdef")
	encoded := crypto.EncodeKey(original)
	decoded, err := crypto.DecodeKey(encoded)
	if err != nil {
		t.Fatalf("DecodeKey error = %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Errorf("decoded key = %v, want %v", decoded, original)
	}
}

func TestDecodeKey_ToleratesWhitespace(t *testing.T) {
	original := []byte("0123456789abcdef0123456789abcdef")
	// Keys copied from terminals often pick up a wrap newline mid-string.
	encoded := crypto.EncodeKey(original)
	wrapped := encoded[:20] + "\n" + encoded[20:] + "\n"
	decoded, err := crypto.DecodeKey(wrapped)
	if err != nil {
		t.Fatalf("DecodeKey error = %v", err)
	}
	if !bytes.Equal(decoded, original) {
		t.Errorf("decoded key = %v, want %v", decoded, original)
	}
}

func TestDecodeSizedKey(t *testing.T) {
	key := bytes.Repeat([]byte{0x07}, 32)
	encoded := crypto.EncodeKey(key)

	got, err := crypto.DecodeSizedKey(encoded, 32)
	if err != nil {
		t.Fatalf("DecodeSizedKey error = %v", err)
	}
	if !bytes.Equal(got, key) {
		t.Errorf("DecodeSizedKey = %x, want %x", got, key)
	}

	if _, err := crypto.DecodeSizedKey(encoded, 64); !errors.Is(err, protocol.ErrInvalidKeySize) {
		t.Errorf("wrong-size error = %v, want ErrInvalidKeySize", err)
	}
}

func TestDecodeSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{0x11}, 32)
	got, err := crypto.DecodeSeed(crypto.EncodeKey(seed))
	if err != nil {
		t.Fatalf("32-byte seed error = %v", err)
	}
	if !bytes.Equal(got, seed) {
		t.Errorf("DecodeSeed = %x, want %x", got, seed)
	}

	// libsodium-style 64-byte secret keys are accepted whole.
	full := bytes.Repeat([]byte{0x22}, 64)
	got, err = crypto.DecodeSeed(crypto.EncodeKey(full))
	if err != nil {
		t.Fatalf("64-byte key error = %v", err)
	}
	if len(got) != 64 {
		t.Errorf("decoded length = %d, want 64", len(got))
	}

	if _, err := crypto.DecodeSeed(crypto.EncodeKey(make([]byte, 33))); !errors.Is(err, protocol.ErrInvalidSeedSize) {
		t.Errorf("33-byte key error = %v, want ErrInvalidSeedSize", err)
	}
}

func TestFingerprintKey_Deterministic(t *testing.T) {
	pub := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1")
	fp1 := crypto.FingerprintKey(pub)
	fp2 := crypto.FingerprintKey(pub)
	if fp1 != fp2 {
		t.Error("FingerprintKey is not deterministic")
	}
	if len(fp1) != 16 { // 8 bytes = 16 hex chars
		t.Errorf("fingerprint length = %d, want 16", len(fp1))
	}
}
