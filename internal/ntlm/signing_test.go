package ntlm

import (
	"crypto/rc4" //nolint:gosec // mandated by MS-NLMP sealing
	"testing"
)

// newServerSigner builds the peer of NewSigner(key): a verifier using the
// client-to-server signing and sealing keys a client Signer signs with. A
// second NewSigner(key) verifies with the server-to-client keys instead.
func newServerSigner(t *testing.T, key [16]byte) *Signer {
	t.Helper()
	sealing := deriveKey(key, clientSealingMagic)
	recvCipher, err := rc4.NewCipher(sealing[:])
	if err != nil {
		t.Fatalf("rc4.NewCipher: %v", err)
	}
	return &Signer{
		recvSigningKey: deriveKey(key, clientSigningMagic),
		recvCipher:     recvCipher,
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	var key [16]byte
	copy(key[:], []byte("0123456789abcdef"))

	sender, err := NewSigner(key)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	receiver := newServerSigner(t, key)

	msg := []byte("stub payload, sent in the clear")
	sig := sender.Sign(msg, 0)
	if len(sig) != SignatureSize {
		t.Fatalf("expected %d-byte signature, got %d", SignatureSize, len(sig))
	}
	if err := receiver.Verify(msg, sig); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyRejectsTamperedMessage(t *testing.T) {
	var key [16]byte
	sender, _ := NewSigner(key)
	receiver := newServerSigner(t, key)

	msg := []byte("original")
	sig := sender.Sign(msg, 0)
	if err := receiver.Verify([]byte("tampered"), sig); err != ErrSignatureMismatch {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}
}

func TestSignAdvancesKeystreamAcrossCalls(t *testing.T) {
	var key [16]byte
	sender, _ := NewSigner(key)
	receiver := newServerSigner(t, key)

	msg := []byte("same message twice")
	sig0 := sender.Sign(msg, 0)
	sig1 := sender.Sign(msg, 1)
	if string(sig0) == string(sig1) {
		t.Fatalf("expected distinct signatures across the rolling RC4 keystream")
	}
	if err := receiver.Verify(msg, sig0); err != nil {
		t.Fatalf("Verify sig0: %v", err)
	}
	if err := receiver.Verify(msg, sig1); err != nil {
		t.Fatalf("Verify sig1: %v", err)
	}
}
