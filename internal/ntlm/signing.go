package ntlm

import (
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // mandated by MS-NLMP extended session security KDF
	"crypto/rc4" //nolint:gosec // mandated by MS-NLMP sealing
	"encoding/binary"
	"sync"
)

// Direction-specific magic constants ([MS-NLMP] §3.4.5.2) used to derive
// the four per-direction signing/sealing keys from ExportedSessionKey.
// Not present in the teacher's guest-only acceptor, which never signs;
// this is standard MS-NLMP extended-session-security key derivation.
var (
	clientSigningMagic = []byte("session key to client-to-server signing key magic constant\x00")
	serverSigningMagic = []byte("session key to server-to-client signing key magic constant\x00")
	clientSealingMagic = []byte("session key to client-to-server sealing key magic constant\x00")
	serverSealingMagic = []byte("session key to server-to-client sealing key magic constant\x00")
)

func deriveKey(exportedSessionKey [16]byte, magic []byte) [16]byte {
	h := md5.New()
	h.Write(exportedSessionKey[:])
	h.Write(magic)
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// SignatureSize is the wire size of an NTLMSSP_MESSAGE_SIGNATURE for
// extended session security: version(4) || checksum(8) || seq_num(4).
const SignatureSize = 16

// signatureVersion is always 1 for the extended-session-security form.
const signatureVersion uint32 = 1

// Signer produces and verifies per-message signatures at the
// PKT_INTEGRITY protection level (spec.md §4.3): the stub payload is
// transmitted in the clear, and only the 16-byte signature buffer is
// computed — an HMAC-MD5 checksum of the sequence number and message,
// RC4-sealed under a rolling per-direction keystream, followed by the
// plaintext sequence number.
//
// The sequence number is supplied by the caller (the RPC client owns the
// monotonic send_seq_num per spec.md §4.6) rather than tracked here, but
// RC4 is a stream cipher, so SendCipher/RecvCipher must still persist
// across calls in call order: each message advances the shared keystream
// rather than restarting it.
type Signer struct {
	mu sync.Mutex

	sendSigningKey [16]byte
	recvSigningKey [16]byte
	sendCipher     *rc4.Cipher
	recvCipher     *rc4.Cipher
}

// NewSigner derives the four per-direction keys from exportedSessionKey
// for the client side of the connection: sends use the client-to-server
// keys, receives use the server-to-client keys.
func NewSigner(exportedSessionKey [16]byte) (*Signer, error) {
	sendSigning := deriveKey(exportedSessionKey, clientSigningMagic)
	recvSigning := deriveKey(exportedSessionKey, serverSigningMagic)
	sendSealing := deriveKey(exportedSessionKey, clientSealingMagic)
	recvSealing := deriveKey(exportedSessionKey, serverSealingMagic)

	sendCipher, err := rc4.NewCipher(sendSealing[:])
	if err != nil {
		return nil, err
	}
	recvCipher, err := rc4.NewCipher(recvSealing[:])
	if err != nil {
		return nil, err
	}
	return &Signer{
		sendSigningKey: sendSigning,
		recvSigningKey: recvSigning,
		sendCipher:     sendCipher,
		recvCipher:     recvCipher,
	}, nil
}

func checksum(signingKey [16]byte, seqNum uint32, message []byte) []byte {
	var seqBuf [4]byte
	binary.LittleEndian.PutUint32(seqBuf[:], seqNum)
	mac := hmac.New(md5.New, signingKey[:])
	mac.Write(seqBuf[:])
	mac.Write(message)
	return mac.Sum(nil)[:8]
}

// Sign returns the 16-byte signature for message at seqNum, advancing
// the send sealing keystream by one RC4 block. message itself is
// returned unmodified by the caller — PKT_INTEGRITY never encrypts the
// stub, it only authenticates it.
func (s *Signer) Sign(message []byte, seqNum uint32) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := checksum(s.sendSigningKey, seqNum, message)
	sealed := make([]byte, 8)
	s.sendCipher.XORKeyStream(sealed, sum)

	sig := make([]byte, SignatureSize)
	binary.LittleEndian.PutUint32(sig[0:4], signatureVersion)
	copy(sig[4:12], sealed)
	binary.LittleEndian.PutUint32(sig[12:16], seqNum)
	return sig
}

// Verify checks a received signature against message, advancing the
// receive unsealing keystream by one RC4 block. Returns
// ErrSignatureMismatch if the checksum doesn't match.
func (s *Signer) Verify(message, signature []byte) error {
	if len(signature) != SignatureSize {
		return ErrSignatureMismatch
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	sealed := signature[4:12]
	seqNum := binary.LittleEndian.Uint32(signature[12:16])

	unsealed := make([]byte, 8)
	s.recvCipher.XORKeyStream(unsealed, sealed)

	want := checksum(s.recvSigningKey, seqNum, message)
	if !hmacEqual(unsealed, want) {
		return ErrSignatureMismatch
	}
	return nil
}

func hmacEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	var diff byte
	for i := range a {
		diff |= a[i] ^ b[i]
	}
	return diff == 0
}
