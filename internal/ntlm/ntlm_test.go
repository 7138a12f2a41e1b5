package ntlm

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestBuildNegotiateIsValid(t *testing.T) {
	msg := BuildNegotiate()
	if !IsValid(msg) {
		t.Fatalf("negotiate message missing NTLMSSP signature")
	}
	if GetMessageType(msg) != MessageTypeNegotiate {
		t.Fatalf("expected MessageTypeNegotiate, got %d", GetMessageType(msg))
	}
}

// buildChallenge constructs a minimal Type 2 message for test purposes,
// mirroring the field layout this package parses.
func buildChallenge(serverChallenge [8]byte, targetInfo []byte, flags NegotiateFlag) []byte {
	msg := make([]byte, challengeBaseSize+len(targetInfo))
	copy(msg[0:8], Signature)
	binary.LittleEndian.PutUint32(msg[8:12], uint32(MessageTypeChallenge))
	binary.LittleEndian.PutUint32(msg[challengeFlagsOffset:], uint32(flags))
	copy(msg[challengeServerChalOffset:], serverChallenge[:])
	binary.LittleEndian.PutUint16(msg[challengeTargetInfoLenOffset:], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint16(msg[challengeTargetInfoLenOffset+2:], uint16(len(targetInfo)))
	binary.LittleEndian.PutUint32(msg[challengeTargetInfoOffOffset:], uint32(challengeBaseSize))
	copy(msg[challengeBaseSize:], targetInfo)
	return msg
}

func TestParseChallengeRoundTrip(t *testing.T) {
	var chal [8]byte
	copy(chal[:], []byte{1, 2, 3, 4, 5, 6, 7, 8})
	targetInfo := []byte{0, 0, 0, 0} // AvEOL only
	flags := FlagUnicode | FlagNTLM | FlagExtendedSecurity | FlagTargetInfo | FlagKeyExch

	raw := buildChallenge(chal, targetInfo, flags)
	c, err := ParseChallenge(raw)
	if err != nil {
		t.Fatalf("ParseChallenge: %v", err)
	}
	if c.ServerChallenge != chal {
		t.Fatalf("server challenge mismatch: %v", c.ServerChallenge)
	}
	if c.Flags&FlagKeyExch == 0 {
		t.Fatalf("expected FlagKeyExch preserved")
	}
	if !bytes.Equal(c.TargetInfo, targetInfo) {
		t.Fatalf("target info mismatch: %v", c.TargetInfo)
	}
}

func TestParseChallengeRejectsWrongType(t *testing.T) {
	msg := BuildNegotiate()
	if _, err := ParseChallenge(msg); err == nil {
		t.Fatalf("expected error parsing a negotiate message as a challenge")
	}
}

func TestAuthenticateProducesValidMessage(t *testing.T) {
	var chal [8]byte
	copy(chal[:], []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22})
	targetInfo := []byte{0, 0, 0, 0}
	c := &Challenge{
		Flags:           FlagUnicode | FlagNTLM | FlagExtendedSecurity | FlagTargetInfo | FlagKeyExch,
		ServerChallenge: chal,
		TargetInfo:      targetInfo,
	}
	creds := Credentials{Username: "alice", Domain: "CORP", Password: "hunter2"}

	msg, sessionKey, err := Authenticate(creds, c)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if !IsValid(msg) || GetMessageType(msg) != MessageTypeAuthenticate {
		t.Fatalf("invalid authenticate message")
	}
	var zero [16]byte
	if sessionKey == zero {
		t.Fatalf("expected non-zero exported session key when KeyExch negotiated")
	}

	userLen := binary.LittleEndian.Uint16(msg[authUserNameLenOffset:])
	userOff := binary.LittleEndian.Uint32(msg[authUserNameOffOffset:])
	got := decodeUTF16LE(msg[userOff : userOff+uint32(userLen)])
	if got != "alice" {
		t.Fatalf("expected username 'alice' round-tripped, got %q", got)
	}
}

func TestAuthenticateWithoutKeyExchUsesSessionBaseKey(t *testing.T) {
	var chal [8]byte
	c := &Challenge{
		Flags:           FlagUnicode | FlagNTLM | FlagExtendedSecurity | FlagTargetInfo,
		ServerChallenge: chal,
		TargetInfo:      []byte{0, 0, 0, 0},
	}
	creds := Credentials{Username: "bob", Domain: "", Password: "pw"}

	msg, sessionKey, err := Authenticate(creds, c)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	keyLen := binary.LittleEndian.Uint16(msg[authEncryptedRandomSessionKeyLen:])
	if keyLen != 0 {
		t.Fatalf("expected empty EncryptedRandomSessionKey without KeyExch, got len %d", keyLen)
	}
	var zero [16]byte
	if sessionKey == zero {
		t.Fatalf("expected non-zero session base key")
	}
}

func TestComputeNTHashKnownVector(t *testing.T) {
	// NT hash of the empty password is a well-known MD4 constant.
	got := ComputeNTHash("")
	want := [16]byte{
		0x31, 0xd6, 0xcf, 0xe0, 0xd1, 0x6a, 0xe9, 0x31,
		0xb7, 0x3c, 0x59, 0xd7, 0xe0, 0xc0, 0x89, 0xc0,
	}
	if got != want {
		t.Fatalf("NT hash of empty password = %x, want %x", got, want)
	}
}
