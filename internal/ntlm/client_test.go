package ntlm

import "testing"

func TestContextHandshakeAndSign(t *testing.T) {
	ctx := New(Credentials{Username: "alice", Domain: "CORP", Password: "hunter2"})

	negotiate, done, err := ctx.InitSecurityContext("gateway.example.com", nil)
	if err != nil || done {
		t.Fatalf("expected initial Negotiate, got done=%v err=%v", done, err)
	}
	if !IsValid(negotiate) {
		t.Fatalf("expected valid Negotiate token")
	}

	var serverChal [8]byte
	copy(serverChal[:], []byte{9, 8, 7, 6, 5, 4, 3, 2})
	challengeMsg := buildChallenge(serverChal, []byte{0, 0, 0, 0}, FlagUnicode|FlagNTLM|FlagExtendedSecurity|FlagTargetInfo|FlagKeyExch)

	authenticate, done, err := ctx.InitSecurityContext("gateway.example.com", challengeMsg)
	if err != nil || !done {
		t.Fatalf("expected final Authenticate, got done=%v err=%v", done, err)
	}
	if !IsValid(authenticate) || GetMessageType(authenticate) != MessageTypeAuthenticate {
		t.Fatalf("invalid authenticate token")
	}

	if got := ctx.QueryContextMaxSignatureSize(); got != SignatureSize {
		t.Fatalf("expected max signature size %d, got %d", SignatureSize, got)
	}

	stub := []byte("request stub bytes")
	sig, err := ctx.Encrypt([][]byte{stub}, 0)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(sig) != SignatureSize {
		t.Fatalf("unexpected signature length %d", len(sig))
	}
}

func TestEncryptBeforeHandshakeFails(t *testing.T) {
	ctx := New(Credentials{Username: "bob", Password: "pw"})
	if _, err := ctx.Encrypt([][]byte{[]byte("x")}, 0); err != ErrUnauthenticated {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}
