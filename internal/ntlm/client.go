package ntlm

import "bytes"

// Context is the client-side NTLM security context exposed to the RPC
// client (C6): negotiate/authenticate to produce the auth tokens carried
// in Bind/Auth3, then sign/verify subsequent Request/Response PDUs at
// PKT_INTEGRITY (spec.md §4.3).
type Context struct {
	creds     Credentials
	challenge *Challenge
	signer    *Signer
}

// New creates a Context for the given credentials. No network I/O has
// happened yet; call InitSecurityContext to drive the handshake.
func New(creds Credentials) *Context {
	return &Context{creds: creds}
}

// InitSecurityContext drives one leg of the handshake. target names the
// gateway (unused by this client beyond documenting intent — NTLM target
// selection is carried in TargetInfo, not supplied by the caller). Call
// with input == nil to get the initial Negotiate token; call again with
// the server's Challenge bytes to get the final Authenticate token. done
// is true once the Authenticate token has been produced and the security
// context is ready for Encrypt/Decrypt.
func (c *Context) InitSecurityContext(target string, input []byte) (output []byte, done bool, err error) {
	_ = target
	if input == nil {
		return BuildNegotiate(), false, nil
	}
	challenge, err := ParseChallenge(input)
	if err != nil {
		return nil, false, err
	}
	authMsg, sessionKey, err := Authenticate(c.creds, challenge)
	if err != nil {
		return nil, false, err
	}
	signer, err := NewSigner(sessionKey)
	if err != nil {
		return nil, false, err
	}
	c.challenge = challenge
	c.signer = signer
	return authMsg, true, nil
}

// QueryContextMaxSignatureSize returns the wire size of a message
// signature produced by Encrypt.
func (c *Context) QueryContextMaxSignatureSize() uint32 {
	return SignatureSize
}

// Encrypt computes the PKT_INTEGRITY signature covering the concatenation
// of plaintextBuffers at seqNum. The buffers themselves are left
// untouched: only the returned signature is new ciphertext, matching
// [MS-NLMP] sealing semantics at this protection level (spec.md §4.3).
func (c *Context) Encrypt(plaintextBuffers [][]byte, seqNum uint32) (signature []byte, err error) {
	if c.signer == nil {
		return nil, ErrUnauthenticated
	}
	return c.signer.Sign(joinBuffers(plaintextBuffers), seqNum), nil
}

// Decrypt verifies a received signature against plaintextBuffers at
// seqNum. Returns ErrSignatureMismatch if verification fails.
func (c *Context) Decrypt(plaintextBuffers [][]byte, signature []byte, seqNum uint32) error {
	if c.signer == nil {
		return ErrUnauthenticated
	}
	_ = seqNum // carried inside signature itself; verified against it directly
	return c.signer.Verify(joinBuffers(plaintextBuffers), signature)
}

func joinBuffers(buffers [][]byte) []byte {
	if len(buffers) == 1 {
		return buffers[0]
	}
	var buf bytes.Buffer
	for _, b := range buffers {
		buf.Write(b)
	}
	return buf.Bytes()
}
