// Package ntlm implements the client (initiator) side of [MS-NLMp] NTLM
// authentication used to bind the RPC-over-HTTP gateway channel: building
// the Negotiate message, parsing the server's Challenge, computing the
// NTLMv2 response and Authenticate message, and signing subsequent RPC
// PDUs at the PKT_INTEGRITY protection level (spec.md §4.3).
//
// Grounded on internal/auth/ntlm/ntlm.go (message layout constants, AV_PAIR
// encoding, NTLMv2 hash/session-key math, RC4 key-exchange unwrap) — that
// file builds the server/acceptor side of the handshake for SMB guest
// auth; this package inverts message direction (build Negotiate/
// Authenticate, parse Challenge) and adds client-side message signing,
// which the teacher's guest-only flow never needed.
package ntlm

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5" //nolint:gosec // HMAC-MD5 is mandated by MS-NLMP, not a choice
	"crypto/rand"
	"crypto/rc4" //nolint:gosec // RC4 is mandated by MS-NLMP key exchange/sealing
	"encoding/binary"
	"errors"
	"strings"
	"time"
	"unicode/utf16"

	"golang.org/x/crypto/md4" //nolint:staticcheck // MD4 is mandated by MS-NLMP for the NT hash
)

// Signature is the 8-byte NTLMSSP message signature.
var Signature = []byte{'N', 'T', 'L', 'M', 'S', 'S', 'P', 0}

// MessageType identifies the three handshake messages.
type MessageType uint32

const (
	MessageTypeNegotiate    MessageType = 1
	MessageTypeChallenge    MessageType = 2
	MessageTypeAuthenticate MessageType = 3
)

// NegotiateFlag controls authentication behavior ([MS-NLMP] §2.2.2.5).
type NegotiateFlag uint32

const (
	FlagUnicode             NegotiateFlag = 0x00000001
	FlagOEM                 NegotiateFlag = 0x00000002
	FlagRequestTarget       NegotiateFlag = 0x00000004
	FlagSign                NegotiateFlag = 0x00000010
	FlagSeal                NegotiateFlag = 0x00000020
	FlagNTLM                NegotiateFlag = 0x00000200
	FlagAlwaysSign          NegotiateFlag = 0x00008000
	FlagTargetTypeServer    NegotiateFlag = 0x00020000
	FlagExtendedSecurity    NegotiateFlag = 0x00080000
	FlagTargetInfo          NegotiateFlag = 0x00800000
	FlagVersion             NegotiateFlag = 0x02000000
	Flag128                 NegotiateFlag = 0x20000000
	FlagKeyExch             NegotiateFlag = 0x40000000
	Flag56                  NegotiateFlag = 0x80000000
)

const (
	headerSize = 12

	negotiateDomainLenOffset       = 16
	negotiateDomainMaxOffset       = 18
	negotiateDomainOffOffset       = 20
	negotiateWorkstationLenOffset  = 24
	negotiateWorkstationMaxOffset  = 26
	negotiateWorkstationOffOffset  = 28
	negotiateBaseSize              = 32

	challengeTargetNameLenOffset = 12
	challengeFlagsOffset         = 20
	challengeServerChalOffset    = 24
	challengeTargetInfoLenOffset = 40
	challengeTargetInfoOffOffset = 44
	challengeBaseSize            = 48

	authLmResponseLenOffset          = 12
	authLmResponseOffOffset          = 16
	authNtResponseLenOffset          = 20
	authNtResponseOffOffset          = 24
	authDomainNameLenOffset          = 28
	authDomainNameOffOffset          = 32
	authUserNameLenOffset            = 36
	authUserNameOffOffset            = 40
	authWorkstationLenOffset         = 44
	authWorkstationOffOffset         = 48
	authEncryptedRandomSessionKeyLen = 52
	authEncryptedRandomSessionKeyOff = 56
	authNegotiateFlagsOffset         = 60
	authBaseSize                     = 64
)

var (
	// ErrUnauthenticated is returned by Context.Encrypt and Context.Decrypt
	// before InitSecurityContext has processed a Challenge.
	ErrUnauthenticated = errors.New("ntlm: no challenge received yet")
	// ErrAuthFailed covers malformed messages and the few local checks this
	// client can make before the server's final accept/reject.
	ErrAuthFailed = errors.New("ntlm: authentication failed")
	// ErrSignatureMismatch is returned by Decrypt when the computed
	// checksum does not match the one carried in the signature buffer.
	ErrSignatureMismatch = errors.New("ntlm: signature mismatch")
)

// IsValid reports whether buf begins with the NTLMSSP signature.
func IsValid(buf []byte) bool {
	return len(buf) >= headerSize && bytes.Equal(buf[0:8], Signature)
}

// GetMessageType extracts the message type field.
func GetMessageType(buf []byte) MessageType {
	if len(buf) < headerSize {
		return 0
	}
	return MessageType(binary.LittleEndian.Uint32(buf[8:12]))
}

func encodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	b := make([]byte, len(units)*2)
	for i, u := range units {
		binary.LittleEndian.PutUint16(b[i*2:], u)
	}
	return b
}

// BuildNegotiate constructs the Type 1 message this client always sends:
// Unicode + RequestTarget + NTLM + ExtendedSecurity + TargetTypeServer, no
// domain/workstation.
func BuildNegotiate() []byte {
	flags := FlagUnicode | FlagRequestTarget | FlagNTLM | FlagExtendedSecurity | FlagTargetTypeServer
	msg := make([]byte, negotiateBaseSize)
	copy(msg[0:8], Signature)
	binary.LittleEndian.PutUint32(msg[8:12], uint32(MessageTypeNegotiate))
	binary.LittleEndian.PutUint32(msg[12:16], uint32(flags))
	// Domain/workstation fields left zero-length, pointing at end of header.
	binary.LittleEndian.PutUint32(msg[negotiateDomainOffOffset:], negotiateBaseSize)
	binary.LittleEndian.PutUint32(msg[negotiateWorkstationOffOffset:], negotiateBaseSize)
	return msg
}

// Challenge holds the fields of a parsed Type 2 message needed to build the
// Authenticate response.
type Challenge struct {
	Flags           NegotiateFlag
	ServerChallenge [8]byte
	TargetInfo      []byte
	TargetName      string
}

// ParseChallenge decodes a Type 2 message.
func ParseChallenge(buf []byte) (*Challenge, error) {
	if !IsValid(buf) || GetMessageType(buf) != MessageTypeChallenge {
		return nil, ErrAuthFailed
	}
	if len(buf) < challengeBaseSize {
		return nil, ErrAuthFailed
	}
	c := &Challenge{}
	c.Flags = NegotiateFlag(binary.LittleEndian.Uint32(buf[challengeFlagsOffset:]))
	copy(c.ServerChallenge[:], buf[challengeServerChalOffset:challengeServerChalOffset+8])

	tnLen := binary.LittleEndian.Uint16(buf[challengeTargetNameLenOffset:])
	tnOff := binary.LittleEndian.Uint32(buf[challengeTargetNameLenOffset+4:])
	if int(tnOff)+int(tnLen) <= len(buf) {
		c.TargetName = decodeUTF16LE(buf[tnOff : tnOff+uint32(tnLen)])
	}

	tiLen := binary.LittleEndian.Uint16(buf[challengeTargetInfoLenOffset:])
	tiOff := binary.LittleEndian.Uint32(buf[challengeTargetInfoOffOffset:])
	if int(tiOff)+int(tiLen) > len(buf) {
		return nil, ErrAuthFailed
	}
	c.TargetInfo = buf[tiOff : tiOff+uint32(tiLen)]

	return c, nil
}

func decodeUTF16LE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

// ComputeNTHash computes MD4(UTF16LE(password)), the base NT credential.
func ComputeNTHash(password string) [16]byte {
	h := md4.New()
	h.Write(encodeUTF16LE(password))
	var out [16]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ComputeNTLMv2Hash computes HMAC-MD5(NTHash, UPPER(username)+domain).
func ComputeNTLMv2Hash(ntHash [16]byte, username, domain string) [16]byte {
	combined := encodeUTF16LE(strings.ToUpper(username) + domain)
	mac := hmac.New(md5.New, ntHash[:])
	mac.Write(combined)
	var out [16]byte
	copy(out[:], mac.Sum(nil))
	return out
}

// ntlmv2ClientBlob builds the variable part of the NTLMv2 response: a fixed
// header, the current time as the timestamp (a timestamp carried in
// TargetInfo is not used), a client nonce, reserved fields, the TargetInfo
// as received, and a trailing zero ([MS-NLMP] §2.2.2.7).
func ntlmv2ClientBlob(targetInfo []byte) []byte {
	const epochDiff = 116444736000000000
	ft := uint64(time.Now().UnixNano()/100) + epochDiff

	nonce := make([]byte, 8)
	_, _ = rand.Read(nonce)

	blob := make([]byte, 0, 28+len(targetInfo)+4)
	blob = append(blob, 0x01, 0x01, 0x00, 0x00) // RespType, HiRespType
	blob = append(blob, 0, 0, 0, 0)             // Reserved1
	tsBuf := make([]byte, 8)
	binary.LittleEndian.PutUint64(tsBuf, ft)
	blob = append(blob, tsBuf...)
	blob = append(blob, nonce...)
	blob = append(blob, 0, 0, 0, 0) // Reserved2
	blob = append(blob, targetInfo...)
	blob = append(blob, 0, 0, 0, 0) // Reserved3
	return blob
}

// ntResponseV2 computes the full NTLMv2 NtChallengeResponse:
// NTProofStr || ClientBlob, where
// NTProofStr = HMAC-MD5(NTLMv2Hash, ServerChallenge || ClientBlob).
func ntResponseV2(ntlmv2Hash [16]byte, serverChallenge [8]byte, clientBlob []byte) []byte {
	mac := hmac.New(md5.New, ntlmv2Hash[:])
	mac.Write(serverChallenge[:])
	mac.Write(clientBlob)
	proof := mac.Sum(nil)

	resp := make([]byte, 0, len(proof)+len(clientBlob))
	resp = append(resp, proof...)
	resp = append(resp, clientBlob...)
	return resp
}

// Credentials are the identity this client authenticates as.
type Credentials struct {
	Username string
	Domain   string
	Password string
}

// Authenticate computes the Type 3 message and the exported session key for
// the given credentials and Challenge.
//
// The key-exchange path mirrors the teacher's DeriveSigningKey in reverse:
// this client, as initiator, generates a random ExportedSessionKey, uses it
// (not SessionBaseKey) for subsequent signing, and transmits it RC4-wrapped
// under SessionBaseKey in EncryptedRandomSessionKey.
func Authenticate(creds Credentials, challenge *Challenge) (message []byte, exportedSessionKey [16]byte, err error) {
	ntHash := ComputeNTHash(creds.Password)
	ntlmv2Hash := ComputeNTLMv2Hash(ntHash, creds.Username, creds.Domain)
	clientBlob := ntlmv2ClientBlob(challenge.TargetInfo)
	ntResponse := ntResponseV2(ntlmv2Hash, challenge.ServerChallenge, clientBlob)

	mac := hmac.New(md5.New, ntlmv2Hash[:])
	mac.Write(ntResponse[:16])
	var sessionBaseKey [16]byte
	copy(sessionBaseKey[:], mac.Sum(nil))

	var encryptedKey []byte
	if challenge.Flags&FlagKeyExch != 0 {
		if _, err := rand.Read(exportedSessionKey[:]); err != nil {
			return nil, exportedSessionKey, err
		}
		cipher, cerr := rc4.NewCipher(sessionBaseKey[:])
		if cerr != nil {
			return nil, exportedSessionKey, cerr
		}
		encryptedKey = make([]byte, 16)
		cipher.XORKeyStream(encryptedKey, exportedSessionKey[:])
	} else {
		exportedSessionKey = sessionBaseKey
	}

	domain := encodeUTF16LE(creds.Domain)
	user := encodeUTF16LE(creds.Username)
	workstation := encodeUTF16LE("")
	flags := challenge.Flags & (FlagUnicode | FlagNTLM | FlagExtendedSecurity | FlagKeyExch | Flag128 | Flag56)
	flags |= FlagSign | FlagAlwaysSign

	offset := authBaseSize
	domainOff := offset
	offset += len(domain)
	userOff := offset
	offset += len(user)
	wsOff := offset
	offset += len(workstation)
	ntOff := offset
	offset += len(ntResponse)
	keyOff := offset
	offset += len(encryptedKey)

	msg := make([]byte, offset)
	copy(msg[0:8], Signature)
	binary.LittleEndian.PutUint32(msg[8:12], uint32(MessageTypeAuthenticate))

	binary.LittleEndian.PutUint16(msg[authLmResponseLenOffset:], 0)
	binary.LittleEndian.PutUint32(msg[authLmResponseOffOffset:], uint32(authBaseSize))

	binary.LittleEndian.PutUint16(msg[authNtResponseLenOffset:], uint16(len(ntResponse)))
	binary.LittleEndian.PutUint16(msg[authNtResponseLenOffset+2:], uint16(len(ntResponse)))
	binary.LittleEndian.PutUint32(msg[authNtResponseOffOffset:], uint32(ntOff))

	binary.LittleEndian.PutUint16(msg[authDomainNameLenOffset:], uint16(len(domain)))
	binary.LittleEndian.PutUint16(msg[authDomainNameLenOffset+2:], uint16(len(domain)))
	binary.LittleEndian.PutUint32(msg[authDomainNameOffOffset:], uint32(domainOff))

	binary.LittleEndian.PutUint16(msg[authUserNameLenOffset:], uint16(len(user)))
	binary.LittleEndian.PutUint16(msg[authUserNameLenOffset+2:], uint16(len(user)))
	binary.LittleEndian.PutUint32(msg[authUserNameOffOffset:], uint32(userOff))

	binary.LittleEndian.PutUint16(msg[authWorkstationLenOffset:], uint16(len(workstation)))
	binary.LittleEndian.PutUint16(msg[authWorkstationLenOffset+2:], uint16(len(workstation)))
	binary.LittleEndian.PutUint32(msg[authWorkstationOffOffset:], uint32(wsOff))

	binary.LittleEndian.PutUint16(msg[authEncryptedRandomSessionKeyLen:], uint16(len(encryptedKey)))
	binary.LittleEndian.PutUint16(msg[authEncryptedRandomSessionKeyLen+2:], uint16(len(encryptedKey)))
	binary.LittleEndian.PutUint32(msg[authEncryptedRandomSessionKeyOff:], uint32(keyOff))

	binary.LittleEndian.PutUint32(msg[authNegotiateFlagsOffset:], uint32(flags))

	copy(msg[domainOff:], domain)
	copy(msg[userOff:], user)
	copy(msg[wsOff:], workstation)
	copy(msg[ntOff:], ntResponse)
	copy(msg[keyOff:], encryptedKey)

	return msg, exportedSessionKey, nil
}
