// Package rpcwire encodes and decodes the MS-RPCE connection-oriented PDU
// wire format used by the RPC-over-HTTP gateway transport: the common
// 16-byte DCE/RPC header, RTS control PDUs, Bind/BindAck, Request/Response,
// and Fault.
//
// Grounded on the teacher's internal/protocol/smb/rpc/dcerpc.go (same
// [C706] common-header shape and Bind/Request/Response layout), with
// PTYPE/PFC constants and RTS command encoding cross-checked against
// libfreerdp/core/gateway/rpc.h and rts.h.
package rpcwire

import (
	"errors"

	"github.com/corerdp/rdpdr/pkg/stream"
)

// ErrTruncated is returned when a PDU is shorter than its declared header
// or body requires.
var ErrTruncated = errors.New("rpcwire: truncated PDU")

// HeaderSize is the size of the common DCE/RPC header (C706 §12.6.3.1).
const HeaderSize = 16

// PDU types (rpc.h PTYPE_*).
const (
	PTypeRequest          uint8 = 0x00
	PTypePing             uint8 = 0x01
	PTypeResponse         uint8 = 0x02
	PTypeFault            uint8 = 0x03
	PTypeWorking          uint8 = 0x04
	PTypeNoCall           uint8 = 0x05
	PTypeReject           uint8 = 0x06
	PTypeAck              uint8 = 0x07
	PTypeClCancel         uint8 = 0x08
	PTypeFack             uint8 = 0x09
	PTypeCancelAck        uint8 = 0x0A
	PTypeBind             uint8 = 0x0B
	PTypeBindAck          uint8 = 0x0C
	PTypeBindNak          uint8 = 0x0D
	PTypeAlterContext     uint8 = 0x0E
	PTypeAlterContextResp uint8 = 0x0F
	PTypeRPCAuth3         uint8 = 0x10
	PTypeShutdown         uint8 = 0x11
	PTypeCoCancel         uint8 = 0x12
	PTypeOrphaned         uint8 = 0x13
	PTypeRTS              uint8 = 0x14
)

// PFC flags (rpc.h PFC_*).
const (
	PfcFirstFrag      uint8 = 0x01
	PfcLastFrag       uint8 = 0x02
	PfcPendingCancel  uint8 = 0x04
	PfcSupportHdrSign uint8 = 0x04
	PfcConcMpx        uint8 = 0x10
	PfcDidNotExecute  uint8 = 0x20
	PfcMaybe          uint8 = 0x40
	PfcObjectUUID     uint8 = 0x80
)

// PackedDrep is the little-endian/ASCII/IEEE-float data representation used
// throughout this module: {0x10, 0x00, 0x00, 0x00}.
var PackedDrep = [4]byte{0x10, 0x00, 0x00, 0x00}

// Header is the common DCE/RPC PDU header present on every connection-
// oriented PDU (spec.md §4.2 "RPC common header").
type Header struct {
	VersionMajor uint8
	VersionMinor uint8
	PType        uint8
	PfcFlags     uint8
	PackedDrep   [4]byte
	FragLength   uint16
	AuthLength   uint16
	CallID       uint32
}

// NewHeader builds a header with the version/drep fields this module always
// sends (rpc_vers=5, rpc_vers_minor=0, little-endian/ASCII/IEEE drep).
func NewHeader(ptype uint8, flags uint8, fragLength int, authLength uint16, callID uint32) Header {
	return Header{
		VersionMajor: 5,
		VersionMinor: 0,
		PType:        ptype,
		PfcFlags:     flags,
		PackedDrep:   PackedDrep,
		FragLength:   uint16(fragLength),
		AuthLength:   authLength,
		CallID:       callID,
	}
}

// ParseHeader reads a Header from the front of s without advancing past the
// header if the stream is too short.
func ParseHeader(s *stream.Stream) (Header, error) {
	if s.Remaining() < HeaderSize {
		return Header{}, ErrTruncated
	}
	var h Header
	var err error
	vmaj, _ := s.ReadU8()
	vmin, _ := s.ReadU8()
	ptype, _ := s.ReadU8()
	flags, _ := s.ReadU8()
	drep, err := s.ReadBytes(4)
	if err != nil {
		return Header{}, err
	}
	fragLen, _ := s.ReadU16LE()
	authLen, _ := s.ReadU16LE()
	callID, _ := s.ReadU32LE()

	h.VersionMajor = vmaj
	h.VersionMinor = vmin
	h.PType = ptype
	h.PfcFlags = flags
	copy(h.PackedDrep[:], drep)
	h.FragLength = fragLen
	h.AuthLength = authLen
	h.CallID = callID
	return h, nil
}

// Encode appends the header to s.
func (h Header) Encode(s *stream.Stream) {
	s.WriteU8(h.VersionMajor)
	s.WriteU8(h.VersionMinor)
	s.WriteU8(h.PType)
	s.WriteU8(h.PfcFlags)
	s.WriteBytes(h.PackedDrep[:])
	s.WriteU16LE(h.FragLength)
	s.WriteU16LE(h.AuthLength)
	s.WriteU32LE(h.CallID)
}

// StubBounds computes the stub-data region for a REQUEST/RESPONSE/FAULT PDU
// per spec.md §4.2: stub starts at typeSpecificPrefix (8-aligned from the
// common header) and ends at frag_length - auth_length - 8 - auth_pad_length
// (the sec_trailer's authPadLen, zero when the PDU carries no auth trailer),
// guarding against the underflow the source's own dissector does not check
// (spec.md §9 open question). Matches rpc_get_stub_data_info's
// `sec_trailer_offset - auth_pad_length - offset`.
func StubBounds(h Header, typeSpecificPrefix int, authPadLen int) (start, end int, err error) {
	start = HeaderSize + typeSpecificPrefix
	alignedStart := alignUp(start, 8)

	fragLen := int(h.FragLength)
	authLen := int(h.AuthLength)
	tail := fragLen - authLen - 8 - authPadLen
	if authLen == 0 {
		tail = fragLen
	}
	if tail < alignedStart {
		return 0, 0, ErrTruncated
	}
	return alignedStart, tail, nil
}

// AuthTrailerOffset returns the 4-byte-aligned offset of the 8-byte
// sec_trailer within a PDU of the given frag/auth lengths, or an error if
// the computation would underflow.
func AuthTrailerOffset(fragLength, authLength uint16) (int, error) {
	if authLength == 0 {
		return 0, errors.New("rpcwire: no auth trailer present")
	}
	off := int(fragLength) - int(authLength) - 8
	if off < HeaderSize {
		return 0, ErrTruncated
	}
	return alignDown(off, 4), nil
}

func alignUp(n, to int) int {
	rem := n % to
	if rem == 0 {
		return n
	}
	return n + (to - rem)
}

func alignDown(n, to int) int {
	return n - (n % to)
}

// SecTrailer is the 8-byte auth verifier trailer (MS-RPCE 2.2.2.11) that
// precedes the auth token on signed PDUs.
type SecTrailer struct {
	AuthType    uint8
	AuthLevel   uint8
	AuthPadLen  uint8
	AuthRsrvd   uint8
	AuthContext uint32
}

const SecTrailerSize = 8

// AuthTypeWinNT and AuthLevelPktIntegrity are the values this module always
// emits (NTLM message-integrity protection, spec.md §4.6).
const (
	AuthTypeWinNT         uint8 = 0x0A
	AuthLevelPktIntegrity uint8 = 0x06
)

func (t SecTrailer) Encode(s *stream.Stream) {
	s.WriteU8(t.AuthType)
	s.WriteU8(t.AuthLevel)
	s.WriteU8(t.AuthPadLen)
	s.WriteU8(t.AuthRsrvd)
	s.WriteU32LE(t.AuthContext)
}

func ParseSecTrailer(s *stream.Stream) (SecTrailer, error) {
	if s.Remaining() < SecTrailerSize {
		return SecTrailer{}, ErrTruncated
	}
	var t SecTrailer
	t.AuthType, _ = s.ReadU8()
	t.AuthLevel, _ = s.ReadU8()
	t.AuthPadLen, _ = s.ReadU8()
	t.AuthRsrvd, _ = s.ReadU8()
	t.AuthContext, _ = s.ReadU32LE()
	return t, nil
}
