package rpcwire

import (
	"unicode/utf16"

	"github.com/corerdp/rdpdr/pkg/stream"
)

// UUID is a 16-byte NDR UUID in wire byte order (the first three fields are
// little-endian, the last two are big-endian, per [C706] §14.3.1.1).
type UUID [16]byte

// mustUUID decodes a canonical "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx"
// string into wire order. Panics on malformed input; only ever called with
// the fixed literals below.
func mustUUID(s string) UUID {
	var raw [16]byte
	hex := func(c byte) byte {
		switch {
		case c >= '0' && c <= '9':
			return c - '0'
		case c >= 'a' && c <= 'f':
			return c - 'a' + 10
		case c >= 'A' && c <= 'F':
			return c - 'A' + 10
		}
		panic("rpcwire: bad uuid literal")
	}
	j := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			continue
		}
		if j%2 == 0 {
			raw[j/2] = hex(s[i]) << 4
		} else {
			raw[j/2] |= hex(s[i])
		}
		j++
	}
	var u UUID
	// time_low, time_mid, time_hi_and_version are little-endian on the wire;
	// clock_seq + node are byte-for-byte as given.
	u[0], u[1], u[2], u[3] = raw[3], raw[2], raw[1], raw[0]
	u[4], u[5] = raw[5], raw[4]
	u[6], u[7] = raw[7], raw[6]
	copy(u[8:], raw[8:16])
	return u
}

// TSGUInterfaceUUID is the TSGU abstract interface UUID, version 3.1
// (also used as the HTTP ResourceTypeUuid header value, spec.md §4.4).
var TSGUInterfaceUUID = mustUUID("44e265dd-7daf-42cd-8560-3cdb6e7a2729")

// TSGUInterfaceVersion packs major=3, minor=1 as the bind-time version
// field, matching TSGU_SYNTAX_IF_VERSION in the FreeRDP original.
const TSGUInterfaceVersion uint32 = 0x00030001

// NDRTransferSyntaxUUID is the standard NDR transfer syntax UUID shared by
// every DCE/RPC interface ([C706] §14.3.2).
var NDRTransferSyntaxUUID = mustUUID("8a885d04-1ceb-11c9-9fe8-08002b104860")

// NDRTransferSyntaxVersion is the NDR transfer syntax version (2.0).
const NDRTransferSyntaxVersion uint32 = 0x00000002

// Align zero-pads the written length and skips the read cursor forward,
// each to the next multiple of n (stream.Stream.Align). Thin wrapper
// retained as a typed helper per the "small typed NDR helper" redesign
// note (spec.md §9) rather than open-coded arithmetic at each call site.
func Align(s *stream.Stream, n int) { s.Align(n) }

// PutWStringConformantVarying writes an NDR conformant-varying UTF-16LE
// string: MaximumCount, Offset=0, ActualCount (all u32, counts include the
// terminating NUL), followed by ActualCount UTF-16 code units.
func PutWStringConformantVarying(s *stream.Stream, text string) {
	units := utf16.Encode([]rune(text))
	units = append(units, 0)
	count := uint32(len(units))
	s.WriteU32LE(count) // MaximumCount
	s.WriteU32LE(0)     // Offset
	s.WriteU32LE(count) // ActualCount
	for _, u := range units {
		s.WriteU16LE(u)
	}
	// Pad the written length to a multiple of 4.
	if rem := s.Len() % 4; rem != 0 {
		s.WriteBytes(make([]byte, 4-rem))
	}
}

// ReadWStringConformantVarying reads the structure written by
// PutWStringConformantVarying and returns the string without its trailing
// NUL.
func ReadWStringConformantVarying(s *stream.Stream) (string, error) {
	if _, err := s.ReadU32LE(); err != nil { // MaximumCount
		return "", err
	}
	if _, err := s.ReadU32LE(); err != nil { // Offset
		return "", err
	}
	actual, err := s.ReadU32LE()
	if err != nil {
		return "", err
	}
	units := make([]uint16, 0, actual)
	for i := uint32(0); i < actual; i++ {
		u, err := s.ReadU16LE()
		if err != nil {
			return "", err
		}
		units = append(units, u)
	}
	Align(s, 4)
	if n := len(units); n > 0 && units[n-1] == 0 {
		units = units[:n-1]
	}
	return string(utf16.Decode(units)), nil
}

// PutPtr writes a non-null NDR unique/full pointer referent identifier.
// Referent identifiers need only be distinct and non-zero; this module uses
// fixed small values matching spec.md §4.7's concrete layouts.
func PutPtr(s *stream.Stream, referent uint32) { s.WriteU32LE(referent) }
