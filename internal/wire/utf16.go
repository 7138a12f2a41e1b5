package wire

import "unicode/utf16"

// DecodeUTF16LE decodes a raw (non-NDR) little-endian UTF-16 byte run, as
// carried by RDPDR path/name fields (spec.md §9: "UTF-16 strings on the
// wire... never assume null termination"). Any trailing NUL code unit is
// stripped since most RDPDR path fields on the wire are NUL-terminated.
func DecodeUTF16LE(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = uint16(b[2*i]) | uint16(b[2*i+1])<<8
	}
	for len(units) > 0 && units[len(units)-1] == 0 {
		units = units[:len(units)-1]
	}
	return string(utf16.Decode(units))
}

// EncodeUTF16LE encodes s to raw little-endian UTF-16 bytes with a
// trailing NUL code unit, matching the wire convention RDPDR path and
// name fields use.
func EncodeUTF16LE(s string) []byte {
	units := utf16.Encode([]rune(s))
	out := make([]byte, 0, (len(units)+1)*2)
	for _, u := range units {
		out = append(out, byte(u), byte(u>>8))
	}
	out = append(out, 0, 0)
	return out
}
