package rpch

import "crypto/rand"

// Cookie is a 16-byte RTS cookie identifying a virtual connection or
// channel (spec.md §4.5 "cookies C=conn, I=in, O=out, A=assocGroup").
type Cookie [16]byte

// NewCookie generates a random cookie.
func NewCookie() Cookie {
	var c Cookie
	_, _ = rand.Read(c[:])
	return c
}
