package stream

import (
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrInvalidData is returned by any read/seek that would move the cursor
// past the written length, or by a write that would violate capacity
// invariants that cannot be silently grown.
var ErrInvalidData = errors.New("stream: invalid data")

// Stream is a bounded byte buffer with a little-endian read/write cursor.
// Invariant (spec.md §8.1): 0 <= position <= length <= capacity.
type Stream struct {
	buf  []byte // len(buf) == length, cap(buf) == capacity
	pos  int
	pool *Pool
	tier *sync.Pool
	refs int32
}

// Len returns the current written length.
func (s *Stream) Len() int { return len(s.buf) }

// Cap returns the backing capacity.
func (s *Stream) Cap() int { return cap(s.buf) }

// Pos returns the current cursor position.
func (s *Stream) Pos() int { return s.pos }

// Bytes returns the full written region (length bytes), not a copy.
func (s *Stream) Bytes() []byte { return s.buf }

// Remaining returns how many unread bytes lie between pos and length.
func (s *Stream) Remaining() int { return len(s.buf) - s.pos }

// PeekRemaining returns the unread region without advancing pos.
func (s *Stream) PeekRemaining() []byte { return s.buf[s.pos:] }

// AddRef increments the refcount (pool contract, spec.md §4.1).
func (s *Stream) AddRef() { atomic.AddInt32(&s.refs, 1) }

// Release decrements the refcount; at zero, the backing buffer returns to
// its pool (or is simply dropped, for oversized non-pooled buffers).
func (s *Stream) Release() {
	if atomic.AddInt32(&s.refs, -1) > 0 {
		return
	}
	if s.pool != nil {
		s.pool.releaseStream(s)
	}
}

// Seek moves the cursor to an absolute position. Fails if n > length.
func (s *Stream) Seek(n int) error {
	if n < 0 || n > len(s.buf) {
		return ErrInvalidData
	}
	s.pos = n
	return nil
}

// SafeSeek is Seek but additionally rejects overflowing offsets computed
// from attacker-controlled wire fields (e.g. frag_length - auth_length - 8).
func (s *Stream) SafeSeek(n int64) error {
	if n < 0 || n > int64(len(s.buf)) {
		return ErrInvalidData
	}
	return s.Seek(int(n))
}

// EnsureCapacity grows the backing array (and length, zero-filled) so that
// at least n bytes are writable from the start of the buffer.
func (s *Stream) EnsureCapacity(n int) {
	if cap(s.buf) >= n {
		return
	}
	grown := make([]byte, len(s.buf), n)
	copy(grown, s.buf)
	s.buf = grown
}

// Align zero-pads (on write) or skips (on read) to the next multiple of n
// relative to the start of the buffer, matching NDR/RPC alignment rules:
// the written length is padded with zero bytes, then the read cursor is
// advanced, each to the next multiple of n.
func (s *Stream) Align(n int) {
	if rem := len(s.buf) % n; rem != 0 {
		s.WriteBytes(make([]byte, n-rem))
	}
	if rem := s.pos % n; rem != 0 {
		s.pos += n - rem
	}
}

func (s *Stream) grow(extra int) {
	needed := len(s.buf) + extra
	if cap(s.buf) < needed {
		grown := make([]byte, len(s.buf), needed*2+16)
		copy(grown, s.buf)
		s.buf = grown
	}
	s.buf = s.buf[:needed]
}

// Truncate resets length to n, clamping the cursor if it now lies past the
// new length. Used when an IRP handler needs to re-seal a pre-sized buffer.
func (s *Stream) Truncate(n int) {
	if n < 0 {
		n = 0
	}
	if n > len(s.buf) {
		s.EnsureCapacity(n)
		s.grow(n - len(s.buf))
		return
	}
	s.buf = s.buf[:n]
	if s.pos > n {
		s.pos = n
	}
}

func (s *Stream) ensureReadable(n int) error {
	if s.Remaining() < n {
		return ErrInvalidData
	}
	return nil
}

func (s *Stream) ReadU8() (uint8, error) {
	if err := s.ensureReadable(1); err != nil {
		return 0, err
	}
	v := s.buf[s.pos]
	s.pos++
	return v, nil
}

func (s *Stream) ReadU16LE() (uint16, error) {
	if err := s.ensureReadable(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(s.buf[s.pos:])
	s.pos += 2
	return v, nil
}

func (s *Stream) ReadU32LE() (uint32, error) {
	if err := s.ensureReadable(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(s.buf[s.pos:])
	s.pos += 4
	return v, nil
}

func (s *Stream) ReadU64LE() (uint64, error) {
	if err := s.ensureReadable(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(s.buf[s.pos:])
	s.pos += 8
	return v, nil
}

// ReadBytes reads n raw bytes and advances pos. The returned slice aliases
// the stream's backing array; callers that retain it past the next write
// must copy.
func (s *Stream) ReadBytes(n int) ([]byte, error) {
	if err := s.ensureReadable(n); err != nil {
		return nil, err
	}
	b := s.buf[s.pos : s.pos+n]
	s.pos += n
	return b, nil
}

func (s *Stream) WriteU8(v uint8) {
	s.grow(1)
	s.buf[len(s.buf)-1] = v
}

func (s *Stream) WriteU16LE(v uint16) {
	s.grow(2)
	binary.LittleEndian.PutUint16(s.buf[len(s.buf)-2:], v)
}

func (s *Stream) WriteU32LE(v uint32) {
	s.grow(4)
	binary.LittleEndian.PutUint32(s.buf[len(s.buf)-4:], v)
}

func (s *Stream) WriteU64LE(v uint64) {
	s.grow(8)
	binary.LittleEndian.PutUint64(s.buf[len(s.buf)-8:], v)
}

func (s *Stream) WriteBytes(b []byte) {
	s.grow(len(b))
	copy(s.buf[len(s.buf)-len(b):], b)
}

// WriteAt overwrites length-bounded bytes at an absolute offset without
// moving pos or changing length; used to patch headers (e.g. IoStatus)
// after the body has already been written.
func (s *Stream) WriteAt(offset int, b []byte) error {
	if offset < 0 || offset+len(b) > len(s.buf) {
		return ErrInvalidData
	}
	copy(s.buf[offset:offset+len(b)], b)
	return nil
}

func (s *Stream) WriteU32LEAt(offset int, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return s.WriteAt(offset, b[:])
}
