// Package stream provides a bounded, pool-backed byte buffer with
// little-endian read/write cursors, used as the wire-level building block
// for every codec in this module (RDPDR packets, RPC/RTS PDUs, NDR blobs).
//
// Grounded on the teacher's pkg/bufpool (tiered sync.Pool buffer reuse);
// adapted here into a cursor-based Stream type with refcounting, matching
// spec.md §3 ("Stream") and §4.1.
package stream

import "sync"

// Default size tiers, same shape as the teacher's bufpool.Config.
const (
	DefaultSmallSize  = 4 << 10
	DefaultMediumSize = 64 << 10
	DefaultLargeSize  = 1 << 20
)

// Pool hands out Streams sized to one of three tiers and reclaims them on
// Release. All operations are safe for concurrent use (spec.md §5: "the
// stream pool is process-wide, internally locked").
type Pool struct {
	small, medium, large sync.Pool
	smallSize            int
	mediumSize           int
	largeSize            int
}

// Config configures tier sizes for a Pool. A zero Config selects defaults.
type Config struct {
	SmallSize, MediumSize, LargeSize int
}

func DefaultConfig() Config {
	return Config{SmallSize: DefaultSmallSize, MediumSize: DefaultMediumSize, LargeSize: DefaultLargeSize}
}

func NewPool(cfg Config) *Pool {
	if cfg.SmallSize <= 0 {
		cfg.SmallSize = DefaultSmallSize
	}
	if cfg.MediumSize <= 0 {
		cfg.MediumSize = DefaultMediumSize
	}
	if cfg.LargeSize <= 0 {
		cfg.LargeSize = DefaultLargeSize
	}

	p := &Pool{smallSize: cfg.SmallSize, mediumSize: cfg.MediumSize, largeSize: cfg.LargeSize}
	p.small.New = func() any { buf := make([]byte, p.smallSize); return &buf }
	p.medium.New = func() any { buf := make([]byte, p.mediumSize); return &buf }
	p.large.New = func() any { buf := make([]byte, p.largeSize); return &buf }
	return p
}

// Take returns a new Stream with at least minCapacity bytes of backing
// storage and a refcount of 1. The Stream is empty (length 0, position 0).
func (p *Pool) Take(minCapacity int) *Stream {
	var tier *sync.Pool
	switch {
	case minCapacity <= p.smallSize:
		tier = &p.small
	case minCapacity <= p.mediumSize:
		tier = &p.medium
	case minCapacity <= p.largeSize:
		tier = &p.large
	default:
		return &Stream{buf: make([]byte, 0, minCapacity), refs: 1}
	}

	bufPtr := tier.Get().(*[]byte)
	return &Stream{buf: (*bufPtr)[:0], pool: p, tier: tier, refs: 1}
}

func (p *Pool) releaseStream(s *Stream) {
	if s.tier == nil {
		return
	}
	capacity := cap(s.buf)
	switch {
	case capacity == p.smallSize && s.tier == &p.small:
	case capacity == p.mediumSize && s.tier == &p.medium:
	case capacity == p.largeSize && s.tier == &p.large:
	default:
		return
	}
	full := s.buf[:capacity]
	s.tier.Put(&full)
}

// globalPool is the one process-wide pool (spec.md §5 permits exactly this
// plus the logger handle as the only global mutable state).
var globalPool = NewPool(DefaultConfig())

// Take allocates a Stream from the global pool.
func Take(minCapacity int) *Stream { return globalPool.Take(minCapacity) }
