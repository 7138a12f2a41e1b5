package rdpdr

import (
	"errors"

	"github.com/corerdp/rdpdr/pkg/stream"
)

// ErrOutOfOrderFrame is returned when a continuation/last frame arrives
// without a preceding FIRST frame having opened a reassembly buffer.
var ErrOutOfOrderFrame = errors.New("rdpdr: channel frame out of order")

// reassembler accumulates virtual-channel frames into complete PDUs
// (spec.md §4.14 "Channel receive assembly"): CHANNEL_FLAG_FIRST opens a
// pool stream sized to totalLength, each frame appends its data, and
// CHANNEL_FLAG_LAST seals it for dispatch. SUSPEND/RESUME are ignored.
type reassembler struct {
	pool *stream.Pool
	buf  *stream.Stream
}

func newReassembler(pool *stream.Pool) *reassembler {
	return &reassembler{pool: pool}
}

// Feed processes one frame. On a sealed PDU (CHANNEL_FLAG_LAST), it
// returns the completed stream positioned at 0 for the caller to parse;
// otherwise it returns nil and no error.
func (r *reassembler) Feed(flags uint32, totalLength uint32, data []byte) (*stream.Stream, error) {
	if flags&ChannelFlagSuspend != 0 || flags&ChannelFlagResume != 0 {
		return nil, nil
	}
	if flags&ChannelFlagFirst != 0 {
		if r.buf != nil {
			r.buf.Release()
		}
		r.buf = r.pool.Take(int(totalLength))
	}
	if r.buf == nil {
		return nil, ErrOutOfOrderFrame
	}
	r.buf.WriteBytes(data)

	if flags&ChannelFlagLast != 0 {
		sealed := r.buf
		r.buf = nil
		sealed.Seek(0)
		return sealed, nil
	}
	return nil, nil
}
