// Package irpengine implements the per-device IRP (I/O Request Packet)
// worker model: a mutex-guarded MPSC queue feeding one worker goroutine per
// device, with the complete/discard contract spec.md §3/§4.9 mandates.
//
// Grounded on spec.md §3 ("Irp") and §4.9 directly, and on
// channels/rdpdr/irp.c (original_source/) for the dispatch-then-complete
// shape (`irp->Complete(irp)` called exactly once per IRP by every
// handler path) — the teacher (dittofs) has no IRP/device-worker
// equivalent of its own: its NFS/SMB handlers run synchronously on the
// request goroutine with no per-device queue.
package irpengine

import (
	"sync/atomic"

	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
)

// Irp is one I/O Request Packet addressed to a device (spec.md §3).
// Exactly one of Complete or Discard must be called; after either, the
// Irp is unusable (spec.md §8.2).
type Irp struct {
	DeviceID     uint32
	FileID       uint32
	CompletionID uint32
	Major        uint32
	Minor        uint32

	// Input is the IRP's request body, borrowed from the channel frame
	// that carried it — handlers must not retain slices from it past
	// the call to Complete/Discard.
	Input *stream.Stream

	// Output is allocated from the pool and pre-written with an
	// IO-completion header whose IoStatus word is patched at Complete
	// time. Handlers append their reply body after the header.
	Output *stream.Stream

	// IOStatus is set to STATUS_SUCCESS by New before the handler runs;
	// handlers overwrite it to report failure.
	IOStatus uint32

	reply  func(*stream.Stream)
	done   int32
	pool   *stream.Pool
}

// New allocates an Irp with its Output stream pre-sized and pre-written
// with the IO-completion header prefix. reply is invoked exactly once,
// from Complete, with the sealed Output stream (the caller owns its
// lifetime from there — typically writing it to the channel then
// releasing it).
func New(header wire.IRPHeader, input *stream.Stream, pool *stream.Pool, reply func(*stream.Stream)) *Irp {
	out := pool.Take(wire.IOCompletionHeaderSize + 64)
	wire.WriteIOCompletionHeader(out, header.DeviceID, header.CompletionID)
	return &Irp{
		DeviceID:     header.DeviceID,
		FileID:       header.FileID,
		CompletionID: header.CompletionID,
		Major:        header.Major,
		Minor:        header.Minor,
		Input:        input,
		Output:       out,
		IOStatus:     wire.StatusSuccess,
		reply:        reply,
		pool:         pool,
	}
}

// Complete patches the final IoStatus into the reply header and delivers
// the Output stream to the channel via reply. Safe to call only once.
func (irp *Irp) Complete() {
	if !atomic.CompareAndSwapInt32(&irp.done, 0, 1) {
		return
	}
	_ = wire.PatchIOStatus(irp.Output, irp.IOStatus)
	if irp.reply != nil {
		irp.reply(irp.Output)
	}
}

// Discard releases the Output stream without delivering a reply — used
// when the channel is tearing down and pending IRPs must be drained
// without writing to a dead channel.
func (irp *Irp) Discard() {
	if !atomic.CompareAndSwapInt32(&irp.done, 0, 1) {
		return
	}
	irp.Output.Release()
}

// Done reports whether Complete or Discard has already run.
func (irp *Irp) Done() bool { return atomic.LoadInt32(&irp.done) != 0 }
