// Package smartcard implements the redirected-smartcard device (C13):
// [MS-RDPESC] ioctl framing dispatched to a pluggable PC/SC-like Backend,
// with blocking ioctls off-loaded to their own goroutine and a
// duplicate-CompletionId workaround for clients that reuse completion
// ids (spec.md §4.13).
//
// Grounded on original_source/channels/rdpdr/smartcard/scard_main.c
// (scard_process_irp / scard_irp_request's per-op thread dispatch) and
// scard_operations.c (scard_device_control's response framing:
// NDR-prefix, output_len/0/result, body, 16-byte alignment).
package smartcard

import (
	"sync"

	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
)

// Device is the redirected smartcard device.
type Device struct {
	id   uint32
	name string

	backend Backend
	pool    *stream.Pool
	worker  *irpengine.Worker

	tracker completionTracker
}

// New constructs a smartcard device named name, dispatching ioctls to
// backend.
func New(name string, backend Backend, pool *stream.Pool) *Device {
	d := &Device{name: name, backend: backend, pool: pool}
	d.tracker.outstanding = make(map[uint32]*completionEntry)
	d.worker = irpengine.NewWorker(d)
	go d.worker.Run()
	return d
}

func (d *Device) ID() uint32           { return d.id }
func (d *Device) SetID(id uint32)      { d.id = id }
func (d *Device) Type() uint32         { return wire.DeviceTypeSmartcard }
func (d *Device) Name() string         { return d.name }
func (d *Device) AnnounceBlob() []byte { return nil }

func (d *Device) Enqueue(irp *irpengine.Irp) { d.worker.Enqueue(irp) }

// QueueLen reports the number of IRPs waiting on this device's worker,
// for the IRP queue-depth gauge.
func (d *Device) QueueLen() int { return d.worker.Len() }

func (d *Device) Free() { d.worker.Stop() }

// Dispatch implements irpengine.Handler. Only DEVICE_CONTROL is
// meaningful for a smartcard device (scard_process_irp's default case
// rejects everything else with STATUS_NOT_SUPPORTED).
func (d *Device) Dispatch(irp *irpengine.Irp) {
	if irp.Major != wire.IRPMjDeviceControlCode {
		irp.IOStatus = wire.StatusNotSupported
		irp.Complete()
		return
	}

	outputLen, _ := irp.Input.ReadU32LE()
	_, _ = irp.Input.ReadU32LE() // InputBufferLength, recomputed from the stream itself
	ioctl, _ := irp.Input.ReadU32LE()
	_, _ = irp.Input.ReadBytes(20) // padding

	body, _ := irp.Input.ReadBytes(irp.Input.Remaining())

	entry := d.tracker.register(irp.CompletionID)
	finish := func() {
		if entry.duplicate {
			irp.Discard()
		} else {
			irp.Complete()
		}
		d.tracker.finish(irp.CompletionID, entry)
	}

	handle := func() {
		out, result := d.handleIoctl(ioctl, body, int(outputLen))
		writeIoctlResponse(irp.Output, out, result)
		finish()
	}

	if isAsyncIoctl(ioctl) {
		go handle()
	} else {
		handle()
	}
}

// handleIoctl routes to the matching Backend method, resolving the
// wide/narrow variant (spec.md §4.13). Request bodies, including a
// Control call's control code, reach the Backend unchanged: Windows
// SCARD_CTL_CODE values are not translated to host numbering.
func (d *Device) handleIoctl(ioctl uint32, body []byte, _ int) ([]byte, uint32) {
	if d.backend == nil {
		return nil, ResultNoService
	}
	call := func(out []byte, result uint32, err error) ([]byte, uint32) {
		if err != nil {
			return nil, ResultNotSupported
		}
		return out, result
	}
	switch ioctl {
	case ioctlEstablishContext:
		return call(d.backend.EstablishContext(body))
	case ioctlReleaseContext:
		return call(d.backend.ReleaseContext(body))
	case ioctlIsValidContext:
		return call(d.backend.IsValidContext(body))
	case ioctlListReaders:
		return call(d.backend.ListReaders(body, false))
	case ioctlListReaders + wideVariantOffset:
		return call(d.backend.ListReaders(body, true))
	case ioctlGetStatusChange:
		return call(d.backend.GetStatusChange(body, false))
	case ioctlGetStatusChange + wideVariantOffset:
		return call(d.backend.GetStatusChange(body, true))
	case ioctlCancel:
		return call(d.backend.Cancel(body))
	case ioctlConnect:
		return call(d.backend.Connect(body, false))
	case ioctlConnect + wideVariantOffset:
		return call(d.backend.Connect(body, true))
	case ioctlReconnect:
		return call(d.backend.Reconnect(body))
	case ioctlDisconnect:
		return call(d.backend.Disconnect(body))
	case ioctlBeginTransaction:
		return call(d.backend.BeginTransaction(body))
	case ioctlEndTransaction:
		return call(d.backend.EndTransaction(body))
	case ioctlState:
		return call(d.backend.State(body))
	case ioctlStatus:
		return call(d.backend.Status(body, false))
	case ioctlStatus + wideVariantOffset:
		return call(d.backend.Status(body, true))
	case ioctlTransmit:
		return call(d.backend.Transmit(body))
	case ioctlControl:
		return call(d.backend.Control(body))
	case ioctlGetAttrib:
		return call(d.backend.GetAttrib(body))
	case ioctlAccessStartedEvent:
		return call(d.backend.AccessStartedEvent(body))
	case ioctlLocateCardsByATR:
		return call(d.backend.LocateCardsByATR(body))
	default:
		return nil, ResultNotSupported
	}
}

// writeIoctlResponse writes the [MS-RPCE]/[MS-RDPESC] response frame:
// OutputBufferLength(4), an 8-byte NDR prefix, output_len(4), filler(4),
// result(4), body, padded to 16-byte alignment; OutputBufferLength is
// patched last to count every byte after it (spec.md §4.13,
// scard_device_control).
func writeIoctlResponse(out *stream.Stream, body []byte, result uint32) {
	const ndrPrefix = 0x00081001 // len 8, LE, version 1

	lenPos := out.Len()
	out.WriteU32LE(0) // OutputBufferLength, patched below
	out.WriteU32LE(ndrPrefix)
	out.WriteU32LE(0xcccccccc) // filler ([MS-RPCE] 2.2.6.1)
	out.WriteU32LE(uint32(len(body)))
	out.WriteU32LE(0) // filler
	out.WriteU32LE(result)
	out.WriteBytes(body)

	if pad := (16 - out.Len()%16) % 16; pad != 0 {
		out.WriteBytes(make([]byte, pad))
	}
	_ = out.WriteU32LEAt(lenPos, uint32(out.Len()-lenPos-4))
}

type completionEntry struct {
	duplicate bool
}

// completionTracker implements spec.md §4.13's duplicate-CompletionId
// workaround: a client that reuses a completion_id while an earlier IRP
// with that id is still pending gets the earlier one silently discarded
// instead of double-delivered.
type completionTracker struct {
	mu          sync.Mutex
	outstanding map[uint32]*completionEntry
}

func (t *completionTracker) register(id uint32) *completionEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	if existing, ok := t.outstanding[id]; ok {
		existing.duplicate = true
	}
	e := &completionEntry{}
	t.outstanding[id] = e
	return e
}

func (t *completionTracker) finish(id uint32, e *completionEntry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.outstanding[id] == e {
		delete(t.outstanding, id)
	}
}
