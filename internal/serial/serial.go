// Package serial implements the redirected-serial-port device (C12,
// serial half): termios-like line state, read/interval/total timeouts,
// asynchronous READ/WRITE completed from a select loop, and abort-io
// cancellation (spec.md §4.12).
//
// Grounded on original_source/channels/rdpdr/serial/serial_main.c
// (serial_process_irp_read/write, serial_abort_single_io,
// serial_check_fds) — dittofs has no analogue; the async-completion
// shape is learned directly from the original C state machine and
// reimplemented with goroutines and time.Timer in place of
// freerdp_thread/select().
package serial

import (
	"sync"
	"time"

	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
	"golang.org/x/sys/unix"
)

// defaultTimeout is the ceiling spec.md §4.12 imposes on any IRP-computed
// read/write timeout ("a default 20s").
const defaultTimeout = 20 * time.Second

type pendingOp struct {
	irp    *irpengine.Irp
	cancel chan struct{}
	once   sync.Once
}

func (p *pendingOp) abort(status uint32) {
	p.once.Do(func() {
		close(p.cancel)
		p.irp.Output.WriteU32LE(0)
		p.irp.IOStatus = status
		p.irp.Complete()
	})
}

// Device is the redirected serial-port device, backed by the host tty at
// Path (e.g. "/dev/ttyS0").
type Device struct {
	id   uint32
	name string
	Path string

	pool   *stream.Pool
	worker *irpengine.Worker

	mu    sync.Mutex
	fd    int
	state lineState

	pendingMu sync.Mutex
	pending   map[uint32]*pendingOp // keyed by CompletionID
}

// New constructs a serial device named name, bound to hostPath.
func New(name, hostPath string, pool *stream.Pool) *Device {
	d := &Device{
		name:    name,
		Path:    hostPath,
		pool:    pool,
		fd:      -1,
		state:   defaultLineState(),
		pending: make(map[uint32]*pendingOp),
	}
	d.worker = irpengine.NewWorker(d)
	go d.worker.Run()
	return d
}

func (d *Device) ID() uint32           { return d.id }
func (d *Device) SetID(id uint32)      { d.id = id }
func (d *Device) Type() uint32         { return wire.DeviceTypeSerial }
func (d *Device) Name() string         { return d.name }
func (d *Device) AnnounceBlob() []byte { return nil }

func (d *Device) Enqueue(irp *irpengine.Irp) { d.worker.Enqueue(irp) }

// QueueLen reports the number of IRPs waiting on this device's worker,
// for the IRP queue-depth gauge.
func (d *Device) QueueLen() int { return d.worker.Len() }

func (d *Device) Free() {
	d.worker.Stop()
	d.abortAll(wire.StatusCancelled)
	d.mu.Lock()
	if d.fd >= 0 {
		_ = unix.Close(d.fd)
		d.fd = -1
	}
	d.mu.Unlock()
}

func (d *Device) Dispatch(irp *irpengine.Irp) {
	switch irp.Major {
	case wire.IRPMjCreateCode:
		d.handleCreate(irp)
	case wire.IRPMjCloseCode:
		d.handleClose(irp)
	case wire.IRPMjReadCode:
		d.handleReadAsync(irp)
	case wire.IRPMjWriteCode:
		d.handleWriteAsync(irp)
	case wire.IRPMjDeviceControlCode:
		d.handleDeviceControl(irp)
	default:
		irp.IOStatus = wire.StatusNotSupported
		irp.Complete()
	}
}

func (d *Device) handleCreate(irp *irpengine.Irp) {
	fd, err := unix.Open(d.Path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		irp.Output.WriteU32LE(0)
		irp.IOStatus = wire.StatusUnsuccessful
		irp.Complete()
		return
	}
	d.mu.Lock()
	d.fd = fd
	d.mu.Unlock()
	irp.Output.WriteU32LE(1)
	irp.Output.WriteU8(0)
	irp.Complete()
}

func (d *Device) handleClose(irp *irpengine.Irp) {
	d.abortAll(wire.StatusCancelled)
	d.mu.Lock()
	if d.fd >= 0 {
		_ = unix.Close(d.fd)
		d.fd = -1
	}
	d.mu.Unlock()
	irp.Complete()
}

// readWriteTimeout computes min(IRP-derived timeout, defaultTimeout)
// (spec.md §4.12): multiplier*len + constant, clamped against the
// interval timeout when set.
func (d *Device) readWriteTimeout(length int, multiplier, constant uint32) time.Duration {
	d.mu.Lock()
	interval := d.state.readIntervalTimeout
	d.mu.Unlock()

	computed := time.Duration(multiplier)*time.Duration(length)*time.Millisecond + time.Duration(constant)*time.Millisecond
	if interval > 0 {
		intervalDur := time.Duration(interval) * time.Millisecond
		if intervalDur < computed || computed == 0 {
			computed = intervalDur
		}
	}
	if computed <= 0 || computed > defaultTimeout {
		computed = defaultTimeout
	}
	return computed
}

func (d *Device) registerPending(completionID uint32, irp *irpengine.Irp) *pendingOp {
	op := &pendingOp{irp: irp, cancel: make(chan struct{})}
	d.pendingMu.Lock()
	d.pending[completionID] = op
	d.pendingMu.Unlock()
	return op
}

func (d *Device) unregisterPending(completionID uint32) {
	d.pendingMu.Lock()
	delete(d.pending, completionID)
	d.pendingMu.Unlock()
}

func (d *Device) abortAll(status uint32) {
	d.pendingMu.Lock()
	ops := make([]*pendingOp, 0, len(d.pending))
	for id, op := range d.pending {
		ops = append(ops, op)
		delete(d.pending, id)
	}
	d.pendingMu.Unlock()
	for _, op := range ops {
		op.abort(status)
	}
}

func (d *Device) abortKind(flags uint32) {
	// Abort flags are not tied to a direction-specific id in this
	// device's single-fd model, so abort_io flags simply abort every
	// pending op regardless of read/write (spec.md §4.12's per-file_id
	// distinction collapses here since one Device == one fd).
	if flags&(abortIORead|abortIOWrite) != 0 {
		d.abortAll(wire.StatusCancelled)
	}
}

func (d *Device) handleReadAsync(irp *irpengine.Irp) {
	length, _ := irp.Input.ReadU32LE()
	_, _ = irp.Input.ReadU64LE() // Offset, unused: serial ports have no seek concept

	d.mu.Lock()
	fd := d.fd
	mult := d.state.readTotalTimeoutMultiplier
	cons := d.state.readTotalTimeoutConstant
	d.mu.Unlock()
	if fd < 0 {
		irp.Output.WriteU32LE(0)
		irp.IOStatus = wire.StatusUnsuccessful
		irp.Complete()
		return
	}

	timeout := d.readWriteTimeout(int(length), mult, cons)
	op := d.registerPending(irp.CompletionID, irp)

	go func() {
		defer d.unregisterPending(irp.CompletionID)
		buf := make([]byte, length)
		n, status := waitReadable(fd, buf, timeout, op.cancel)
		op.once.Do(func() {
			irp.Output.WriteBytes(buf[:n])
			irp.IOStatus = status
			irp.Complete()
		})
	}()
}

func (d *Device) handleWriteAsync(irp *irpengine.Irp) {
	length, _ := irp.Input.ReadU32LE()
	_, _ = irp.Input.ReadU64LE() // Offset
	_, _ = irp.Input.ReadBytes(20)
	data, err := irp.Input.ReadBytes(int(length))
	if err != nil {
		irp.Output.WriteU32LE(0)
		irp.Output.WriteU8(0)
		irp.IOStatus = wire.StatusUnsuccessful
		irp.Complete()
		return
	}

	d.mu.Lock()
	fd := d.fd
	mult := d.state.writeTotalTimeoutMultiplier
	cons := d.state.writeTotalTimeoutConstant
	d.mu.Unlock()
	if fd < 0 {
		irp.Output.WriteU32LE(0)
		irp.Output.WriteU8(0)
		irp.IOStatus = wire.StatusUnsuccessful
		irp.Complete()
		return
	}

	timeout := d.readWriteTimeout(len(data), mult, cons)
	op := d.registerPending(irp.CompletionID, irp)

	go func() {
		defer d.unregisterPending(irp.CompletionID)
		n, status := waitWritable(fd, data, timeout, op.cancel)
		op.once.Do(func() {
			irp.Output.WriteU32LE(uint32(n))
			irp.Output.WriteU8(0)
			irp.IOStatus = status
			irp.Complete()
		})
	}()
}
