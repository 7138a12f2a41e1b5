// Package parallel implements the redirected-parallel-port device (C12,
// parallel half): a simple non-blocking fd opened once at CREATE, with
// partial-count READ/WRITE and errno mapped to STATUS_DEVICE_OFF_LINE /
// STATUS_DEVICE_PAPER_EMPTY / STATUS_DEVICE_POWERED_OFF (spec.md §4.12).
//
// Grounded on original_source/channels/rdpdr/parallel/parallel_main.c.
package parallel

import (
	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
	"golang.org/x/sys/unix"
)

// Device is the redirected parallel-port device, backed by the host path
// Path (e.g. "/dev/lp0").
type Device struct {
	id   uint32
	name string
	Path string

	pool   *stream.Pool
	worker *irpengine.Worker

	fd int
}

// New constructs a parallel device named name, bound to hostPath.
func New(name, hostPath string, pool *stream.Pool) *Device {
	d := &Device{name: name, Path: hostPath, pool: pool, fd: -1}
	d.worker = irpengine.NewWorker(d)
	go d.worker.Run()
	return d
}

func (d *Device) ID() uint32           { return d.id }
func (d *Device) SetID(id uint32)      { d.id = id }
func (d *Device) Type() uint32         { return wire.DeviceTypeParallel }
func (d *Device) Name() string         { return d.name }
func (d *Device) AnnounceBlob() []byte { return nil }

func (d *Device) Enqueue(irp *irpengine.Irp) { d.worker.Enqueue(irp) }

// QueueLen reports the number of IRPs waiting on this device's worker,
// for the IRP queue-depth gauge.
func (d *Device) QueueLen() int { return d.worker.Len() }

func (d *Device) Free() {
	d.worker.Stop()
	if d.fd >= 0 {
		_ = unix.Close(d.fd)
		d.fd = -1
	}
}

// errorStatus maps errno to an NTSTATUS value (parallel_main.c's
// get_error_status): EAGAIN/EIO -> OFF_LINE, ENOSPC -> PAPER_EMPTY,
// otherwise -> POWERED_OFF.
func errorStatus(err error) uint32 {
	switch err {
	case unix.EAGAIN, unix.EIO:
		return wire.StatusDeviceOffLine
	case unix.ENOSPC:
		return wire.StatusDevicePaperEmpty
	default:
		return wire.StatusDevicePoweredOff
	}
}

func (d *Device) Dispatch(irp *irpengine.Irp) {
	switch irp.Major {
	case wire.IRPMjCreateCode:
		d.handleCreate(irp)
	case wire.IRPMjCloseCode:
		d.handleClose(irp)
	case wire.IRPMjReadCode:
		d.handleRead(irp)
	case wire.IRPMjWriteCode:
		d.handleWrite(irp)
	case wire.IRPMjDeviceControlCode:
		irp.Output.WriteU32LE(0) // OutputBufferLength
		irp.Complete()
	default:
		irp.IOStatus = wire.StatusNotSupported
		irp.Complete()
	}
}

func (d *Device) handleCreate(irp *irpengine.Irp) {
	fd, err := unix.Open(d.Path, unix.O_RDWR, 0)
	if err != nil {
		irp.IOStatus = wire.StatusAccessDenied
		irp.Complete()
		return
	}
	_ = unix.SetNonblock(fd, true)
	d.fd = fd
	irp.Complete()
}

func (d *Device) handleClose(irp *irpengine.Irp) {
	if d.fd >= 0 {
		_ = unix.Close(d.fd)
		d.fd = -1
	}
	irp.Complete()
}

func (d *Device) handleRead(irp *irpengine.Irp) {
	length, _ := irp.Input.ReadU32LE()
	_, _ = irp.Input.ReadU64LE() // Offset, unused: parallel ports have no seek concept

	buf := make([]byte, length)
	n, err := unix.Read(d.fd, buf)
	if err != nil {
		irp.IOStatus = errorStatus(err)
		irp.Complete()
		return
	}
	irp.Output.WriteBytes(buf[:n])
	irp.Complete()
}

func (d *Device) handleWrite(irp *irpengine.Irp) {
	length, _ := irp.Input.ReadU32LE()
	_, _ = irp.Input.ReadU64LE() // Offset
	_, _ = irp.Input.ReadBytes(20)

	data, err := irp.Input.ReadBytes(int(length))
	if err != nil {
		irp.IOStatus = wire.StatusUnsuccessful
		irp.Complete()
		return
	}

	written := 0
	for written < len(data) {
		n, err := unix.Write(d.fd, data[written:])
		if err != nil {
			irp.IOStatus = errorStatus(err)
			irp.Complete()
			return
		}
		written += n
	}
	irp.Output.WriteU32LE(uint32(written))
	irp.Output.WriteU8(0)
	irp.Complete()
}
