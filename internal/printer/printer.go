// Package printer implements the redirected-printer device (C11): print
// job lifecycle over CREATE/CLOSE/WRITE IRPs, delegated to a pluggable
// Backend (spec.md §4.11).
//
// Grounded on original_source/channels/rdpdr/printer/printer_main.c
// (printer_process_irp_create/close/write) for the handler shape, and on
// internal/drive for the device/worker wiring pattern this module reuses
// (dittofs has no print-spooler analogue of its own).
package printer

import (
	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
)

// PrintJob is a single in-flight print job created by a Backend.
type PrintJob interface {
	ID() uint32
	Write(p []byte) (int, error)
	Close() error
}

// Backend is the pluggable print-spooler interface (spec.md §4.11:
// "enum_printers(), get_printer(name), create_print_job, write_print_job,
// close_print_job"). A nil Backend is valid: every CREATE then fails with
// STATUS_PRINT_QUEUE_FULL, matching printer_main.c's printer==NULL path.
type Backend interface {
	EnumPrinters() ([]string, error)
	GetPrinter(name string) (Info, bool)
	CreatePrintJob(printerName string) (PrintJob, error)
}

// Info describes one printer the Backend knows about, used to build the
// device's announce blob.
type Info struct {
	DriverName string
	PrintName  string
	IsDefault  bool
	CachedData []byte
}

// Announce flag bits (spec.md §4.11 / MS-RDPEFS 2.2.1.3.4).
const (
	announceFlagDefaultPrinter uint32 = 0x00000001
	announceFlagNetworkPrinter uint32 = 0x00000002
)

// Device is the redirected-printer device.
type Device struct {
	id   uint32
	name string
	info Info

	backend Backend
	pool    *stream.Pool
	worker  *irpengine.Worker

	jobs struct {
		mu  chan struct{}
		set map[uint32]PrintJob
	}
}

// New constructs a printer device named name (sanitized to 8 ASCII bytes
// at announce time), backed by backend and describing itself with info.
func New(name string, info Info, backend Backend, pool *stream.Pool) *Device {
	d := &Device{name: name, info: info, backend: backend, pool: pool}
	d.jobs.mu = make(chan struct{}, 1)
	d.jobs.mu <- struct{}{}
	d.jobs.set = make(map[uint32]PrintJob)
	d.worker = irpengine.NewWorker(d)
	go d.worker.Run()
	return d
}

func (d *Device) ID() uint32      { return d.id }
func (d *Device) SetID(id uint32) { d.id = id }
func (d *Device) Type() uint32    { return wire.DeviceTypePrint }
func (d *Device) Name() string    { return d.name }

// AnnounceBlob encodes the PRINTER announce data (spec.md §4.11):
// flags, code_page=0, pnp_name_len=0, driver_name_len, print_name_len,
// cached_len, driver_name(utf16), 0x0000, print_name(utf16), 0x0000,
// cached_fields.
func (d *Device) AnnounceBlob() []byte {
	s := stream.Take(256)
	defer s.Release()

	var flags uint32
	if d.info.IsDefault {
		flags |= announceFlagDefaultPrinter
	}
	driverName := wire.EncodeUTF16LE(d.info.DriverName)
	printName := wire.EncodeUTF16LE(d.info.PrintName)
	// EncodeUTF16LE appends a NUL; drop it so each name is followed by
	// exactly one 0x0000 terminator below.
	driverName = driverName[:len(driverName)-2]
	printName = printName[:len(printName)-2]

	s.WriteU32LE(flags)
	s.WriteU32LE(0) // CodePage
	s.WriteU32LE(0) // PnPNameLen
	s.WriteU32LE(uint32(len(driverName) + 2))
	s.WriteU32LE(uint32(len(printName) + 2))
	s.WriteU32LE(uint32(len(d.info.CachedData)))
	s.WriteBytes(driverName)
	s.WriteU16LE(0)
	s.WriteBytes(printName)
	s.WriteU16LE(0)
	s.WriteBytes(d.info.CachedData)

	out := make([]byte, s.Len())
	copy(out, s.Bytes())
	return out
}

// Enqueue hands irp to the device's worker (called by pkg/rdpdr's IRP
// demux).
func (d *Device) Enqueue(irp *irpengine.Irp) { d.worker.Enqueue(irp) }

// QueueLen reports the number of IRPs waiting on this device's worker,
// for the IRP queue-depth gauge.
func (d *Device) QueueLen() int { return d.worker.Len() }

func (d *Device) Free() {
	d.worker.Stop()
	<-d.jobs.mu
	for _, j := range d.jobs.set {
		_ = j.Close()
	}
	d.jobs.set = nil
	d.jobs.mu <- struct{}{}
}

// Dispatch implements irpengine.Handler. Every non-CREATE/CLOSE/WRITE
// major is rejected with STATUS_NOT_SUPPORTED, matching printer_main.c's
// default case.
func (d *Device) Dispatch(irp *irpengine.Irp) {
	switch irp.Major {
	case wire.IRPMjCreateCode:
		d.handleCreate(irp)
	case wire.IRPMjCloseCode:
		d.handleClose(irp)
	case wire.IRPMjWriteCode:
		d.handleWrite(irp)
	default:
		irp.IOStatus = wire.StatusNotSupported
		irp.Complete()
	}
}

func (d *Device) putJob(j PrintJob) {
	<-d.jobs.mu
	d.jobs.set[j.ID()] = j
	d.jobs.mu <- struct{}{}
}

func (d *Device) getJob(id uint32) (PrintJob, bool) {
	<-d.jobs.mu
	j, ok := d.jobs.set[id]
	d.jobs.mu <- struct{}{}
	return j, ok
}

func (d *Device) dropJob(id uint32) (PrintJob, bool) {
	<-d.jobs.mu
	j, ok := d.jobs.set[id]
	if ok {
		delete(d.jobs.set, id)
	}
	d.jobs.mu <- struct{}{}
	return j, ok
}

func (d *Device) handleCreate(irp *irpengine.Irp) {
	if d.backend == nil {
		irp.Output.WriteU32LE(0) // FileId
		irp.IOStatus = wire.StatusPrintQueueFull
		irp.Complete()
		return
	}
	job, err := d.backend.CreatePrintJob(d.info.PrintName)
	if err != nil || job == nil {
		irp.Output.WriteU32LE(0)
		irp.IOStatus = wire.StatusPrintQueueFull
		irp.Complete()
		return
	}
	d.putJob(job)
	irp.Output.WriteU32LE(job.ID())
	irp.Complete()
}

func (d *Device) handleClose(irp *irpengine.Irp) {
	job, ok := d.dropJob(irp.FileID)
	// 4 bytes of padding regardless of outcome (spec.md §4.11 CLOSE).
	irp.Output.WriteU32LE(0)
	if !ok {
		irp.IOStatus = wire.StatusUnsuccessful
		irp.Complete()
		return
	}
	_ = job.Close()
	irp.Complete()
}

func (d *Device) handleWrite(irp *irpengine.Irp) {
	length, _ := irp.Input.ReadU32LE()
	_, _ = irp.Input.ReadU64LE() // Offset, unused: print jobs are append-only streams
	_, _ = irp.Input.ReadBytes(20)

	job, ok := d.getJob(irp.FileID)
	if !ok {
		irp.Output.WriteU32LE(0)
		irp.Output.WriteU8(0)
		irp.IOStatus = wire.StatusUnsuccessful
		irp.Complete()
		return
	}
	data, err := irp.Input.ReadBytes(int(length))
	if err != nil {
		irp.Output.WriteU32LE(0)
		irp.Output.WriteU8(0)
		irp.IOStatus = wire.StatusUnsuccessful
		irp.Complete()
		return
	}
	n, err := job.Write(data)
	if err != nil {
		irp.Output.WriteU32LE(uint32(n))
		irp.Output.WriteU8(0)
		irp.IOStatus = wire.StatusUnsuccessful
		irp.Complete()
		return
	}
	irp.Output.WriteU32LE(uint32(n))
	irp.Output.WriteU8(0)
	irp.Complete()
}
