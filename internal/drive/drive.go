package drive

import (
	"os"
	"sync"

	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
)

// Device is the redirected-drive device (C10): a Windows-compatible
// filesystem emulation rooted at BasePath, dispatching CREATE/CLOSE/
// READ/WRITE/QUERY*/SET*/DIRECTORY_CONTROL/DEVICE_CONTROL IRPs
// (spec.md §4.10).
type Device struct {
	id       uint32
	name     string
	BasePath string

	pool   *stream.Pool
	worker *irpengine.Worker

	mu      sync.Mutex
	files   map[uint32]*openFile
	nextFID uint32
}

// New constructs a drive device rooted at basePath, displayed to the
// server as name (sanitized to 8 ASCII bytes at announce time).
func New(name, basePath string, pool *stream.Pool) *Device {
	d := &Device{name: name, BasePath: basePath, pool: pool, files: make(map[uint32]*openFile), nextFID: 1}
	d.worker = irpengine.NewWorker(d)
	go d.worker.Run()
	return d
}

func (d *Device) ID() uint32      { return d.id }
func (d *Device) SetID(id uint32) { d.id = id }
func (d *Device) Type() uint32    { return wire.DeviceTypeFilesystem }
func (d *Device) Name() string    { return d.name }

// AnnounceBlob for a drive device is empty: the type+id+name fields in
// the DeviceAnnounceEntry fully describe it (spec.md §4.14).
func (d *Device) AnnounceBlob() []byte { return nil }

// Enqueue hands irp to the device's worker (called by pkg/rdpdr's IRP
// demux).
func (d *Device) Enqueue(irp *irpengine.Irp) { d.worker.Enqueue(irp) }

// QueueLen reports the number of IRPs waiting on this device's worker,
// for the IRP queue-depth gauge.
func (d *Device) QueueLen() int { return d.worker.Len() }

func (d *Device) Free() {
	d.worker.Stop()
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range d.files {
		_ = f.close()
	}
	d.files = nil
}

// Dispatch implements irpengine.Handler: switches on irp.Major and ends
// with exactly one Complete/Discard (spec.md §4.9).
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
	case wire.IRPMjQueryInformationCode:
		d.handleQueryInformation(irp)
	case wire.IRPMjSetInformationCode:
		d.handleSetInformation(irp)
	case wire.IRPMjQueryVolumeInformationCode:
		d.handleQueryVolumeInformation(irp)
	case wire.IRPMjDirectoryControlCode:
		d.handleDirectoryControl(irp)
	case wire.IRPMjDeviceControlCode:
		irp.Output.WriteU32LE(0) // OutputBufferLength = 0 (spec.md §4.10)
		irp.Complete()
	default:
		irp.IOStatus = wire.StatusInvalidDeviceRequest
		irp.Complete()
	}
}

func (d *Device) fail(irp *irpengine.Irp, err error) {
	irp.IOStatus = wire.StatusFromErrno(err)
	irp.Complete()
}

func (d *Device) getFile(id uint32) (*openFile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	return f, ok
}

func (d *Device) putFile(f *openFile) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	id := d.nextFID
	d.nextFID++
	f.id = id
	d.files[id] = f
	return id
}

func (d *Device) dropFile(id uint32) (*openFile, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	f, ok := d.files[id]
	if ok {
		delete(d.files, id)
	}
	return f, ok
}

func (d *Device) handleCreate(irp *irpengine.Irp) {
	in := irp.Input
	desiredAccess, err := in.ReadU32LE()
	if err != nil {
		d.fail(irp, os.ErrInvalid)
		return
	}
	_, _ = in.ReadU64LE() // AllocationSize, unused on create
	_, _ = in.ReadU32LE() // FileAttributes, unused: host fs owns attrs
	_, _ = in.ReadU32LE() // SharedAccess, advisory only
	disposition, _ := in.ReadU32LE()
	createOptions, _ := in.ReadU32LE()
	pathLen, _ := in.ReadU32LE()
	pathBytes, err := in.ReadBytes(int(pathLen))
	if err != nil {
		d.fail(irp, os.ErrInvalid)
		return
	}
	wirePath := wire.DecodeUTF16LE(pathBytes)
	hostPath := fullPath(d.BasePath, wirePath)

	f, existed, err := openDiskFile(0, hostPath, desiredAccess, disposition, createOptions)
	if err != nil {
		d.fail(irp, err)
		return
	}
	id := d.putFile(f)

	irp.Output.WriteU32LE(id)
	irp.Output.WriteU8(createDispositionToInformation(disposition, existed))
	irp.Complete()
}

func (d *Device) handleClose(irp *irpengine.Irp) {
	f, ok := d.dropFile(irp.FileID)
	if !ok {
		irp.IOStatus = wire.StatusNoSuchFile
		irp.Complete()
		return
	}
	err := f.close()
	// 5 bytes of padding (spec.md §4.10 CLOSE).
	irp.Output.WriteBytes(make([]byte, 5))
	if err != nil {
		d.fail(irp, err)
		return
	}
	irp.Complete()
}

func (d *Device) handleRead(irp *irpengine.Irp) {
	f, ok := d.getFile(irp.FileID)
	if !ok || f.isDir {
		irp.IOStatus = wire.StatusNoSuchFile
		irp.Complete()
		return
	}
	length, _ := irp.Input.ReadU32LE()
	offset, _ := irp.Input.ReadU64LE()

	buf := make([]byte, length)
	n, err := f.readAt(buf, int64(offset))
	if err != nil {
		d.fail(irp, err)
		return
	}
	irp.Output.WriteU32LE(uint32(n))
	irp.Output.WriteBytes(buf[:n])
	irp.Complete()
}

func (d *Device) handleWrite(irp *irpengine.Irp) {
	f, ok := d.getFile(irp.FileID)
	if !ok || f.isDir {
		irp.IOStatus = wire.StatusNoSuchFile
		irp.Complete()
		return
	}
	length, _ := irp.Input.ReadU32LE()
	offset, _ := irp.Input.ReadU64LE()
	_, _ = irp.Input.ReadBytes(20) // padding
	data, err := irp.Input.ReadBytes(int(length))
	if err != nil {
		d.fail(irp, os.ErrInvalid)
		return
	}
	n, err := f.writeAt(data, int64(offset))
	if err != nil {
		d.fail(irp, err)
		return
	}
	irp.Output.WriteU32LE(uint32(n))
	irp.Output.WriteU8(0)
	irp.Complete()
}
