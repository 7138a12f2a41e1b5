package drive

import (
	"os"
	"time"

	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
)

// handleQueryInformation implements QUERY_INFORMATION: BasicInfo,
// StandardInfo, AttributeTagInfo (spec.md §4.10).
func (d *Device) handleQueryInformation(irp *irpengine.Irp) {
	f, ok := d.getFile(irp.FileID)
	if !ok {
		irp.IOStatus = wire.StatusNoSuchFile
		irp.Complete()
		return
	}
	class, _ := irp.Input.ReadU32LE()

	times, err := statTimes(f.fullpath, f.isDir)
	if err != nil {
		d.fail(irp, err)
		return
	}

	switch class {
	case wire.FileBasicInformation:
		irp.Output.WriteU32LE(36)
		writeBasicInfo(irp, times)
	case wire.FileStandardInformation:
		irp.Output.WriteU32LE(22)
		writeStandardInfo(irp, times, f.isDir)
	case wire.FileAttributeTagInformation:
		irp.Output.WriteU32LE(8)
		irp.Output.WriteU32LE(times.attributes)
		irp.Output.WriteU32LE(0) // ReparseTag
	default:
		irp.IOStatus = wire.StatusInvalidDeviceRequest
	}
	irp.Complete()
}

func writeBasicInfo(irp *irpengine.Irp, t fileTimes) {
	irp.Output.WriteU64LE(windowsFileTime(t.created))
	irp.Output.WriteU64LE(windowsFileTime(t.accessed))
	irp.Output.WriteU64LE(windowsFileTime(t.written))
	irp.Output.WriteU64LE(windowsFileTime(t.changed))
	irp.Output.WriteU32LE(t.attributes)
}

func writeStandardInfo(irp *irpengine.Irp, t fileTimes, isDir bool) {
	allocSize := (t.size + 4095) &^ 4095
	irp.Output.WriteU64LE(uint64(allocSize))
	irp.Output.WriteU64LE(uint64(t.size))
	irp.Output.WriteU32LE(1) // NumberOfLinks
	irp.Output.WriteU8(0)    // DeletePending
	if isDir {
		irp.Output.WriteU8(1)
	} else {
		irp.Output.WriteU8(0)
	}
}

// handleSetInformation implements SET_INFORMATION: BasicInfo,
// EndOfFileInfo, DispositionInfo, RenameInfo (spec.md §4.10).
func (d *Device) handleSetInformation(irp *irpengine.Irp) {
	f, ok := d.getFile(irp.FileID)
	if !ok {
		irp.IOStatus = wire.StatusNoSuchFile
		irp.Complete()
		return
	}
	class, _ := irp.Input.ReadU32LE()
	length, _ := irp.Input.ReadU32LE()
	_, _ = irp.Input.ReadBytes(24) // padding

	switch class {
	case wire.FileBasicInformation:
		d.applyBasicInfo(irp, f)
	case wire.FileEndOfFileInformation:
		d.applyEndOfFile(irp, f)
	case wire.FileDispositionInformation:
		f.deleteOnClose = true
	case wire.FileRenameInformation:
		d.applyRename(irp, f)
	default:
		irp.IOStatus = wire.StatusInvalidDeviceRequest
	}
	irp.Output.WriteU32LE(length)
	irp.Complete()
}

func (d *Device) applyBasicInfo(irp *irpengine.Irp, f *openFile) {
	created, _ := irp.Input.ReadU64LE()
	_, _ = irp.Input.ReadU64LE() // LastAccessTime, not settable on most hosts without extra syscalls
	written, _ := irp.Input.ReadU64LE()
	_, _ = irp.Input.ReadU64LE() // ChangeTime, informational only
	attrs, _ := irp.Input.ReadU32LE()

	if attrs&wire.FileAttributeReadonly != 0 {
		_ = os.Chmod(f.fullpath, 0o444)
	}
	if written != 0 {
		wt := fromWindowsFileTime(written)
		at := wt
		if created != 0 {
			at = fromWindowsFileTime(created)
		}
		_ = os.Chtimes(f.fullpath, at, wt)
	}
}

func (d *Device) applyEndOfFile(irp *irpengine.Irp, f *openFile) {
	size, _ := irp.Input.ReadU64LE()
	if f.fd != nil {
		if err := f.fd.Truncate(int64(size)); err != nil {
			d.fail(irp, err)
		}
	}
}

func (d *Device) applyRename(irp *irpengine.Irp, f *openFile) {
	_, _ = irp.Input.ReadU8()  // ReplaceIfExists
	_, _ = irp.Input.ReadU8()  // RootDirectory presence byte (always absent here)
	pathLen, _ := irp.Input.ReadU32LE()
	pathBytes, err := irp.Input.ReadBytes(int(pathLen))
	if err != nil {
		d.fail(irp, os.ErrInvalid)
		return
	}
	newPath := fullPath(d.BasePath, wire.DecodeUTF16LE(pathBytes))
	if err := os.Rename(f.fullpath, newPath); err != nil {
		d.fail(irp, err)
		return
	}
	f.fullpath = newPath
}

func fromWindowsFileTime(v uint64) time.Time {
	secs := int64(v/10_000_000) - unixToWindowsEpochSeconds
	return time.Unix(secs, 0)
}

// handleQueryVolumeInformation implements QUERY_VOLUME_INFORMATION:
// Volume/Size/Attribute/FullSize/Device variants (spec.md §4.10).
func (d *Device) handleQueryVolumeInformation(irp *irpengine.Irp) {
	class, _ := irp.Input.ReadU32LE()
	stats, err := statVFS(d.BasePath)
	if err != nil {
		d.fail(irp, err)
		return
	}

	switch class {
	case wire.FileFsVolumeInformation:
		writeVolumeInfo(irp)
	case wire.FileFsSizeInformation:
		writeSizeInfo(irp, stats)
	case wire.FileFsFullSizeInformation:
		writeFullSizeInfo(irp, stats)
	case wire.FileFsAttributeInformation:
		writeAttributeInfo(irp)
	case wire.FileFsDeviceInformation:
		writeDeviceInfo(irp)
	default:
		irp.IOStatus = wire.StatusInvalidDeviceRequest
	}
	irp.Complete()
}

const volumeLabel = "FREERDP"

func writeVolumeInfo(irp *irpengine.Irp) {
	label := wire.EncodeUTF16LE(volumeLabel)
	label = label[:len(label)-2] // VolumeLabel has no NUL terminator on the wire
	body := make([]byte, 0, 17+len(label))
	var hdr [17]byte
	// VolumeCreationTime(8) + VolumeSerialNumber(4) + VolumeLabelLength(4) + SupportsObjects(1)
	copy(hdr[0:8], u64le(windowsFileTime(time.Unix(0, 0))))
	copy(hdr[8:12], u32le(0x12345678))
	copy(hdr[12:16], u32le(uint32(len(label))))
	hdr[16] = 0
	body = append(body, hdr[:]...)
	body = append(body, label...)
	irp.Output.WriteU32LE(uint32(len(body)))
	irp.Output.WriteBytes(body)
}

func writeSizeInfo(irp *irpengine.Irp, v volumeStats) {
	irp.Output.WriteU32LE(24)
	irp.Output.WriteU64LE(v.totalUnits)
	irp.Output.WriteU64LE(v.freeUnits)
	irp.Output.WriteU32LE(1)             // SectorsPerAllocationUnit
	irp.Output.WriteU32LE(v.bytesPerUnit) // BytesPerSector
}

func writeFullSizeInfo(irp *irpengine.Irp, v volumeStats) {
	irp.Output.WriteU32LE(32)
	irp.Output.WriteU64LE(v.totalUnits)
	irp.Output.WriteU64LE(v.freeUnits)
	irp.Output.WriteU64LE(v.freeUnits)
	irp.Output.WriteU32LE(1)
	irp.Output.WriteU32LE(v.bytesPerUnit)
}

// FileFsAttributeInformation flags: case-sensitive search + unicode on
// disk (spec.md §4.10: "case-sensitive and unicode attributes").
const (
	fileCaseSensitiveSearch uint32 = 0x00000001
	fileUnicodeOnDisk       uint32 = 0x00000004
)

func writeAttributeInfo(irp *irpengine.Irp) {
	fsName := wire.EncodeUTF16LE("FAT32")
	fsName = fsName[:len(fsName)-2]
	irp.Output.WriteU32LE(uint32(12 + len(fsName)))
	irp.Output.WriteU32LE(fileCaseSensitiveSearch | fileUnicodeOnDisk)
	irp.Output.WriteU32LE(255) // MaximumComponentNameLength
	irp.Output.WriteU32LE(uint32(len(fsName)))
	irp.Output.WriteBytes(fsName)
}

// Device type/characteristics for FILE_DEVICE_DISK.
const fileDeviceDisk uint32 = 0x00000007

func writeDeviceInfo(irp *irpengine.Irp) {
	irp.Output.WriteU32LE(8)
	irp.Output.WriteU32LE(fileDeviceDisk)
	irp.Output.WriteU32LE(0) // Characteristics
}

func u32le(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func u64le(v uint64) []byte {
	return []byte{
		byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24),
		byte(v >> 32), byte(v >> 40), byte(v >> 48), byte(v >> 56),
	}
}
