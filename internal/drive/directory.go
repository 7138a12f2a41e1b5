package drive

import (
	"os"

	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
)

// handleDirectoryControl implements QUERY_DIRECTORY (spec.md §4.10):
// on the initial query, store the glob pattern parsed from the
// supplied path's basename and reset iteration; every call (including
// the initial one) returns the next matching entry, or
// STATUS_NO_MORE_FILES with a zero-length reply once exhausted.
func (d *Device) handleDirectoryControl(irp *irpengine.Irp) {
	if irp.Minor != wire.IRPMnQueryDirectory {
		irp.Output.WriteU32LE(0)
		irp.Complete()
		return
	}
	f, ok := d.getFile(irp.FileID)
	if !ok || !f.isDir {
		irp.IOStatus = wire.StatusNoSuchFile
		irp.Complete()
		return
	}

	class, _ := irp.Input.ReadU32LE()
	initialQuery, _ := irp.Input.ReadU8()
	pathLen, _ := irp.Input.ReadU32LE()
	pathBytes, _ := irp.Input.ReadBytes(int(pathLen))

	if initialQuery != 0 {
		_, pattern := splitPattern(wire.DecodeUTF16LE(pathBytes))
		if pattern == "" {
			pattern = "*"
		}
		f.pattern = pattern
		f.dirPos = 0
		entries, err := os.ReadDir(f.fullpath)
		if err != nil {
			d.fail(irp, err)
			return
		}
		f.dirEntries = entries
	}

	for f.dirPos < len(f.dirEntries) {
		entry := f.dirEntries[f.dirPos]
		f.dirPos++
		if !matchPattern(f.pattern, entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		writeDirectoryEntry(irp, class, entry.Name(), info)
		irp.Complete()
		return
	}

	irp.IOStatus = wire.StatusNoMoreFiles
	irp.Output.WriteU32LE(0)
	irp.Complete()
}

func writeDirectoryEntry(irp *irpengine.Irp, class uint32, name string, info os.FileInfo) {
	attrs := uint32(wire.FileAttributeNormal)
	if info.IsDir() {
		attrs = wire.FileAttributeDirectory
	}
	if len(name) > 0 && name[0] == '.' {
		attrs |= wire.FileAttributeHidden
	}
	mt := windowsFileTime(info.ModTime())
	nameBytes := wire.EncodeUTF16LE(name)
	nameBytes = nameBytes[:len(nameBytes)-2] // no NUL terminator in directory entries

	lengthOffset := irp.Output.Len()
	irp.Output.WriteU32LE(0) // Length, patched below once the body is known
	bodyStart := irp.Output.Len()

	irp.Output.WriteU32LE(0) // NextEntryOffset: single entry per reply
	irp.Output.WriteU32LE(0) // FileIndex
	irp.Output.WriteU64LE(mt)
	irp.Output.WriteU64LE(mt)
	irp.Output.WriteU64LE(mt)
	irp.Output.WriteU64LE(mt)
	irp.Output.WriteU64LE(uint64(info.Size()))
	irp.Output.WriteU64LE(uint64((info.Size() + 4095) &^ 4095))
	irp.Output.WriteU32LE(attrs)
	irp.Output.WriteU32LE(uint32(len(nameBytes)))
	if class == wire.FileBothDirectoryInformation {
		irp.Output.WriteU32LE(0) // EaSize
		irp.Output.WriteU8(0)    // ShortNameLength
		irp.Output.WriteU8(0)    // Reserved
		irp.Output.WriteBytes(make([]byte, 24))
	}
	irp.Output.WriteBytes(nameBytes)

	entryLen := irp.Output.Len() - bodyStart
	_ = irp.Output.WriteU32LEAt(lengthOffset, uint32(entryLen))
}
