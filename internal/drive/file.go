package drive

import (
	"io"
	"os"
	"time"

	"github.com/corerdp/rdpdr/internal/wire"
)

// openFile is one open handle on the device, keyed by the server-
// generated file id the CREATE response hands back to the client
// (spec.md §3 "Disk file"). Exactly one of fd/dir is valid depending on
// isDir.
type openFile struct {
	id             uint32
	fullpath       string
	isDir          bool
	fd             *os.File
	dirEntries     []os.DirEntry
	dirPos         int
	pattern        string
	initialQuery   bool
	deleteOnClose  bool
}

// createDispositionToOpenFlags maps an RDPDR CreateDisposition to the
// host open(2) flags, mirroring disk_file_init's switch in
// channels/rdpdr/disk/disk_file.c (original_source/), spec.md §4.10.
func createDispositionToOpenFlags(disposition uint32) int {
	switch disposition {
	case wire.FileSupersede:
		return os.O_TRUNC | os.O_CREATE
	case wire.FileOpen:
		return 0
	case wire.FileCreate:
		return os.O_CREATE | os.O_EXCL
	case wire.FileOpenIf:
		return os.O_CREATE
	case wire.FileOverwrite:
		return os.O_TRUNC
	case wire.FileOverwriteIf:
		return os.O_TRUNC | os.O_CREATE
	default:
		return 0
	}
}

// createDispositionToInformation maps disposition to the CREATE
// response's Information byte (spec.md §4.10).
func createDispositionToInformation(disposition uint32, existedBefore bool) uint8 {
	switch disposition {
	case wire.FileSupersede, wire.FileOpen, wire.FileCreate, wire.FileOverwrite:
		return wire.FileSuperseded
	case wire.FileOpenIf:
		if existedBefore {
			return wire.FileOpened
		}
		return wire.FileCreated
	case wire.FileOverwriteIf:
		return wire.FileOverwritten
	default:
		return wire.FileOpened
	}
}

func wantsReadWrite(desiredAccess uint32) bool {
	return desiredAccess&(wire.GenericAll|wire.GenericWrite|wire.FileWriteData|wire.FileAppendData) != 0
}

// openDiskFile opens or creates the host path per spec.md §4.10 CREATE
// semantics, returning the new handle and whether the path existed
// before this call (used for OPEN_IF's Information byte).
func openDiskFile(id uint32, path string, desiredAccess, createDisposition, createOptions uint32) (*openFile, bool, error) {
	st, statErr := os.Stat(path)
	existed := statErr == nil

	wantDir := createOptions&wire.FileDirectoryFile != 0 || (existed && st.IsDir())

	f := &openFile{id: id, fullpath: path, isDir: wantDir}

	if !existed && createOptions&wire.FileDeleteOnClose != 0 {
		f.deleteOnClose = true
	}

	if wantDir {
		if !existed {
			if err := os.Mkdir(path, 0o755); err != nil {
				return nil, existed, err
			}
		}
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, existed, err
		}
		f.dirEntries = entries
		return f, existed, nil
	}

	flags := createDispositionToOpenFlags(createDisposition)
	if wantsReadWrite(desiredAccess) {
		flags |= os.O_RDWR
	} else {
		flags |= os.O_RDONLY
	}

	fd, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return nil, existed, err
	}
	f.fd = fd
	return f, existed, nil
}

func (f *openFile) close() error {
	var err error
	if f.fd != nil {
		err = f.fd.Close()
	}
	if f.deleteOnClose {
		if f.isDir {
			_ = os.RemoveAll(f.fullpath)
		} else {
			_ = os.Remove(f.fullpath)
		}
	}
	return err
}

func (f *openFile) readAt(p []byte, offset int64) (int, error) {
	n, err := f.fd.ReadAt(p, offset)
	if err == io.EOF {
		err = nil
	}
	return n, err
}

func (f *openFile) writeAt(p []byte, offset int64) (int, error) {
	return f.fd.WriteAt(p, offset)
}

// fileTimes holds the subset of a stat result QUERY_INFORMATION needs.
type fileTimes struct {
	created, accessed, written, changed time.Time
	size                                int64
	attributes                          uint32
}

func statTimes(path string, isDir bool) (fileTimes, error) {
	st, err := os.Stat(path)
	if err != nil {
		return fileTimes{}, err
	}
	attrs := uint32(wire.FileAttributeNormal)
	if isDir {
		attrs = wire.FileAttributeDirectory
	}
	if len(st.Name()) > 0 && st.Name()[0] == '.' {
		// Unix-only heuristic for "hidden", retained per spec.md §9
		// ("non-Windows-authentic" but explicitly kept).
		attrs |= wire.FileAttributeHidden
	}
	mt := st.ModTime()
	return fileTimes{
		created:  mt,
		accessed: mt,
		written:  mt,
		changed:  mt,
		size:     st.Size(),
		attributes: attrs,
	}, nil
}

// windowsFileTime converts a Unix time to a Windows FILETIME 64-bit tick
// count (spec.md §4.10 QUERY_INFORMATION: "Windows FILETIME conversion").
const unixToWindowsEpochSeconds = 11644473600

func windowsFileTime(t time.Time) uint64 {
	return uint64(t.Unix()+unixToWindowsEpochSeconds) * 10_000_000
}
