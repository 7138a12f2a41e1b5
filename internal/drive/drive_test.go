package drive

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
	"github.com/stretchr/testify/require"
)

func newTestDevice(t *testing.T) (*Device, *stream.Pool) {
	t.Helper()
	pool := stream.NewPool(stream.DefaultConfig())
	d := New("test", t.TempDir(), pool)
	t.Cleanup(d.Free)
	return d, pool
}

func buildCreateInput(path string, desiredAccess, disposition, createOptions uint32) *stream.Stream {
	in := stream.Take(256)
	in.WriteU32LE(desiredAccess)
	in.WriteU64LE(0) // AllocationSize
	in.WriteU32LE(0) // FileAttributes
	in.WriteU32LE(0) // SharedAccess
	in.WriteU32LE(disposition)
	in.WriteU32LE(createOptions)
	pathBytes := wire.EncodeUTF16LE(path)
	in.WriteU32LE(uint32(len(pathBytes)))
	in.WriteBytes(pathBytes)
	in.Seek(0)
	return in
}

func dispatchSync(t *testing.T, d *Device, pool *stream.Pool, hdr wire.IRPHeader, input *stream.Stream) *stream.Stream {
	t.Helper()
	var out *stream.Stream
	irp := irpengine.New(hdr, input, pool, func(s *stream.Stream) { out = s })
	d.Dispatch(irp)
	require.NotNil(t, out)
	return out
}

// S2. Drive read round-trip (spec.md §8 S2).
func TestCreateReadClose(t *testing.T) {
	d, pool := newTestDevice(t)
	require.NoError(t, os.WriteFile(filepath.Join(d.BasePath, "foo"), []byte("ABCDEF"), 0o644))

	in := buildCreateInput(`\foo`, 0x80000000 /*GENERIC_READ*/, wire.FileOpen, 0)
	out := dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjCreateCode}, in)
	out.Seek(wire.IOCompletionHeaderSize)
	fileID, _ := out.ReadU32LE()
	info, _ := out.ReadU8()
	require.Equal(t, uint32(1), fileID)
	require.Equal(t, wire.FileSuperseded, info)

	readIn := stream.Take(16)
	readIn.WriteU32LE(3)  // length
	readIn.WriteU64LE(1)  // offset
	readIn.Seek(0)
	out = dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjReadCode, FileID: fileID}, readIn)
	out.Seek(wire.IOCompletionHeaderSize)
	n, _ := out.ReadU32LE()
	bytes, _ := out.ReadBytes(int(n))
	require.Equal(t, "BCD", string(bytes))

	out = dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjCloseCode, FileID: fileID}, stream.Take(0))
	out.Seek(wire.IOCompletionHeaderSize)
	pad, _ := out.ReadBytes(5)
	require.Equal(t, make([]byte, 5), pad)
}

// S7. Delete-on-close leaves no file at that path (spec.md §8.7).
func TestDeleteOnClose(t *testing.T) {
	d, pool := newTestDevice(t)
	path := filepath.Join(d.BasePath, "gone")

	in := buildCreateInput(`\gone`, wire.GenericWrite, wire.FileOpenIf, wire.FileDeleteOnClose)
	out := dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjCreateCode}, in)
	out.Seek(wire.IOCompletionHeaderSize)
	fileID, _ := out.ReadU32LE()
	require.FileExists(t, path)

	writeIn := stream.Take(64)
	writeIn.WriteU32LE(5)
	writeIn.WriteU64LE(0)
	writeIn.WriteBytes(make([]byte, 20))
	writeIn.WriteBytes([]byte("hello"))
	writeIn.Seek(0)
	dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjWriteCode, FileID: fileID}, writeIn)

	dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjCloseCode, FileID: fileID}, stream.Take(0))

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err))
}

// S3. Directory query pattern (spec.md §8 S3).
func TestDirectoryQueryPattern(t *testing.T) {
	d, pool := newTestDevice(t)
	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(d.BasePath, name), []byte("x"), 0o644))
	}

	in := buildCreateInput(`\`, 0, wire.FileOpen, wire.FileDirectoryFile)
	out := dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjCreateCode}, in)
	out.Seek(wire.IOCompletionHeaderSize)
	fileID, _ := out.ReadU32LE()

	queryIn := func(initial bool, path string) *stream.Stream {
		s := stream.Take(128)
		s.WriteU32LE(wire.FileBothDirectoryInformation)
		if initial {
			s.WriteU8(1)
		} else {
			s.WriteU8(0)
		}
		pb := wire.EncodeUTF16LE(path)
		s.WriteU32LE(uint32(len(pb)))
		s.WriteBytes(pb)
		s.Seek(0)
		return s
	}

	var names []string
	out = dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjDirectoryControlCode, Minor: wire.IRPMnQueryDirectory, FileID: fileID}, queryIn(true, `\*.txt`))
	names = append(names, firstDirEntryName(t, out))

	out = dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjDirectoryControlCode, Minor: wire.IRPMnQueryDirectory, FileID: fileID}, queryIn(false, ""))
	names = append(names, firstDirEntryName(t, out))

	require.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)

	out = dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjDirectoryControlCode, Minor: wire.IRPMnQueryDirectory, FileID: fileID}, queryIn(false, ""))
	out.Seek(wire.IOStatusOffset)
	status, _ := out.ReadU32LE()
	require.Equal(t, wire.StatusNoMoreFiles, status)
}

func firstDirEntryName(t *testing.T, out *stream.Stream) string {
	t.Helper()
	out.Seek(wire.IOCompletionHeaderSize)
	_, _ = out.ReadU32LE() // Length
	_, _ = out.ReadU32LE() // NextEntryOffset
	_, _ = out.ReadU32LE() // FileIndex
	_, _ = out.ReadBytes(8 * 6) // Creation/Access/Write/Change times + EndOfFile + AllocationSize
	_, _ = out.ReadU32LE()      // FileAttributes
	nameLen, _ := out.ReadU32LE()
	_, _ = out.ReadU32LE() // EaSize
	_, _ = out.ReadU8()    // ShortNameLength
	_, _ = out.ReadU8()    // Reserved
	_, _ = out.ReadBytes(24)
	nameBytes, _ := out.ReadBytes(int(nameLen))
	return wire.DecodeUTF16LE(nameBytes)
}
