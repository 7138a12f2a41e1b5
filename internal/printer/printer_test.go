package printer

import (
	"bytes"
	"testing"

	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
	"github.com/stretchr/testify/require"
)

type fakeJob struct {
	id  uint32
	buf bytes.Buffer
}

func (j *fakeJob) ID() uint32 { return j.id }
func (j *fakeJob) Write(p []byte) (int, error) {
	return j.buf.Write(p)
}
func (j *fakeJob) Close() error { return nil }

type fakeBackend struct {
	nextID uint32
	jobs   []*fakeJob
}

func (b *fakeBackend) EnumPrinters() ([]string, error)    { return []string{"PDF"}, nil }
func (b *fakeBackend) GetPrinter(string) (Info, bool)     { return Info{}, false }
func (b *fakeBackend) CreatePrintJob(string) (PrintJob, error) {
	b.nextID++
	j := &fakeJob{id: b.nextID}
	b.jobs = append(b.jobs, j)
	return j, nil
}

func newTestDevice(backend Backend) (*Device, *stream.Pool) {
	pool := stream.NewPool(stream.DefaultConfig())
	d := &Device{name: "PRN1", backend: backend, pool: pool}
	d.jobs.mu = make(chan struct{}, 1)
	d.jobs.mu <- struct{}{}
	d.jobs.set = make(map[uint32]PrintJob)
	return d, pool
}

func dispatchSync(t *testing.T, d *Device, pool *stream.Pool, hdr wire.IRPHeader, input *stream.Stream) *stream.Stream {
	t.Helper()
	var out *stream.Stream
	irp := irpengine.New(hdr, input, pool, func(s *stream.Stream) { out = s })
	d.Dispatch(irp)
	require.NotNil(t, out)
	return out
}

func TestCreateWriteClose(t *testing.T) {
	backend := &fakeBackend{}
	d, pool := newTestDevice(backend)

	out := dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjCreateCode}, stream.Take(0))
	out.Seek(wire.IOCompletionHeaderSize)
	fileID, _ := out.ReadU32LE()
	require.Equal(t, uint32(1), fileID)

	writeIn := stream.Take(64)
	writeIn.WriteU32LE(5)
	writeIn.WriteU64LE(0)
	writeIn.WriteBytes(make([]byte, 20))
	writeIn.WriteBytes([]byte("hello"))
	writeIn.Seek(0)
	out = dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjWriteCode, FileID: fileID}, writeIn)
	out.Seek(wire.IOCompletionHeaderSize)
	n, _ := out.ReadU32LE()
	require.Equal(t, uint32(5), n)
	require.Equal(t, "hello", backend.jobs[0].buf.String())

	out = dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjCloseCode, FileID: fileID}, stream.Take(0))
	out.Seek(wire.IOStatusOffset)
	status, _ := out.ReadU32LE()
	require.Equal(t, wire.StatusSuccess, status)
}

func TestCreateFailsWithoutBackend(t *testing.T) {
	d, pool := newTestDevice(nil)
	out := dispatchSync(t, d, pool, wire.IRPHeader{Major: wire.IRPMjCreateCode}, stream.Take(0))
	out.Seek(wire.IOStatusOffset)
	status, _ := out.ReadU32LE()
	require.Equal(t, wire.StatusPrintQueueFull, status)
}

func TestAnnounceBlobEncodesNames(t *testing.T) {
	d, _ := newTestDevice(nil)
	d.info = Info{DriverName: "MS Publisher Imagesetter", PrintName: "PDF Printer", IsDefault: true}
	blob := d.AnnounceBlob()
	require.NotEmpty(t, blob)
	require.Equal(t, uint32(1), leU32(blob[0:4])) // DefaultPrinter flag
}

func leU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
