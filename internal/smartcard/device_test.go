package smartcard

import (
	"testing"

	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct{}

func (fakeBackend) EstablishContext(in []byte) ([]byte, uint32, error) {
	return []byte{1, 2, 3, 4}, ResultSuccess, nil
}
func (fakeBackend) ReleaseContext(in []byte) ([]byte, uint32, error)  { return nil, ResultSuccess, nil }
func (fakeBackend) IsValidContext(in []byte) ([]byte, uint32, error)  { return nil, ResultSuccess, nil }
func (fakeBackend) ListReaders(in []byte, wide bool) ([]byte, uint32, error) {
	return []byte("PCSC"), ResultSuccess, nil
}
func (fakeBackend) GetStatusChange(in []byte, wide bool) ([]byte, uint32, error) {
	return nil, ResultSuccess, nil
}
func (fakeBackend) Cancel(in []byte) ([]byte, uint32, error)           { return nil, ResultSuccess, nil }
func (fakeBackend) Connect(in []byte, wide bool) ([]byte, uint32, error) {
	return nil, ResultSuccess, nil
}
func (fakeBackend) Reconnect(in []byte) ([]byte, uint32, error)        { return nil, ResultSuccess, nil }
func (fakeBackend) Disconnect(in []byte) ([]byte, uint32, error)       { return nil, ResultSuccess, nil }
func (fakeBackend) BeginTransaction(in []byte) ([]byte, uint32, error) { return nil, ResultSuccess, nil }
func (fakeBackend) EndTransaction(in []byte) ([]byte, uint32, error)   { return nil, ResultSuccess, nil }
func (fakeBackend) State(in []byte) ([]byte, uint32, error)            { return nil, ResultSuccess, nil }
func (fakeBackend) Status(in []byte, wide bool) ([]byte, uint32, error) {
	return nil, ResultSuccess, nil
}
func (fakeBackend) Transmit(in []byte) ([]byte, uint32, error)           { return nil, ResultSuccess, nil }
func (fakeBackend) Control(in []byte) ([]byte, uint32, error)            { return nil, ResultSuccess, nil }
func (fakeBackend) GetAttrib(in []byte) ([]byte, uint32, error)          { return nil, ResultSuccess, nil }
func (fakeBackend) AccessStartedEvent(in []byte) ([]byte, uint32, error) { return nil, ResultSuccess, nil }
func (fakeBackend) LocateCardsByATR(in []byte) ([]byte, uint32, error)   { return nil, ResultSuccess, nil }

func newTestDevice() (*Device, *stream.Pool) {
	pool := stream.NewPool(stream.DefaultConfig())
	d := &Device{name: "SCARD", backend: fakeBackend{}, pool: pool}
	d.tracker.outstanding = make(map[uint32]*completionEntry)
	return d, pool
}

func buildDeviceControlInput(ioctl uint32, body []byte) *stream.Stream {
	in := stream.Take(64)
	in.WriteU32LE(uint32(len(body))) // OutputBufferLength
	in.WriteU32LE(uint32(len(body))) // InputBufferLength
	in.WriteU32LE(ioctl)
	in.WriteBytes(make([]byte, 20))
	in.WriteBytes(body)
	in.Seek(0)
	return in
}

func TestEstablishContextSynchronous(t *testing.T) {
	d, pool := newTestDevice()
	in := buildDeviceControlInput(ioctlEstablishContext, nil)

	var out *stream.Stream
	irp := irpengine.New(wire.IRPHeader{Major: wire.IRPMjDeviceControlCode}, in, pool, func(s *stream.Stream) { out = s })
	d.Dispatch(irp)

	require.NotNil(t, out)
	out.Seek(wire.IOStatusOffset)
	status, _ := out.ReadU32LE()
	require.Equal(t, wire.StatusSuccess, status)
}

func TestUnknownIoctlReportsNotSupported(t *testing.T) {
	d, pool := newTestDevice()
	in := buildDeviceControlInput(0xDEADBEEF, nil)

	var out *stream.Stream
	irp := irpengine.New(wire.IRPHeader{Major: wire.IRPMjDeviceControlCode}, in, pool, func(s *stream.Stream) { out = s })
	d.Dispatch(irp)

	require.NotNil(t, out)
	out.Seek(wire.IOCompletionHeaderSize + 20) // skip OutputBufferLength/NDR prefix/len/filler to result
	result, _ := out.ReadU32LE()
	require.Equal(t, ResultNotSupported, result)
}

func TestDuplicateCompletionIdDiscardsEarlier(t *testing.T) {
	d, _ := newTestDevice()
	first := d.tracker.register(42)
	require.False(t, first.duplicate)

	second := d.tracker.register(42)
	require.True(t, first.duplicate)
	require.False(t, second.duplicate)
}

func TestNonDeviceControlMajorRejected(t *testing.T) {
	d, pool := newTestDevice()
	var out *stream.Stream
	irp := irpengine.New(wire.IRPHeader{Major: wire.IRPMjReadCode}, stream.Take(0), pool, func(s *stream.Stream) { out = s })
	d.Dispatch(irp)
	out.Seek(wire.IOStatusOffset)
	status, _ := out.ReadU32LE()
	require.Equal(t, wire.StatusNotSupported, status)
}
