package devman

import (
	"testing"

	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/stretchr/testify/require"
)

type fakeDevice struct {
	id     uint32
	typ    uint32
	name   string
	frees  int
}

func (d *fakeDevice) ID() uint32            { return d.id }
func (d *fakeDevice) SetID(id uint32)       { d.id = id }
func (d *fakeDevice) Type() uint32          { return d.typ }
func (d *fakeDevice) Name() string          { return d.name }
func (d *fakeDevice) AnnounceBlob() []byte  { return nil }
func (d *fakeDevice) Dispatch(*irpengine.Irp)      {}
func (d *fakeDevice) Enqueue(irp *irpengine.Irp)   { d.Dispatch(irp) }
func (d *fakeDevice) QueueLen() int                { return 0 }
func (d *fakeDevice) Free()                        { d.frees++ }

func TestRegisterAssignsMonotonicIDsStartingAt1(t *testing.T) {
	m := New()
	a := &fakeDevice{name: "a"}
	b := &fakeDevice{name: "b"}
	require.Equal(t, uint32(1), m.Register(a))
	require.Equal(t, uint32(2), m.Register(b))
}

func TestGetAndRemove(t *testing.T) {
	m := New()
	a := &fakeDevice{name: "a"}
	id := m.Register(a)

	got, ok := m.Get(id)
	require.True(t, ok)
	require.Same(t, a, got)

	m.Remove(id)
	_, ok = m.Get(id)
	require.False(t, ok)
	require.Equal(t, 1, a.frees)

	// Removing again is a no-op, not a double free.
	m.Remove(id)
	require.Equal(t, 1, a.frees)
}

func TestSnapshotAndClose(t *testing.T) {
	m := New()
	a := &fakeDevice{name: "a"}
	b := &fakeDevice{name: "b"}
	m.Register(a)
	m.Register(b)

	snap := m.Snapshot()
	require.Len(t, snap, 2)

	m.Close()
	require.Equal(t, 1, a.frees)
	require.Equal(t, 1, b.frees)
	require.Empty(t, m.Snapshot())
}
