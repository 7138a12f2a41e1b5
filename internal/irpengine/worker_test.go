package irpengine

import (
	"sync"
	"testing"
	"time"

	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
	"github.com/stretchr/testify/require"
)

// newTestIrp builds an Irp through New so it carries the pool-backed
// Output stream that Complete and Discard operate on.
func newTestIrp(pool *stream.Pool, fileID uint32) *Irp {
	return New(wire.IRPHeader{FileID: fileID}, nil, pool, nil)
}

type recordingHandler struct {
	mu   sync.Mutex
	seen []*Irp
	done chan struct{}
}

func (h *recordingHandler) Dispatch(irp *Irp) {
	h.mu.Lock()
	h.seen = append(h.seen, irp)
	n := len(h.seen)
	h.mu.Unlock()
	irp.Complete()
	if n == cap(h.done) {
		select {
		case h.done <- struct{}{}:
		default:
		}
	}
}

func TestWorkerDispatchesEnqueuedIRPs(t *testing.T) {
	h := &recordingHandler{done: make(chan struct{}, 3)}
	w := NewWorker(h)
	go w.Run()

	pool := stream.NewPool(stream.DefaultConfig())
	a := newTestIrp(pool, 1)
	b := newTestIrp(pool, 1)
	c := newTestIrp(pool, 2)
	w.Enqueue(a)
	w.Enqueue(b)
	w.Enqueue(c)

	// The handler signals once, after it has seen all three IRPs.
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatch")
	}

	w.Stop()
	h.mu.Lock()
	defer h.mu.Unlock()
	require.Len(t, h.seen, 3)
}

func TestWorkerStopDiscardsPending(t *testing.T) {
	blocking := make(chan struct{})
	h := &blockingHandler{unblock: blocking}
	w := NewWorker(h)
	go w.Run()

	pool := stream.NewPool(stream.DefaultConfig())
	irp := newTestIrp(pool, 0)
	w.Enqueue(irp)
	// Whether the second IRP is dispatched (drainDispatch keeps popping
	// once the handler unblocks) or discarded by Stop depends on timing;
	// either way every enqueued IRP must be Done once Stop returns.
	second := newTestIrp(pool, 0)
	w.Enqueue(second)
	close(blocking)
	w.Stop()
	require.True(t, irp.Done())
	require.True(t, second.Done())
}

type blockingHandler struct {
	unblock chan struct{}
}

func (h *blockingHandler) Dispatch(irp *Irp) {
	<-h.unblock
	irp.Complete()
}
