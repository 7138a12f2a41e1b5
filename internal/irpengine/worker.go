package irpengine

import "sync"

// Handler dispatches one Irp to completion, ending with exactly one call
// to irp.Complete() or irp.Discard() (spec.md §4.9 "Dispatch entrypoint").
type Handler interface {
	Dispatch(irp *Irp)
}

// Worker owns one device's IRP queue and its single worker goroutine
// (spec.md §4.9, §5: "One background task per device hosts the IRP
// worker loop"). Ordering across file-ids is unspecified; ordering
// within one file-id is FIFO because a client serializes IRPs per
// file-id and this queue preserves submission order per caller.
//
// The spec calls for a "lock-free MPSC stack (push at head, pop LIFO)";
// a mutex-guarded slice gives the same externally-observable contract
// (pop order unspecified across file-ids) with far less risk of getting
// the lock-free bookkeeping wrong, matching the redesign note in
// spec.md §9 ("express as a standard concurrent MPSC queue + condition
// variable").
type Worker struct {
	handler Handler

	mu      sync.Mutex
	pending []*Irp
	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
}

// NewWorker creates a worker bound to handler. Call Run in its own
// goroutine, then Enqueue from any number of callers.
func NewWorker(handler Handler) *Worker {
	return &Worker{
		handler: handler,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Enqueue pushes irp onto the pending list and signals the worker.
// Safe for concurrent use by multiple callers (MPSC).
func (w *Worker) Enqueue(irp *Irp) {
	w.mu.Lock()
	w.pending = append(w.pending, irp)
	w.mu.Unlock()
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// Run is the worker loop: wait(wake|stop) -> on stop, drain and discard
// remaining IRPs; else pop until empty and dispatch each (spec.md §4.9).
// Returns once Stop has been called and the queue has been drained.
func (w *Worker) Run() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			w.drainDiscard()
			return
		case <-w.wake:
			w.drainDispatch()
		}
	}
}

func (w *Worker) drainDispatch() {
	for {
		irp := w.pop()
		if irp == nil {
			return
		}
		w.handler.Dispatch(irp)
	}
}

func (w *Worker) drainDiscard() {
	for {
		irp := w.pop()
		if irp == nil {
			return
		}
		irp.Discard()
	}
}

func (w *Worker) pop() *Irp {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := len(w.pending)
	if n == 0 {
		return nil
	}
	irp := w.pending[0]
	w.pending[0] = nil
	w.pending = w.pending[1:]
	return irp
}

// Len reports the number of IRPs currently queued, for use as a queue-depth
// gauge; it does not include the IRP (if any) the handler is dispatching.
func (w *Worker) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stop signals the worker to drain and exit, then blocks until Run has
// returned (spec.md §5 "Cancellation": "each worker is expected to drain
// its queue... before exiting").
func (w *Worker) Stop() {
	close(w.stop)
	<-w.done
}
