package rpcclient

import (
	"fmt"
	"sync"

	"github.com/corerdp/rdpdr/internal/telemetry"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CallState is a per-call lifecycle stage (spec.md §4.6 "Call-table
// lifecycle").
type CallState int

const (
	CallPending CallState = iota
	CallComplete
	CallFault
)

// FaultError reports an RPC-level PTYPE_FAULT for a call.
type FaultError struct {
	Status uint32
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("rpcclient: call faulted, status=0x%08x", e.Status)
}

// Call tracks one outstanding DCE/RPC call: its reassembly buffer and the
// signal the writer blocks on until a RESPONSE or FAULT completes it.
type Call struct {
	ID uint32

	mu           sync.Mutex
	allocHint    uint32
	allocHintSet bool
	stub         []byte
	state        CallState
	faultStatus  uint32
	duplicate    bool
	done         chan struct{}
	span         trace.Span
}

func newCall(id uint32) *Call {
	return &Call{ID: id, done: make(chan struct{})}
}

// bindSpan attaches the span WriteCall opened for this call, so finish can
// end it with the call's outcome (SPEC_FULL §11 "spans per RPC call").
func (c *Call) bindSpan(span trace.Span) {
	c.mu.Lock()
	c.span = span
	c.mu.Unlock()
}

// appendStub folds in a freshly-arrived RESPONSE fragment. allocHint is
// read off the PDU's alloc_hint field and is only meaningful on the first
// fragment (subsequent RESPONSE fragments for the same call repeat it).
func (c *Call) appendStub(allocHint uint32, stub []byte) {
	c.mu.Lock()
	if !c.allocHintSet {
		c.allocHint = allocHint
		c.allocHintSet = true
	}
	c.stub = append(c.stub, stub...)
	complete := uint32(len(c.stub)) >= c.allocHint
	alreadyDone := c.state != CallPending
	c.mu.Unlock()

	if complete && !alreadyDone {
		c.finish(CallComplete, 0)
	}
}

func (c *Call) finish(state CallState, faultStatus uint32) {
	c.mu.Lock()
	if c.state != CallPending {
		c.mu.Unlock()
		return
	}
	c.state = state
	c.faultStatus = faultStatus
	span := c.span
	c.mu.Unlock()

	if span != nil {
		if state == CallFault {
			span.SetAttributes(telemetry.RPCFaultCode(faultStatus))
			span.SetStatus(codes.Error, "rpc fault")
		}
		span.End()
	}
	close(c.done)
}

// IsDuplicate reports whether a later call reused this call's id while it
// was still outstanding (spec.md §4.6 "smartcard-client workaround").
func (c *Call) IsDuplicate() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.duplicate
}

// Wait blocks until the call completes or faults and returns the
// reassembled stub bytes.
func (c *Call) Wait() ([]byte, error) {
	<-c.done
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CallFault {
		return nil, &FaultError{Status: c.faultStatus}
	}
	return c.stub, nil
}

// CallTable is the per-client map of outstanding calls, keyed by call id.
type CallTable struct {
	mu    sync.Mutex
	calls map[uint32]*Call
}

func NewCallTable() *CallTable {
	return &CallTable{calls: make(map[uint32]*Call)}
}

// Insert registers a new outstanding call. If a prior call with the same
// id is still outstanding, it is marked duplicate rather than replaced in
// place — some clients (notably smartcard redirection) reuse ids while an
// earlier IRP is still pending.
func (t *CallTable) Insert(id uint32) *Call {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.calls[id]; ok {
		prev.mu.Lock()
		prev.duplicate = true
		prev.mu.Unlock()
	}
	c := newCall(id)
	t.calls[id] = c
	return c
}

func (t *CallTable) Lookup(id uint32) (*Call, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.calls[id]
	return c, ok
}

func (t *CallTable) Remove(id uint32) {
	t.mu.Lock()
	delete(t.calls, id)
	t.mu.Unlock()
}
