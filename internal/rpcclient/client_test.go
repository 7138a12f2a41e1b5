package rpcclient

import (
	"testing"

	"github.com/corerdp/rdpdr/internal/ntlm"
	"github.com/corerdp/rdpdr/internal/rpcwire"
	"github.com/corerdp/rdpdr/pkg/stream"
)

func newTestClient() *Client {
	return New(nil, ntlm.Credentials{}, 4096)
}

func parseHeaderForTest(t *testing.T, raw []byte) rpcwire.Header {
	t.Helper()
	s := stream.Take(len(raw))
	defer s.Release()
	s.WriteBytes(raw)
	s.Seek(0)
	h, err := rpcwire.ParseHeader(s)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	return h
}

func encodeFaultPDU(callID, status uint32) []byte {
	bodyLen := 4 + 2 + 1 + 1 + 4
	fragLen := rpcwire.HeaderSize + bodyLen
	s := stream.Take(fragLen)
	defer s.Release()
	h := rpcwire.NewHeader(rpcwire.PTypeFault, rpcwire.PfcFirstFrag|rpcwire.PfcLastFrag, fragLen, 0, callID)
	h.Encode(s)
	s.WriteU32LE(0) // alloc_hint
	s.WriteU16LE(0) // context_id
	s.WriteU8(0)    // cancel_count
	s.WriteU8(0)    // reserved
	s.WriteU32LE(status)
	out := make([]byte, s.Len())
	copy(out, s.Bytes())
	return out
}

// WriteCall cannot succeed before Bind() has authenticated the NTLM
// security context; this also means the test needs no live vc.
func TestWriteCallFailsWithoutBind(t *testing.T) {
	c := newTestClient()
	if _, err := c.WriteCall(1, []byte("stub")); err == nil {
		t.Fatalf("expected WriteCall to fail before the security context is authenticated")
	}
}

func TestDispatchResponseCompletesCall(t *testing.T) {
	c := newTestClient()
	call := c.calls.Insert(42)

	resp := rpcwire.Response{AllocHint: 5, StubData: []byte("hello")}
	pdu := resp.Encode(42)
	defer pdu.Release()
	raw := append([]byte(nil), pdu.Bytes()...)

	h := parseHeaderForTest(t, raw)
	if err := c.dispatch(h, raw); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	stub, err := call.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(stub) != "hello" {
		t.Fatalf("stub = %q, want %q", stub, "hello")
	}
}

func TestDispatchFaultFinishesCallWithError(t *testing.T) {
	c := newTestClient()
	call := c.calls.Insert(9)

	raw := encodeFaultPDU(9, 0x1c010002)
	h := parseHeaderForTest(t, raw)
	if err := c.dispatch(h, raw); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	_, err := call.Wait()
	fe, ok := err.(*FaultError)
	if !ok {
		t.Fatalf("expected *FaultError, got %T", err)
	}
	if fe.Status != 0x1c010002 {
		t.Fatalf("FaultError.Status = %#x, want 0x1c010002", fe.Status)
	}
	if _, ok := c.calls.Lookup(9); ok {
		t.Fatalf("expected the fault to remove the call from the table")
	}
}

func TestDispatchResponseRoutesToReceivePipe(t *testing.T) {
	c := newTestClient()
	pipe := c.RegisterReceivePipe(77)

	resp := rpcwire.Response{StubData: []byte("chunk1")}
	pdu := resp.Encode(77)
	defer pdu.Release()
	raw := append([]byte(nil), pdu.Bytes()...)

	h := parseHeaderForTest(t, raw)
	if err := c.dispatch(h, raw); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	buf := make([]byte, 6)
	n, err := pipe.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "chunk1" {
		t.Fatalf("pipe contents = %q, want %q", buf[:n], "chunk1")
	}
}

func TestDispatchUnknownPTypeErrors(t *testing.T) {
	c := newTestClient()
	fragLen := rpcwire.HeaderSize
	s := stream.Take(fragLen)
	defer s.Release()
	h := rpcwire.NewHeader(0x99, rpcwire.PfcFirstFrag|rpcwire.PfcLastFrag, fragLen, 0, 1)
	h.Encode(s)
	raw := append([]byte(nil), s.Bytes()...)

	if err := c.dispatch(h, raw); err == nil {
		t.Fatalf("expected an error for an unrecognized ptype")
	}
}
