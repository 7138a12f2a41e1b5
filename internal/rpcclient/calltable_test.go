package rpcclient

import "testing"

func TestCallTableInsertMarksPriorDuplicate(t *testing.T) {
	tbl := NewCallTable()
	first := tbl.Insert(5)
	second := tbl.Insert(5)

	if !first.IsDuplicate() {
		t.Fatalf("expected the superseded call to be marked duplicate")
	}
	if second.IsDuplicate() {
		t.Fatalf("did not expect the live call to be marked duplicate")
	}

	got, ok := tbl.Lookup(5)
	if !ok || got != second {
		t.Fatalf("expected Lookup to return the live (second) call")
	}
}

func TestCallAppendStubCompletesAtAllocHint(t *testing.T) {
	c := newCall(1)
	c.appendStub(10, []byte("hello"))
	select {
	case <-c.done:
		t.Fatalf("call completed before alloc_hint reached")
	default:
	}

	c.appendStub(10, []byte("world"))
	stub, err := c.Wait()
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if string(stub) != "helloworld" {
		t.Fatalf("stub = %q, want %q", stub, "helloworld")
	}
}

func TestCallFinishFaultReturnsError(t *testing.T) {
	c := newCall(2)
	c.finish(CallFault, 0x1c010002)

	_, err := c.Wait()
	if err == nil {
		t.Fatalf("expected a FaultError")
	}
	fe, ok := err.(*FaultError)
	if !ok {
		t.Fatalf("expected *FaultError, got %T", err)
	}
	if fe.Status != 0x1c010002 {
		t.Fatalf("FaultError.Status = %#x, want 0x1c010002", fe.Status)
	}
}

func TestCallTableRemove(t *testing.T) {
	tbl := NewCallTable()
	tbl.Insert(7)
	tbl.Remove(7)
	if _, ok := tbl.Lookup(7); ok {
		t.Fatalf("expected call 7 to be gone after Remove")
	}
}
