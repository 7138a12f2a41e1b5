package rpcclient

import (
	"io"
	"testing"
)

func TestReceivePipeReadsInArrivalOrder(t *testing.T) {
	p := NewReceivePipe()
	p.Push([]byte("ab"), false)
	p.Push([]byte("cd"), false)

	buf := make([]byte, 4)
	n, err := p.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "ab" {
		t.Fatalf("first Read = %q, want %q", buf[:n], "ab")
	}
	n, err = p.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(buf[:n]) != "cd" {
		t.Fatalf("second Read = %q, want %q", buf[:n], "cd")
	}
}

func TestReceivePipeEndOfPipeSignal(t *testing.T) {
	p := NewReceivePipe()
	p.Push([]byte{0x00, 0x00, 0x00, 0x00}, true)

	status, done := p.Status()
	if !done {
		t.Fatalf("expected end-of-pipe after 4-byte last fragment")
	}
	if status != 0 {
		t.Fatalf("status = %#x, want 0", status)
	}

	buf := make([]byte, 4)
	if _, err := p.Read(buf); err != io.EOF {
		t.Fatalf("Read after EOF = %v, want io.EOF", err)
	}
}

func TestReceivePipeNonFinalFourByteStubIsNotEOF(t *testing.T) {
	p := NewReceivePipe()
	p.Push([]byte{1, 2, 3, 4}, false)

	_, done := p.Status()
	if done {
		t.Fatalf("4-byte stub without PFC_LAST_FRAG must not signal end-of-pipe")
	}
}
