package rpcwire

import (
	"bytes"
	"testing"

	"github.com/corerdp/rdpdr/pkg/stream"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := NewHeader(PTypeRequest, PfcFirstFrag|PfcLastFrag, 42, 0, 7)
	s := stream.Take(64)
	defer s.Release()
	h.Encode(s)

	s.Seek(0)
	got, err := ParseHeader(s)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if got.CallID != 7 || got.PType != PTypeRequest || got.FragLength != 42 {
		t.Fatalf("unexpected header: %+v", got)
	}
	if got.PackedDrep != PackedDrep {
		t.Fatalf("drep mismatch")
	}
}

func TestRequestEncodeDecodeUnsigned(t *testing.T) {
	req := Request{
		Header:    Header{CallID: 3},
		AllocHint: 5,
		ContextID: 0,
		OpNum:     1,
		StubData:  []byte("hello"),
	}
	s := req.Encode()
	defer s.Release()

	s.Seek(0)
	h, err := ParseHeader(s)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.PType != PTypeRequest {
		t.Fatalf("expected request PDU, got ptype %d", h.PType)
	}
	got, err := ParseRequest(h, s)
	if err != nil {
		t.Fatalf("ParseRequest: %v", err)
	}
	if !bytes.Equal(got.StubData, []byte("hello")) {
		t.Fatalf("stub mismatch: %q", got.StubData)
	}
	if got.OpNum != 1 || got.Header.CallID != 3 {
		t.Fatalf("unexpected request fields: %+v", got)
	}
}

func TestBindRequestEncode(t *testing.T) {
	b := DefaultBindRequest(2, 0x0FF8)
	s := b.Encode()
	defer s.Release()

	s.Seek(0)
	h, err := ParseHeader(s)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.PType != PTypeBind || h.CallID != 2 {
		t.Fatalf("unexpected bind header: %+v", h)
	}
}

func TestRTSPDURoundTrip(t *testing.T) {
	var connCookie, outCookie [16]byte
	connCookie[0] = 0xAA
	outCookie[0] = 0xBB

	pdu := ConnA1(connCookie, outCookie, 0x10000)
	s := pdu.Encode()
	defer s.Release()

	s.Seek(0)
	h, err := ParseHeader(s)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.PType != PTypeRTS {
		t.Fatalf("expected RTS pdu, got %d", h.PType)
	}
	got, err := ParseRTSPDU(h, s)
	if err != nil {
		t.Fatalf("ParseRTSPDU: %v", err)
	}
	if len(got.Commands) != 4 {
		t.Fatalf("expected 4 commands, got %d", len(got.Commands))
	}
	if got.Commands[0].Type != CmdVersion {
		t.Fatalf("expected first command Version, got %d", got.Commands[0].Type)
	}
	if got.Commands[3].Type != CmdReceiveWindowSize {
		t.Fatalf("expected last command ReceiveWindowSize, got %d", got.Commands[3].Type)
	}
}

func TestFlowControlAckCommandRoundTrip(t *testing.T) {
	var cookie [16]byte
	cookie[5] = 0x42
	cmd := CmdFlowControlAckCommand(0x14000, 0x10000, cookie)
	br, aw, ck := ParseFlowControlAck(cmd)
	if br != 0x14000 || aw != 0x10000 || ck != cookie {
		t.Fatalf("round trip mismatch: %d %d %v", br, aw, ck)
	}
}

func TestWStringConformantVaryingRoundTrip(t *testing.T) {
	s := stream.Take(128)
	defer s.Release()
	PutWStringConformantVarying(s, "gateway.example.com")

	s.Seek(0)
	got, err := ReadWStringConformantVarying(s)
	if err != nil {
		t.Fatalf("ReadWStringConformantVarying: %v", err)
	}
	if got != "gateway.example.com" {
		t.Fatalf("got %q", got)
	}
}

func TestStubBoundsRejectsUnderflow(t *testing.T) {
	h := Header{FragLength: 10, AuthLength: 50}
	if _, _, err := StubBounds(h, 8, 0); err == nil {
		t.Fatalf("expected underflow to be rejected")
	}
}

func TestStubBoundsSubtractsAuthPadLength(t *testing.T) {
	// header(16)+prefix(8)=24 start; frag_length=48, auth_length=8,
	// sec_trailer(8) -> without padding the stub would run 24..32
	// (48-8-8=32); a 3-byte auth_pad_length must shrink the end to 29.
	h := Header{FragLength: 48, AuthLength: 8}
	start, end, err := StubBounds(h, 8, 3)
	if err != nil {
		t.Fatalf("StubBounds: %v", err)
	}
	if start != 24 {
		t.Fatalf("start = %d, want 24", start)
	}
	if end != 29 {
		t.Fatalf("end = %d, want 29 (48-8-8-3)", end)
	}

	// Without subtracting the pad, a too-small PDU would wrongly look
	// valid; with it subtracted, the underflow guard correctly rejects it.
	h2 := Header{FragLength: 40, AuthLength: 8}
	if _, _, err := StubBounds(h2, 8, 3); err == nil {
		t.Fatalf("expected pad-induced underflow to be rejected")
	}
}
