package rpch

import (
	"testing"

	"github.com/corerdp/rdpdr/internal/rpcwire"
)

func TestIdentifyPDUConnA3(t *testing.T) {
	pdu := rpcwire.RTSPDU{
		Flags:    rpcwire.RTSFlagNone,
		Commands: []rpcwire.Command{{Type: rpcwire.CmdConnectionTimeout}},
	}
	if got := IdentifyPDU(pdu); got != "CONN/A3" {
		t.Fatalf("IdentifyPDU() = %q, want CONN/A3", got)
	}
}

func TestIdentifyPDUFlowControlAck(t *testing.T) {
	pdu := rpcwire.RTSPDU{
		Flags:    rpcwire.RTSFlagOtherCmd,
		Commands: []rpcwire.Command{{Type: rpcwire.CmdFlowControlAck}},
	}
	if got := IdentifyPDU(pdu); got != "FlowControlAck" {
		t.Fatalf("IdentifyPDU() = %q, want FlowControlAck", got)
	}
}

func TestIdentifyPDUOutR2A6(t *testing.T) {
	pdu := rpcwire.RTSPDU{
		Flags: rpcwire.RTSFlagNone,
		Commands: []rpcwire.Command{
			{Type: rpcwire.CmdDestination},
			{Type: rpcwire.CmdAnce},
		},
	}
	if got := IdentifyPDU(pdu); got != "OUT_R2/A5" && got != "OUT_R2/A6" {
		t.Fatalf("IdentifyPDU() = %q, want OUT_R2/A5 or OUT_R2/A6 (identical signatures)", got)
	}
}

func TestIdentifyPDUUnknownReturnsEmpty(t *testing.T) {
	pdu := rpcwire.RTSPDU{Flags: 0x7777, Commands: nil}
	if got := IdentifyPDU(pdu); got != "" {
		t.Fatalf("IdentifyPDU() = %q, want empty for an unrecognized signature", got)
	}
}

func TestIdentifyPDUPing(t *testing.T) {
	pdu := rpcwire.RTSPDU{Flags: rpcwire.RTSFlagPing}
	if got := IdentifyPDU(pdu); got != "Ping" && got != "OUT_R2/C1" {
		t.Fatalf("IdentifyPDU() = %q, want Ping or OUT_R2/C1 (identical signatures)", got)
	}
}
