package rpch

import "github.com/corerdp/rdpdr/internal/rpcwire"

// signature describes one entry of the PDU signature table RTS PDUs are
// pattern-matched against by (Flags, len(Commands), command type
// sequence) — spec.md §4.5 "PDU signatures are pattern-matched...against
// a known table".
type signature struct {
	name     string
	flags    uint16
	commands []uint32
}

// Grounded directly on RTS_PDU_SIGNATURE_TABLE in
// libfreerdp/core/gateway/rts_signature.c (original_source/) — the exact
// (flags, command-count, command-type-sequence) tuples FreeRDP's gateway
// client matches incoming RTS PDUs against. The teacher has no RTS layer
// at all (see internal/rpcwire's C2 ledger entry), so this table has no
// teacher analogue.
var signatureTable = []signature{
	{"CONN/A1", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdVersion, rpcwire.CmdCookie, rpcwire.CmdCookie, rpcwire.CmdReceiveWindowSize}},
	{"CONN/A2", rpcwire.RTSFlagOutChannel, []uint32{rpcwire.CmdVersion, rpcwire.CmdCookie, rpcwire.CmdCookie, rpcwire.CmdChannelLifetime, rpcwire.CmdReceiveWindowSize}},
	{"CONN/A3", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdConnectionTimeout}},

	{"CONN/B1", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdVersion, rpcwire.CmdCookie, rpcwire.CmdCookie, rpcwire.CmdChannelLifetime, rpcwire.CmdClientKeepalive, rpcwire.CmdAssociationGroupID}},
	{"CONN/B3", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdReceiveWindowSize, rpcwire.CmdVersion}},

	{"CONN/C1", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdVersion, rpcwire.CmdReceiveWindowSize, rpcwire.CmdConnectionTimeout}},
	{"CONN/C2", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdVersion, rpcwire.CmdReceiveWindowSize, rpcwire.CmdConnectionTimeout}},

	{"IN_R1/A1", rpcwire.RTSFlagRecycleChannel, []uint32{rpcwire.CmdVersion, rpcwire.CmdCookie, rpcwire.CmdCookie, rpcwire.CmdCookie}},
	{"IN_R1/A5", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdCookie}},
	{"IN_R1/A6", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdCookie}},
	{"IN_R1/B1", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdEmpty}},
	{"IN_R1/B2", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdReceiveWindowSize}},

	{"IN_R2/A1", rpcwire.RTSFlagRecycleChannel, []uint32{rpcwire.CmdVersion, rpcwire.CmdCookie, rpcwire.CmdCookie, rpcwire.CmdCookie}},
	{"IN_R2/A2", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdCookie}},
	{"IN_R2/A3", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdDestination}},
	{"IN_R2/A5", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdCookie}},

	{"OUT_R1/A1", rpcwire.RTSFlagRecycleChannel, []uint32{rpcwire.CmdDestination}},
	{"OUT_R1/A2", rpcwire.RTSFlagRecycleChannel, []uint32{rpcwire.CmdDestination}},
	{"OUT_R1/A3", rpcwire.RTSFlagRecycleChannel, []uint32{rpcwire.CmdVersion, rpcwire.CmdCookie, rpcwire.CmdCookie, rpcwire.CmdCookie, rpcwire.CmdReceiveWindowSize}},
	{"OUT_R1/A5", rpcwire.RTSFlagOutChannel, []uint32{rpcwire.CmdDestination, rpcwire.CmdVersion, rpcwire.CmdConnectionTimeout}},
	{"OUT_R1/A6", rpcwire.RTSFlagOutChannel, []uint32{rpcwire.CmdDestination, rpcwire.CmdVersion, rpcwire.CmdConnectionTimeout}},
	{"OUT_R1/A7", rpcwire.RTSFlagOutChannel, []uint32{rpcwire.CmdDestination, rpcwire.CmdCookie}},
	{"OUT_R1/A8", rpcwire.RTSFlagOutChannel, []uint32{rpcwire.CmdDestination, rpcwire.CmdCookie}},
	{"OUT_R1/A9", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdAnce}},
	{"OUT_R1/A10", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdAnce}},
	{"OUT_R1/A11", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdAnce}},

	{"OUT_R2/A1", rpcwire.RTSFlagRecycleChannel, []uint32{rpcwire.CmdDestination}},
	{"OUT_R2/A2", rpcwire.RTSFlagRecycleChannel, []uint32{rpcwire.CmdDestination}},
	{"OUT_R2/A3", rpcwire.RTSFlagRecycleChannel, []uint32{rpcwire.CmdVersion, rpcwire.CmdCookie, rpcwire.CmdCookie, rpcwire.CmdCookie, rpcwire.CmdReceiveWindowSize}},
	{"OUT_R2/A4", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdCookie}},
	{"OUT_R2/A5", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdDestination, rpcwire.CmdAnce}},
	{"OUT_R2/A6", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdDestination, rpcwire.CmdAnce}},
	{"OUT_R2/A7", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdDestination, rpcwire.CmdCookie, rpcwire.CmdVersion}},
	{"OUT_R2/A8", rpcwire.RTSFlagOutChannel, []uint32{rpcwire.CmdDestination, rpcwire.CmdCookie}},

	{"OUT_R2/B1", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdAnce}},
	{"OUT_R2/B2", rpcwire.RTSFlagNone, []uint32{rpcwire.CmdNegativeAnce}},
	{"OUT_R2/B3", rpcwire.RTSFlagEOF, []uint32{rpcwire.CmdAnce}},

	{"OUT_R2/C1", rpcwire.RTSFlagPing, nil},

	{"KeepAlive", rpcwire.RTSFlagOtherCmd, []uint32{rpcwire.CmdClientKeepalive}},
	{"PingTrafficSentNotify", rpcwire.RTSFlagOtherCmd, []uint32{rpcwire.CmdPingTrafficSentNotify}},
	{"Echo", rpcwire.RTSFlagEcho, nil},
	{"Ping", rpcwire.RTSFlagPing, nil},
	{"FlowControlAck", rpcwire.RTSFlagOtherCmd, []uint32{rpcwire.CmdFlowControlAck}},
	{"FlowControlAckWithDestination", rpcwire.RTSFlagOtherCmd, []uint32{rpcwire.CmdDestination, rpcwire.CmdFlowControlAck}},
}

// IdentifyPDU matches pdu's (Flags, command-type sequence) against the
// signature table and returns the matching PDU name, or "" if none
// matches.
func IdentifyPDU(pdu rpcwire.RTSPDU) string {
	for _, sig := range signatureTable {
		if sig.flags != pdu.Flags {
			continue
		}
		if len(sig.commands) != len(pdu.Commands) {
			continue
		}
		match := true
		for i, want := range sig.commands {
			if pdu.Commands[i].Type != want {
				match = false
				break
			}
		}
		if match {
			return sig.name
		}
	}
	return ""
}
