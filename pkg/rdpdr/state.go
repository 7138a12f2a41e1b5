// Package rdpdr implements the top-level Device Redirection channel
// (C14): the CORE PDU state machine, device announce/remove, IRP demux
// to internal/devman, and virtual-channel frame reassembly (spec.md
// §4.14).
//
// Grounded on original_source/channels/rdpdr/rdpdr_main.c for the PDU
// dispatch switch and on pkg/tsg's State/Channel shape (int-enum state
// with a String method, mutex-guarded struct) for the idiom this package
// follows.
package rdpdr

// State is the channel's position in the handshake state machine
// (spec.md §4.14).
type State int

const (
	StateInitial State = iota
	StateAnnounce
	StateAnnounceReply
	StateNameRequest
	StateServerCaps
	StateClientCaps
	StateClientIDConfirm
	StateReady
	StateFinal
)

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateAnnounce:
		return "Announce"
	case StateAnnounceReply:
		return "AnnounceReply"
	case StateNameRequest:
		return "NameRequest"
	case StateServerCaps:
		return "ServerCaps"
	case StateClientCaps:
		return "ClientCaps"
	case StateClientIDConfirm:
		return "ClientIdConfirm"
	case StateReady:
		return "Ready"
	case StateFinal:
		return "Final"
	default:
		return "Unknown"
	}
}
