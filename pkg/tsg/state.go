package tsg

// State is a tunnel's position in the state machine spec.md §4.7 names
// ("Initial -> CreateTunnel response -> Connected -> ...").
type State int

const (
	StateInitial State = iota
	StateConnected
	StateAuthorized
	StateChannelCreated
	StatePipeCreated
	StateTunnelClosePending
	StateChannelClosePending
	StateFinal
)

// AllStates lists every state name, for the tunnel-state gauge (which
// must zero every state but the current one on each transition).
var AllStates = []string{
	StateInitial.String(),
	StateConnected.String(),
	StateAuthorized.String(),
	StateChannelCreated.String(),
	StatePipeCreated.String(),
	StateTunnelClosePending.String(),
	StateChannelClosePending.String(),
	StateFinal.String(),
}

func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateConnected:
		return "Connected"
	case StateAuthorized:
		return "Authorized"
	case StateChannelCreated:
		return "ChannelCreated"
	case StatePipeCreated:
		return "PipeCreated"
	case StateTunnelClosePending:
		return "TunnelClosePending"
	case StateChannelClosePending:
		return "ChannelClosePending"
	case StateFinal:
		return "Final"
	default:
		return "Unknown"
	}
}
