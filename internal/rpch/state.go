package rpch

// InChannelState enumerates the IN channel's handshake states
// (spec.md §4.5).
type InChannelState int

const (
	InInitial InChannelState = iota
	InConnected
	InSecurity
	InNegotiated
	InOpened
	InOpenedA4W
	InFinal
)

func (s InChannelState) String() string {
	switch s {
	case InInitial:
		return "Initial"
	case InConnected:
		return "Connected"
	case InSecurity:
		return "Security"
	case InNegotiated:
		return "Negotiated"
	case InOpened:
		return "Opened"
	case InOpenedA4W:
		return "OpenedA4W"
	case InFinal:
		return "Final"
	default:
		return "Unknown"
	}
}

// OutChannelState enumerates the OUT channel's handshake/recycling states
// (spec.md §4.5).
type OutChannelState int

const (
	OutInitial OutChannelState = iota
	OutConnected
	OutSecurity
	OutNegotiated
	OutOpened
	OutOpenedA6W
	OutOpenedA10W
	OutOpenedB3W
	OutRecycled
	OutFinal
)

func (s OutChannelState) String() string {
	switch s {
	case OutInitial:
		return "Initial"
	case OutConnected:
		return "Connected"
	case OutSecurity:
		return "Security"
	case OutNegotiated:
		return "Negotiated"
	case OutOpened:
		return "Opened"
	case OutOpenedA6W:
		return "OpenedA6W"
	case OutOpenedA10W:
		return "OpenedA10W"
	case OutOpenedB3W:
		return "OpenedB3W"
	case OutRecycled:
		return "Recycled"
	case OutFinal:
		return "Final"
	default:
		return "Unknown"
	}
}
