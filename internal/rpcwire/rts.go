package rpcwire

import "github.com/corerdp/rdpdr/pkg/stream"

// RTS flags (rts.h RTS_FLAG_*).
const (
	RTSFlagNone           uint16 = 0x0000
	RTSFlagPing           uint16 = 0x0001
	RTSFlagOtherCmd       uint16 = 0x0002
	RTSFlagRecycleChannel uint16 = 0x0004
	RTSFlagInChannel      uint16 = 0x0008
	RTSFlagOutChannel     uint16 = 0x0010
	RTSFlagEOF            uint16 = 0x0020
	RTSFlagEcho           uint16 = 0x0040
)

// RTS command types (rts.h RTS_CMD_*).
const (
	CmdReceiveWindowSize     uint32 = 0x00000000
	CmdFlowControlAck        uint32 = 0x00000001
	CmdConnectionTimeout     uint32 = 0x00000002
	CmdCookie                uint32 = 0x00000003
	CmdChannelLifetime       uint32 = 0x00000004
	CmdClientKeepalive       uint32 = 0x00000005
	CmdVersion               uint32 = 0x00000006
	CmdEmpty                 uint32 = 0x00000007
	CmdPadding               uint32 = 0x00000008
	CmdNegativeAnce          uint32 = 0x00000009
	CmdAnce                  uint32 = 0x0000000A
	CmdClientAddress         uint32 = 0x0000000B
	CmdAssociationGroupID    uint32 = 0x0000000C
	CmdDestination           uint32 = 0x0000000D
	CmdPingTrafficSentNotify uint32 = 0x0000000E
)

// Destination field values for the Destination RTS command.
const (
	FDClient   uint32 = 0
	FDInProxy  uint32 = 1
	FDServer   uint32 = 2
	FDOutProxy uint32 = 3
)

// Command is one decoded RTS command: a type tag plus its raw body.
// Typed accessors below interpret the body for the command kinds this
// module sends or must recognize; unrecognized command types are carried
// through uninterpreted so dispatch can still pattern-match the full
// command-type sequence (spec.md §4.5 "signature table").
type Command struct {
	Type uint32
	Body []byte
}

// RTSPDU is a PTYPE_RTS PDU: the common header plus Flags/NumberOfCommands
// and a command list (spec.md §4.2 "RTS PDU").
type RTSPDU struct {
	CallID   uint32
	Flags    uint16
	Commands []Command
}

func commandBodyLength(c Command) int { return len(c.Body) }

// Encode serializes an RTS PDU.
func (p RTSPDU) Encode() *stream.Stream {
	bodyLen := 4 // flags(2) + num_commands(2)
	for _, c := range p.Commands {
		bodyLen += 4 + commandBodyLength(c)
	}
	fragLen := HeaderSize + bodyLen
	s := stream.Take(fragLen)
	h := NewHeader(PTypeRTS, PfcFirstFrag|PfcLastFrag, fragLen, 0, p.CallID)
	h.Encode(s)
	s.WriteU16LE(p.Flags)
	s.WriteU16LE(uint16(len(p.Commands)))
	for _, c := range p.Commands {
		s.WriteU32LE(c.Type)
		s.WriteBytes(c.Body)
	}
	return s
}

// ParseRTSPDU decodes an RTS PDU body (header already consumed by caller).
func ParseRTSPDU(h Header, s *stream.Stream) (RTSPDU, error) {
	p := RTSPDU{CallID: h.CallID}
	var err error
	p.Flags, err = s.ReadU16LE()
	if err != nil {
		return RTSPDU{}, err
	}
	numCommands, err := s.ReadU16LE()
	if err != nil {
		return RTSPDU{}, err
	}
	for i := uint16(0); i < numCommands; i++ {
		ctype, err := s.ReadU32LE()
		if err != nil {
			return RTSPDU{}, err
		}
		bodyLen, err := rtsCommandBodyLength(ctype, s)
		if err != nil {
			return RTSPDU{}, err
		}
		body, err := s.ReadBytes(bodyLen)
		if err != nil {
			return RTSPDU{}, err
		}
		p.Commands = append(p.Commands, Command{Type: ctype, Body: body})
	}
	return p, nil
}

// rtsCommandBodyLength returns the body length for fixed-size commands, or
// peeks the ConformanceCount field for Padding (variable size per spec.md
// §4.2 table).
func rtsCommandBodyLength(ctype uint32, s *stream.Stream) (int, error) {
	switch ctype {
	case CmdReceiveWindowSize, CmdConnectionTimeout, CmdChannelLifetime,
		CmdClientKeepalive, CmdVersion, CmdDestination, CmdPingTrafficSentNotify:
		return 4, nil
	case CmdFlowControlAck:
		return 24, nil
	case CmdCookie, CmdAssociationGroupID:
		return 16, nil
	case CmdEmpty, CmdNegativeAnce, CmdAnce:
		return 0, nil
	case CmdPadding:
		rem := s.PeekRemaining()
		if len(rem) < 4 {
			return 0, ErrTruncated
		}
		count := int(rem[0]) | int(rem[1])<<8 | int(rem[2])<<16 | int(rem[3])<<24
		return 4 + count, nil
	case CmdClientAddress:
		rem := s.PeekRemaining()
		if len(rem) < 4 {
			return 0, ErrTruncated
		}
		addrType := int(rem[0]) | int(rem[1])<<8 | int(rem[2])<<16 | int(rem[3])<<24
		if addrType == 0 { // IPv4
			return 4 + 4 + 12, nil // AddressType + IPv4 + padding
		}
		return 4 + 16 + 12, nil // IPv6 + padding
	default:
		// Unknown command: no declared length available; treat as
		// unparsable rather than guessing.
		return 0, ErrTruncated
	}
}

// --- typed command builders -------------------------------------------------

func cmdU32(ctype uint32, v uint32) Command {
	var b [4]byte
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	return Command{Type: ctype, Body: b[:]}
}

func CmdVersionCommand() Command { return cmdU32(CmdVersion, 1) }

func CmdReceiveWindowSizeCommand(size uint32) Command {
	return cmdU32(CmdReceiveWindowSize, size)
}

func CmdConnectionTimeoutCommand(ms uint32) Command {
	return cmdU32(CmdConnectionTimeout, ms)
}

func CmdChannelLifetimeCommand(ms uint32) Command {
	return cmdU32(CmdChannelLifetime, ms)
}

func CmdClientKeepaliveCommand(ms uint32) Command {
	return cmdU32(CmdClientKeepalive, ms)
}

func CmdDestinationCommand(fd uint32) Command { return cmdU32(CmdDestination, fd) }

func CmdCookieCommand(cookie [16]byte) Command {
	b := make([]byte, 16)
	copy(b, cookie[:])
	return Command{Type: CmdCookie, Body: b}
}

func CmdAssociationGroupIDCommand(id [16]byte) Command {
	b := make([]byte, 16)
	copy(b, id[:])
	return Command{Type: CmdAssociationGroupID, Body: b}
}

func CmdEmptyCommand() Command { return Command{Type: CmdEmpty} }

// CmdFlowControlAckCommand builds the 24-byte FlowControlAck body:
// BytesReceived(4), AvailableWindow(4), ChannelCookie(16).
func CmdFlowControlAckCommand(bytesReceived, availableWindow uint32, channelCookie [16]byte) Command {
	b := make([]byte, 24)
	putU32LE(b[0:], bytesReceived)
	putU32LE(b[4:], availableWindow)
	copy(b[8:], channelCookie[:])
	return Command{Type: CmdFlowControlAck, Body: b}
}

// ParseFlowControlAck extracts the fields from a FlowControlAck command body.
func ParseFlowControlAck(c Command) (bytesReceived, availableWindow uint32, channelCookie [16]byte) {
	if len(c.Body) < 24 {
		return 0, 0, channelCookie
	}
	bytesReceived = getU32LE(c.Body[0:])
	availableWindow = getU32LE(c.Body[4:])
	copy(channelCookie[:], c.Body[8:24])
	return
}

func putU32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

func getU32LE(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// --- well-known RTS PDU constructors (spec.md §4.5) -------------------------

// ConnA1 is the OUT channel's first handshake PDU: Version, Cookie(C),
// Cookie(O), ReceiveWindowSize.
func ConnA1(connCookie, outCookie [16]byte, receiveWindowSize uint32) RTSPDU {
	return RTSPDU{
		Flags: RTSFlagNone,
		Commands: []Command{
			CmdVersionCommand(),
			CmdCookieCommand(connCookie),
			CmdCookieCommand(outCookie),
			CmdReceiveWindowSizeCommand(receiveWindowSize),
		},
	}
}

// ConnB1 is the IN channel's first handshake PDU: Version, Cookie(C),
// Cookie(I), ChannelLifetime, ClientKeepalive, AssociationGroupId(A).
func ConnB1(connCookie, inCookie, assocGroupID [16]byte, channelLifetime, clientKeepalive uint32) RTSPDU {
	return RTSPDU{
		Flags: RTSFlagNone,
		Commands: []Command{
			CmdVersionCommand(),
			CmdCookieCommand(connCookie),
			CmdCookieCommand(inCookie),
			CmdChannelLifetimeCommand(channelLifetime),
			CmdClientKeepaliveCommand(clientKeepalive),
			CmdAssociationGroupIDCommand(assocGroupID),
		},
	}
}

// FlowControlAckPDU is the IN-channel PDU sent once accumulated received
// bytes reach half the advertised window (spec.md §4.5 "Flow control").
func FlowControlAckPDU(bytesReceived, availableWindow uint32, outChannelCookie [16]byte) RTSPDU {
	return RTSPDU{Flags: RTSFlagNone, Commands: []Command{
		CmdFlowControlAckCommand(bytesReceived, availableWindow, outChannelCookie),
	}}
}

// PingPDU is the IN-channel keepalive PDU: flag PING, zero commands.
func PingPDU() RTSPDU { return RTSPDU{Flags: RTSFlagPing} }

// OutR1A3 is sent on the replacement OUT channel during recycling: Version,
// Cookie(C), Cookie(predecessor O), Cookie(successor O'), ReceiveWindowSize.
func OutR1A3(connCookie, predecessorCookie, successorCookie [16]byte, receiveWindowSize uint32) RTSPDU {
	return RTSPDU{Flags: RTSFlagRecycleChannel, Commands: []Command{
		CmdVersionCommand(),
		CmdCookieCommand(connCookie),
		CmdCookieCommand(predecessorCookie),
		CmdCookieCommand(successorCookie),
		CmdReceiveWindowSizeCommand(receiveWindowSize),
	}}
}

// OutR2C1 is the Ping sent on the new OUT channel once OUT_R2/A6 arrives.
func OutR2C1() RTSPDU { return PingPDU() }

// OutR2A7 is sent on the IN channel alongside OutR2C1 to acknowledge the
// recycle on that side too.
func OutR2A7() RTSPDU { return RTSPDU{Flags: RTSFlagRecycleChannel} }
