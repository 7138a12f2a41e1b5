package rdpdr

// Virtual channel frame flags (spec.md §4.14 "Channel receive assembly").
const (
	ChannelFlagFirst   uint32 = 0x00000001
	ChannelFlagLast    uint32 = 0x00000002
	ChannelFlagSuspend uint32 = 0x00000004
	ChannelFlagResume  uint32 = 0x00000008
)

// Transport is the host's virtual-channel send primitive this package
// depends on (named external collaborator, spec.md §7's scope boundary
// — the RDP core's channel plumbing itself is out of scope). Send
// carries one already-chunked virtual-channel frame's raw bytes.
type Transport interface {
	Send(data []byte) error
}
