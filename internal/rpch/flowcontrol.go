package rpch

// FlowControl tracks the OUT-channel byte-credit accounting spec.md §4.5
// and §8.4 describe: the client advertises a receive window to the server
// at channel setup, acks consumption once it has received at least half
// that window since the last ack, and recomputes how much budget it has
// left to send on the IN channel whenever the server's own FlowControlAck
// arrives.
//
// Grounded directly on spec.md (no teacher/example analogue — dittofs has
// no RTS-style credit-based flow control; NFS/SMB rely on TCP's own
// window). The invariant (§8 "Flow-control identity") and the recycling
// edge case (§9 "can go negative... treat as stall until next ack") are
// both implemented as stated.
type FlowControl struct {
	receiveWindowSize uint32 // advertised to the server at setup
	bytesReceived     uint32 // total bytes received on the OUT channel
	lastAckedReceived uint32 // BytesReceived value as of the last ack sent

	peerReceiveWindow  uint32 // server's advertised ReceiveWindowSize to us (from CONN/C2)
	bytesSent          uint32 // total bytes sent on the IN channel
	lastAckBytesRecv   uint32 // BytesReceived value from the server's last FlowControlAck
	senderWindowValid  bool
	senderAvailWindow  int64 // may go negative per spec.md §9; treated as "stalled"
}

// NewFlowControl seeds the window the client will advertise to the server.
func NewFlowControl(receiveWindowSize uint32) *FlowControl {
	return &FlowControl{receiveWindowSize: receiveWindowSize}
}

// SetPeerReceiveWindow records the server's advertised window (from
// CONN/C2) once the handshake completes.
func (f *FlowControl) SetPeerReceiveWindow(w uint32) {
	f.peerReceiveWindow = w
	f.senderAvailWindow = int64(w)
	f.senderWindowValid = true
}

// OnBytesReceived records n freshly received OUT-channel bytes and reports
// whether a FlowControlAck is now due (accumulated ≥ half the receive
// window since the last ack).
func (f *FlowControl) OnBytesReceived(n uint32) (ackDue bool) {
	f.bytesReceived += n
	return f.bytesReceived-f.lastAckedReceived >= f.receiveWindowSize/2
}

// AckSent records that a FlowControlAck was just sent with the current
// BytesReceived total.
func (f *FlowControl) AckSent() (bytesReceived, availableWindow uint32) {
	f.lastAckedReceived = f.bytesReceived
	return f.bytesReceived, f.receiveWindowSize
}

// OnBytesSent records n bytes sent on the IN channel, consuming sender
// window budget.
func (f *FlowControl) OnBytesSent(n uint32) {
	f.bytesSent += n
	if f.senderWindowValid {
		f.senderAvailWindow -= int64(n)
	}
}

// OnPeerAck recomputes sender_available_window from a FlowControlAck
// received over the OUT channel: available_window - (bytes_sent -
// bytes_received), per spec.md §4.5/§8 identity. May go negative with
// out-of-order acks (spec.md §9); callers must treat a non-positive
// result as "stalled until next ack" rather than clamping it.
func (f *FlowControl) OnPeerAck(ackBytesReceived, ackAvailableWindow uint32) {
	f.lastAckBytesRecv = ackBytesReceived
	f.senderAvailWindow = int64(ackAvailableWindow) - (int64(f.bytesSent) - int64(ackBytesReceived))
	f.senderWindowValid = true
}

// CanSend reports whether the sender window currently allows sending more
// bytes on the IN channel.
func (f *FlowControl) CanSend() bool {
	return !f.senderWindowValid || f.senderAvailWindow > 0
}

// AvailableWindow returns the current sender_available_window (may be
// negative; see OnPeerAck).
func (f *FlowControl) AvailableWindow() int64 {
	return f.senderAvailWindow
}
