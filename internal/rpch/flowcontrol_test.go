package rpch

import "testing"

func TestOnBytesReceivedTriggersAckAtHalfWindow(t *testing.T) {
	fc := NewFlowControl(0x20000)
	if fc.OnBytesReceived(0x0FFFF) {
		t.Fatalf("expected no ack before reaching half the window")
	}
	if !fc.OnBytesReceived(0x00001) {
		t.Fatalf("expected ack due at exactly half the window")
	}
}

func TestAckSentReportsCurrentTotals(t *testing.T) {
	fc := NewFlowControl(0x10000)
	fc.OnBytesReceived(0x14000)
	bytesReceived, availableWindow := fc.AckSent()
	if bytesReceived != 0x14000 {
		t.Fatalf("bytesReceived = %#x, want 0x14000", bytesReceived)
	}
	if availableWindow != 0x10000 {
		t.Fatalf("availableWindow = %#x, want 0x10000", availableWindow)
	}
}

func TestFlowControlIdentity(t *testing.T) {
	fc := NewFlowControl(0x10000)
	fc.SetPeerReceiveWindow(0x10000)
	fc.OnBytesSent(5000)
	fc.OnPeerAck(3000, 0x10000)

	want := int64(0x10000) - (int64(5000) - int64(3000))
	if got := fc.AvailableWindow(); got != want {
		t.Fatalf("AvailableWindow() = %d, want %d", got, want)
	}
	if !fc.CanSend() {
		t.Fatalf("expected CanSend() true with positive window")
	}
}

func TestFlowControlCanGoNegativeAndStalls(t *testing.T) {
	fc := NewFlowControl(0x10000)
	fc.SetPeerReceiveWindow(0x1000)
	fc.OnBytesSent(0x5000)
	fc.OnPeerAck(0, 0x1000) // out-of-order ack: server hasn't caught up yet

	if fc.CanSend() {
		t.Fatalf("expected CanSend() false once the window goes negative")
	}
	if fc.AvailableWindow() >= 0 {
		t.Fatalf("expected a negative available window, got %d", fc.AvailableWindow())
	}
}

func TestCanSendBeforeHandshakeDefaultsTrue(t *testing.T) {
	fc := NewFlowControl(0x10000)
	if !fc.CanSend() {
		t.Fatalf("expected CanSend() true before the peer window is known")
	}
}
