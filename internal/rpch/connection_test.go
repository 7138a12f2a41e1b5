package rpch

import "testing"

func TestDefaultConfigMatchesSpecDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ReceiveWindowSize != 0x10000 {
		t.Fatalf("ReceiveWindowSize = %#x, want 0x10000", cfg.ReceiveWindowSize)
	}
	if cfg.ChannelLifetime != 0x40000000 {
		t.Fatalf("ChannelLifetime = %#x, want 0x40000000", cfg.ChannelLifetime)
	}
}

func TestNewVirtualConnectionAllocatesDistinctCookies(t *testing.T) {
	vc := NewVirtualConnection(DefaultConfig())
	if vc.ConnCookie == vc.AssocGroupID {
		t.Fatalf("expected ConnCookie and AssocGroupID to differ")
	}
}

func TestNextCallIDIsMonotonic(t *testing.T) {
	vc := NewVirtualConnection(DefaultConfig())
	first := vc.NextCallID()
	second := vc.NextCallID()
	if second != first+1 {
		t.Fatalf("expected monotonically increasing call ids, got %d then %d", first, second)
	}
}

func TestMaybeAckWithoutChannelsIsNoop(t *testing.T) {
	vc := NewVirtualConnection(DefaultConfig())
	if err := vc.MaybeAck(100); err != nil {
		t.Fatalf("MaybeAck on an unopened connection: %v", err)
	}
}

func TestBeginRecycleWithoutOutChannelFails(t *testing.T) {
	vc := NewVirtualConnection(DefaultConfig())
	if err := vc.BeginRecycle(); err == nil {
		t.Fatalf("expected BeginRecycle to fail without an active out channel")
	}
}
