package tsg

import "testing"

func TestNewChannelID(t *testing.T) {
	ctx := ContextHandle{ContextType: 0, UUID: [16]byte{1}}
	ch := newChannel(nil, ctx, 7, "target-host", 3389)
	if ch.ID() != 7 {
		t.Fatalf("ID() = %d, want 7", ch.ID())
	}
	if ch.state != StateChannelCreated {
		t.Fatalf("state = %s, want ChannelCreated", ch.state)
	}
}
