package tsg

import "testing"

func TestStateStringCoversAllValues(t *testing.T) {
	states := []State{
		StateInitial, StateConnected, StateAuthorized, StateChannelCreated,
		StatePipeCreated, StateTunnelClosePending, StateChannelClosePending, StateFinal,
	}
	seen := make(map[string]bool)
	for _, s := range states {
		str := s.String()
		if str == "Unknown" || str == "" {
			t.Fatalf("state %d stringified to %q", s, str)
		}
		if seen[str] {
			t.Fatalf("duplicate string %q for distinct states", str)
		}
		seen[str] = true
	}
	if got := State(99).String(); got != "Unknown" {
		t.Fatalf("out-of-range state = %q, want Unknown", got)
	}
}
