package rpch

import (
	"testing"
	"time"
)

func TestKeepaliveDue(t *testing.T) {
	base := time.Unix(1000, 0)
	interval := 30 * time.Second

	if KeepaliveDue(base.Add(10*time.Second), base, interval) {
		t.Fatalf("expected keepalive not due before the interval elapses")
	}
	if !KeepaliveDue(base.Add(30*time.Second), base, interval) {
		t.Fatalf("expected keepalive due exactly at the interval")
	}
	if !KeepaliveDue(base.Add(45*time.Second), base, interval) {
		t.Fatalf("expected keepalive due after the interval elapses")
	}
}
