package rpch

import "time"

// KeepaliveDue reports whether the IN channel should send an RTS Ping
// (spec.md §4.5 "IN channel sends RTS Ping... when now − last_send ≥
// keepalive_interval").
func KeepaliveDue(now, lastSend time.Time, interval time.Duration) bool {
	return now.Sub(lastSend) >= interval
}
