// Package rdpdrerr defines the small error taxonomy spec.md §7 requires:
// protocol errors (fatal to one channel), auth errors (fatal to the
// connection), and resource exhaustion (PDU dropped, channel survives).
// I/O errors on host resources (drive/printer/serial) are NOT part of this
// taxonomy — they are reported per-IRP as NTSTATUS (internal/irpengine)
// and never surfaced as Go errors to the channel.
package rdpdrerr

import "fmt"

// ProtocolError wraps a malformed PDU or an unexpected state transition.
// Fatal to the channel that observed it (spec.md §7).
type ProtocolError struct {
	PTYPE uint8  // offending PDU type, 0 if not applicable
	State string // state the channel/tunnel was in when the error occurred
	Msg   string
}

func (e *ProtocolError) Error() string {
	if e.State == "" {
		return fmt.Sprintf("rdpdr: protocol error (ptype=%d): %s", e.PTYPE, e.Msg)
	}
	return fmt.Sprintf("rdpdr: protocol error in state %s (ptype=%d): %s", e.State, e.PTYPE, e.Msg)
}

func NewProtocolError(state string, ptype uint8, msg string) error {
	return &ProtocolError{PTYPE: ptype, State: state, Msg: msg}
}

// AuthFailed wraps NTLM handshake failure or a persistent 401/access-denied
// response from the gateway. Fatal to the connection; the host may retry
// with new credentials (spec.md §7).
type AuthFailed struct {
	Reason string
	Err    error
}

func (e *AuthFailed) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rdpdr: credentials rejected by gateway: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("rdpdr: credentials rejected by gateway: %s", e.Reason)
}

func (e *AuthFailed) Unwrap() error { return e.Err }

func NewAuthFailed(reason string, err error) error {
	return &AuthFailed{Reason: reason, Err: err}
}

// OutOfMemory is returned when a buffer pool or other bounded resource is
// exhausted. The triggering PDU is discarded; the channel remains
// operational unless the owning state machine cannot continue without it.
type OutOfMemory struct {
	Resource string
}

func (e *OutOfMemory) Error() string {
	return fmt.Sprintf("rdpdr: resource exhausted: %s", e.Resource)
}

func NewOutOfMemory(resource string) error {
	return &OutOfMemory{Resource: resource}
}

// TransportError wraps a fatal TLS/TCP failure. All dependent state
// machines transition to Final; the host is notified via a terminate
// event (spec.md §7).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("rdpdr: transport error: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

func NewTransportError(err error) error {
	return &TransportError{Err: err}
}
