package logger

import (
	"encoding/hex"
	"log/slog"
)

// Standard field keys for structured logging across the channel, device,
// and transport layers. Use these keys consistently so log lines aggregate
// and query cleanly.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// ========================================================================
	// Channel & Tunnel
	// ========================================================================
	KeyTunnelID    = "tunnel_id"    // TSG tunnel correlation id (pkg/tsg)
	KeyChannelRole = "channel_role" // "client" or "server"
	KeyState       = "state"        // State machine state name
	KeyComponent   = "component"    // wire.Header component (RDPDR_CTYP_CORE, _PRN)
	KeyPacketID    = "packet_id"    // wire.Header packet id

	// ========================================================================
	// Device & IRP
	// ========================================================================
	KeyDeviceID      = "device_id"      // RDPDR device ID
	KeyDeviceType    = "device_type"    // drive, printer, serial, parallel, smartcard
	KeyDeviceName    = "device_name"    // Sanitized device name announced to the server
	KeyFileID        = "file_id"        // Open file ID within a device
	KeyCompletionID  = "completion_id"  // IRP completion ID
	KeyMajorFunction = "major_function" // IRP_MJ_* code
	KeyMinorFunction = "minor_function" // IRP_MN_* code
	KeyNTStatus      = "ntstatus"       // NTSTATUS result code

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyHandle       = "handle"        // Raw handle bytes (e.g. TSG context handle), formatted as hex
	KeyOffset       = "offset"        // File offset for read/write operations
	KeyCount        = "count"         // Byte count requested
	KeyBytesRead    = "bytes_read"    // Actual bytes read
	KeyBytesWritten = "bytes_written" // Actual bytes written

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms" // Operation duration in milliseconds
	KeyError      = "error"       // Error message
	KeyAttempt    = "attempt"     // Retry attempt number
	KeyMaxRetries = "max_retries" // Maximum retry attempts

	// ========================================================================
	// RPC / Gateway transport
	// ========================================================================
	KeyConnectionID = "connection_id" // RPC-over-HTTP virtual connection id
	KeyFlowWindow   = "flow_window"   // RPC flow-control receive window
	KeyGatewayHost  = "gateway_host"  // TSG gateway hostname
)

// ============================================================================
// Field constructors for type safety
// ============================================================================

// TraceID returns a slog.Attr for OpenTelemetry trace ID
func TraceID(id string) slog.Attr {
	return slog.String(KeyTraceID, id)
}

// SpanID returns a slog.Attr for OpenTelemetry span ID
func SpanID(id string) slog.Attr {
	return slog.String(KeySpanID, id)
}

// TunnelID returns a slog.Attr for the TSG tunnel correlation id
func TunnelID(id string) slog.Attr {
	return slog.String(KeyTunnelID, id)
}

// ChannelRole returns a slog.Attr for the channel side ("client"/"server")
func ChannelRole(role string) slog.Attr {
	return slog.String(KeyChannelRole, role)
}

// State returns a slog.Attr for a state machine state name
func State(s string) slog.Attr {
	return slog.String(KeyState, s)
}

// DeviceID returns a slog.Attr for an RDPDR device ID
func DeviceID(id uint32) slog.Attr {
	return slog.Any(KeyDeviceID, id)
}

// DeviceType returns a slog.Attr for a device type name
func DeviceType(t string) slog.Attr {
	return slog.String(KeyDeviceType, t)
}

// DeviceName returns a slog.Attr for a sanitized device name
func DeviceName(name string) slog.Attr {
	return slog.String(KeyDeviceName, name)
}

// FileID returns a slog.Attr for an open file ID
func FileID(id uint32) slog.Attr {
	return slog.Any(KeyFileID, id)
}

// CompletionID returns a slog.Attr for an IRP completion ID
func CompletionID(id uint32) slog.Attr {
	return slog.Any(KeyCompletionID, id)
}

// MajorFunction returns a slog.Attr for an IRP_MJ_* code
func MajorFunction(code uint32) slog.Attr {
	return slog.Any(KeyMajorFunction, code)
}

// MinorFunction returns a slog.Attr for an IRP_MN_* code
func MinorFunction(code uint32) slog.Attr {
	return slog.Any(KeyMinorFunction, code)
}

// NTStatus returns a slog.Attr for an NTSTATUS result code, formatted as hex.
func NTStatus(status uint32) slog.Attr {
	return slog.String(KeyNTStatus, hexUint32(status))
}

func hexUint32(v uint32) string {
	const hexdigits = "0123456789abcdef"
	buf := make([]byte, 10)
	buf[0] = '0'
	buf[1] = 'x'
	for i := 0; i < 8; i++ {
		shift := uint(28 - 4*i)
		buf[2+i] = hexdigits[(v>>shift)&0xf]
	}
	return string(buf)
}

// Handle returns a slog.Attr for raw handle bytes, formatted as hex.
func Handle(b []byte) slog.Attr {
	return slog.String(KeyHandle, hex.EncodeToString(b))
}

// Offset returns a slog.Attr for file offset
func Offset(off uint64) slog.Attr {
	return slog.Uint64(KeyOffset, off)
}

// Count returns a slog.Attr for byte count requested
func Count(c uint32) slog.Attr {
	return slog.Any(KeyCount, c)
}

// BytesRead returns a slog.Attr for actual bytes read
func BytesRead(n int) slog.Attr {
	return slog.Int(KeyBytesRead, n)
}

// BytesWritten returns a slog.Attr for actual bytes written
func BytesWritten(n int) slog.Attr {
	return slog.Int(KeyBytesWritten, n)
}

// DurationMs returns a slog.Attr for duration in milliseconds
func DurationMs(ms float64) slog.Attr {
	return slog.Float64(KeyDurationMs, ms)
}

// Err returns a slog.Attr for an error
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// Attempt returns a slog.Attr for retry attempt number
func Attempt(n int) slog.Attr {
	return slog.Int(KeyAttempt, n)
}

// MaxRetries returns a slog.Attr for maximum retry attempts
func MaxRetries(n int) slog.Attr {
	return slog.Int(KeyMaxRetries, n)
}

// ConnectionID returns a slog.Attr for an RPC-over-HTTP virtual connection id
func ConnectionID(id string) slog.Attr {
	return slog.String(KeyConnectionID, id)
}

// FlowWindow returns a slog.Attr for the RPC flow-control receive window
func FlowWindow(bytes uint32) slog.Attr {
	return slog.Any(KeyFlowWindow, bytes)
}

// GatewayHost returns a slog.Attr for the TSG gateway hostname
func GatewayHost(host string) slog.Attr {
	return slog.String(KeyGatewayHost, host)
}
