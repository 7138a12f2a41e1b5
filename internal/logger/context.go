package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context: which device/IRP and
// which TSG tunnel a log line pertains to.
type LogContext struct {
	TraceID      string    // OpenTelemetry trace ID
	SpanID       string    // OpenTelemetry span ID
	DeviceID     uint32    // RDPDR device ID the IRP targets
	FileID       uint32    // Open file ID within the device
	CompletionID uint32    // IRP completion ID (correlates request/reply)
	TunnelID     string    // TSG tunnel correlation id (pkg/tsg)
	ChannelRole  string    // "client" or "server" side of the virtual channel
	StartTime    time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext for a tunnel with the given
// correlation id.
func NewLogContext(tunnelID string) *LogContext {
	return &LogContext{
		TunnelID:  tunnelID,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:      lc.TraceID,
		SpanID:       lc.SpanID,
		DeviceID:     lc.DeviceID,
		FileID:       lc.FileID,
		CompletionID: lc.CompletionID,
		TunnelID:     lc.TunnelID,
		ChannelRole:  lc.ChannelRole,
		StartTime:    lc.StartTime,
	}
}

// WithDevice returns a copy with the device/file id set.
func (lc *LogContext) WithDevice(deviceID, fileID uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.DeviceID = deviceID
		clone.FileID = fileID
	}
	return clone
}

// WithCompletion returns a copy with the IRP completion id set.
func (lc *LogContext) WithCompletion(completionID uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.CompletionID = completionID
	}
	return clone
}

// WithRole returns a copy with the channel role set ("client" or "server").
func (lc *LogContext) WithRole(role string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ChannelRole = role
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
