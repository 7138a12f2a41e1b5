package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "rdpdr-gw", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	// Should be able to call shutdown without error
	err = shutdown(ctx)
	assert.NoError(t, err)

	// Should not be enabled
	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	// Reset state
	tracer = nil
	enabled = false

	// Without initialization, should return no-op tracer
	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	// Even without initialization, StartSpan should work (no-op)
	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)

	// Should be able to end the span
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	// Should return a span even without active span
	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	// Should not panic with no active span
	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	// Should not panic with nil error
	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	// Should not panic with error
	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	// Should not panic
	require.NotPanics(t, func() {
		SetAttributes(ctx, DeviceID(1))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	// Without active span, should return empty string
	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("RPCCallID", func(t *testing.T) {
		attr := RPCCallID(42)
		assert.Equal(t, AttrRPCCallID, string(attr.Key))
		assert.Equal(t, int64(42), attr.Value.AsInt64())
	})

	t.Run("RPCOpnum", func(t *testing.T) {
		attr := RPCOpnum(3)
		assert.Equal(t, AttrRPCOpnum, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("RPCAllocHint", func(t *testing.T) {
		attr := RPCAllocHint(4096)
		assert.Equal(t, AttrRPCAllocHint, string(attr.Key))
		assert.Equal(t, int64(4096), attr.Value.AsInt64())
	})

	t.Run("RPCFaultCode", func(t *testing.T) {
		attr := RPCFaultCode(0x1c010002)
		assert.Equal(t, AttrRPCFaultCode, string(attr.Key))
		assert.Equal(t, "0x1c010002", attr.Value.AsString())
	})

	t.Run("ChannelCookie", func(t *testing.T) {
		attr := ChannelCookie([]byte{0x01, 0x02, 0x03, 0x04})
		assert.Equal(t, AttrChannelCookie, string(attr.Key))
		assert.Equal(t, "01020304", attr.Value.AsString())
	})

	t.Run("TSGState", func(t *testing.T) {
		attr := TSGState("Connected")
		assert.Equal(t, AttrTSGState, string(attr.Key))
		assert.Equal(t, "Connected", attr.Value.AsString())
	})

	t.Run("TSGTransition", func(t *testing.T) {
		attrs := TSGTransition("Initial", "Connected")
		require.Len(t, attrs, 2)
		assert.Equal(t, AttrTSGFromState, string(attrs[0].Key))
		assert.Equal(t, "Initial", attrs[0].Value.AsString())
		assert.Equal(t, AttrTSGToState, string(attrs[1].Key))
		assert.Equal(t, "Connected", attrs[1].Value.AsString())
	})

	t.Run("TSGTunnelID", func(t *testing.T) {
		attr := TSGTunnelID(7)
		assert.Equal(t, AttrTSGTunnelID, string(attr.Key))
		assert.Equal(t, int64(7), attr.Value.AsInt64())
	})

	t.Run("TSGMachineName", func(t *testing.T) {
		attr := TSGMachineName("WORKSTATION1")
		assert.Equal(t, AttrTSGMachine, string(attr.Key))
		assert.Equal(t, "WORKSTATION1", attr.Value.AsString())
	})

	t.Run("DeviceID", func(t *testing.T) {
		attr := DeviceID(1)
		assert.Equal(t, AttrDeviceID, string(attr.Key))
		assert.Equal(t, int64(1), attr.Value.AsInt64())
	})

	t.Run("DeviceType", func(t *testing.T) {
		attr := DeviceType("drive")
		assert.Equal(t, AttrDeviceType, string(attr.Key))
		assert.Equal(t, "drive", attr.Value.AsString())
	})

	t.Run("FileID", func(t *testing.T) {
		attr := FileID(99)
		assert.Equal(t, AttrFileID, string(attr.Key))
		assert.Equal(t, int64(99), attr.Value.AsInt64())
	})

	t.Run("CompletionID", func(t *testing.T) {
		attr := CompletionID(55)
		assert.Equal(t, AttrCompletionID, string(attr.Key))
		assert.Equal(t, int64(55), attr.Value.AsInt64())
	})

	t.Run("MajorFunction", func(t *testing.T) {
		attr := MajorFunction("IRP_MJ_READ")
		assert.Equal(t, AttrMajorFunction, string(attr.Key))
		assert.Equal(t, "IRP_MJ_READ", attr.Value.AsString())
	})

	t.Run("MinorFunction", func(t *testing.T) {
		attr := MinorFunction(0)
		assert.Equal(t, AttrMinorFunction, string(attr.Key))
		assert.Equal(t, int64(0), attr.Value.AsInt64())
	})

	t.Run("IOStatus", func(t *testing.T) {
		attr := IOStatus(0)
		assert.Equal(t, AttrIOStatus, string(attr.Key))
		assert.Equal(t, "0x00000000", attr.Value.AsString())
	})

	t.Run("Username", func(t *testing.T) {
		attr := Username("alice")
		assert.Equal(t, AttrUsername, string(attr.Key))
		assert.Equal(t, "alice", attr.Value.AsString())
	})

	t.Run("Domain", func(t *testing.T) {
		attr := Domain("CORP")
		assert.Equal(t, AttrDomain, string(attr.Key))
		assert.Equal(t, "CORP", attr.Value.AsString())
	})

	t.Run("AuthMethod", func(t *testing.T) {
		attr := AuthMethod("NTLM")
		assert.Equal(t, AttrAuth, string(attr.Key))
		assert.Equal(t, "NTLM", attr.Value.AsString())
	})
}

func TestStartRPCCallSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartRPCCallSpan(ctx, 1, 0)
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartRPCCallSpan(ctx, 2, 3, RPCAllocHint(128))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartIRPDispatchSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartIRPDispatchSpan(ctx, 1, "drive", "IRP_MJ_READ")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartIRPDispatchSpan(ctx, 2, "serial", "IRP_MJ_WRITE", FileID(9))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}

func TestStartTSGTransitionSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartTSGTransitionSpan(ctx, "Initial", "Connected")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}
