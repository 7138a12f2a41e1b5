package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys for RDPDR/RPCH operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Gateway/connection attributes
	// ========================================================================
	AttrGatewayHost = "gateway.host"
	AttrGatewayPort = "gateway.port"
	AttrTargetHost  = "target.host"
	AttrTargetPort  = "target.port"

	// ========================================================================
	// RPC-over-HTTP (RTS) attributes
	// ========================================================================
	AttrRPCCallID     = "rpc.call_id"
	AttrRPCOpnum      = "rpc.opnum"
	AttrRPCAllocHint  = "rpc.alloc_hint"
	AttrRPCFaultCode  = "rpc.fault_code"
	AttrRPCAuthType   = "rpc.auth_type"
	AttrChannelCookie = "rpch.channel_cookie"

	// ========================================================================
	// TSG tunnel/channel attributes
	// ========================================================================
	AttrTSGState      = "tsg.state"
	AttrTSGFromState  = "tsg.from_state"
	AttrTSGToState    = "tsg.to_state"
	AttrTSGTunnelID   = "tsg.tunnel_id"
	AttrTSGChannelID  = "tsg.channel_id"
	AttrTSGCapsFlags  = "tsg.capabilities"
	AttrTSGMachine    = "tsg.machine_name"

	// ========================================================================
	// IRP/device-redirection attributes
	// ========================================================================
	AttrDeviceID       = "rdpdr.device_id"
	AttrDeviceType     = "rdpdr.device_type"
	AttrFileID         = "rdpdr.file_id"
	AttrCompletionID   = "rdpdr.completion_id"
	AttrMajorFunction  = "rdpdr.major_function"
	AttrMinorFunction  = "rdpdr.minor_function"
	AttrIOStatus       = "rdpdr.io_status"
	AttrIRPQueueDepth  = "rdpdr.irp_queue_depth"

	// ========================================================================
	// User/Auth attributes (protocol-agnostic)
	// ========================================================================
	AttrUsername = "user.name"
	AttrDomain   = "user.domain"
	AttrAuth     = "auth.method"
)

// Span names for operations.
// Format: <component>.<operation>
const (
	// Per-RPC-call span, wraps WriteCall through the matching RESPONSE/FAULT.
	SpanRPCCall = "rpc.call"
	// Per-PDU-fragment span for the BIND/BIND_ACK handshake.
	SpanRPCBind = "rpc.bind"

	// Per-IRP-dispatch span, wraps Handler.Dispatch through Irp.Complete/Discard.
	SpanIRPDispatch = "rdpdr.irp_dispatch"
	// Device announce/removal spans.
	SpanDeviceAnnounce = "rdpdr.device_announce"
	SpanDeviceRemove   = "rdpdr.device_remove"

	// Per-state-transition span for the TSG tunnel/channel state machine.
	SpanTSGStateTransition = "tsg.state_transition"
	SpanTSGCreateTunnel    = "tsg.create_tunnel"
	SpanTSGAuthorize       = "tsg.authorize"
	SpanTSGCreateChannel   = "tsg.create_channel"
	SpanTSGSetupPipe       = "tsg.setup_receive_pipe"
)

// RPCCallID returns an attribute for the DCE/RPC call ID.
func RPCCallID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrRPCCallID, int64(id))
}

// RPCOpnum returns an attribute for the DCE/RPC operation number.
func RPCOpnum(opnum uint16) attribute.KeyValue {
	return attribute.Int64(AttrRPCOpnum, int64(opnum))
}

// RPCAllocHint returns an attribute for the stub data alloc hint.
func RPCAllocHint(hint uint32) attribute.KeyValue {
	return attribute.Int64(AttrRPCAllocHint, int64(hint))
}

// RPCFaultCode returns an attribute for a DCE/RPC fault status code.
func RPCFaultCode(status uint32) attribute.KeyValue {
	return attribute.String(AttrRPCFaultCode, fmt.Sprintf("0x%08x", status))
}

// ChannelCookie returns an attribute for an RPCH channel cookie, hex-encoded.
func ChannelCookie(cookie []byte) attribute.KeyValue {
	return attribute.String(AttrChannelCookie, fmt.Sprintf("%x", cookie))
}

// TSGState returns an attribute for the current TSG tunnel/channel state.
func TSGState(state string) attribute.KeyValue {
	return attribute.String(AttrTSGState, state)
}

// TSGTransition returns attributes describing a state-machine transition.
func TSGTransition(from, to string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrTSGFromState, from),
		attribute.String(AttrTSGToState, to),
	}
}

// TSGTunnelID returns an attribute for the TSG tunnel context handle ID.
func TSGTunnelID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrTSGTunnelID, int64(id))
}

// TSGMachineName returns an attribute for the client machine name reported
// to the gateway during tunnel creation.
func TSGMachineName(name string) attribute.KeyValue {
	return attribute.String(AttrTSGMachine, name)
}

// DeviceID returns an attribute for the RDPDR device ID.
func DeviceID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrDeviceID, int64(id))
}

// DeviceType returns an attribute for the RDPDR device type name
// (e.g. "drive", "serial", "parallel", "printer", "smartcard").
func DeviceType(t string) attribute.KeyValue {
	return attribute.String(AttrDeviceType, t)
}

// FileID returns an attribute for the redirected-device file handle.
func FileID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrFileID, int64(id))
}

// CompletionID returns an attribute for the IRP completion ID.
func CompletionID(id uint32) attribute.KeyValue {
	return attribute.Int64(AttrCompletionID, int64(id))
}

// MajorFunction returns an attribute for the IRP major function name
// (e.g. "IRP_MJ_READ", "IRP_MJ_CREATE").
func MajorFunction(name string) attribute.KeyValue {
	return attribute.String(AttrMajorFunction, name)
}

// MinorFunction returns an attribute for the IRP minor function code.
func MinorFunction(minor uint32) attribute.KeyValue {
	return attribute.Int64(AttrMinorFunction, int64(minor))
}

// IOStatus returns an attribute for the NTSTATUS an IRP completed with.
func IOStatus(status uint32) attribute.KeyValue {
	return attribute.String(AttrIOStatus, fmt.Sprintf("0x%08x", status))
}

// Username returns an attribute for the NTLM username used to authenticate
// to the gateway.
func Username(name string) attribute.KeyValue {
	return attribute.String(AttrUsername, name)
}

// Domain returns an attribute for the NTLM domain.
func Domain(name string) attribute.KeyValue {
	return attribute.String(AttrDomain, name)
}

// AuthMethod returns an attribute for the authentication method used.
func AuthMethod(method string) attribute.KeyValue {
	return attribute.String(AttrAuth, method)
}

// StartRPCCallSpan starts a span bracketing one DCE/RPC call: from WriteCall
// sending the REQUEST PDU through the matching RESPONSE or FAULT.
func StartRPCCallSpan(ctx context.Context, callID uint32, opnum uint16, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{RPCCallID(callID), RPCOpnum(opnum)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanRPCCall, trace.WithAttributes(allAttrs...))
}

// StartIRPDispatchSpan starts a span for one IRP. pkg/rdpdr starts it when
// the IRP is handed to its device and ends it in the reply callback that
// Irp.Complete runs; Irp.Discard does not run that callback, so a
// discarded IRP's span is not ended.
func StartIRPDispatchSpan(ctx context.Context, deviceID uint32, deviceType string, major string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{DeviceID(deviceID), DeviceType(deviceType), MajorFunction(major)}
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanIRPDispatch, trace.WithAttributes(allAttrs...))
}

// StartTSGTransitionSpan starts a span for a single TSG tunnel/channel
// state-machine transition.
func StartTSGTransitionSpan(ctx context.Context, from, to string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := TSGTransition(from, to)
	allAttrs = append(allAttrs, attrs...)
	return StartSpan(ctx, SpanTSGStateTransition, trace.WithAttributes(allAttrs...))
}
