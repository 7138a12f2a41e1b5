package tsg

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/corerdp/rdpdr/pkg/stream"
)

func TestContextHandleRoundTrip(t *testing.T) {
	want := ContextHandle{ContextType: 0, UUID: [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}}
	s := stream.Take(20)
	defer s.Release()
	want.Encode(s)
	s.Seek(0)

	got, err := ParseContextHandle(s)
	if err != nil {
		t.Fatalf("ParseContextHandle: %v", err)
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func writeVersionCaps(s *stream.Stream, capabilities uint32) {
	s.WriteU16LE(componentIDTransport)
	s.WriteU16LE(uint16(packetIDVersionCaps))
	s.WriteU32LE(0x00020004) // TsgCapsPtr
	s.WriteU32LE(1)          // NumCapabilities
	s.WriteU16LE(1)          // MajorVersion
	s.WriteU16LE(1)          // MinorVersion
	s.WriteU16LE(0)          // QuarantineCapabilities
	s.WriteU16LE(0)          // pad
	s.WriteU32LE(1)          // MaxCount
	s.WriteU32LE(capabilityTypeNAP)
	s.WriteU32LE(capabilityTypeNAP)
	s.WriteU32LE(capabilities)
}

func TestParseCreateTunnelResponseQuarEnc(t *testing.T) {
	s := stream.Take(128)
	defer s.Release()
	s.WriteU32LE(0x00020000)          // PacketPtr
	s.WriteU32LE(packetIDQuarEncResponse)
	s.WriteU32LE(packetIDQuarEncResponse)
	s.WriteU32LE(0x00020004) // PacketQuarResponsePtr
	s.WriteU32LE(0)          // Flags
	s.WriteU32LE(0)          // CertChainLen
	s.WriteU32LE(0)          // CertChainDataPtr
	nonce := [16]byte{9, 9, 9, 9}
	s.WriteBytes(nonce[:])
	s.WriteU32LE(0x00020008) // Ptr (no cert chain)
	writeVersionCaps(s, 0xAABBCCDD)
	padWrite(s, 4)
	ctx := ContextHandle{ContextType: 1, UUID: [16]byte{1}}
	ctx.Encode(s)
	s.WriteU32LE(77) // TunnelID

	s.Seek(0)
	resp, err := ParseCreateTunnelResponse(s)
	if err != nil {
		t.Fatalf("ParseCreateTunnelResponse: %v", err)
	}
	if resp.Capabilities != 0xAABBCCDD {
		t.Fatalf("Capabilities = %#x, want 0xAABBCCDD", resp.Capabilities)
	}
	if resp.TunnelID != 77 {
		t.Fatalf("TunnelID = %d, want 77", resp.TunnelID)
	}
	if resp.TunnelContext != ctx {
		t.Fatalf("TunnelContext = %+v, want %+v", resp.TunnelContext, ctx)
	}
	if resp.Message != nil {
		t.Fatalf("expected no message in QUARENC_RESPONSE, got %+v", resp.Message)
	}
}

func writeConsentMessage(s *stream.Stream, text string) {
	units := utf16.Encode([]rune(text))
	msgBytes := uint32(len(units) * 2)
	s.WriteU32LE(0x00020010) // ConsentMessagePtr
	s.WriteU32LE(1)          // IsDisplayMandatory
	s.WriteU32LE(0)          // IsConsentMandatory
	s.WriteU32LE(msgBytes)
	s.WriteU32LE(0x00020014) // MsgPtr
	s.WriteU32LE(uint32(len(units)))
	s.WriteU32LE(0)
	s.WriteU32LE(uint32(len(units)))
	for _, u := range units {
		s.WriteU16LE(u)
	}
	padWrite(s, 4)
}

func TestParseCreateTunnelResponseCapsWithConsentMessage(t *testing.T) {
	s := stream.Take(256)
	defer s.Release()
	s.WriteU32LE(0x00020000)
	s.WriteU32LE(packetIDCapsResponse)
	s.WriteU32LE(packetIDCapsResponse)
	s.WriteU32LE(0x00020004) // PacketQuarResponsePtr
	s.WriteU32LE(0)          // Flags
	s.WriteU32LE(0)          // CertChainLen
	s.WriteU32LE(0)          // CertChainDataPtr
	var nonce [16]byte
	s.WriteBytes(nonce[:])
	s.WriteU32LE(0x0002000C) // VersionCapsPtr signals an embedded message
	s.WriteU32LE(1)          // MsgId
	s.WriteU32LE(MessageTypeConsent)
	s.WriteU32LE(1)                  // IsMessagePresent
	s.WriteU32LE(MessageTypeConsent) // MessageSwitchValue
	s.WriteU32LE(0x00020018)         // cert-chain-absent Ptr
	writeVersionCaps(s, 1)
	writeConsentMessage(s, "please confirm")
	padWrite(s, 4)
	ctx := ContextHandle{ContextType: 0, UUID: [16]byte{2}}
	ctx.Encode(s)
	s.WriteU32LE(5) // TunnelID

	s.Seek(0)
	resp, err := ParseCreateTunnelResponse(s)
	if err != nil {
		t.Fatalf("ParseCreateTunnelResponse: %v", err)
	}
	if resp.Message == nil {
		t.Fatalf("expected a consent message")
	}
	if resp.Message.Kind != MessageTypeConsent {
		t.Fatalf("Kind = %d, want MessageTypeConsent", resp.Message.Kind)
	}
	if resp.Message.Text != "please confirm" {
		t.Fatalf("Text = %q, want %q", resp.Message.Text, "please confirm")
	}
	if !resp.Message.IsDisplayMandatory {
		t.Fatalf("expected IsDisplayMandatory")
	}
	if resp.TunnelID != 5 {
		t.Fatalf("TunnelID = %d, want 5", resp.TunnelID)
	}
}

func TestParseAuthorizeTunnelResponseWithIdleTimeout(t *testing.T) {
	s := stream.Take(96)
	defer s.Release()
	s.WriteU32LE(0x00020000)
	s.WriteU32LE(packetIDResponse)
	s.WriteU32LE(packetIDResponse)
	s.WriteU32LE(0x00020004) // PacketResponsePtr
	s.WriteU32LE(packetIDQuarRequest)
	s.WriteU32LE(0) // Reserved
	s.WriteU32LE(0) // ResponseDataPtr
	s.WriteU32LE(4) // ResponseDataLength
	vals := []int32{1, 0, 0, 0, 0, 0, 1, 0}
	for _, v := range vals {
		s.WriteU32LE(uint32(v))
	}
	s.WriteU32LE(4)  // SizeValue, must equal ResponseDataLength
	s.WriteU32LE(30) // idle timeout seconds

	s.Seek(0)
	resp, err := ParseAuthorizeTunnelResponse(s)
	if err != nil {
		t.Fatalf("ParseAuthorizeTunnelResponse: %v", err)
	}
	if !resp.HasIdleTimeout || resp.IdleTimeoutSeconds != 30 {
		t.Fatalf("idle timeout = %+v", resp)
	}
	if !resp.Flags.EnableAll {
		t.Fatalf("expected EnableAll redirection flag")
	}
	if !resp.Flags.ClipboardDisabled {
		t.Fatalf("expected ClipboardDisabled redirection flag")
	}
}

func TestParseCreateChannelResponse(t *testing.T) {
	want := ContextHandle{ContextType: 0, UUID: [16]byte{3}}
	s := stream.Take(32)
	defer s.Release()
	want.Encode(s)
	s.WriteU32LE(42) // ChannelId
	s.WriteU32LE(0)  // ReturnValue
	s.Seek(0)

	ctx, channelID, err := ParseCreateChannelResponse(s)
	if err != nil {
		t.Fatalf("ParseCreateChannelResponse: %v", err)
	}
	if ctx != want {
		t.Fatalf("ctx = %+v, want %+v", ctx, want)
	}
	if channelID != 42 {
		t.Fatalf("channelID = %d, want 42", channelID)
	}
}

func TestEncodeSendToServerRequestUsesBigEndianLengths(t *testing.T) {
	ctx := ContextHandle{ContextType: 1}
	data := []byte("hello world")
	raw := EncodeSendToServerRequest(ctx, data)

	if len(raw) != 20+4+4+4+len(data) {
		t.Fatalf("len(raw) = %d, want %d", len(raw), 20+4+4+4+len(data))
	}
	totalDataBytes := binary.BigEndian.Uint32(raw[20:24])
	numBuffers := binary.BigEndian.Uint32(raw[24:28])
	bufLen := binary.BigEndian.Uint32(raw[28:32])
	if totalDataBytes != uint32(len(data)) {
		t.Fatalf("totalDataBytes = %d, want %d", totalDataBytes, len(data))
	}
	if numBuffers != 1 {
		t.Fatalf("numBuffers = %d, want 1", numBuffers)
	}
	if bufLen != uint32(len(data)) {
		t.Fatalf("bufLen = %d, want %d", bufLen, len(data))
	}
	if string(raw[32:]) != string(data) {
		t.Fatalf("payload = %q, want %q", raw[32:], data)
	}
}

func TestParseMakeTunnelCallResponseReauth(t *testing.T) {
	s := stream.Take(64)
	defer s.Release()
	s.WriteU32LE(0x00020000)
	s.WriteU32LE(packetIDMessage)
	s.WriteU32LE(packetIDMessage)
	s.WriteU32LE(0x00020004) // PacketMsgResponsePtr
	s.WriteU32LE(1)          // MsgId
	s.WriteU32LE(MessageTypeReauth)
	s.WriteU32LE(1) // IsMsgPresent
	s.WriteU32LE(MessageTypeReauth)
	padWrite(s, 8)
	s.WriteU64LE(0xDEADBEEFCAFEBABE)

	s.Seek(0)
	msg, err := ParseMakeTunnelCallResponse(s.Bytes())
	if err != nil {
		t.Fatalf("ParseMakeTunnelCallResponse: %v", err)
	}
	if msg == nil {
		t.Fatalf("expected a message")
	}
	if msg.Kind != MessageTypeReauth {
		t.Fatalf("Kind = %d, want MessageTypeReauth", msg.Kind)
	}
	if msg.ReauthContext != 0xDEADBEEFCAFEBABE {
		t.Fatalf("ReauthContext = %#x, want 0xDEADBEEFCAFEBABE", msg.ReauthContext)
	}
}

func TestParseMakeTunnelCallResponseNoMessage(t *testing.T) {
	s := stream.Take(32)
	defer s.Release()
	s.WriteU32LE(0x00020000)
	s.WriteU32LE(packetIDMessage)
	s.WriteU32LE(packetIDMessage)
	s.WriteU32LE(0x00020004)
	s.WriteU32LE(0)
	s.WriteU32LE(0)
	s.WriteU32LE(0) // IsMsgPresent = 0

	msg, err := ParseMakeTunnelCallResponse(s.Bytes())
	if err != nil {
		t.Fatalf("ParseMakeTunnelCallResponse: %v", err)
	}
	if msg != nil {
		t.Fatalf("expected no message, got %+v", msg)
	}
}
