// Package tsg implements the TSGU RPC interface that rides inside the RPC
// channel pair opened by internal/rpch: TsProxyCreateTunnel through
// TsProxySendToServer, the Tunnel/Channel state machine, and the
// presentation-message/reauth side channel (spec.md §4.7).
//
// Grounded directly on libfreerdp/core/gateway/tsg.c: the request/response
// field layouts below (request write functions and response read
// functions) are ported byte-for-byte from TsProxyCreateTunnelWriteRequest,
// TsProxyCreateTunnelReadResponse, TsProxyAuthorizeTunnelWrite/ReadResponse,
// TsProxyMakeTunnelCallWrite/ReadResponse, TsProxyCreateChannelWrite/Read
// Response, TsProxyClose{Channel,Tunnel}Write/ReadResponse and
// TsProxySetupReceivePipeWriteRequest. dittofs has no RPC-over-HTTP gateway
// analogue, so this whole component's wire shape comes from the FreeRDP
// original rather than the teacher.
package tsg

import (
	"encoding/binary"
	"fmt"
	"unicode/utf16"

	"github.com/corerdp/rdpdr/internal/rpcwire"
	"github.com/corerdp/rdpdr/pkg/stream"
)

// TsProxyXxx opnums (spec.md §4.7 opnum table).
const (
	OpnumCreateTunnel     = 1
	OpnumAuthorizeTunnel  = 2
	OpnumMakeTunnelCall   = 3
	OpnumCreateChannel    = 4
	OpnumCloseChannel     = 5
	OpnumCloseTunnel      = 6
	OpnumSetupReceivePipe = 8
	OpnumSendToServer     = 9
)

// TSG_PACKET_TYPE_* packet ids, named TAG_PACKET_TYPE_HEADER..REAUTH in the
// FreeRDP original.
const (
	packetIDVersionCaps     = 0x00005643
	packetIDQuarRequest     = 0x00005152
	packetIDResponse        = 0x00005052
	packetIDQuarEncResponse = 0x00004552
	packetIDCapsResponse    = 0x00004350
	packetIDMsgRequest      = 0x00004752
	packetIDMessage         = 0x00004750
	packetIDReauth          = 0x00005250
)

const componentIDTransport = 0x5452
const capabilityTypeNAP = 0x00000001

// MakeTunnelCall procId values.
const (
	TunnelCallAsyncMsgRequest   uint32 = 1
	TunnelCancelAsyncMsgRequest uint32 = 2
)

// Gateway message kinds, keyed off the MakeTunnelCall response's message
// switch value (TSG_ASYNC_MESSAGE_CONSENT_MESSAGE/SERVICE_MESSAGE/REAUTH).
const (
	MessageTypeConsent = 1
	MessageTypeService = 2
	MessageTypeReauth  = 3
)

// ContextHandle is the 20-byte PCHANNEL/TUNNEL_CONTEXT_HANDLE_NOSERIALIZE_NR
// the gateway hands back from CreateTunnel/CreateChannel and every
// subsequent call echoes back to it.
type ContextHandle struct {
	ContextType uint32
	UUID        [16]byte
}

func (c ContextHandle) Encode(s *stream.Stream) {
	s.WriteU32LE(c.ContextType)
	s.WriteBytes(c.UUID[:])
}

func ParseContextHandle(s *stream.Stream) (ContextHandle, error) {
	var h ContextHandle
	t, err := s.ReadU32LE()
	if err != nil {
		return h, err
	}
	b, err := s.ReadBytes(16)
	if err != nil {
		return h, err
	}
	h.ContextType = t
	copy(h.UUID[:], b)
	return h, nil
}

func writeU32BE(s *stream.Stream, v uint32) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	s.WriteBytes(b[:])
}

func copyOut(s *stream.Stream) []byte {
	out := make([]byte, s.Len())
	copy(out, s.Bytes())
	return out
}

// padWrite zero-pads s's written length (s.Len()) to the next multiple of
// n bytes.
func padWrite(s *stream.Stream, n int) {
	rem := s.Len() % n
	if rem == 0 {
		return
	}
	s.WriteBytes(make([]byte, n-rem))
}

// EncodeCreateTunnelRequest builds the non-reauth TsProxyCreateTunnel
// request stub: one VERSIONCAPS packet advertising a single NAP capability.
func EncodeCreateTunnelRequest(capabilities uint32) []byte {
	s := stream.Take(64)
	defer s.Release()
	s.WriteU32LE(packetIDVersionCaps) // PacketId
	s.WriteU32LE(packetIDVersionCaps) // SwitchValue
	s.WriteU32LE(0x00020000)          // PacketVersionCapsPtr
	s.WriteU16LE(componentIDTransport)
	s.WriteU16LE(uint16(packetIDVersionCaps))
	s.WriteU32LE(0x00020004) // TsgCapsPtr
	s.WriteU32LE(1)          // NumCapabilities
	s.WriteU16LE(1)          // MajorVersion
	s.WriteU16LE(1)          // MinorVersion
	s.WriteU16LE(0)          // QuarantineCapabilities
	s.WriteU16LE(0)          // pad, 4-byte align
	s.WriteU32LE(1)          // MaxCount
	s.WriteU32LE(capabilityTypeNAP)
	s.WriteU32LE(capabilityTypeNAP)
	s.WriteU32LE(capabilities)
	return copyOut(s)
}

// EncodeReauthTunnelRequest builds the REAUTH-flavored CreateTunnel
// request, carrying the prior tunnel's 8-byte context before the nested
// VERSIONCAPS block (spec.md §4.7 "On reauth...").
func EncodeReauthTunnelRequest(priorContext uint64, capabilities uint32) []byte {
	s := stream.Take(96)
	defer s.Release()
	s.WriteU32LE(packetIDReauth) // PacketId
	s.WriteU32LE(packetIDReauth) // SwitchValue
	s.WriteU32LE(0x00020000)     // PacketReauthPtr
	s.WriteU32LE(0)
	s.WriteU64LE(priorContext)
	s.WriteU32LE(packetIDVersionCaps)
	s.WriteU32LE(packetIDVersionCaps)
	s.WriteU32LE(0x00020004) // PacketVersionCapsPtr
	s.WriteU16LE(componentIDTransport)
	s.WriteU16LE(uint16(packetIDVersionCaps))
	s.WriteU32LE(0x00020008) // TsgCapsPtr
	s.WriteU32LE(1)          // NumCapabilities
	s.WriteU16LE(1)          // MajorVersion
	s.WriteU16LE(1)          // MinorVersion
	s.WriteU16LE(0)          // QuarantineCapabilities
	s.WriteU16LE(0)          // pad
	s.WriteU32LE(1)          // MaxCount
	s.WriteU32LE(capabilityTypeNAP)
	s.WriteU32LE(capabilityTypeNAP)
	s.WriteU32LE(capabilities)
	return copyOut(s)
}

// GatewayMessage is a decoded CONSENT_MESSAGE/SERVICE_MESSAGE/REAUTH async
// payload, surfaced to the host's on_gateway_message callback.
type GatewayMessage struct {
	Kind               int
	IsDisplayMandatory bool
	IsConsentMandatory bool
	Text               string
	ReauthContext      uint64
}

func decodeUTF16(b []byte) string {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = binary.LittleEndian.Uint16(b[i*2:])
	}
	return string(utf16.Decode(units))
}

func parseGatewayMessage(s *stream.Stream, switchValue uint32) (GatewayMessage, error) {
	var msg GatewayMessage
	switch switchValue {
	case MessageTypeConsent, MessageTypeService:
		msg.Kind = int(switchValue)
		if _, err := s.ReadU32LE(); err != nil {
			return msg, err
		} // ConsentMessagePtr/ServiceMessagePtr
		disp, err := s.ReadU32LE()
		if err != nil {
			return msg, err
		}
		cons, err := s.ReadU32LE()
		if err != nil {
			return msg, err
		}
		msgBytes, err := s.ReadU32LE()
		if err != nil {
			return msg, err
		}
		ptr, err := s.ReadU32LE() // MsgPtr
		if err != nil {
			return msg, err
		}
		if ptr != 0 {
			if _, err := s.ReadU32LE(); err != nil {
				return msg, err
			} // MaxCount
			if _, err := s.ReadU32LE(); err != nil {
				return msg, err
			} // Offset
			actual, err := s.ReadU32LE() // ActualCount
			if err != nil {
				return msg, err
			}
			if msgBytes < actual*2 {
				return msg, fmt.Errorf("tsg: gateway message length mismatch")
			}
		}
		raw, err := s.ReadBytes(int(msgBytes))
		if err != nil {
			return msg, err
		}
		rpcwire.Align(s, 4)
		msg.IsDisplayMandatory = disp != 0
		msg.IsConsentMandatory = cons != 0
		msg.Text = decodeUTF16(raw)
		return msg, nil
	case MessageTypeReauth:
		msg.Kind = MessageTypeReauth
		rpcwire.Align(s, 8)
		v, err := s.ReadU64LE()
		if err != nil {
			return msg, err
		}
		msg.ReauthContext = v
		return msg, nil
	default:
		return msg, fmt.Errorf("tsg: unexpected message switch value %#x", switchValue)
	}
}

func skipCertChain(s *stream.Stream, certChainLen uint32) error {
	if certChainLen == 0 {
		_, err := s.ReadU32LE() // Ptr
		return err
	}
	if _, err := s.ReadU32LE(); err != nil {
		return err
	} // Ptr
	if _, err := s.ReadU32LE(); err != nil {
		return err
	} // MaxCount
	if _, err := s.ReadU32LE(); err != nil {
		return err
	} // Offset
	count, err := s.ReadU32LE() // ActualCount
	if err != nil {
		return err
	}
	if _, err := s.ReadBytes(int(count) * 2); err != nil {
		return err
	}
	rpcwire.Align(s, 4)
	return nil
}

// parseVersionCaps reads the TSG_PACKET_VERSIONCAPS/TSG_PACKET_CAPABILITIES
// pair embedded in both create-tunnel response variants and returns the
// single NAP capability bitmask.
func parseVersionCaps(s *stream.Stream) (uint32, error) {
	componentID, err := s.ReadU16LE()
	if err != nil {
		return 0, err
	}
	if componentID != componentIDTransport {
		return 0, fmt.Errorf("tsg: unexpected ComponentId %#04x", componentID)
	}
	if _, err := s.ReadU16LE(); err != nil {
		return 0, err
	} // PacketId
	if _, err := s.ReadU32LE(); err != nil {
		return 0, err
	} // TsgCapsPtr
	if _, err := s.ReadU32LE(); err != nil {
		return 0, err
	} // NumCapabilities
	if _, err := s.ReadU16LE(); err != nil {
		return 0, err
	} // MajorVersion
	if _, err := s.ReadU16LE(); err != nil {
		return 0, err
	} // MinorVersion
	if _, err := s.ReadU16LE(); err != nil {
		return 0, err
	} // QuarantineCapabilities
	rpcwire.Align(s, 4)
	if _, err := s.ReadU32LE(); err != nil {
		return 0, err
	} // MaxCount
	capType, err := s.ReadU32LE()
	if err != nil {
		return 0, err
	}
	if capType != capabilityTypeNAP {
		return 0, fmt.Errorf("tsg: unexpected CapabilityType %#x", capType)
	}
	switchVal, err := s.ReadU32LE()
	if err != nil {
		return 0, err
	}
	if switchVal != capabilityTypeNAP {
		return 0, fmt.Errorf("tsg: unexpected capability SwitchValue %#x", switchVal)
	}
	return s.ReadU32LE()
}

// CreateTunnelResponse is the decoded TsProxyCreateTunnel out-parameters.
type CreateTunnelResponse struct {
	Nonce         [16]byte
	Capabilities  uint32
	Message       *GatewayMessage
	TunnelContext ContextHandle
	TunnelID      uint32
}

func parseCapsResponseBody(s *stream.Stream) (CreateTunnelResponse, error) {
	var resp CreateTunnelResponse
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // PacketQuarResponsePtr
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // Flags
	certChainLen, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // CertChainDataPtr
	nonce, err := s.ReadBytes(16)
	if err != nil {
		return resp, err
	}
	copy(resp.Nonce[:], nonce)
	versionCapsPtr, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}

	var isMessagePresent, messageSwitch uint32
	if versionCapsPtr == 0x0002000C || versionCapsPtr == 0x00020008 {
		if _, err := s.ReadU32LE(); err != nil {
			return resp, err
		} // MsgId
		if _, err := s.ReadU32LE(); err != nil {
			return resp, err
		} // MsgType
		if isMessagePresent, err = s.ReadU32LE(); err != nil {
			return resp, err
		}
		if messageSwitch, err = s.ReadU32LE(); err != nil {
			return resp, err
		}
	}

	if err := skipCertChain(s, certChainLen); err != nil {
		return resp, err
	}
	caps, err := parseVersionCaps(s)
	if err != nil {
		return resp, err
	}
	resp.Capabilities = caps

	if isMessagePresent != 0 {
		msg, err := parseGatewayMessage(s, messageSwitch)
		if err != nil {
			return resp, err
		}
		resp.Message = &msg
	}

	rpcwire.Align(s, 4)
	ctx, err := ParseContextHandle(s)
	if err != nil {
		return resp, err
	}
	tunnelID, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	resp.TunnelContext = ctx
	resp.TunnelID = tunnelID
	return resp, nil
}

func parseQuarEncResponseBody(s *stream.Stream) (CreateTunnelResponse, error) {
	var resp CreateTunnelResponse
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // PacketQuarResponsePtr
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // Flags
	certChainLen, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // CertChainDataPtr
	nonce, err := s.ReadBytes(16)
	if err != nil {
		return resp, err
	}
	copy(resp.Nonce[:], nonce)

	if err := skipCertChain(s, certChainLen); err != nil {
		return resp, err
	}
	caps, err := parseVersionCaps(s)
	if err != nil {
		return resp, err
	}
	resp.Capabilities = caps

	rpcwire.Align(s, 4)
	ctx, err := ParseContextHandle(s)
	if err != nil {
		return resp, err
	}
	tunnelID, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	resp.TunnelContext = ctx
	resp.TunnelID = tunnelID
	return resp, nil
}

// ParseCreateTunnelResponse decodes either CAPS_RESPONSE or QUARENC_RESPONSE
// shaped TsProxyCreateTunnel out-parameters into a 20-byte tunnel context
// plus whatever consent/service message rode along with it.
func ParseCreateTunnelResponse(s *stream.Stream) (CreateTunnelResponse, error) {
	var resp CreateTunnelResponse
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // PacketPtr
	packetID, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	switchValue, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	if packetID != switchValue {
		return resp, fmt.Errorf("tsg: create tunnel response switch mismatch, packetId=%#x switch=%#x", packetID, switchValue)
	}

	switch packetID {
	case packetIDCapsResponse:
		return parseCapsResponseBody(s)
	case packetIDQuarEncResponse:
		return parseQuarEncResponseBody(s)
	default:
		return resp, fmt.Errorf("tsg: unexpected create tunnel response packet id %#x", packetID)
	}
}

// EncodeAuthorizeTunnelRequest builds the TsProxyAuthorizeTunnel request
// stub: the tunnel context, flags=0, the client's machine name as an NDR
// conformant-varying string, and an empty data array.
func EncodeAuthorizeTunnelRequest(ctx ContextHandle, machineName string) []byte {
	units := utf16.Encode([]rune(machineName))
	units = append(units, 0)
	count := uint32(len(units))

	s := stream.Take(64 + int(count)*2)
	defer s.Release()
	ctx.Encode(s)
	s.WriteU32LE(packetIDQuarRequest) // PacketId
	s.WriteU32LE(packetIDQuarRequest) // SwitchValue
	s.WriteU32LE(0x00020000)          // PacketQuarRequestPtr
	s.WriteU32LE(0)                   // Flags
	s.WriteU32LE(0x00020004)          // MachineNamePtr
	s.WriteU32LE(count)               // NameLength
	s.WriteU32LE(0x00020008)          // DataPtr
	s.WriteU32LE(0)                   // DataLength
	s.WriteU32LE(count)               // MaxCount
	s.WriteU32LE(0)                   // Offset
	s.WriteU32LE(count)               // ActualCount
	for _, u := range units {
		s.WriteU16LE(u)
	}
	padWrite(s, 4)
	s.WriteU32LE(0) // empty Data array MaxCount
	return copyOut(s)
}

// AuthorizeRedirectFlags mirrors the 8 signed-32-bit booleans in the
// TsProxyAuthorizeTunnel response (spec.md §4.7).
type AuthorizeRedirectFlags struct {
	EnableAll         bool
	DisableAll        bool
	DriveDisabled     bool
	PrinterDisabled   bool
	PortDisabled      bool
	ClipboardDisabled bool
	PnpDisabled       bool
}

type AuthorizeTunnelResponse struct {
	Flags              AuthorizeRedirectFlags
	IdleTimeoutSeconds uint32
	HasIdleTimeout     bool
}

func ParseAuthorizeTunnelResponse(s *stream.Stream) (AuthorizeTunnelResponse, error) {
	var resp AuthorizeTunnelResponse
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // PacketPtr
	packetID, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	switchValue, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	if packetID != packetIDResponse || switchValue != packetIDResponse {
		return resp, fmt.Errorf("tsg: unexpected authorize tunnel packet id %#x", packetID)
	}
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // PacketResponsePtr
	flags, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	if flags != packetIDQuarRequest {
		return resp, fmt.Errorf("tsg: unexpected authorize tunnel response flags %#x", flags)
	}
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // Reserved
	if _, err := s.ReadU32LE(); err != nil {
		return resp, err
	} // ResponseDataPtr
	dataLen, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}

	var flagVals [8]uint32
	for i := range flagVals {
		v, err := s.ReadU32LE()
		if err != nil {
			return resp, err
		}
		flagVals[i] = v
	}
	resp.Flags = AuthorizeRedirectFlags{
		EnableAll:         flagVals[0] != 0,
		DisableAll:        flagVals[1] != 0,
		DriveDisabled:     flagVals[2] != 0,
		PrinterDisabled:   flagVals[3] != 0,
		PortDisabled:      flagVals[4] != 0,
		ClipboardDisabled: flagVals[6] != 0,
		PnpDisabled:       flagVals[7] != 0,
	}

	sizeValue, err := s.ReadU32LE()
	if err != nil {
		return resp, err
	}
	if sizeValue != dataLen {
		return resp, fmt.Errorf("tsg: authorize tunnel response size mismatch, have %d want %d", sizeValue, dataLen)
	}
	switch {
	case dataLen == 4:
		timeout, err := s.ReadU32LE()
		if err != nil {
			return resp, err
		}
		resp.IdleTimeoutSeconds = timeout
		resp.HasIdleTimeout = true
	case dataLen > 0:
		if _, err := s.ReadBytes(int(dataLen)); err != nil {
			return resp, err
		}
	}
	return resp, nil
}

// EncodeMakeTunnelCallRequest builds the TsProxyMakeTunnelCall request stub
// used both to arm and to cancel the async message channel.
func EncodeMakeTunnelCallRequest(ctx ContextHandle, procID uint32) []byte {
	s := stream.Take(40)
	defer s.Release()
	ctx.Encode(s)
	s.WriteU32LE(procID)
	s.WriteU32LE(packetIDMsgRequest) // PacketId
	s.WriteU32LE(packetIDMsgRequest) // SwitchValue
	s.WriteU32LE(0x00020000)         // PacketMsgRequestPtr
	s.WriteU32LE(1)                  // MaxMessagesPerBatch
	return copyOut(s)
}

// ParseMakeTunnelCallResponse decodes one asynchronously-delivered
// TSG_PACKET_MSG_RESPONSE, returning nil if the gateway reported no message
// pending (IsMsgPresent == 0).
func ParseMakeTunnelCallResponse(raw []byte) (*GatewayMessage, error) {
	s := stream.Take(len(raw))
	defer s.Release()
	s.WriteBytes(raw)
	s.Seek(0)

	if _, err := s.ReadU32LE(); err != nil {
		return nil, err
	} // PacketPtr
	packetID, err := s.ReadU32LE()
	if err != nil {
		return nil, err
	}
	switchValue, err := s.ReadU32LE()
	if err != nil {
		return nil, err
	}
	if packetID != packetIDMessage || switchValue != packetIDMessage {
		return nil, fmt.Errorf("tsg: unexpected make tunnel call packet id %#x", packetID)
	}
	if _, err := s.ReadU32LE(); err != nil {
		return nil, err
	} // PacketMsgResponsePtr
	if _, err := s.ReadU32LE(); err != nil {
		return nil, err
	} // MsgId
	if _, err := s.ReadU32LE(); err != nil {
		return nil, err
	} // MsgType
	present, err := s.ReadU32LE()
	if err != nil {
		return nil, err
	}
	if present == 0 {
		return nil, nil
	}
	msgSwitch, err := s.ReadU32LE()
	if err != nil {
		return nil, err
	}
	msg, err := parseGatewayMessage(s, msgSwitch)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// EncodeCreateChannelRequest builds the TsProxyCreateChannel request stub
// targeting the single RDP resource (hostname:port) this tunnel proxies.
func EncodeCreateChannelRequest(ctx ContextHandle, hostname string, port uint16) []byte {
	units := utf16.Encode([]rune(hostname))
	units = append(units, 0)
	count := uint32(len(units))

	s := stream.Take(64 + int(count)*2)
	defer s.Release()
	ctx.Encode(s)
	s.WriteU32LE(0x00020000) // ResourceNamePtr
	s.WriteU32LE(1)          // NumResourceNames
	s.WriteU32LE(0)          // AlternateResourceNamesPtr
	s.WriteU16LE(0)          // NumAlternateResourceNames
	s.WriteU16LE(0)          // pad
	s.WriteU16LE(3)          // ProtocolId (RDP)
	s.WriteU16LE(port)
	s.WriteU32LE(1)          // NumResourceNames (TSENDPOINTINFO array header)
	s.WriteU32LE(0x00020004) // ResourceNamePtr
	s.WriteU32LE(count)      // MaxCount
	s.WriteU32LE(0)          // Offset
	s.WriteU32LE(count)      // ActualCount
	for _, u := range units {
		s.WriteU16LE(u)
	}
	return copyOut(s)
}

// ParseCreateChannelResponse decodes the 20-byte channel context and
// channel id TsProxyCreateChannel returns.
func ParseCreateChannelResponse(s *stream.Stream) (ContextHandle, uint32, error) {
	ctx, err := ParseContextHandle(s)
	if err != nil {
		return ctx, 0, err
	}
	channelID, err := s.ReadU32LE()
	if err != nil {
		return ctx, 0, err
	}
	if _, err := s.ReadU32LE(); err != nil {
		return ctx, 0, err
	} // ReturnValue
	return ctx, channelID, nil
}

// EncodeContextOnlyRequest builds the bare 20-byte context-handle request
// shared by TsProxyCloseChannel, TsProxyCloseTunnel and
// TsProxySetupReceivePipe.
func EncodeContextOnlyRequest(ctx ContextHandle) []byte {
	s := stream.Take(20)
	defer s.Release()
	ctx.Encode(s)
	return copyOut(s)
}

// ParseContextOnlyResponse decodes the echoed context handle that
// TsProxyCloseChannel/TsProxyCloseTunnel return.
func ParseContextOnlyResponse(s *stream.Stream) (ContextHandle, error) {
	ctx, err := ParseContextHandle(s)
	if err != nil {
		return ctx, err
	}
	if _, err := s.ReadU32LE(); err != nil {
		return ctx, err
	} // ReturnValue
	return ctx, nil
}

// EncodeSendToServerRequest builds a single-buffer TsProxySendToServer
// request. totalDataBytes/numBuffers/bufferLength are big-endian on the
// wire (spec.md §4.7); this module only ever ships one buffer per call,
// unlike the original's up-to-3-buffer coalescing, since the RPC client's
// own fragmentation already chunks large writes.
func EncodeSendToServerRequest(ctx ContextHandle, data []byte) []byte {
	s := stream.Take(28 + len(data))
	defer s.Release()
	ctx.Encode(s)
	writeU32BE(s, uint32(len(data))) // totalDataBytes
	writeU32BE(s, 1)                 // numBuffers
	writeU32BE(s, uint32(len(data))) // buffer1Length
	s.WriteBytes(data)
	return copyOut(s)
}
