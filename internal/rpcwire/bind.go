package rpcwire

import "github.com/corerdp/rdpdr/pkg/stream"

// PresentationContext is a single Bind PDU context entry: one abstract
// syntax (the interface, TSGU here) offered against one or more transfer
// syntaxes (NDR here, exactly one).
type PresentationContext struct {
	ContextID       uint16
	AbstractSyntax  UUID
	AbstractVersion uint32
	TransferSyntax  UUID
	TransferVersion uint32
}

// BindRequest is the client's PTYPE_BIND PDU. spec.md §4.6 "Bind sequence":
// one presentation context, abstract TSGU v3.1, transfer NDR v2. When
// AuthToken is set, it is carried as an unsigned sec_trailer (NTLM type 1
// Negotiate message) following [MS-RPCE] 2.2.2.11.
type BindRequest struct {
	CallID       uint32
	MaxXmitFrag  uint16
	MaxRecvFrag  uint16
	AssocGroupID uint32
	Contexts     []PresentationContext
	AuthToken    []byte
}

// Encode serializes the Bind PDU into a fresh Stream.
func (b BindRequest) Encode() *stream.Stream {
	bodySize := 8 + 4 + len(b.Contexts)*(2+1+1+16+4+16+4)
	fragLen := HeaderSize + bodySize
	authLen := uint16(0)
	var padLen int

	if b.AuthToken != nil {
		alignedEnd := alignUp(fragLen, 4)
		padLen = alignedEnd - fragLen
		authLen = uint16(len(b.AuthToken))
		fragLen = alignedEnd + SecTrailerSize + len(b.AuthToken)
	}

	s := stream.Take(fragLen)
	h := NewHeader(PTypeBind, PfcFirstFrag|PfcLastFrag, fragLen, authLen, b.CallID)
	h.Encode(s)
	s.WriteU16LE(b.MaxXmitFrag)
	s.WriteU16LE(b.MaxRecvFrag)
	s.WriteU32LE(b.AssocGroupID)
	s.WriteU8(uint8(len(b.Contexts)))
	s.WriteU8(0) // pad
	s.WriteU16LE(0)
	for _, ctx := range b.Contexts {
		s.WriteU16LE(ctx.ContextID)
		s.WriteU8(1) // num_transfer_syntaxes
		s.WriteU8(0) // pad
		s.WriteBytes(ctx.AbstractSyntax[:])
		s.WriteU32LE(ctx.AbstractVersion)
		s.WriteBytes(ctx.TransferSyntax[:])
		s.WriteU32LE(ctx.TransferVersion)
	}

	if b.AuthToken != nil {
		for i := 0; i < padLen; i++ {
			s.WriteU8(0)
		}
		trailer := SecTrailer{AuthType: AuthTypeWinNT, AuthLevel: AuthLevelPktIntegrity, AuthPadLen: uint8(padLen)}
		trailer.Encode(s)
		s.WriteBytes(b.AuthToken)
	}
	return s
}

// DefaultBindRequest builds the single-context TSGU/NDR bind this module
// always sends (spec.md §4.6).
func DefaultBindRequest(callID uint32, maxFrag uint16) BindRequest {
	return BindRequest{
		CallID:      callID,
		MaxXmitFrag: maxFrag,
		MaxRecvFrag: maxFrag,
		Contexts: []PresentationContext{{
			ContextID:       0,
			AbstractSyntax:  TSGUInterfaceUUID,
			AbstractVersion: TSGUInterfaceVersion,
			TransferSyntax:  NDRTransferSyntaxUUID,
			TransferVersion: NDRTransferSyntaxVersion,
		}},
	}
}

// ContextResult is one acceptance/rejection entry in a BindAck PDU.
type ContextResult struct {
	Result          uint16 // 0 = acceptance
	Reason          uint16
	TransferSyntax  UUID
	TransferVersion uint32
}

// BindAck is the server's PTYPE_BIND_ACK reply. Carries an optional
// sec_trailer with the NTLM type-2 challenge (spec.md §4.6).
type BindAck struct {
	Header       Header
	MaxXmitFrag  uint16
	MaxRecvFrag  uint16
	AssocGroupID uint32
	SecAddr      string
	Results      []ContextResult
	SecTrailer   *SecTrailer
	AuthToken    []byte
}

// ParseBindAck decodes a BindAck PDU, including its optional auth trailer.
func ParseBindAck(s *stream.Stream) (BindAck, error) {
	h, err := ParseHeader(s)
	if err != nil {
		return BindAck{}, err
	}
	if h.PType != PTypeBindAck {
		return BindAck{}, ErrTruncated
	}
	ack := BindAck{Header: h}
	ack.MaxXmitFrag, _ = s.ReadU16LE()
	ack.MaxRecvFrag, _ = s.ReadU16LE()
	ack.AssocGroupID, _ = s.ReadU32LE()

	secAddrLen, err := s.ReadU16LE()
	if err != nil {
		return BindAck{}, err
	}
	secAddr, err := s.ReadBytes(int(secAddrLen))
	if err != nil {
		return BindAck{}, err
	}
	if n := len(secAddr); n > 0 && secAddr[n-1] == 0 {
		secAddr = secAddr[:n-1]
	}
	ack.SecAddr = string(secAddr)
	Align(s, 4)

	numResults, err := s.ReadU8()
	if err != nil {
		return BindAck{}, err
	}
	if _, err := s.ReadBytes(3); err != nil { // reserved
		return BindAck{}, err
	}
	for i := uint8(0); i < numResults; i++ {
		var r ContextResult
		r.Result, _ = s.ReadU16LE()
		r.Reason, _ = s.ReadU16LE()
		ts, err := s.ReadBytes(16)
		if err != nil {
			return BindAck{}, err
		}
		copy(r.TransferSyntax[:], ts)
		r.TransferVersion, _ = s.ReadU32LE()
		ack.Results = append(ack.Results, r)
	}

	if h.AuthLength > 0 {
		off, err := AuthTrailerOffset(h.FragLength, h.AuthLength)
		if err != nil {
			return BindAck{}, err
		}
		if err := s.Seek(off); err != nil {
			return BindAck{}, err
		}
		trailer, err := ParseSecTrailer(s)
		if err != nil {
			return BindAck{}, err
		}
		ack.SecTrailer = &trailer
		token, err := s.ReadBytes(int(h.AuthLength))
		if err != nil {
			return BindAck{}, err
		}
		ack.AuthToken = token
	}

	return ack, nil
}

// Auth3 is the client's PTYPE_RPC_AUTH_3 PDU carrying the NTLM type-3
// (authenticate) message in its sec_trailer.
type Auth3 struct {
	CallID    uint32
	AuthToken []byte
}

func (a Auth3) Encode() *stream.Stream {
	bodySize := 4 // pad/reserved
	trailerSize := SecTrailerSize + len(a.AuthToken)
	fragLen := HeaderSize + bodySize + trailerSize
	s := stream.Take(fragLen)
	h := NewHeader(PTypeRPCAuth3, PfcFirstFrag|PfcLastFrag, fragLen, uint16(len(a.AuthToken)), a.CallID)
	h.Encode(s)
	s.WriteU32LE(0) // pad
	trailer := SecTrailer{AuthType: AuthTypeWinNT, AuthLevel: AuthLevelPktIntegrity}
	trailer.Encode(s)
	s.WriteBytes(a.AuthToken)
	return s
}
