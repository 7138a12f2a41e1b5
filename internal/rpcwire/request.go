package rpcwire

import "github.com/corerdp/rdpdr/pkg/stream"

// Request is a PTYPE_REQUEST PDU: an RPC call's stub data plus, when
// signed, a sec_trailer and auth token (spec.md §4.6 "Outbound").
type Request struct {
	Header     Header
	AllocHint  uint32
	ContextID  uint16
	OpNum      uint16
	StubData   []byte
	SecTrailer *SecTrailer
	AuthToken  []byte
}

const requestPrefixSize = 8 // alloc_hint(4) + context_id(2) + opnum(2)

// Encode serializes a Request PDU. When SecTrailer is set, the stub is
// padded to an 8-byte boundary, then the trailer and auth token follow,
// aligned to 4 bytes, matching [MS-RPCE] 2.2.2.11.
func (r Request) Encode() *stream.Stream {
	stubLen := len(r.StubData)
	bodyLen := requestPrefixSize + stubLen
	fragLen := HeaderSize + bodyLen
	authLen := uint16(0)

	var padLen int
	if r.SecTrailer != nil {
		alignedStubEnd := alignUp(HeaderSize+requestPrefixSize+stubLen, 8)
		padLen = alignedStubEnd - (HeaderSize + requestPrefixSize + stubLen)
		authLen = uint16(len(r.AuthToken))
		fragLen = alignedStubEnd + SecTrailerSize + len(r.AuthToken)
	}

	s := stream.Take(fragLen)
	h := NewHeader(PTypeRequest, PfcFirstFrag|PfcLastFrag, fragLen, authLen, r.Header.CallID)
	h.Encode(s)
	s.WriteU32LE(r.AllocHint)
	s.WriteU16LE(r.ContextID)
	s.WriteU16LE(r.OpNum)
	s.WriteBytes(r.StubData)

	if r.SecTrailer != nil {
		for i := 0; i < padLen; i++ {
			s.WriteU8(0)
		}
		trailer := *r.SecTrailer
		trailer.AuthPadLen = uint8(padLen)
		trailer.Encode(s)
		s.WriteBytes(r.AuthToken)
	}

	return s
}

// ParseRequest decodes the common prefix of a Request PDU; StubData aliases
// the input buffer and excludes any auth trailer (guarded against the
// frag_length-auth_length-8 underflow per spec.md §9).
func ParseRequest(h Header, s *stream.Stream) (Request, error) {
	req := Request{Header: h}
	var err error
	req.AllocHint, err = s.ReadU32LE()
	if err != nil {
		return Request{}, err
	}
	req.ContextID, _ = s.ReadU16LE()
	req.OpNum, _ = s.ReadU16LE()

	var authPadLen uint8
	var trailerOff int
	if h.AuthLength > 0 {
		off, err := AuthTrailerOffset(h.FragLength, h.AuthLength)
		if err != nil {
			return Request{}, err
		}
		trailerOff = off
		if err := s.Seek(off); err != nil {
			return Request{}, err
		}
		trailer, err := ParseSecTrailer(s)
		if err != nil {
			return Request{}, err
		}
		req.SecTrailer = &trailer
		authPadLen = trailer.AuthPadLen
	}

	start, end, err := StubBounds(h, requestPrefixSize, int(authPadLen))
	if err != nil {
		return Request{}, err
	}
	if err := s.Seek(start); err != nil {
		return Request{}, err
	}
	stub, err := s.ReadBytes(end - start)
	if err != nil {
		return Request{}, err
	}
	req.StubData = stub

	if req.SecTrailer != nil {
		if err := s.Seek(trailerOff + SecTrailerSize); err != nil {
			return Request{}, err
		}
		token, err := s.ReadBytes(int(h.AuthLength))
		if err != nil {
			return Request{}, err
		}
		req.AuthToken = token
	}

	return req, nil
}

// Response is a PTYPE_RESPONSE PDU (spec.md §4.6 "Inbound").
type Response struct {
	Header      Header
	AllocHint   uint32
	ContextID   uint16
	CancelCount uint8
	StubData    []byte
	SecTrailer  *SecTrailer
	AuthToken   []byte
}

const responsePrefixSize = 8 // alloc_hint(4) + context_id(2) + cancel_count(1) + reserved(1)

func ParseResponse(h Header, s *stream.Stream) (Response, error) {
	resp := Response{Header: h}
	var err error
	resp.AllocHint, err = s.ReadU32LE()
	if err != nil {
		return Response{}, err
	}
	resp.ContextID, _ = s.ReadU16LE()
	resp.CancelCount, _ = s.ReadU8()
	if _, err := s.ReadU8(); err != nil { // reserved
		return Response{}, err
	}

	var authPadLen uint8
	var trailerOff int
	if h.AuthLength > 0 {
		off, err := AuthTrailerOffset(h.FragLength, h.AuthLength)
		if err != nil {
			return Response{}, err
		}
		trailerOff = off
		if err := s.Seek(off); err != nil {
			return Response{}, err
		}
		trailer, err := ParseSecTrailer(s)
		if err != nil {
			return Response{}, err
		}
		resp.SecTrailer = &trailer
		authPadLen = trailer.AuthPadLen
	}

	start, end, err := StubBounds(h, responsePrefixSize, int(authPadLen))
	if err != nil {
		return Response{}, err
	}
	if err := s.Seek(start); err != nil {
		return Response{}, err
	}
	stub, err := s.ReadBytes(end - start)
	if err != nil {
		return Response{}, err
	}
	resp.StubData = stub

	if resp.SecTrailer != nil {
		if err := s.Seek(trailerOff + SecTrailerSize); err != nil {
			return Response{}, err
		}
		token, err := s.ReadBytes(int(h.AuthLength))
		if err != nil {
			return Response{}, err
		}
		resp.AuthToken = token
	}

	return resp, nil
}

// Encode serializes a Response PDU (used by tests/loopback fakes; the
// gateway is the normal producer of Response PDUs on the wire).
func (r Response) Encode(callID uint32) *stream.Stream {
	fragLen := HeaderSize + responsePrefixSize + len(r.StubData)
	s := stream.Take(fragLen)
	h := NewHeader(PTypeResponse, PfcFirstFrag|PfcLastFrag, fragLen, 0, callID)
	h.Encode(s)
	s.WriteU32LE(r.AllocHint)
	s.WriteU16LE(r.ContextID)
	s.WriteU8(r.CancelCount)
	s.WriteU8(0)
	s.WriteBytes(r.StubData)
	return s
}

// Fault is a PTYPE_FAULT PDU signalling an RPC-level failure.
type Fault struct {
	Header      Header
	AllocHint   uint32
	ContextID   uint16
	CancelCount uint8
	Status      uint32
}

func ParseFault(h Header, s *stream.Stream) (Fault, error) {
	f := Fault{Header: h}
	var err error
	f.AllocHint, err = s.ReadU32LE()
	if err != nil {
		return Fault{}, err
	}
	f.ContextID, _ = s.ReadU16LE()
	f.CancelCount, _ = s.ReadU8()
	if _, err := s.ReadU8(); err != nil {
		return Fault{}, err
	}
	f.Status, err = s.ReadU32LE()
	if err != nil {
		return Fault{}, err
	}
	return f, nil
}
