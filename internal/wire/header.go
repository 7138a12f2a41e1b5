// Package wire encodes and decodes the RDPDR device-redirection wire
// format: the shared packet header, capability sets, incoming IRP headers,
// and outgoing IO-completion headers (spec.md §4.2).
//
// Grounded on the teacher's internal/protocol/smb/rpc/dcerpc.go for the
// header-struct/Parse/Encode shape (fixed-size header, little-endian
// fields via encoding/binary), adapted from DCE/RPC's header to RDPDR's.
package wire

import (
	"errors"

	"github.com/corerdp/rdpdr/pkg/stream"
)

// ErrTruncated is returned when a packet is shorter than the field it asks
// for.
var ErrTruncated = errors.New("wire: truncated packet")

// Component identifies the RDPDR sub-protocol a packet belongs to.
const (
	ComponentCore uint16 = 0x4472 // 'rD'
	ComponentPrn  uint16 = 0x5052 // 'PR'
)

// Packet ids, CORE component (spec.md §4.14).
const (
	PacketIDServerAnnounce      uint16 = 0x496e
	PacketIDClientAnnounceReply uint16 = 0x4352
	PacketIDClientName          uint16 = 0x434e
	PacketIDServerCapability    uint16 = 0x5350
	PacketIDClientCapability    uint16 = 0x4350
	PacketIDClientIDConfirm     uint16 = 0x4343
	PacketIDDeviceListAnnounce  uint16 = 0x4441
	PacketIDDeviceReply         uint16 = 0x6472
	PacketIDDeviceIoRequest     uint16 = 0x4952
	PacketIDDeviceIoCompletion  uint16 = 0x4943
	PacketIDDeviceListRemove    uint16 = 0x444d
	PacketIDUserLoggedOn        uint16 = 0x554c
)

// HeaderSize is the size of the shared RDPDR packet header.
const HeaderSize = 4

// Header is the RDPDR_HEADER prefix on every PDU: component + packet id.
type Header struct {
	Component uint16
	PacketID  uint16
}

func (h Header) Encode(s *stream.Stream) {
	s.WriteU16LE(h.Component)
	s.WriteU16LE(h.PacketID)
}

func ParseHeader(s *stream.Stream) (Header, error) {
	if s.Remaining() < HeaderSize {
		return Header{}, ErrTruncated
	}
	comp, _ := s.ReadU16LE()
	pid, _ := s.ReadU16LE()
	return Header{Component: comp, PacketID: pid}, nil
}

// IRPHeader is the fixed prefix of every incoming DeviceIoRequest PDU
// (spec.md §4.2 "IRP header").
type IRPHeader struct {
	DeviceID     uint32
	FileID       uint32
	CompletionID uint32
	Major        uint32
	Minor        uint32
}

const IRPHeaderSize = 20

func ParseIRPHeader(s *stream.Stream) (IRPHeader, error) {
	if s.Remaining() < IRPHeaderSize {
		return IRPHeader{}, ErrTruncated
	}
	var h IRPHeader
	h.DeviceID, _ = s.ReadU32LE()
	h.FileID, _ = s.ReadU32LE()
	h.CompletionID, _ = s.ReadU32LE()
	h.Major, _ = s.ReadU32LE()
	h.Minor, _ = s.ReadU32LE()
	return h, nil
}

// IOCompletionHeaderSize is the size of the outgoing IO-completion prefix:
// RDPDR header(4) + device_id(4) + completion_id(4) + io_status(4).
const IOCompletionHeaderSize = HeaderSize + 12

// IOStatusOffset is the byte offset of the IoStatus field within the
// IO-completion header, patched at IRP-complete time (spec.md §3 "Irp").
const IOStatusOffset = HeaderSize + 8

// WriteIOCompletionHeader writes the outgoing reply prefix with a
// placeholder io_status of STATUS_SUCCESS; callers patch it via
// PatchIOStatus once the final status is known.
func WriteIOCompletionHeader(s *stream.Stream, deviceID, completionID uint32) {
	Header{Component: ComponentCore, PacketID: PacketIDDeviceIoCompletion}.Encode(s)
	s.WriteU32LE(deviceID)
	s.WriteU32LE(completionID)
	s.WriteU32LE(0) // io_status placeholder, patched at complete time
}

// PatchIOStatus overwrites the io_status field reserved by
// WriteIOCompletionHeader without disturbing the stream's cursor or length.
func PatchIOStatus(s *stream.Stream, status uint32) error {
	return s.WriteU32LEAt(IOStatusOffset, status)
}
