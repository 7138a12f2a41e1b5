package wire

import "github.com/corerdp/rdpdr/pkg/stream"

// Capability types (spec.md §4.2).
const (
	CapGeneral   uint16 = 1
	CapPrinter   uint16 = 2
	CapPort      uint16 = 3
	CapDrive     uint16 = 4
	CapSmartcard uint16 = 5
)

// CapabilityHeaderSize is the size of the per-capability-set header.
const CapabilityHeaderSize = 8

// CapabilityHeader precedes every capability set body.
type CapabilityHeader struct {
	Type    uint16
	Length  uint16
	Version uint32
}

func (h CapabilityHeader) Encode(s *stream.Stream) {
	s.WriteU16LE(h.Type)
	s.WriteU16LE(h.Length)
	s.WriteU32LE(h.Version)
}

func ParseCapabilityHeader(s *stream.Stream) (CapabilityHeader, error) {
	if s.Remaining() < CapabilityHeaderSize {
		return CapabilityHeader{}, ErrTruncated
	}
	var h CapabilityHeader
	h.Type, _ = s.ReadU16LE()
	h.Length, _ = s.ReadU16LE()
	h.Version, _ = s.ReadU32LE()
	return h, nil
}

// IO code bits for the general capability's ioCode1 bitmask (spec.md §4.2).
const (
	IRPMjCreate                 uint32 = 0x00000001
	IRPMjClose                  uint32 = 0x00000002
	IRPMjRead                   uint32 = 0x00000004
	IRPMjWrite                  uint32 = 0x00000008
	IRPMjFlushBuffers           uint32 = 0x00000010
	IRPMjShutdown               uint32 = 0x00000020
	IRPMjDeviceControl          uint32 = 0x00000040
	IRPMjQueryVolumeInformation uint32 = 0x00000080
	IRPMjSetVolumeInformation   uint32 = 0x00000100
	IRPMjQueryInformation       uint32 = 0x00000200
	IRPMjSetInformation         uint32 = 0x00000400
	IRPMjDirectoryControl       uint32 = 0x00000800
	IRPMjLockControl            uint32 = 0x00001000
	IRPMjQuerySecurity          uint32 = 0x00002000
	IRPMjSetSecurity            uint32 = 0x00004000
	IRPMjCleanup                uint32 = 0x00008000
	IOCodeAll                   uint32 = 0x0000FFFF
)

// Extended PDU flags (general capability).
const (
	ExtPDUCidErrorCapable   uint32 = 0x00000001
	ExtPDUDeviceRemovePDUs  uint32 = 0x00000002
	ExtPDUClientDisplayName uint32 = 0x00000004
	ExtPDUUserLoggedOn      uint32 = 0x00000008
)

// Extra flags 1 (general capability).
const ExtraFlagsEnableAsyncIO uint32 = 0x00000001

// GeneralCapabilityBodySize is the fixed 36-byte body size (spec.md §4.2).
const GeneralCapabilityBodySize = 36

// GeneralCapability is capability set type GENERAL, version 02.
type GeneralCapability struct {
	OSType               uint32
	OSVersion            uint32
	ProtocolMajorVersion uint16
	ProtocolMinorVersion uint16
	IOCode1              uint32
	IOCode2              uint32
	ExtendedPDU          uint32
	ExtraFlags1          uint32
	ExtraFlags2          uint32
	SpecialTypeDeviceCap uint32
}

func (c GeneralCapability) Encode(s *stream.Stream) {
	hdr := CapabilityHeader{Type: CapGeneral, Length: CapabilityHeaderSize + GeneralCapabilityBodySize, Version: 2}
	hdr.Encode(s)
	s.WriteU32LE(c.OSType)
	s.WriteU32LE(c.OSVersion)
	s.WriteU16LE(c.ProtocolMajorVersion)
	s.WriteU16LE(c.ProtocolMinorVersion)
	s.WriteU32LE(c.IOCode1)
	s.WriteU32LE(c.IOCode2)
	s.WriteU32LE(c.ExtendedPDU)
	s.WriteU32LE(c.ExtraFlags1)
	s.WriteU32LE(c.ExtraFlags2)
	s.WriteU32LE(c.SpecialTypeDeviceCap)
}

func ParseGeneralCapability(s *stream.Stream) (GeneralCapability, error) {
	if s.Remaining() < GeneralCapabilityBodySize {
		return GeneralCapability{}, ErrTruncated
	}
	var c GeneralCapability
	c.OSType, _ = s.ReadU32LE()
	c.OSVersion, _ = s.ReadU32LE()
	c.ProtocolMajorVersion, _ = s.ReadU16LE()
	c.ProtocolMinorVersion, _ = s.ReadU16LE()
	c.IOCode1, _ = s.ReadU32LE()
	c.IOCode2, _ = s.ReadU32LE()
	c.ExtendedPDU, _ = s.ReadU32LE()
	c.ExtraFlags1, _ = s.ReadU32LE()
	c.ExtraFlags2, _ = s.ReadU32LE()
	c.SpecialTypeDeviceCap, _ = s.ReadU32LE()
	return c, nil
}

// CapabilitySet is one parsed capability entry of any type, with the raw
// body bytes retained for types this module only needs to echo back
// (PRINTER, PORT) or hasn't specialized (SMARTCARD, DRIVE beyond version).
type CapabilitySet struct {
	Header CapabilityHeader
	Body   []byte
}

// CapabilityResponseHeader precedes the capability set list in both
// ServerCapability and ClientCapability PDUs.
type CapabilityResponseHeader struct {
	NumCapabilities uint16
	Pad             uint16
}

func (h CapabilityResponseHeader) Encode(s *stream.Stream) {
	s.WriteU16LE(h.NumCapabilities)
	s.WriteU16LE(h.Pad)
}

func ParseCapabilityResponseHeader(s *stream.Stream) (CapabilityResponseHeader, error) {
	if s.Remaining() < 4 {
		return CapabilityResponseHeader{}, ErrTruncated
	}
	var h CapabilityResponseHeader
	h.NumCapabilities, _ = s.ReadU16LE()
	h.Pad, _ = s.ReadU16LE()
	return h, nil
}

// ParseCapabilitySets reads NumCapabilities capability sets, each header
// plus (Length - CapabilityHeaderSize) body bytes.
func ParseCapabilitySets(s *stream.Stream, count int) ([]CapabilitySet, error) {
	sets := make([]CapabilitySet, 0, count)
	for i := 0; i < count; i++ {
		h, err := ParseCapabilityHeader(s)
		if err != nil {
			return nil, err
		}
		bodyLen := int(h.Length) - CapabilityHeaderSize
		if bodyLen < 0 {
			return nil, ErrTruncated
		}
		body, err := s.ReadBytes(bodyLen)
		if err != nil {
			return nil, err
		}
		sets = append(sets, CapabilitySet{Header: h, Body: body})
	}
	return sets, nil
}

// WritePrinterCapability/WritePortCapability/WriteDriveCapability/
// WriteSmartcardCapability echo back the minimal header-only capability
// sets with no body, as the client does for everything but GENERAL.
func WritePrinterCapability(s *stream.Stream) {
	CapabilityHeader{Type: CapPrinter, Length: CapabilityHeaderSize, Version: 1}.Encode(s)
}

func WritePortCapability(s *stream.Stream) {
	CapabilityHeader{Type: CapPort, Length: CapabilityHeaderSize, Version: 1}.Encode(s)
}

func WriteDriveCapability(s *stream.Stream) {
	CapabilityHeader{Type: CapDrive, Length: CapabilityHeaderSize, Version: 2}.Encode(s)
}

func WriteSmartcardCapability(s *stream.Stream) {
	CapabilityHeader{Type: CapSmartcard, Length: CapabilityHeaderSize, Version: 1}.Encode(s)
}
