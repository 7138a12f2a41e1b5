package wire

import "github.com/corerdp/rdpdr/pkg/stream"

// Device type tags (spec.md §3 "Device").
const (
	DeviceTypeFilesystem uint32 = 0x08
	DeviceTypePrint      uint32 = 0x04
	DeviceTypeSmartcard  uint32 = 0x20
	DeviceTypeSerial     uint32 = 0x01
	DeviceTypeParallel   uint32 = 0x02
)

// DeviceTypeName returns the lowercase device-kind name used as a metric
// and span label for t, or "unknown" for a tag this module never announces.
func DeviceTypeName(t uint32) string {
	switch t {
	case DeviceTypeFilesystem:
		return "drive"
	case DeviceTypePrint:
		return "printer"
	case DeviceTypeSmartcard:
		return "smartcard"
	case DeviceTypeSerial:
		return "serial"
	case DeviceTypeParallel:
		return "parallel"
	default:
		return "unknown"
	}
}

// deviceNameLength is the fixed ASCII name field width in a device announce
// entry (spec.md §3: "name: utf8 (≤8 ASCII, bytes ≥0x80 replaced by '_')").
const deviceNameLength = 8

// SanitizeDeviceName truncates/pads name to 8 bytes and replaces any byte
// ≥ 0x80 with '_', matching the non-ASCII substitution rule.
func SanitizeDeviceName(name string) [deviceNameLength]byte {
	var out [deviceNameLength]byte
	b := []byte(name)
	for i := 0; i < deviceNameLength; i++ {
		if i >= len(b) {
			out[i] = 0
			continue
		}
		c := b[i]
		if c >= 0x80 {
			c = '_'
		}
		out[i] = c
	}
	return out
}

// DeviceAnnounceEntry is one entry in a DeviceListAnnounce PDU.
type DeviceAnnounceEntry struct {
	Type uint32
	ID   uint32
	Name [deviceNameLength]byte
	Data []byte
}

func (e DeviceAnnounceEntry) Encode(s *stream.Stream) {
	s.WriteU32LE(e.Type)
	s.WriteU32LE(e.ID)
	s.WriteBytes(e.Name[:])
	s.WriteU32LE(uint32(len(e.Data)))
	s.WriteBytes(e.Data)
}

// WriteDeviceListAnnounce writes the CORE/DeviceListAnnounce PDU header
// plus a count and the given entries (spec.md §4.14 "Device announce").
func WriteDeviceListAnnounce(s *stream.Stream, entries []DeviceAnnounceEntry) {
	Header{Component: ComponentCore, PacketID: PacketIDDeviceListAnnounce}.Encode(s)
	s.WriteU32LE(uint32(len(entries)))
	for _, e := range entries {
		e.Encode(s)
	}
}

// WriteDeviceListRemove writes the CORE/DeviceListRemove PDU: count + ids
// (spec.md §4.14 "Device remove").
func WriteDeviceListRemove(s *stream.Stream, ids []uint32) {
	Header{Component: ComponentCore, PacketID: PacketIDDeviceListRemove}.Encode(s)
	s.WriteU32LE(uint32(len(ids)))
	for _, id := range ids {
		s.WriteU32LE(id)
	}
}

// ParseDeviceReply decodes the server's DeviceReply PDU body:
// device_id(4), result_code(4).
func ParseDeviceReply(s *stream.Stream) (deviceID, resultCode uint32, err error) {
	deviceID, err = s.ReadU32LE()
	if err != nil {
		return 0, 0, err
	}
	resultCode, err = s.ReadU32LE()
	return deviceID, resultCode, err
}
