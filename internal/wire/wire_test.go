package wire

import (
	"bytes"
	"testing"

	"github.com/corerdp/rdpdr/pkg/stream"
)

func TestHeaderRoundTrip(t *testing.T) {
	s := stream.Take(16)
	defer s.Release()
	Header{Component: ComponentCore, PacketID: PacketIDDeviceIoRequest}.Encode(s)

	s.Seek(0)
	h, err := ParseHeader(s)
	if err != nil {
		t.Fatalf("ParseHeader: %v", err)
	}
	if h.Component != ComponentCore || h.PacketID != PacketIDDeviceIoRequest {
		t.Fatalf("unexpected header: %+v", h)
	}
}

func TestIRPHeaderRoundTrip(t *testing.T) {
	s := stream.Take(32)
	defer s.Release()
	s.WriteU32LE(1)
	s.WriteU32LE(2)
	s.WriteU32LE(3)
	s.WriteU32LE(IRPMjRead)
	s.WriteU32LE(0)

	s.Seek(0)
	h, err := ParseIRPHeader(s)
	if err != nil {
		t.Fatalf("ParseIRPHeader: %v", err)
	}
	if h.DeviceID != 1 || h.FileID != 2 || h.CompletionID != 3 || h.Major != IRPMjRead {
		t.Fatalf("unexpected IRP header: %+v", h)
	}
}

func TestIOCompletionHeaderPatch(t *testing.T) {
	s := stream.Take(64)
	defer s.Release()
	WriteIOCompletionHeader(s, 7, 9)
	s.WriteBytes([]byte("payload"))

	if err := PatchIOStatus(s, 0xC0000001); err != nil {
		t.Fatalf("PatchIOStatus: %v", err)
	}

	s.Seek(0)
	h, err := ParseHeader(s)
	if err != nil || h.PacketID != PacketIDDeviceIoCompletion {
		t.Fatalf("ParseHeader: %+v %v", h, err)
	}
	deviceID, _ := s.ReadU32LE()
	completionID, _ := s.ReadU32LE()
	status, _ := s.ReadU32LE()
	if deviceID != 7 || completionID != 9 || status != 0xC0000001 {
		t.Fatalf("unexpected completion fields: %d %d %x", deviceID, completionID, status)
	}
	rest, _ := s.ReadBytes(7)
	if !bytes.Equal(rest, []byte("payload")) {
		t.Fatalf("payload mismatch: %q", rest)
	}
}

func TestGeneralCapabilityRoundTrip(t *testing.T) {
	s := stream.Take(64)
	defer s.Release()
	cap := GeneralCapability{
		ProtocolMajorVersion: 1,
		ProtocolMinorVersion: 0x0C,
		IOCode1:              IOCodeAll,
		ExtendedPDU:          ExtPDUDeviceRemovePDUs | ExtPDUUserLoggedOn,
		ExtraFlags1:          ExtraFlagsEnableAsyncIO,
	}
	cap.Encode(s)

	s.Seek(0)
	if _, err := ParseCapabilityHeader(s); err != nil {
		t.Fatalf("ParseCapabilityHeader: %v", err)
	}
	got, err := ParseGeneralCapability(s)
	if err != nil {
		t.Fatalf("ParseGeneralCapability: %v", err)
	}
	if got.IOCode1 != IOCodeAll || got.ExtendedPDU != cap.ExtendedPDU {
		t.Fatalf("unexpected general capability: %+v", got)
	}
}

func TestSanitizeDeviceName(t *testing.T) {
	name := SanitizeDeviceName("usb\xff2")
	if name[3] != '_' {
		t.Fatalf("expected non-ASCII byte replaced with '_', got %q", name)
	}
	long := SanitizeDeviceName("this-is-way-too-long")
	if string(long[:]) != "this-is-" {
		t.Fatalf("expected truncation to 8 bytes, got %q", long)
	}
}

func TestDeviceTypeName(t *testing.T) {
	if got := DeviceTypeName(DeviceTypeFilesystem); got != "drive" {
		t.Fatalf("expected drive, got %q", got)
	}
	if got := DeviceTypeName(0xff); got != "unknown" {
		t.Fatalf("expected unknown, got %q", got)
	}
}

func TestMajorFunctionName(t *testing.T) {
	if got := MajorFunctionName(IRPMjReadCode); got != "IRP_MJ_READ" {
		t.Fatalf("expected IRP_MJ_READ, got %q", got)
	}
	if got := MajorFunctionName(0xff); got != "IRP_MJ_UNKNOWN" {
		t.Fatalf("expected IRP_MJ_UNKNOWN, got %q", got)
	}
}

func TestDeviceListAnnounceEncode(t *testing.T) {
	s := stream.Take(128)
	defer s.Release()
	entries := []DeviceAnnounceEntry{
		{Type: DeviceTypeFilesystem, ID: 1, Name: SanitizeDeviceName("usb1")},
	}
	WriteDeviceListAnnounce(s, entries)

	s.Seek(0)
	h, err := ParseHeader(s)
	if err != nil || h.PacketID != PacketIDDeviceListAnnounce {
		t.Fatalf("ParseHeader: %+v %v", h, err)
	}
	count, _ := s.ReadU32LE()
	if count != 1 {
		t.Fatalf("expected 1 entry, got %d", count)
	}
}
