package smartcard

// Smartcard IOCTL codes ([MS-RDPESC] §3.1.4 / scard_operations.c). Each
// paired wide-string variant is the code plus 4 (spec.md §4.13: "pick the
// wide- or narrow-string variant by adding 4 to the opcode").
const (
	ioctlEstablishContext      uint32 = 0x00090014
	ioctlReleaseContext        uint32 = 0x00090018
	ioctlIsValidContext        uint32 = 0x0009001C
	ioctlListReaderGroups      uint32 = 0x00090020
	ioctlListReaders           uint32 = 0x00090028
	ioctlGetStatusChange       uint32 = 0x000900A0
	ioctlCancel                uint32 = 0x000900A8
	ioctlConnect               uint32 = 0x000900AC
	ioctlReconnect             uint32 = 0x000900B4
	ioctlDisconnect            uint32 = 0x000900B8
	ioctlBeginTransaction      uint32 = 0x000900BC
	ioctlEndTransaction        uint32 = 0x000900C0
	ioctlState                 uint32 = 0x000900C4
	ioctlStatus                uint32 = 0x000900C8
	ioctlTransmit              uint32 = 0x000900D0
	ioctlControl               uint32 = 0x000900D4
	ioctlGetAttrib             uint32 = 0x000900D8
	ioctlSetAttrib             uint32 = 0x000900DC
	ioctlAccessStartedEvent    uint32 = 0x000900E0
	ioctlLocateCardsByATR      uint32 = 0x000900E8

	wideVariantOffset uint32 = 4
)

// FILE_DEVICE_SMARTCARD high word of a Windows SCARD_CTL_CODE (spec.md
// §4.13). Only scardCtlCode uses it; handleIoctl does not translate
// control codes.
const fileDeviceSmartcard = 0x31

// scardCtlCode builds a Windows-style CTL_CODE for FILE_DEVICE_SMARTCARD.
func scardCtlCode(function uint32) uint32 {
	return (fileDeviceSmartcard << 16) | (function << 2) | 3 // METHOD_BUFFERED, FILE_ANY_ACCESS
}

// isAsyncIoctl reports whether the ioctl (after stripping the wide-variant
// offset) must run off the device's single worker (spec.md §4.13 "Async
// dispatch"): GetStatusChange, Transmit, Status may block.
func isAsyncIoctl(code uint32) bool {
	base := code
	if code == ioctlGetStatusChange+wideVariantOffset || code == ioctlStatus+wideVariantOffset {
		base = code - wideVariantOffset
	}
	switch base {
	case ioctlGetStatusChange, ioctlTransmit, ioctlStatus:
		return true
	default:
		return false
	}
}
