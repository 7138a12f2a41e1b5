package serial

// Serial IOCTL codes (MS-RDPEFS / Windows ntddser.h), the subset this
// device implements (spec.md §4.12 "termios-like state").
const (
	ioctlSetBaudRate    uint32 = 0x001B0004
	ioctlGetBaudRate    uint32 = 0x001B0050
	ioctlSetLineControl uint32 = 0x001B000C
	ioctlGetLineControl uint32 = 0x001B0054
	ioctlSetTimeouts    uint32 = 0x001B001C
	ioctlGetTimeouts    uint32 = 0x001B0020
	ioctlSetDTR         uint32 = 0x001B0024
	ioctlClrDTR         uint32 = 0x001B0028
	ioctlSetRTS         uint32 = 0x001B0030
	ioctlClrRTS         uint32 = 0x001B0034
	ioctlSetXoff        uint32 = 0x001B0038
	ioctlSetXon         uint32 = 0x001B003C
	ioctlSetChars       uint32 = 0x001B005C
	ioctlGetChars       uint32 = 0x001B0058
	ioctlGetWaitMask    uint32 = 0x001B0040
	ioctlSetWaitMask    uint32 = 0x001B0044
	ioctlWaitOnMask     uint32 = 0x001B0048
	ioctlPurge          uint32 = 0x001B004C
	ioctlGetModemStatus uint32 = 0x001B0068
	ioctlGetCommStatus  uint32 = 0x001B006C
	ioctlImmediateChar  uint32 = 0x001B0018
	ioctlResetDevice    uint32 = 0x001B002C
)

// Abort-IO flags carried in IOCTL_SERIAL_PURGE's input (spec.md §4.12
// "Abort codes").
const (
	abortIONone  uint32 = 0x0
	abortIORead  uint32 = 0x1
	abortIOWrite uint32 = 0x2
)

// Event-mask bits for WAIT_ON_MASK (CTS/DSR/RLSD/TxEmpty subset named in
// spec.md §4.12).
const (
	evCTS     uint32 = 0x0008
	evDSR     uint32 = 0x0010
	evRLSD    uint32 = 0x0020
	evTXEMPTY uint32 = 0x0004
)
