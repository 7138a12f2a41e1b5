package wire

import (
	"errors"
	"syscall"
)

// NTSTATUS values carried in the IoStatus field of an IO-completion header
// (spec.md §4.9 "Error semantics"). Only the subset this module's devices
// ever produce is defined.
const (
	StatusSuccess          uint32 = 0x00000000
	StatusUnsuccessful     uint32 = 0xC0000001
	StatusAccessDenied     uint32 = 0xC0000022
	StatusObjectNameCollision uint32 = 0xC0000035
	StatusDeviceBusy       uint32 = 0x80000011 // STATUS_DEVICE_BUSY
	StatusFileIsADirectory uint32 = 0xC00000BA
	StatusNoSuchFile       uint32 = 0xC000000F
	StatusNoMoreFiles      uint32 = 0x80000006
	StatusNotADirectory    uint32 = 0xC0000103
	StatusDirectoryNotEmpty uint32 = 0xC0000101
	StatusCancelled        uint32 = 0xC0000120
	StatusTimeout          uint32 = 0x00000102
	StatusPending          uint32 = 0x00000103
	StatusInvalidDeviceRequest uint32 = 0xC0000010
	StatusDeviceOffLine    uint32 = 0x80000010
	StatusDevicePaperEmpty uint32 = 0x8000000E
	StatusDevicePoweredOff uint32 = 0x8000000F
	StatusNoSuchDevice     uint32 = 0xC000000E
	StatusPrintQueueFull   uint32 = 0xC00000C6
	StatusNotSupported     uint32 = 0xC00000BB
)

// StatusFromErrno maps a host errno (spec.md §4.9's table) to an NTSTATUS
// value carried back in an IRP reply.
func StatusFromErrno(err error) uint32 {
	if err == nil {
		return StatusSuccess
	}
	var errno syscall.Errno
	if !errors.As(err, &errno) {
		return StatusUnsuccessful
	}
	switch errno {
	case syscall.EPERM, syscall.EACCES:
		return StatusAccessDenied
	case syscall.ENOENT:
		return StatusNoSuchFile
	case syscall.EBUSY:
		return StatusDeviceBusy
	case syscall.EEXIST:
		return StatusObjectNameCollision
	case syscall.EISDIR:
		return StatusFileIsADirectory
	case syscall.ENOTDIR:
		return StatusNotADirectory
	case syscall.ENOTEMPTY:
		return StatusDirectoryNotEmpty
	default:
		return StatusUnsuccessful
	}
}
