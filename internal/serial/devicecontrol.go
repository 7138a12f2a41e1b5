package serial

import (
	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/wire"
)

func (d *Device) handleDeviceControl(irp *irpengine.Irp) {
	ioctl, _ := irp.Input.ReadU32LE()

	switch ioctl {
	case ioctlSetBaudRate:
		rate, _ := irp.Input.ReadU32LE()
		d.mu.Lock()
		d.state.baudRate = rate
		d.mu.Unlock()
		irp.Output.WriteU32LE(0)
	case ioctlGetBaudRate:
		d.mu.Lock()
		rate := d.state.baudRate
		d.mu.Unlock()
		irp.Output.WriteU32LE(rate)
	case ioctlSetLineControl:
		stopBits, _ := irp.Input.ReadU8()
		parity, _ := irp.Input.ReadU8()
		wordLen, _ := irp.Input.ReadU8()
		d.mu.Lock()
		d.state.stopBits = stopBits
		d.state.parity = parity
		d.state.dataBits = wordLen
		d.mu.Unlock()
		irp.Output.WriteU32LE(0)
	case ioctlGetLineControl:
		d.mu.Lock()
		s := d.state
		d.mu.Unlock()
		irp.Output.WriteU8(s.stopBits)
		irp.Output.WriteU8(s.parity)
		irp.Output.WriteU8(s.dataBits)
	case ioctlSetTimeouts:
		readInterval, _ := irp.Input.ReadU32LE()
		readMult, _ := irp.Input.ReadU32LE()
		readConst, _ := irp.Input.ReadU32LE()
		writeMult, _ := irp.Input.ReadU32LE()
		writeConst, _ := irp.Input.ReadU32LE()
		d.mu.Lock()
		d.state.readIntervalTimeout = readInterval
		d.state.readTotalTimeoutMultiplier = readMult
		d.state.readTotalTimeoutConstant = readConst
		d.state.writeTotalTimeoutMultiplier = writeMult
		d.state.writeTotalTimeoutConstant = writeConst
		d.mu.Unlock()
		irp.Output.WriteU32LE(0)
	case ioctlGetTimeouts:
		d.mu.Lock()
		s := d.state
		d.mu.Unlock()
		irp.Output.WriteU32LE(s.readIntervalTimeout)
		irp.Output.WriteU32LE(s.readTotalTimeoutMultiplier)
		irp.Output.WriteU32LE(s.readTotalTimeoutConstant)
		irp.Output.WriteU32LE(s.writeTotalTimeoutMultiplier)
		irp.Output.WriteU32LE(s.writeTotalTimeoutConstant)
	case ioctlSetWaitMask:
		mask, _ := irp.Input.ReadU32LE()
		d.mu.Lock()
		d.state.waitMask = mask
		d.mu.Unlock()
		irp.Output.WriteU32LE(0)
	case ioctlGetWaitMask:
		d.mu.Lock()
		mask := d.state.waitMask
		d.mu.Unlock()
		irp.Output.WriteU32LE(mask)
	case ioctlWaitOnMask:
		d.mu.Lock()
		mask := d.state.waitMask
		d.mu.Unlock()
		// Event waits are reported best-effort: no host event source is
		// plumbed in, so report whatever was last armed with no delay.
		irp.Output.WriteU32LE(mask)
	case ioctlPurge:
		flags, _ := irp.Input.ReadU32LE()
		d.abortKind(flags)
		irp.Output.WriteU32LE(0)
	case ioctlSetXoff, ioctlSetXon, ioctlSetDTR, ioctlClrDTR, ioctlSetRTS, ioctlClrRTS, ioctlResetDevice:
		irp.Output.WriteU32LE(0)
	case ioctlSetChars:
		xon, _ := irp.Input.ReadU8()
		xoff, _ := irp.Input.ReadU8()
		d.mu.Lock()
		d.state.xonChar = xon
		d.state.xoffChar = xoff
		d.mu.Unlock()
		irp.Output.WriteU32LE(0)
	case ioctlGetChars:
		d.mu.Lock()
		xon, xoff := d.state.xonChar, d.state.xoffChar
		d.mu.Unlock()
		irp.Output.WriteU8(xon)
		irp.Output.WriteU8(xoff)
	case ioctlGetModemStatus, ioctlGetCommStatus:
		irp.Output.WriteU32LE(0)
	case ioctlImmediateChar:
		c, _ := irp.Input.ReadU8()
		d.mu.Lock()
		fd := d.fd
		d.mu.Unlock()
		if fd >= 0 {
			_, _ = writeAll(fd, []byte{c})
		}
		irp.Output.WriteU32LE(0)
	default:
		irp.IOStatus = wire.StatusInvalidDeviceRequest
	}
	irp.Complete()
}
