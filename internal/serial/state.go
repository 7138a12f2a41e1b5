package serial

// lineState mirrors the Windows SERIAL_LINE_CONTROL / timeout structures
// (spec.md §4.12: "termios-like state (baud, word length, parity, stop
// bits, flow control chars, wait mask)").
type lineState struct {
	baudRate uint32
	dataBits uint8
	stopBits uint8
	parity   uint8

	xonChar  byte
	xoffChar byte

	waitMask uint32

	readIntervalTimeout        uint32
	readTotalTimeoutMultiplier uint32
	readTotalTimeoutConstant   uint32
	writeTotalTimeoutMultiplier uint32
	writeTotalTimeoutConstant   uint32
}

func defaultLineState() lineState {
	return lineState{
		baudRate: 9600,
		dataBits: 8,
		stopBits: 0, // STOP_BIT_1
		parity:   0, // NO_PARITY
		xonChar:  0x11,
		xoffChar: 0x13,
	}
}
