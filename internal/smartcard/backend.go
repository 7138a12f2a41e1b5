package smartcard

// Result codes are PC/SC SCARD_S_* / SCARD_E_* style 32-bit values,
// passed straight through the wire in the ioctl response header's
// result(4) field.
const (
	ResultSuccess      uint32 = 0x00000000
	ResultNoService    uint32 = 0x8010001D
	ResultNotSupported uint32 = 0x80100019
)

// Backend is the pluggable PC/SC-like smartcard subsystem this device
// dispatches ioctls to (spec.md §4.13). Inputs/outputs are the raw bytes
// of the ioctl's NDR-encoded body — this device handles the RDPDR/RPCE
// framing around each call, not the NDR structures within it, mirroring
// how handle_* functions in scard_operations.c each own their body
// format independently.
type Backend interface {
	EstablishContext(in []byte) (out []byte, result uint32, err error)
	ReleaseContext(in []byte) (out []byte, result uint32, err error)
	IsValidContext(in []byte) (out []byte, result uint32, err error)
	ListReaders(in []byte, wide bool) (out []byte, result uint32, err error)
	GetStatusChange(in []byte, wide bool) (out []byte, result uint32, err error)
	Cancel(in []byte) (out []byte, result uint32, err error)
	Connect(in []byte, wide bool) (out []byte, result uint32, err error)
	Reconnect(in []byte) (out []byte, result uint32, err error)
	Disconnect(in []byte) (out []byte, result uint32, err error)
	BeginTransaction(in []byte) (out []byte, result uint32, err error)
	EndTransaction(in []byte) (out []byte, result uint32, err error)
	State(in []byte) (out []byte, result uint32, err error)
	Status(in []byte, wide bool) (out []byte, result uint32, err error)
	Transmit(in []byte) (out []byte, result uint32, err error)
	Control(in []byte) (out []byte, result uint32, err error)
	GetAttrib(in []byte) (out []byte, result uint32, err error)
	AccessStartedEvent(in []byte) (out []byte, result uint32, err error)
	LocateCardsByATR(in []byte) (out []byte, result uint32, err error)
}
