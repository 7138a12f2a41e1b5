package wire

// IRP major function codes (Windows IRP_MJ_* numbering, spec.md §2 C9 and
// §4.2 "IRP header"). Used to decode the incoming IRP header's Major
// field; the GENERAL capability's ioCode1 bitmask uses its own bits.
const (
	IRPMjCreateCode                 uint32 = 0x00
	IRPMjCloseCode                  uint32 = 0x02
	IRPMjReadCode                   uint32 = 0x03
	IRPMjWriteCode                  uint32 = 0x04
	IRPMjQueryInformationCode       uint32 = 0x05
	IRPMjSetInformationCode         uint32 = 0x06
	IRPMjFlushBuffersCode           uint32 = 0x09
	IRPMjQueryVolumeInformationCode uint32 = 0x0a
	IRPMjSetVolumeInformationCode   uint32 = 0x0b
	IRPMjDirectoryControlCode       uint32 = 0x0c
	IRPMjDeviceControlCode          uint32 = 0x0e
	IRPMjShutdownCode               uint32 = 0x10
	IRPMjLockControlCode            uint32 = 0x11
	IRPMjCleanupCode                uint32 = 0x12
	IRPMjQuerySecurityCode          uint32 = 0x14
	IRPMjSetSecurityCode            uint32 = 0x15
)

// MajorFunctionName returns the IRP_MJ_* mnemonic for major, or a hex
// fallback for codes this module never dispatches (used as a metric/span
// label, never for wire decisions).
func MajorFunctionName(major uint32) string {
	switch major {
	case IRPMjCreateCode:
		return "IRP_MJ_CREATE"
	case IRPMjCloseCode:
		return "IRP_MJ_CLOSE"
	case IRPMjReadCode:
		return "IRP_MJ_READ"
	case IRPMjWriteCode:
		return "IRP_MJ_WRITE"
	case IRPMjQueryInformationCode:
		return "IRP_MJ_QUERY_INFORMATION"
	case IRPMjSetInformationCode:
		return "IRP_MJ_SET_INFORMATION"
	case IRPMjFlushBuffersCode:
		return "IRP_MJ_FLUSH_BUFFERS"
	case IRPMjQueryVolumeInformationCode:
		return "IRP_MJ_QUERY_VOLUME_INFORMATION"
	case IRPMjSetVolumeInformationCode:
		return "IRP_MJ_SET_VOLUME_INFORMATION"
	case IRPMjDirectoryControlCode:
		return "IRP_MJ_DIRECTORY_CONTROL"
	case IRPMjDeviceControlCode:
		return "IRP_MJ_DEVICE_CONTROL"
	case IRPMjShutdownCode:
		return "IRP_MJ_SHUTDOWN"
	case IRPMjLockControlCode:
		return "IRP_MJ_LOCK_CONTROL"
	case IRPMjCleanupCode:
		return "IRP_MJ_CLEANUP"
	case IRPMjQuerySecurityCode:
		return "IRP_MJ_QUERY_SECURITY"
	case IRPMjSetSecurityCode:
		return "IRP_MJ_SET_SECURITY"
	default:
		return "IRP_MJ_UNKNOWN"
	}
}

// IRP minor function codes relevant to DIRECTORY_CONTROL.
const (
	IRPMnQueryDirectory    uint32 = 0x01
	IRPMnNotifyChangeDirectory uint32 = 0x02
)

// File information classes used by QUERY/SET_INFORMATION and directory
// queries (Windows FILE_INFORMATION_CLASS numbering).
const (
	FileDirectoryInformation     uint32 = 1
	FileFullDirectoryInformation uint32 = 2
	FileBothDirectoryInformation uint32 = 3
	FileBasicInformation         uint32 = 4
	FileStandardInformation      uint32 = 5
	FileRenameInformation        uint32 = 10
	FileNamesInformation         uint32 = 12
	FileDispositionInformation   uint32 = 13
	FileEndOfFileInformation     uint32 = 20
	FileAttributeTagInformation  uint32 = 35
)

// Volume information classes used by QUERY_VOLUME_INFORMATION.
const (
	FileFsVolumeInformation    uint32 = 1
	FileFsSizeInformation      uint32 = 3
	FileFsDeviceInformation    uint32 = 4
	FileFsAttributeInformation uint32 = 5
	FileFsFullSizeInformation  uint32 = 7
)

// Desired-access bits relevant to the CREATE disposition's read/write
// mode decision (spec.md §4.10).
const (
	GenericAll      uint32 = 0x10000000
	GenericWrite    uint32 = 0x40000000
	FileWriteData   uint32 = 0x00000002
	FileAppendData  uint32 = 0x00000004
)

// CreateOptions bits relevant to directory/delete-on-close handling.
const (
	FileDirectoryFile  uint32 = 0x00000001
	FileDeleteOnClose  uint32 = 0x00001000
)

// CreateDisposition values (spec.md §4.10).
const (
	FileSupersede   uint32 = 0x00000000
	FileOpen        uint32 = 0x00000001
	FileCreate      uint32 = 0x00000002
	FileOpenIf      uint32 = 0x00000003
	FileOverwrite   uint32 = 0x00000004
	FileOverwriteIf uint32 = 0x00000005
)

// CreateResponse "information" codes (spec.md §4.10).
const (
	FileSuperseded uint8 = 0
	FileOpened     uint8 = 1
	FileCreated    uint8 = 2
	FileOverwritten uint8 = 3
	FileExists     uint8 = 4
	FileDoesNotExist uint8 = 5
)

// File attribute bits (the subset this module sets/reads).
const (
	FileAttributeReadonly  uint32 = 0x00000001
	FileAttributeHidden    uint32 = 0x00000002
	FileAttributeDirectory uint32 = 0x00000010
	FileAttributeNormal    uint32 = 0x00000080
)
