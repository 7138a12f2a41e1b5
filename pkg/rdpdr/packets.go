package rdpdr

import (
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
)

// clientVersionMajor/Minor are the versions this client advertises,
// clamped against whatever the server announces (rdpdr_main.c
// rdpdr_process_server_announce_request: "clientVersionMajor = MIN(...)").
const (
	clientVersionMajor uint16 = 1
	clientVersionMinor uint16 = 0x000C

	// versionMinorRDP51 never sends PAKID_CORE_USER_LOGGEDON, so every
	// device announces immediately instead of waiting on it
	// (rdpdr_send_device_list_announce_request's device_announce comment).
	versionMinorRDP51 uint16 = 0x0005
)

// serverAnnounce is the parsed PAKID_CORE_SERVER_ANNOUNCE body.
type serverAnnounce struct {
	VersionMajor uint16
	VersionMinor uint16
	ClientID     uint32
}

func parseServerAnnounce(s *stream.Stream) (serverAnnounce, error) {
	var a serverAnnounce
	var err error
	if a.VersionMajor, err = s.ReadU16LE(); err != nil {
		return a, err
	}
	if a.VersionMinor, err = s.ReadU16LE(); err != nil {
		return a, err
	}
	a.ClientID, err = s.ReadU32LE()
	return a, err
}

func min16(a, b uint16) uint16 {
	if a < b {
		return a
	}
	return b
}

// writeClientAnnounceReply writes the Announce->AnnounceReply PDU
// (spec.md §4.14 packet id ServerAnnounceReply=0x4352, used here for the
// client's reply per the state table).
func writeClientAnnounceReply(s *stream.Stream, serverMajor, serverMinor uint16, clientID uint32) {
	wire.Header{Component: wire.ComponentCore, PacketID: wire.PacketIDClientAnnounceReply}.Encode(s)
	s.WriteU16LE(min16(clientVersionMajor, serverMajor))
	s.WriteU16LE(min16(clientVersionMinor, serverMinor))
	s.WriteU32LE(clientID)
}

// writeClientNameRequest writes the Client Name Request PDU carrying
// computerName as UTF-16 (rdpdr_send_client_name_request).
func writeClientNameRequest(s *stream.Stream, computerName string) {
	wire.Header{Component: wire.ComponentCore, PacketID: wire.PacketIDClientName}.Encode(s)
	s.WriteU32LE(1) // unicodeFlag
	s.WriteU32LE(0) // codePage
	nameBytes := append(wire.EncodeUTF16LE(computerName), 0, 0)
	s.WriteU32LE(uint32(len(nameBytes)))
	s.WriteBytes(nameBytes)
}

// writeClientIDConfirm writes the ClientCaps->ClientIdConfirm PDU.
func writeClientIDConfirm(s *stream.Stream, versionMajor, versionMinor uint16, clientID uint32) {
	wire.Header{Component: wire.ComponentCore, PacketID: wire.PacketIDClientIDConfirm}.Encode(s)
	s.WriteU16LE(versionMajor)
	s.WriteU16LE(versionMinor)
	s.WriteU32LE(clientID)
}

func parseClientIDConfirm(s *stream.Stream) (serverAnnounce, error) {
	return parseServerAnnounce(s)
}
