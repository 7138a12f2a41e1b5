package rdpdr

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/corerdp/rdpdr/internal/devman"
	"github.com/corerdp/rdpdr/internal/irpengine"
	"github.com/corerdp/rdpdr/internal/logger"
	"github.com/corerdp/rdpdr/internal/metrics"
	"github.com/corerdp/rdpdr/internal/telemetry"
	"github.com/corerdp/rdpdr/internal/wire"
	"github.com/corerdp/rdpdr/pkg/stream"
	"go.opentelemetry.io/otel/trace"
)

// Config carries the RDPDR-core tunables spec.md §6 lists: computer
// name, invalid-device tolerance, and the sync/async channel dispatch
// choice.
type Config struct {
	ComputerName         string
	IgnoreInvalidDevices bool
	SynchronousChannels  bool

	// Metrics records IRP queue depth/latency and device counts. A nil
	// Metrics is valid and makes every record call a no-op.
	Metrics *metrics.ChannelMetrics
}

// Channel is the top-level RDPDR plugin state (spec.md §3 "RDPDR Plugin
// state"): the CORE PDU handshake, device announce/remove, and IRP demux
// to internal/devman.
type Channel struct {
	cfg       Config
	transport Transport
	pool      *stream.Pool
	devman    *devman.Manager
	reasm     *reassembler

	mu               sync.Mutex
	state            State
	clientID         uint32
	versionMajor     uint32
	versionMinor     uint32
	extendedPDUFlags uint32
	ioCodeFlags      uint32
	userLoggedOn     bool

	queue chan *stream.Stream
	stop  chan struct{}
}

// New constructs a Channel bound to transport, dispatching IRPs to mgr.
func New(cfg Config, transport Transport, pool *stream.Pool, mgr *devman.Manager) *Channel {
	c := &Channel{
		cfg:       cfg,
		transport: transport,
		pool:      pool,
		devman:    mgr,
		reasm:     newReassembler(pool),
		state:     StateInitial,
		queue:     make(chan *stream.Stream, 64),
		stop:      make(chan struct{}),
	}
	if !cfg.SynchronousChannels {
		go c.drainQueue()
	}
	return c
}

// State returns the channel's current handshake state.
func (c *Channel) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Close stops the async dispatch goroutine (if any) and frees every
// registered device (spec.md §5 "channel teardown").
func (c *Channel) Close() {
	close(c.stop)
	c.devman.Close()
}

// send encodes pdu via writer into a pool stream and hands it to the
// transport.
func (c *Channel) send(writer func(*stream.Stream)) error {
	s := c.pool.Take(256)
	defer s.Release()
	writer(s)
	return c.transport.Send(s.Bytes())
}

// HandleFrame feeds one virtual-channel frame through reassembly and, on
// a sealed PDU, dispatches it (spec.md §4.14 "Channel receive assembly").
// Dispatch runs synchronously when cfg.SynchronousChannels is set,
// otherwise the sealed PDU is posted to the channel's message queue.
func (c *Channel) HandleFrame(flags uint32, totalLength uint32, data []byte) error {
	sealed, err := c.reasm.Feed(flags, totalLength, data)
	if err != nil {
		return err
	}
	if sealed == nil {
		return nil
	}
	if c.cfg.SynchronousChannels {
		c.dispatchPDU(sealed)
		return nil
	}
	select {
	case c.queue <- sealed:
	case <-c.stop:
		sealed.Release()
	}
	return nil
}

func (c *Channel) drainQueue() {
	for {
		select {
		case <-c.stop:
			return
		case s := <-c.queue:
			c.dispatchPDU(s)
		}
	}
}

// dispatchPDU parses the shared header and routes to the matching
// handler (spec.md §4.14's state table).
func (c *Channel) dispatchPDU(s *stream.Stream) {
	defer s.Release()
	hdr, err := wire.ParseHeader(s)
	if err != nil {
		logger.Warn("rdpdr: truncated packet header", "error", err)
		return
	}
	if hdr.Component == wire.ComponentPrn {
		// Printer-cached-configuration-data side channel: not modeled
		// beyond acknowledging receipt (spec.md §4.11 doesn't define a
		// response for it).
		return
	}
	switch hdr.PacketID {
	case wire.PacketIDServerAnnounce:
		c.onServerAnnounce(s)
	case wire.PacketIDServerCapability:
		c.onServerCapability(s)
	case wire.PacketIDClientIDConfirm:
		c.onServerClientIDConfirm(s)
	case wire.PacketIDUserLoggedOn:
		c.onUserLoggedOn()
	case wire.PacketIDDeviceReply:
		c.onDeviceReply(s)
	case wire.PacketIDDeviceIoRequest:
		c.onDeviceIoRequest(s)
	default:
		logger.Warn("rdpdr: unhandled packet id", "packet_id", hdr.PacketID)
	}
}

func (c *Channel) onServerAnnounce(s *stream.Stream) {
	ann, err := parseServerAnnounce(s)
	if err != nil {
		logger.Warn("rdpdr: malformed server announce", "error", err)
		return
	}
	c.mu.Lock()
	c.clientID = ann.ClientID
	c.versionMajor = uint32(min16(clientVersionMajor, ann.VersionMajor))
	c.versionMinor = uint32(min16(clientVersionMinor, ann.VersionMinor))
	c.mu.Unlock()

	c.setState(StateAnnounce)
	if err := c.send(func(s *stream.Stream) {
		writeClientAnnounceReply(s, ann.VersionMajor, ann.VersionMinor, ann.ClientID)
	}); err != nil {
		logger.Warn("rdpdr: send client announce reply failed", "error", err)
		return
	}
	c.setState(StateAnnounceReply)

	if err := c.send(func(s *stream.Stream) {
		writeClientNameRequest(s, c.cfg.ComputerName)
	}); err != nil {
		logger.Warn("rdpdr: send client name request failed", "error", err)
		return
	}
	c.setState(StateNameRequest)
}

func (c *Channel) onServerCapability(s *stream.Stream) {
	hdr, err := wire.ParseCapabilityResponseHeader(s)
	if err != nil {
		logger.Warn("rdpdr: malformed server capability header", "error", err)
		return
	}
	sets, err := wire.ParseCapabilitySets(s, int(hdr.NumCapabilities))
	if err != nil {
		logger.Warn("rdpdr: malformed server capability sets", "error", err)
		return
	}
	for _, set := range sets {
		if set.Header.Type == wire.CapGeneral {
			body := stream.Take(len(set.Body))
			body.WriteBytes(set.Body)
			body.Seek(0)
			if gc, err := wire.ParseGeneralCapability(body); err == nil {
				c.mu.Lock()
				c.extendedPDUFlags = gc.ExtendedPDU
				c.ioCodeFlags = gc.IOCode1
				c.mu.Unlock()
			}
			body.Release()
		}
	}

	c.setState(StateServerCaps)
	if err := c.send(c.writeClientCapability); err != nil {
		logger.Warn("rdpdr: send client capability failed", "error", err)
		return
	}
	c.setState(StateClientCaps)
}

// writeClientCapability echoes back GENERAL plus header-only PRINTER/
// PORT/DRIVE/SMARTCARD capability sets (spec.md §4.2).
func (c *Channel) writeClientCapability(s *stream.Stream) {
	wire.Header{Component: wire.ComponentCore, PacketID: wire.PacketIDClientCapability}.Encode(s)
	wire.CapabilityResponseHeader{NumCapabilities: 5}.Encode(s)

	c.mu.Lock()
	extPDU, ioCode := c.extendedPDUFlags, c.ioCodeFlags
	c.mu.Unlock()

	wire.GeneralCapability{
		OSType:      0,
		IOCode1:     ioCode,
		ExtendedPDU: extPDU,
		ExtraFlags1: wire.ExtraFlagsEnableAsyncIO,
	}.Encode(s)
	wire.WritePrinterCapability(s)
	wire.WritePortCapability(s)
	wire.WriteDriveCapability(s)
	wire.WriteSmartcardCapability(s)
}

func (c *Channel) onServerClientIDConfirm(s *stream.Stream) {
	confirm, err := parseClientIDConfirm(s)
	if err != nil {
		logger.Warn("rdpdr: malformed client id confirm", "error", err)
		return
	}
	c.mu.Lock()
	c.clientID = confirm.ClientID
	versionMajor := c.versionMajor
	versionMinor := c.versionMinor
	c.mu.Unlock()

	c.setState(StateClientIDConfirm)
	if err := c.send(func(s *stream.Stream) {
		writeClientIDConfirm(s, uint16(versionMajor), uint16(versionMinor), confirm.ClientID)
	}); err != nil {
		logger.Warn("rdpdr: send client id confirm failed", "error", err)
		return
	}

	c.announceDevices()
	c.setState(StateReady)
}

func (c *Channel) onUserLoggedOn() {
	c.mu.Lock()
	c.userLoggedOn = true
	c.mu.Unlock()
	c.announceDevices()
}

// announceDevices sends a DeviceListAnnounce PDU covering every
// registered device eligible right now: smartcards and, per
// rdpdr_main.c's device_announce, anything once userLoggedOn is set or
// the negotiated minor version is RDP5.1 (which never sends
// PAKID_CORE_USER_LOGGEDON at all). Devices that aren't yet eligible are
// simply skipped; they get swept up on the next call once
// onUserLoggedOn fires. An empty result sends nothing, matching
// rdpdr_send_device_list_announce_request's arg.count == 0 short-circuit.
func (c *Channel) announceDevices() {
	c.mu.Lock()
	announceAll := c.userLoggedOn || c.versionMinor == uint32(versionMinorRDP51)
	c.mu.Unlock()

	var entries []wire.DeviceAnnounceEntry
	for _, dev := range c.devman.Snapshot() {
		if !announceAll && dev.Type() != wire.DeviceTypeSmartcard {
			continue
		}
		entries = append(entries, wire.DeviceAnnounceEntry{
			Type: dev.Type(),
			ID:   dev.ID(),
			Name: wire.SanitizeDeviceName(dev.Name()),
			Data: dev.AnnounceBlob(),
		})
	}
	c.recordDeviceCounts()
	if len(entries) == 0 {
		return
	}
	if err := c.send(func(s *stream.Stream) {
		wire.WriteDeviceListAnnounce(s, entries)
	}); err != nil {
		logger.Warn("rdpdr: send device list announce failed", "error", err)
	}
}

// recordDeviceCounts sets the per-type announced-device gauge from a
// fresh devman snapshot.
func (c *Channel) recordDeviceCounts() {
	if c.cfg.Metrics == nil {
		return
	}
	counts := make(map[string]int)
	for _, dev := range c.devman.Snapshot() {
		counts[wire.DeviceTypeName(dev.Type())]++
	}
	for _, typ := range []string{"drive", "printer", "smartcard", "serial", "parallel"} {
		c.cfg.Metrics.SetDeviceCount(typ, counts[typ])
	}
}

// AnnounceDevice sends a DeviceListAnnounce PDU for a single device
// registered after the channel reached Ready state — e.g. a drive
// hotplug insertion (spec.md §4.10: "for each newly-seen mount,
// register a drive device and emit a DeviceListAnnounce").
func (c *Channel) AnnounceDevice(dev devman.Device) error {
	ctx, span := telemetry.StartSpan(context.Background(), telemetry.SpanDeviceAnnounce,
		trace.WithAttributes(telemetry.DeviceID(dev.ID()), telemetry.DeviceType(wire.DeviceTypeName(dev.Type()))))
	defer span.End()

	entry := wire.DeviceAnnounceEntry{
		Type: dev.Type(),
		ID:   dev.ID(),
		Name: wire.SanitizeDeviceName(dev.Name()),
		Data: dev.AnnounceBlob(),
	}
	err := c.send(func(s *stream.Stream) {
		wire.WriteDeviceListAnnounce(s, []wire.DeviceAnnounceEntry{entry})
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	c.recordDeviceCounts()
	return nil
}

// RemoveDevice unregisters id from the device manager and sends a
// DeviceListRemove PDU for it — the hotplug-removal counterpart to
// AnnounceDevice (spec.md §4.10: "for each removed one, unregister and
// emit DeviceListRemove with the device id").
func (c *Channel) RemoveDevice(id uint32) error {
	_, span := telemetry.StartSpan(context.Background(), telemetry.SpanDeviceRemove,
		trace.WithAttributes(telemetry.DeviceID(id)))
	defer span.End()

	c.devman.Remove(id)
	err := c.send(func(s *stream.Stream) {
		wire.WriteDeviceListRemove(s, []uint32{id})
	})
	c.recordDeviceCounts()
	return err
}

func (c *Channel) onDeviceReply(s *stream.Stream) {
	deviceID, result, err := wire.ParseDeviceReply(s)
	if err != nil {
		logger.Warn("rdpdr: malformed device reply", "error", err)
		return
	}
	if result != 0 {
		logger.Warn("rdpdr: device rejected, unregistering", "device_id", deviceID, "result", result)
		c.devman.Remove(deviceID)
	}
}

func (c *Channel) onDeviceIoRequest(s *stream.Stream) {
	hdr, err := wire.ParseIRPHeader(s)
	if err != nil {
		logger.Warn("rdpdr: malformed irp header", "error", err)
		return
	}
	dev, ok := c.devman.Get(hdr.DeviceID)
	if !ok {
		if c.cfg.IgnoreInvalidDevices {
			c.replyUnknownDevice(hdr)
		}
		return
	}
	input := stream.Take(s.Remaining())
	body, _ := s.ReadBytes(s.Remaining())
	input.WriteBytes(body)
	input.Seek(0)

	deviceType := wire.DeviceTypeName(dev.Type())
	majorName := wire.MajorFunctionName(hdr.Major)
	_, span := telemetry.StartIRPDispatchSpan(context.Background(), hdr.DeviceID, deviceType, majorName,
		telemetry.CompletionID(hdr.CompletionID))
	start := time.Now()

	irp := irpengine.New(hdr, input, c.pool, func(out *stream.Stream) {
		defer out.Release()
		span.End()
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.ObserveIRPLatencyMS(deviceType, majorName, float64(time.Since(start).Milliseconds()))
			c.cfg.Metrics.SetIRPQueueDepth(deviceIDLabel(hdr.DeviceID), deviceType, dev.QueueLen())
		}
		if err := c.transport.Send(out.Bytes()); err != nil {
			logger.Warn("rdpdr: send io completion failed", "error", err)
		}
	})
	dev.Enqueue(irp)
	if c.cfg.Metrics != nil {
		c.cfg.Metrics.SetIRPQueueDepth(deviceIDLabel(hdr.DeviceID), deviceType, dev.QueueLen())
	}
}

// deviceIDLabel formats a device id for use as a Prometheus label value.
func deviceIDLabel(id uint32) string {
	return strconv.FormatUint(uint64(id), 10)
}

// replyUnknownDevice synthesizes an IO-completion carrying
// STATUS_UNSUCCESSFUL for an IRP addressed to an unregistered device
// (spec.md §4.14 "Unknown device fallback").
func (c *Channel) replyUnknownDevice(hdr wire.IRPHeader) {
	s := c.pool.Take(wire.IOCompletionHeaderSize)
	defer s.Release()
	wire.WriteIOCompletionHeader(s, hdr.DeviceID, hdr.CompletionID)
	_ = wire.PatchIOStatus(s, wire.StatusUnsuccessful)
	if err := c.transport.Send(s.Bytes()); err != nil {
		logger.Warn("rdpdr: send unknown-device reply failed", "error", err)
	}
}
