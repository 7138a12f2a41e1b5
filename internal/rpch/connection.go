package rpch

import (
	"bufio"
	"fmt"
	"time"

	"github.com/corerdp/rdpdr/internal/metrics"
	"github.com/corerdp/rdpdr/internal/ntlm"
	"github.com/corerdp/rdpdr/internal/rpchttp"
	"github.com/corerdp/rdpdr/internal/rpcwire"
)

// Config carries the tunable virtual-connection parameters spec.md §6
// exposes (keep_alive_interval_ms, receive_window, channel_lifetime),
// plus the gateway address/credentials C4 needs to dial.
type Config struct {
	HTTP              rpchttp.Config
	ReceiveWindowSize uint32
	ChannelLifetime   uint32
	KeepaliveInterval time.Duration
	ConnectionTimeout uint32

	// Metrics records the flow-control window gauge. A nil Metrics (the
	// default) makes every record call a no-op.
	Metrics *metrics.ChannelMetrics
}

// DefaultConfig mirrors spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		ReceiveWindowSize: 0x10000,
		ChannelLifetime:   0x40000000,
		KeepaliveInterval: 300 * time.Second,
		ConnectionTimeout: 120000,
	}
}

// InChannel is the IN leg of a virtual connection: the RTS control path
// and RPC request sink.
type InChannel struct {
	State      InChannelState
	http       *rpchttp.Channel
	ntlmCtx    *ntlm.Context
	cookie     Cookie
	lastSendAt time.Time
	flow       *FlowControl
}

// OutChannel is the OUT leg: the RTS control path and RPC response
// source (including recycling predecessor/successor bookkeeping).
type OutChannel struct {
	State   OutChannelState
	http    *rpchttp.Channel
	ntlmCtx *ntlm.Context
	cookie  Cookie
	flow    *FlowControl
}

// VirtualConnection owns the cookie set and channel pair for one gateway
// tunnel (spec.md §4.1 "Virtual connection").
type VirtualConnection struct {
	cfg Config

	ConnCookie    Cookie
	AssocGroupID  Cookie
	DefaultIn     *InChannel
	DefaultOut    *OutChannel
	NondefaultOut *OutChannel // only set mid-recycle

	callID uint32
}

// NewVirtualConnection allocates fresh cookies for a new tunnel.
func NewVirtualConnection(cfg Config) *VirtualConnection {
	return &VirtualConnection{
		cfg:          cfg,
		ConnCookie:   NewCookie(),
		AssocGroupID: NewCookie(),
	}
}

// Open performs the full handshake spec.md §4.5 describes: OUT channel
// dial+NTLM+CONN/A1, IN channel dial+NTLM+CONN/B1, then waits for the
// server's CONN/A3 + CONN/C2 on the OUT channel before marking both
// channels Opened.
func (vc *VirtualConnection) Open() error {
	outCookie := NewCookie()
	outHTTP, outCtx, err := rpchttp.OpenOutChannel(vc.cfg.HTTP)
	if err != nil {
		return fmt.Errorf("rpch: open out channel: %w", err)
	}
	out := &OutChannel{
		State:   OutNegotiated,
		http:    outHTTP,
		ntlmCtx: outCtx,
		cookie:  outCookie,
		flow:    NewFlowControl(vc.cfg.ReceiveWindowSize),
	}
	vc.DefaultOut = out

	a1 := rpcwire.ConnA1(vc.ConnCookie, outCookie, vc.cfg.ReceiveWindowSize)
	if _, err := out.http.Write(a1.Encode().Bytes()); err != nil {
		return fmt.Errorf("rpch: send CONN/A1: %w", err)
	}
	out.State = OutOpened

	inCookie := NewCookie()
	inHTTP, inCtx, err := rpchttp.OpenInChannel(vc.cfg.HTTP)
	if err != nil {
		return fmt.Errorf("rpch: open in channel: %w", err)
	}
	in := &InChannel{
		State:      InNegotiated,
		http:       inHTTP,
		ntlmCtx:    inCtx,
		cookie:     inCookie,
		lastSendAt: time.Now(),
		flow:       NewFlowControl(vc.cfg.ReceiveWindowSize),
	}
	vc.DefaultIn = in

	b1 := rpcwire.ConnB1(vc.ConnCookie, inCookie, vc.AssocGroupID, vc.cfg.ChannelLifetime, uint32(vc.cfg.KeepaliveInterval/time.Millisecond))
	if _, err := in.http.Write(b1.Encode().Bytes()); err != nil {
		return fmt.Errorf("rpch: send CONN/B1: %w", err)
	}
	in.State = InOpened
	in.lastSendAt = time.Now()

	// CONN/A3 and CONN/C2 arrive over the OUT channel's long-poll stream;
	// reading and dispatching them is the caller's background read-loop
	// responsibility (see ReadLoop), which sets out.State = OutOpenedA6W /
	// and ultimately drives the RPC bind sequence once both are observed.
	return nil
}

// WriteIn writes raw bytes to the IN channel (an RTS control PDU or an
// RPC request fragment built by the rpcclient package), updating the
// send-side flow-control accounting (spec.md §4.6 "update bytes_sent,
// sender_available_window").
func (vc *VirtualConnection) WriteIn(data []byte) error {
	in := vc.DefaultIn
	if in == nil {
		return fmt.Errorf("rpch: in channel not open")
	}
	if _, err := in.http.Write(data); err != nil {
		return err
	}
	in.flow.OnBytesSent(uint32(len(data)))
	in.lastSendAt = time.Now()
	vc.recordFlowWindow(in.flow)
	return nil
}

// OutReader exposes the OUT channel's long-poll response stream so the
// rpcclient package's background reassembly loop can read fragments off
// it directly.
func (vc *VirtualConnection) OutReader() (*bufio.Reader, error) {
	out := vc.DefaultOut
	if out == nil {
		return nil, fmt.Errorf("rpch: out channel not open")
	}
	return out.http.Reader(), nil
}

// HandleFlowControlAck folds a server-sent FlowControlAck (an RTS command
// arriving on the OUT channel) into the IN channel's sender-window
// accounting (spec.md §4.5/§8 "update sender_available_window") and
// refreshes the flow-control window gauge.
func (vc *VirtualConnection) HandleFlowControlAck(bytesReceived, availableWindow uint32) {
	in := vc.DefaultIn
	if in == nil {
		return
	}
	in.flow.OnPeerAck(bytesReceived, availableWindow)
	vc.recordFlowWindow(in.flow)
}

func (vc *VirtualConnection) recordFlowWindow(f *FlowControl) {
	if vc.cfg.Metrics == nil {
		return
	}
	w := f.AvailableWindow()
	if w < 0 {
		w = 0
	}
	vc.cfg.Metrics.SetRPCFlowControlWindow(uint32(w))
}

// RecordBytesReceived folds n freshly-read OUT-channel bytes into the
// flow-control accounting and, once the ack-due threshold is crossed,
// sends a FlowControlAck over the IN channel (spec.md §4.5 "Flow
// control").
func (vc *VirtualConnection) RecordBytesReceived(n uint32) error {
	return vc.MaybeAck(n)
}

// NextCallID returns a fresh, monotonically increasing DCE/RPC call id.
func (vc *VirtualConnection) NextCallID() uint32 {
	vc.callID++
	return vc.callID
}

// MaybeKeepalive sends an RTS Ping on the IN channel if the keepalive
// interval has elapsed since the last send (spec.md §4.5 "Keepalive").
func (vc *VirtualConnection) MaybeKeepalive(now time.Time) error {
	in := vc.DefaultIn
	if in == nil {
		return nil
	}
	if !KeepaliveDue(now, in.lastSendAt, vc.cfg.KeepaliveInterval) {
		return nil
	}
	ping := PingPDUBytes()
	if _, err := in.http.Write(ping); err != nil {
		return err
	}
	in.lastSendAt = now
	return nil
}

// PingPDUBytes encodes the RTS Ping PDU ready to write to the IN channel.
func PingPDUBytes() []byte {
	return rpcwire.PingPDU().Encode().Bytes()
}

// MaybeAck sends a FlowControlAck on the IN channel once the OUT
// channel's received-byte accounting crosses the half-window threshold
// (spec.md §4.5 "Flow control").
func (vc *VirtualConnection) MaybeAck(n uint32) error {
	out := vc.DefaultOut
	in := vc.DefaultIn
	if out == nil || in == nil {
		return nil
	}
	if !out.flow.OnBytesReceived(n) {
		return nil
	}
	bytesReceived, availableWindow := out.flow.AckSent()
	ack := FlowControlAckPDUBytes(bytesReceived, availableWindow, out.cookie)
	_, err := in.http.Write(ack)
	return err
}

// FlowControlAckPDUBytes encodes the IN-channel FlowControlAck PDU.
func FlowControlAckPDUBytes(bytesReceived, availableWindow uint32, outCookie Cookie) []byte {
	return rpcwire.FlowControlAckPDU(bytesReceived, availableWindow, outCookie).Encode().Bytes()
}

// BeginRecycle starts OUT-channel recycling on receipt of OUT_R1/A2: dial
// and authenticate a replacement OUT channel, then send OUT_R1/A3 on it
// (spec.md §4.5 "Recycling").
func (vc *VirtualConnection) BeginRecycle() error {
	predecessor := vc.DefaultOut
	if predecessor == nil {
		return fmt.Errorf("rpch: no active out channel to recycle")
	}

	successorCookie := NewCookie()
	successorHTTP, successorCtx, err := rpchttp.OpenOutChannel(vc.cfg.HTTP)
	if err != nil {
		return fmt.Errorf("rpch: open successor out channel: %w", err)
	}
	successor := &OutChannel{
		State:   OutNegotiated,
		http:    successorHTTP,
		ntlmCtx: successorCtx,
		cookie:  successorCookie,
		flow:    NewFlowControl(vc.cfg.ReceiveWindowSize),
	}
	vc.NondefaultOut = successor

	a3 := rpcwire.OutR1A3(vc.ConnCookie, predecessor.cookie, successorCookie, vc.cfg.ReceiveWindowSize)
	if _, err := successor.http.Write(a3.Encode().Bytes()); err != nil {
		return fmt.Errorf("rpch: send OUT_R1/A3: %w", err)
	}
	successor.State = OutOpenedA10W
	return nil
}

// CompleteRecycle finishes recycling once the server's OUT_R2/A6 arrives:
// send OUT_R2/C1 (Ping) on the new OUT channel and OUT_R2/A7 on the IN
// channel, then wait for OUT_R2/B3 (EOF) to retire the predecessor.
func (vc *VirtualConnection) CompleteRecycle() error {
	successor := vc.NondefaultOut
	if successor == nil {
		return fmt.Errorf("rpch: no recycle in progress")
	}
	if _, err := successor.http.Write(rpcwire.OutR2C1().Encode().Bytes()); err != nil {
		return fmt.Errorf("rpch: send OUT_R2/C1: %w", err)
	}
	if vc.DefaultIn != nil {
		if _, err := vc.DefaultIn.http.Write(rpcwire.OutR2A7().Encode().Bytes()); err != nil {
			return fmt.Errorf("rpch: send OUT_R2/A7: %w", err)
		}
	}
	successor.State = OutOpenedB3W
	return nil
}

// FinishRecycle is called on OUT_R2/B3 (EOF): the predecessor OUT channel
// is closed and the successor takes its place as the default.
func (vc *VirtualConnection) FinishRecycle() error {
	successor := vc.NondefaultOut
	if successor == nil {
		return fmt.Errorf("rpch: no recycle in progress")
	}
	if vc.DefaultOut != nil {
		_ = vc.DefaultOut.http.Close()
	}
	successor.State = OutOpened
	vc.DefaultOut = successor
	vc.NondefaultOut = nil
	return nil
}

// Close tears down both channels.
func (vc *VirtualConnection) Close() error {
	if vc.DefaultIn != nil {
		vc.DefaultIn.State = InFinal
		_ = vc.DefaultIn.http.Close()
	}
	if vc.DefaultOut != nil {
		vc.DefaultOut.State = OutFinal
		_ = vc.DefaultOut.http.Close()
	}
	if vc.NondefaultOut != nil {
		_ = vc.NondefaultOut.http.Close()
	}
	return nil
}
