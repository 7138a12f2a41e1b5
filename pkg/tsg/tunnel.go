package tsg

import (
	"context"
	"fmt"
	"sync"

	"github.com/corerdp/rdpdr/internal/logger"
	"github.com/corerdp/rdpdr/internal/metrics"
	"github.com/corerdp/rdpdr/internal/rpcclient"
	"github.com/corerdp/rdpdr/internal/telemetry"
	"github.com/corerdp/rdpdr/pkg/stream"
)

// PresentationCallback surfaces a CONSENT_MESSAGE or SERVICE_MESSAGE to the
// host (spec.md §4.7 "Presentation callback"). Returning false aborts the
// connection.
type PresentationCallback func(kind int, isDisplayMandatory, isConsentMandatory bool, text string) bool

// Tunnel drives one TSGU tunnel's state machine over an already-bound
// internal/rpcclient.Client: CreateTunnel, AuthorizeTunnel, the background
// async-message loop (MakeTunnelCall), CreateChannel, reauth, and teardown.
type Tunnel struct {
	rpc *rpcclient.Client

	capabilities uint32
	machineName  string
	onMessage    PresentationCallback

	mu      sync.Mutex
	state   State
	context ContextHandle
	id      uint32
	channel *Channel

	cancelAsync chan struct{}
	asyncDone   chan struct{}
	asyncOnce   sync.Once

	metrics *metrics.ChannelMetrics
}

// SetMetrics attaches m to the tunnel so every subsequent state
// transition updates the TSG tunnel-state gauge. A nil m (the default)
// leaves transitions metrics-free.
func (t *Tunnel) SetMetrics(m *metrics.ChannelMetrics) {
	t.mu.Lock()
	t.metrics = m
	t.mu.Unlock()
}

// NewTunnel constructs a tunnel bound to rpc. capabilities is the NAP
// capability bitmask advertised in CreateTunnel; 0 is the common case when
// no quarantine policy is enforced.
func NewTunnel(rpc *rpcclient.Client, capabilities uint32, machineName string, onMessage PresentationCallback) *Tunnel {
	return &Tunnel{
		rpc:          rpc,
		capabilities: capabilities,
		machineName:  machineName,
		onMessage:    onMessage,
		state:        StateInitial,
		cancelAsync:  make(chan struct{}),
		asyncDone:    make(chan struct{}),
	}
}

func (t *Tunnel) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Tunnel) setState(s State) {
	t.mu.Lock()
	from := t.state
	id := t.id
	t.state = s
	m := t.metrics
	t.mu.Unlock()
	recordTransition(from, s, id, m)
}

// recordTransition emits the per-transition span and updates the
// tunnel-state gauge (SPEC_FULL §11). Called with the mutex already
// released: neither the span exporter nor the metrics collector may be
// called while holding t.mu.
func recordTransition(from, to State, tunnelID uint32, m *metrics.ChannelMetrics) {
	_, span := telemetry.StartTSGTransitionSpan(context.Background(), from.String(), to.String(), telemetry.TSGTunnelID(tunnelID))
	span.End()
	if m != nil {
		m.SetTunnelState(to.String(), AllStates)
	}
}

func (t *Tunnel) snapshotContext() ContextHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.context
}

func parseFromBytes[T any](raw []byte, parse func(*stream.Stream) (T, error)) (T, error) {
	s := stream.Take(len(raw))
	defer s.Release()
	s.WriteBytes(raw)
	s.Seek(0)
	return parse(s)
}

func (t *Tunnel) present(msg *GatewayMessage) bool {
	if msg == nil || t.onMessage == nil {
		return true
	}
	switch msg.Kind {
	case MessageTypeConsent, MessageTypeService:
		return t.onMessage(msg.Kind, msg.IsDisplayMandatory, msg.IsConsentMandatory, msg.Text)
	default:
		return true
	}
}

// Create issues TsProxyCreateTunnel (Initial -> Connected).
func (t *Tunnel) Create() error {
	if t.State() != StateInitial {
		return fmt.Errorf("tsg: create tunnel called out of order, state=%s", t.State())
	}
	call, err := t.rpc.WriteCall(OpnumCreateTunnel, EncodeCreateTunnelRequest(t.capabilities))
	if err != nil {
		return fmt.Errorf("tsg: create tunnel: %w", err)
	}
	raw, err := call.Wait()
	if err != nil {
		return fmt.Errorf("tsg: create tunnel: %w", err)
	}
	resp, err := parseFromBytes(raw, ParseCreateTunnelResponse)
	if err != nil {
		return fmt.Errorf("tsg: create tunnel response: %w", err)
	}

	t.mu.Lock()
	t.context = resp.TunnelContext
	t.id = resp.TunnelID
	t.mu.Unlock()
	t.setState(StateConnected)

	if resp.Message != nil && !t.present(resp.Message) {
		return fmt.Errorf("tsg: gateway message rejected by host during create tunnel")
	}
	return nil
}

// Authorize issues TsProxyAuthorizeTunnel (Connected -> Authorized) and
// starts the background async-message loop.
func (t *Tunnel) Authorize() error {
	if t.State() != StateConnected {
		return fmt.Errorf("tsg: authorize tunnel called out of order, state=%s", t.State())
	}
	call, err := t.rpc.WriteCall(OpnumAuthorizeTunnel, EncodeAuthorizeTunnelRequest(t.snapshotContext(), t.machineName))
	if err != nil {
		return fmt.Errorf("tsg: authorize tunnel: %w", err)
	}
	raw, err := call.Wait()
	if err != nil {
		return fmt.Errorf("tsg: authorize tunnel: %w", err)
	}
	if _, err := parseFromBytes(raw, ParseAuthorizeTunnelResponse); err != nil {
		return fmt.Errorf("tsg: authorize tunnel response: %w", err)
	}

	t.setState(StateAuthorized)
	go t.runAsyncMessageLoop()
	return nil
}

// runAsyncMessageLoop keeps one TsProxyMakeTunnelCall(ASYNC_MSG_REQUEST)
// outstanding for the life of the tunnel, delivering consent/service
// messages to the presentation callback and triggering reauth on
// msg_type=REAUTH (spec.md §4.7).
func (t *Tunnel) runAsyncMessageLoop() {
	defer close(t.asyncDone)
	for {
		select {
		case <-t.cancelAsync:
			return
		default:
		}

		call, err := t.rpc.WriteCall(OpnumMakeTunnelCall, EncodeMakeTunnelCallRequest(t.snapshotContext(), TunnelCallAsyncMsgRequest))
		if err != nil {
			logger.Warn("tsg: async message call failed", "error", err)
			return
		}
		raw, err := call.Wait()
		if err != nil {
			// A cancel request completes this call with a fault; treat it
			// as a clean shutdown rather than logging noise.
			select {
			case <-t.cancelAsync:
				return
			default:
			}
			logger.Warn("tsg: async message wait failed", "error", err)
			return
		}

		msg, err := ParseMakeTunnelCallResponse(raw)
		if err != nil {
			logger.Warn("tsg: async message response parse failed", "error", err)
			continue
		}
		if msg == nil {
			continue
		}

		switch msg.Kind {
		case MessageTypeConsent, MessageTypeService:
			if !t.present(msg) {
				logger.Warn("tsg: gateway message rejected by host")
				return
			}
		case MessageTypeReauth:
			if err := t.reauth(msg.ReauthContext); err != nil {
				logger.Warn("tsg: reauth failed", "error", err)
			}
		}
	}
}

func (t *Tunnel) stopAsyncMessageLoop() {
	t.asyncOnce.Do(func() { close(t.cancelAsync) })
	if call, err := t.rpc.WriteCall(OpnumMakeTunnelCall, EncodeMakeTunnelCallRequest(t.snapshotContext(), TunnelCancelAsyncMsgRequest)); err == nil {
		call.Wait() //nolint:errcheck // cancellation races the outstanding call's own completion
	}
	<-t.asyncDone
}

// CreateChannel issues TsProxyCreateChannel (Authorized -> ChannelCreated)
// for the single RDP resource this tunnel proxies.
func (t *Tunnel) CreateChannel(hostname string, port uint16) (*Channel, error) {
	if t.State() != StateAuthorized {
		return nil, fmt.Errorf("tsg: create channel called out of order, state=%s", t.State())
	}
	call, err := t.rpc.WriteCall(OpnumCreateChannel, EncodeCreateChannelRequest(t.snapshotContext(), hostname, port))
	if err != nil {
		return nil, fmt.Errorf("tsg: create channel: %w", err)
	}
	raw, err := call.Wait()
	if err != nil {
		return nil, fmt.Errorf("tsg: create channel: %w", err)
	}

	s := stream.Take(len(raw))
	defer s.Release()
	s.WriteBytes(raw)
	s.Seek(0)
	ctx, channelID, err := ParseCreateChannelResponse(s)
	if err != nil {
		return nil, fmt.Errorf("tsg: create channel response: %w", err)
	}

	ch := newChannel(t.rpc, ctx, channelID, hostname, port)
	t.mu.Lock()
	t.channel = ch
	ch.bindMetrics(t.metrics, t.id)
	t.mu.Unlock()
	t.setState(StateChannelCreated)
	return ch, nil
}

// reauth runs the parallel tunnel/channel cycle spec.md §4.7 describes: a
// fresh CreateTunnel(Reauth) against the inherited context, a matching
// CreateChannel against the same target, then closing both before the
// primary data channel's state advances (the primary channel is left
// untouched throughout).
func (t *Tunnel) reauth(priorContext uint64) error {
	ch := t.channelSnapshot()
	if ch == nil {
		return fmt.Errorf("tsg: reauth requested before a channel exists")
	}

	call, err := t.rpc.WriteCall(OpnumCreateTunnel, EncodeReauthTunnelRequest(priorContext, t.capabilities))
	if err != nil {
		return fmt.Errorf("tsg: reauth create tunnel: %w", err)
	}
	raw, err := call.Wait()
	if err != nil {
		return fmt.Errorf("tsg: reauth create tunnel: %w", err)
	}
	resp, err := parseFromBytes(raw, ParseCreateTunnelResponse)
	if err != nil {
		return fmt.Errorf("tsg: reauth create tunnel response: %w", err)
	}
	if resp.Message != nil {
		t.present(resp.Message)
	}

	chCall, err := t.rpc.WriteCall(OpnumCreateChannel, EncodeCreateChannelRequest(resp.TunnelContext, ch.hostname, ch.port))
	if err != nil {
		return fmt.Errorf("tsg: reauth create channel: %w", err)
	}
	chRaw, err := chCall.Wait()
	if err != nil {
		return fmt.Errorf("tsg: reauth create channel: %w", err)
	}
	newChannelCtx, err := parseFromBytes(chRaw, func(s *stream.Stream) (ContextHandle, error) {
		ctx, _, err := ParseCreateChannelResponse(s)
		return ctx, err
	})
	if err != nil {
		return fmt.Errorf("tsg: reauth create channel response: %w", err)
	}

	if err := t.closeContext(OpnumCloseChannel, newChannelCtx); err != nil {
		logger.Warn("tsg: reauth close channel failed", "error", err)
	}
	if err := t.closeContext(OpnumCloseTunnel, resp.TunnelContext); err != nil {
		logger.Warn("tsg: reauth close tunnel failed", "error", err)
	}
	return nil
}

func (t *Tunnel) channelSnapshot() *Channel {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.channel
}

func (t *Tunnel) closeContext(opnum uint16, ctx ContextHandle) error {
	call, err := t.rpc.WriteCall(opnum, EncodeContextOnlyRequest(ctx))
	if err != nil {
		return err
	}
	raw, err := call.Wait()
	if err != nil {
		return err
	}
	_, err = parseFromBytes(raw, ParseContextOnlyResponse)
	return err
}

// Close tears the tunnel down per the TunnelClosePending ->
// ChannelClosePending -> Final sequence (spec.md §4.7).
func (t *Tunnel) Close() error {
	if ch := t.channelSnapshot(); ch != nil {
		t.setState(StateTunnelClosePending)
		if err := ch.close(); err != nil {
			logger.Warn("tsg: close channel failed", "error", err)
		}
	}
	t.stopAsyncMessageLoop()
	t.setState(StateChannelClosePending)

	if err := t.closeContext(OpnumCloseTunnel, t.snapshotContext()); err != nil {
		return fmt.Errorf("tsg: close tunnel: %w", err)
	}
	t.setState(StateFinal)
	return nil
}
