package tsg

import (
	"fmt"
	"sync"

	"github.com/corerdp/rdpdr/internal/metrics"
	"github.com/corerdp/rdpdr/internal/rpcclient"
	"github.com/corerdp/rdpdr/pkg/stream"
)

// Channel is one TSGU data channel: the long-lived server->client receive
// pipe opened by SetupReceivePipe and the client->server SendToServer path
// (spec.md §4.7 "ChannelCreated -> SetupReceivePipe ack -> PipeCreated").
type Channel struct {
	rpc       *rpcclient.Client
	context   ContextHandle
	id        uint32
	hostname  string
	port      uint16

	mu       sync.Mutex
	state    State
	pipe     *rpcclient.ReceivePipe
	metrics  *metrics.ChannelMetrics
	tunnelID uint32
}

func newChannel(rpc *rpcclient.Client, ctx ContextHandle, id uint32, hostname string, port uint16) *Channel {
	return &Channel{rpc: rpc, context: ctx, id: id, hostname: hostname, port: port, state: StateChannelCreated}
}

// bindMetrics attaches the tunnel's metrics collector and id so the
// channel's own transitions (currently just PipeCreated) update the same
// tunnel-state gauge Tunnel.setState does.
func (c *Channel) bindMetrics(m *metrics.ChannelMetrics, tunnelID uint32) {
	c.mu.Lock()
	c.metrics = m
	c.tunnelID = tunnelID
	c.mu.Unlock()
}

func (c *Channel) setState(s State) {
	c.mu.Lock()
	from := c.state
	c.state = s
	m := c.metrics
	id := c.tunnelID
	c.mu.Unlock()
	recordTransition(from, s, id, m)
}

// ID is the gateway-assigned channel id.
func (c *Channel) ID() uint32 { return c.id }

// SetupReceivePipe issues TsProxySetupReceivePipe and returns the
// rpcclient.ReceivePipe that future server->client fragments for this
// channel's call id are routed to.
func (c *Channel) SetupReceivePipe() (*rpcclient.ReceivePipe, error) {
	call, err := c.rpc.WriteCall(OpnumSetupReceivePipe, EncodeContextOnlyRequest(c.context))
	if err != nil {
		return nil, fmt.Errorf("tsg: setup receive pipe: %w", err)
	}
	pipe := c.rpc.RegisterReceivePipe(call.ID)

	c.mu.Lock()
	c.pipe = pipe
	c.mu.Unlock()
	c.setState(StatePipeCreated)
	return pipe, nil
}

// SendToServer forwards one outbound chunk to the RDP server through the
// gateway (spec.md §4.7 "SendToServer request").
func (c *Channel) SendToServer(data []byte) error {
	call, err := c.rpc.WriteCall(OpnumSendToServer, EncodeSendToServerRequest(c.context, data))
	if err != nil {
		return fmt.Errorf("tsg: send to server: %w", err)
	}
	_, err = call.Wait()
	return err
}

func (c *Channel) close() error {
	call, err := c.rpc.WriteCall(OpnumCloseChannel, EncodeContextOnlyRequest(c.context))
	if err != nil {
		return fmt.Errorf("tsg: close channel: %w", err)
	}
	raw, err := call.Wait()
	if err != nil {
		return fmt.Errorf("tsg: close channel: %w", err)
	}

	s := stream.Take(len(raw))
	defer s.Release()
	s.WriteBytes(raw)
	s.Seek(0)
	if _, err := ParseContextOnlyResponse(s); err != nil {
		return fmt.Errorf("tsg: close channel response: %w", err)
	}
	return nil
}
