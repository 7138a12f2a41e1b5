package metrics

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewChannelMetricsNilWhenDisabled(t *testing.T) {
	require.False(t, IsEnabled())
	require.Nil(t, NewChannelMetrics())
}

func TestChannelMetricsNilReceiverIsNoOp(t *testing.T) {
	var m *ChannelMetrics
	m.SetIRPQueueDepth("1", "drive", 3)
	m.ObserveIRPLatencyMS("drive", "IRP_MJ_READ", 1.5)
	m.SetDeviceCount("drive", 2)
	m.SetRPCFlowControlWindow(65536)
	m.SetTunnelState("Connected", []string{"Initial", "Connected"})
}

func TestChannelMetricsRecordsWhenEnabled(t *testing.T) {
	InitRegistry()
	require.True(t, IsEnabled())

	m := NewChannelMetrics()
	require.NotNil(t, m)

	m.SetIRPQueueDepth("1", "drive", 4)
	m.ObserveIRPLatencyMS("drive", "IRP_MJ_READ", 2.0)
	m.SetDeviceCount("drive", 1)
	m.SetRPCFlowControlWindow(131072)
	m.SetTunnelState("Connected", []string{"Initial", "Connected", "Final"})

	families, err := GetRegistry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}
