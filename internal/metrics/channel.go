package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ChannelMetrics instruments a single pkg/rdpdr.Channel: IRP queue depth and
// completion latency, device counts by type, and the TSG tunnel state gauge.
// Every method is a no-op on a nil receiver, so passing nil disables
// collection with zero overhead.
type ChannelMetrics struct {
	irpQueueDepth *prometheus.GaugeVec
	irpLatency    *prometheus.HistogramVec
	deviceCount   *prometheus.GaugeVec
	rpcFlowWindow prometheus.Gauge
	tunnelState   *prometheus.GaugeVec
}

// NewChannelMetrics returns a Prometheus-backed ChannelMetrics, or nil if
// InitRegistry was never called.
func NewChannelMetrics() *ChannelMetrics {
	if !IsEnabled() {
		return nil
	}
	reg := GetRegistry()

	return &ChannelMetrics{
		irpQueueDepth: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rdpdr_irp_queue_depth",
				Help: "Number of IRPs pending completion per device.",
			},
			[]string{"device_id", "device_type"},
		),
		irpLatency: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "rdpdr_irp_completion_latency_milliseconds",
				Help: "Time from IRP dispatch to completion, in milliseconds.",
				Buckets: []float64{
					0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000,
				},
			},
			[]string{"device_type", "major_function"},
		),
		deviceCount: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rdpdr_devices_announced",
				Help: "Number of devices currently announced to the server, by type.",
			},
			[]string{"device_type"},
		),
		rpcFlowWindow: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "rdpdr_rpc_flow_control_window_bytes",
				Help: "Current RPC-over-HTTP virtual connection flow-control receive window.",
			},
		),
		tunnelState: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "rdpdr_tsg_tunnel_state",
				Help: "1 if the TSG tunnel is currently in the named state, 0 otherwise.",
			},
			[]string{"state"},
		),
	}
}

// SetIRPQueueDepth records the pending-IRP count for a device.
func (m *ChannelMetrics) SetIRPQueueDepth(deviceID, deviceType string, depth int) {
	if m == nil {
		return
	}
	m.irpQueueDepth.WithLabelValues(deviceID, deviceType).Set(float64(depth))
}

// ObserveIRPLatencyMS records an IRP's dispatch-to-completion latency.
func (m *ChannelMetrics) ObserveIRPLatencyMS(deviceType, majorFunction string, ms float64) {
	if m == nil {
		return
	}
	m.irpLatency.WithLabelValues(deviceType, majorFunction).Observe(ms)
}

// SetDeviceCount records the number of announced devices of a given type.
func (m *ChannelMetrics) SetDeviceCount(deviceType string, count int) {
	if m == nil {
		return
	}
	m.deviceCount.WithLabelValues(deviceType).Set(float64(count))
}

// SetRPCFlowControlWindow records the current flow-control receive window.
func (m *ChannelMetrics) SetRPCFlowControlWindow(bytes uint32) {
	if m == nil {
		return
	}
	m.rpcFlowWindow.Set(float64(bytes))
}

// SetTunnelState marks state as active and every other known state inactive.
// allStates should list every value the tunnel's State.String() can return.
func (m *ChannelMetrics) SetTunnelState(state string, allStates []string) {
	if m == nil {
		return
	}
	for _, s := range allStates {
		if s == state {
			m.tunnelState.WithLabelValues(s).Set(1)
		} else {
			m.tunnelState.WithLabelValues(s).Set(0)
		}
	}
}
