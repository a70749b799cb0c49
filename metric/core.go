// Package metric defines the Prometheus collectors for one node's
// communication layer.
package metric

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/plsm/assisi-go/errors"
)

// Metrics contains all node-level metrics.
type Metrics struct {
	// Receive path
	FramesReceived *prometheus.CounterVec
	FramesUnknown  prometheus.Counter
	DecodeErrors   prometheus.Counter
	Connected      prometheus.Gauge

	// Command path
	CommandsPublished *prometheus.CounterVec
	SetpointsClamped  prometheus.Counter

	// Peer mesh
	MeshSent     prometheus.Counter
	MeshReceived prometheus.Counter
	MeshDropped  prometheus.Counter
}

// NewMetrics creates a Metrics instance with all node metrics, labeled by
// node name.
func NewMetrics(node string) *Metrics {
	labels := prometheus.Labels{"node": node}

	return &Metrics{
		FramesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "assisi",
				Subsystem:   "frames",
				Name:        "received_total",
				Help:        "Total frames received, by device and command",
				ConstLabels: labels,
			},
			[]string{"device", "command"},
		),
		FramesUnknown: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "assisi",
				Subsystem:   "frames",
				Name:        "unknown_total",
				Help:        "Frames with an unrecognized device/command pair",
				ConstLabels: labels,
			},
		),
		DecodeErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "assisi",
				Subsystem:   "frames",
				Name:        "decode_errors_total",
				Help:        "Frames whose payload failed to decode",
				ConstLabels: labels,
			},
		),
		Connected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace:   "assisi",
				Subsystem:   "node",
				Name:        "connected",
				Help:        "Connect latch (0 before the first frame, 1 after)",
				ConstLabels: labels,
			},
		),
		CommandsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace:   "assisi",
				Subsystem:   "commands",
				Name:        "published_total",
				Help:        "Total actuator commands published, by device and command",
				ConstLabels: labels,
			},
			[]string{"device", "command"},
		),
		SetpointsClamped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "assisi",
				Subsystem:   "commands",
				Name:        "setpoints_clamped_total",
				Help:        "Out-of-range setpoints corrected by clamping",
				ConstLabels: labels,
			},
		),
		MeshSent: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "assisi",
				Subsystem:   "mesh",
				Name:        "sent_total",
				Help:        "Peer messages sent",
				ConstLabels: labels,
			},
		),
		MeshReceived: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "assisi",
				Subsystem:   "mesh",
				Name:        "received_total",
				Help:        "Peer messages received into the inbox",
				ConstLabels: labels,
			},
		),
		MeshDropped: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace:   "assisi",
				Subsystem:   "mesh",
				Name:        "dropped_total",
				Help:        "Peer messages dropped from a full inbox",
				ConstLabels: labels,
			},
		),
	}
}

// Register registers every collector with the given registerer.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		m.FramesReceived,
		m.FramesUnknown,
		m.DecodeErrors,
		m.Connected,
		m.CommandsPublished,
		m.SetpointsClamped,
		m.MeshSent,
		m.MeshReceived,
		m.MeshDropped,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return errors.WrapTransient(err, "Metrics", "Register", "register collector")
		}
	}
	return nil
}
