// Package mesh implements peer-to-peer text messaging between topologically
// adjacent nodes. Neighbors are addressed by logical direction ("left",
// "right", ...); the mesh resolves directions to physical bus names on send
// and back to directions on receive. Delivery is best-effort and the inbox
// is a bounded drop-oldest FIFO drained oldest-first.
package mesh

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/plsm/assisi-go/config"
	"github.com/plsm/assisi-go/metric"
	"github.com/plsm/assisi-go/pkg/buffer"
	"github.com/plsm/assisi-go/pkg/timestamp"
	"github.com/plsm/assisi-go/wire"
)

// Message is one inbound peer message. Label is the logical direction the
// sender occupies in this node's neighbor table; it stays empty when the
// sender is not a configured neighbor.
type Message struct {
	ID       uuid.UUID
	Sender   string
	Label    string
	Payload  []byte
	Received float64
}

// Publisher is the outbound half of the mesh bus.
type Publisher interface {
	Publish(ctx context.Context, f wire.Frame) error
}

// Mesh routes messages between this node and its configured neighbors. A
// nil Mesh is valid and inert: Send reports failure, Pop reports empty.
type Mesh struct {
	self      string
	pub       Publisher
	neighbors map[string]config.Neighbor
	byName    map[string]string
	inbox     *buffer.Ring[Message]
	logger    *slog.Logger
	metrics   *metric.Metrics
}

// Option configures a Mesh.
type Option func(*Mesh)

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mesh) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithMetrics attaches mesh traffic counters.
func WithMetrics(met *metric.Metrics) Option {
	return func(m *Mesh) {
		m.metrics = met
	}
}

// New builds the mesh for the named node. Both lookup maps are derived
// once here and never mutated afterwards, so reads need no locking. Returns
// nil when no neighbors are configured.
func New(self string, neighbors map[string]config.Neighbor, pub Publisher, inboxCapacity int, opts ...Option) *Mesh {
	if len(neighbors) == 0 {
		return nil
	}
	if inboxCapacity <= 0 {
		inboxCapacity = config.DefaultInboxCapacity
	}

	m := &Mesh{
		self:      self,
		pub:       pub,
		neighbors: make(map[string]config.Neighbor, len(neighbors)),
		byName:    make(map[string]string, len(neighbors)),
		logger:    slog.Default(),
	}
	for direction, n := range neighbors {
		m.neighbors[direction] = n
		m.byName[n.Name] = direction
	}
	for _, opt := range opts {
		opt(m)
	}

	ringOpts := []buffer.Option[Message]{
		buffer.WithOverflowPolicy[Message](buffer.DropOldest),
		buffer.WithDropCallback[Message](func(dropped Message) {
			m.logger.Warn("inbox full, dropping oldest message",
				"sender", dropped.Sender, "label", dropped.Label)
			if m.metrics != nil {
				m.metrics.MeshDropped.Inc()
			}
		}),
	}
	m.inbox = buffer.New[Message](inboxCapacity, ringOpts...)
	return m
}

// Enabled reports whether the mesh is configured and usable.
func (m *Mesh) Enabled() bool {
	return m != nil
}

// Directions returns the logical directions the neighbor table knows.
func (m *Mesh) Directions() []string {
	if m == nil {
		return nil
	}
	out := make([]string, 0, len(m.neighbors))
	for direction := range m.neighbors {
		out = append(out, direction)
	}
	return out
}

// Send publishes payload to the neighbor occupying the given logical
// direction. Failure means the direction is unknown or the mesh is not
// configured; it is reported, not returned as an error.
func (m *Mesh) Send(ctx context.Context, direction string, payload []byte) bool {
	if m == nil {
		return false
	}
	n, ok := m.neighbors[direction]
	if !ok {
		m.logger.Warn("no neighbor in direction", "direction", direction)
		return false
	}

	err := m.pub.Publish(ctx, wire.Frame{
		Target:  n.Name,
		Device:  wire.DeviceMessage,
		Command: wire.Command(m.self),
		Payload: payload,
	})
	if err != nil {
		m.logger.Warn("message send failed",
			"direction", direction, "neighbor", n.Name, "error", err)
		return false
	}

	if m.metrics != nil {
		m.metrics.MeshSent.Inc()
	}
	return true
}

// Enqueue appends one inbound message frame to the inbox. The frame's
// command slot carries the sender's physical name; the logical label is
// attached when that name maps to a configured neighbor.
func (m *Mesh) Enqueue(f wire.Frame) {
	if m == nil {
		return
	}
	msg := Message{
		ID:       uuid.New(),
		Sender:   string(f.Command),
		Label:    m.byName[string(f.Command)],
		Payload:  f.Payload,
		Received: timestamp.Seconds(),
	}
	// Push only fails on a closed ring, which never happens here.
	_ = m.inbox.Push(msg)
	if m.metrics != nil {
		m.metrics.MeshReceived.Inc()
	}
}

// Pop returns the oldest pending message, never blocking. The second result
// is false when the inbox is empty.
func (m *Mesh) Pop() (Message, bool) {
	if m == nil {
		return Message{}, false
	}
	return m.inbox.Pop()
}

// Pending returns the number of messages waiting in the inbox.
func (m *Mesh) Pending() int {
	if m == nil {
		return 0
	}
	return m.inbox.Size()
}
