package mesh

import (
	"context"
	"testing"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plsm/assisi-go/config"
	"github.com/plsm/assisi-go/errors"
	"github.com/plsm/assisi-go/metric"
	"github.com/plsm/assisi-go/wire"
)

// recordingPublisher captures published frames and can be told to fail.
type recordingPublisher struct {
	frames []wire.Frame
	fail   bool
}

func (p *recordingPublisher) Publish(_ context.Context, f wire.Frame) error {
	if p.fail {
		return errors.ErrNotConnected
	}
	p.frames = append(p.frames, f)
	return nil
}

func testNeighbors() map[string]config.Neighbor {
	return map[string]config.Neighbor{
		"left":  {Name: "fish-02", Address: "nats://mesh:5557"},
		"right": {Name: "fish-03", Address: "nats://mesh:5557"},
	}
}

func TestNew_NoNeighborsIsNil(t *testing.T) {
	m := New("fish-01", nil, &recordingPublisher{}, 8)
	assert.Nil(t, m)
	assert.False(t, m.Enabled())
}

func TestNilMesh_Inert(t *testing.T) {
	var m *Mesh
	assert.False(t, m.Send(context.Background(), "left", []byte("hi")))
	_, ok := m.Pop()
	assert.False(t, ok)
	assert.Equal(t, 0, m.Pending())
	assert.Nil(t, m.Directions())
	m.Enqueue(wire.Frame{}) // must not panic
}

func TestSend_KnownDirection(t *testing.T) {
	pub := &recordingPublisher{}
	m := New("fish-01", testNeighbors(), pub, 8)
	require.True(t, m.Enabled())

	ok := m.Send(context.Background(), "left", []byte("follow me"))
	require.True(t, ok)
	require.Len(t, pub.frames, 1)

	f := pub.frames[0]
	assert.Equal(t, "fish-02", f.Target)
	assert.Equal(t, wire.DeviceMessage, f.Device)
	assert.Equal(t, "fish-01", string(f.Command), "command slot carries the sender name")
	assert.Equal(t, []byte("follow me"), f.Payload)
}

func TestSend_UnknownDirection(t *testing.T) {
	pub := &recordingPublisher{}
	m := New("fish-01", testNeighbors(), pub, 8)

	assert.False(t, m.Send(context.Background(), "up", []byte("x")))
	assert.Empty(t, pub.frames)
}

func TestSend_PublishFailure(t *testing.T) {
	pub := &recordingPublisher{fail: true}
	m := New("fish-01", testNeighbors(), pub, 8)

	assert.False(t, m.Send(context.Background(), "left", []byte("x")))
}

func TestEnqueuePop_OldestFirst(t *testing.T) {
	m := New("fish-01", testNeighbors(), &recordingPublisher{}, 8)

	m.Enqueue(wire.Frame{Target: "fish-01", Device: wire.DeviceMessage, Command: "fish-02", Payload: []byte("first")})
	m.Enqueue(wire.Frame{Target: "fish-01", Device: wire.DeviceMessage, Command: "fish-03", Payload: []byte("second")})
	assert.Equal(t, 2, m.Pending())

	msg, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, "fish-02", msg.Sender)
	assert.Equal(t, "left", msg.Label)
	assert.Equal(t, []byte("first"), msg.Payload)
	assert.NotZero(t, msg.ID)
	assert.Greater(t, msg.Received, 0.0)

	msg, ok = m.Pop()
	require.True(t, ok)
	assert.Equal(t, "right", msg.Label)
	assert.Equal(t, []byte("second"), msg.Payload)

	_, ok = m.Pop()
	assert.False(t, ok)
}

func TestEnqueue_UnknownSenderHasNoLabel(t *testing.T) {
	m := New("fish-01", testNeighbors(), &recordingPublisher{}, 8)

	m.Enqueue(wire.Frame{Target: "fish-01", Device: wire.DeviceMessage, Command: "stranger", Payload: []byte("?")})

	msg, ok := m.Pop()
	require.True(t, ok)
	assert.Equal(t, "stranger", msg.Sender)
	assert.Empty(t, msg.Label)
}

func TestInbox_DropsOldestOnOverflow(t *testing.T) {
	m := New("fish-01", testNeighbors(), &recordingPublisher{}, 2)

	for _, text := range []string{"a", "b", "c"} {
		m.Enqueue(wire.Frame{Device: wire.DeviceMessage, Command: "fish-02", Payload: []byte(text)})
	}
	assert.Equal(t, 2, m.Pending())

	msg, _ := m.Pop()
	assert.Equal(t, []byte("b"), msg.Payload)
	msg, _ = m.Pop()
	assert.Equal(t, []byte("c"), msg.Payload)
}

func TestMetrics_TrafficAndDrops(t *testing.T) {
	met := metric.NewMetrics("fish-01")
	pub := &recordingPublisher{}
	m := New("fish-01", testNeighbors(), pub, 2, WithMetrics(met))

	require.True(t, m.Send(context.Background(), "left", []byte("hi")))
	for _, text := range []string{"a", "b", "c"} {
		m.Enqueue(wire.Frame{Device: wire.DeviceMessage, Command: "fish-02", Payload: []byte(text)})
	}

	assert.Equal(t, 1.0, promtestutil.ToFloat64(met.MeshSent))
	assert.Equal(t, 3.0, promtestutil.ToFloat64(met.MeshReceived))
	assert.Equal(t, 1.0, promtestutil.ToFloat64(met.MeshDropped))
}

func TestDirections(t *testing.T) {
	m := New("fish-01", testNeighbors(), &recordingPublisher{}, 8)
	assert.ElementsMatch(t, []string{"left", "right"}, m.Directions())
}
