package node

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plsm/assisi-go/config"
	"github.com/plsm/assisi-go/errors"
	"github.com/plsm/assisi-go/mesh"
	"github.com/plsm/assisi-go/pkg/vision"
	"github.com/plsm/assisi-go/testutil"
	"github.com/plsm/assisi-go/wire"
)

func testConfig() config.Config {
	cfg := config.Default(testNode)
	cfg.ConnectTimeout = 3 * time.Second
	cfg.SettleTime = 0
	return cfg
}

// connectNode builds a node on in-memory buses, feeding one frame first so
// the handshake completes on its initial latch check.
func connectNode(t *testing.T, cfg config.Config, cmd *testutil.FrameBus,
	primary *testutil.ScriptedSub, meshPub *testutil.FrameBus, meshSub *testutil.ScriptedSub,
) *Node {
	t.Helper()

	primary.Feed(testutil.MustFrame(cfg.Name, wire.DeviceBase, wire.CommandEncoders, wire.DiffDrive{}))

	var mp mesh.Publisher
	if meshPub != nil {
		mp = meshPub
	}
	var ms Subscription
	if meshSub != nil {
		ms = meshSub
	}

	n, err := Connect(context.Background(), cfg, WithBuses(cmd, primary, mp, ms))
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = n.Stop(ctx)
	})
	return n
}

func TestConnect_InvalidConfig(t *testing.T) {
	_, err := Connect(context.Background(), config.Config{})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestConnect_HandshakeTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 50 * time.Millisecond

	_, err := Connect(context.Background(), cfg,
		WithBuses(testutil.NewFrameBus(), testutil.NewScriptedSub(8), nil, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNoDataSource))
}

func TestConnect_HandshakeCancelled(t *testing.T) {
	cfg := testConfig()
	cfg.ConnectTimeout = 0 // ctx alone bounds the wait

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := Connect(ctx, cfg,
		WithBuses(testutil.NewFrameBus(), testutil.NewScriptedSub(8), nil, nil))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestConnect_BlocksUntilFirstFrame(t *testing.T) {
	cmd := testutil.NewFrameBus()
	primary := testutil.NewScriptedSub(8)

	n := connectNode(t, testConfig(), cmd, primary, nil, nil)

	assert.True(t, n.Connected())
	assert.Equal(t, testNode, n.Name())
	assert.False(t, n.MeshEnabled())
	assert.Empty(t, n.LogPath())
}

func TestNode_GettersReflectFrames(t *testing.T) {
	cmd := testutil.NewFrameBus()
	primary := testutil.NewScriptedSub(16)
	n := connectNode(t, testConfig(), cmd, primary, nil, nil)

	primary.Feed(testutil.MustFrame(testNode, wire.DeviceRange, wire.CommandRanges, wire.RangeArray{
		Range:    []float64{2, 0, 3, 4, 5, 6},
		RawValue: []float64{1, 2, 3, 4, 5, 6},
		MaxRange: 9,
	}))
	primary.Feed(testutil.MustFrame(testNode, wire.DeviceBase, wire.CommandGroundTruth,
		wire.Pose{X: 3, Y: 4, Yaw: 1}))

	require.True(t, testutil.Eventually(func() bool {
		return n.Pose() == (wire.Pose{X: 3, Y: 4, Yaw: 1})
	}, time.Second))

	assert.Equal(t, 2.0, n.Range(0))
	assert.Equal(t, 9.0, n.Range(1), "near-zero reading corrected to max range")
	assert.Equal(t, []float64{2, 9, 3, 4, 5, 6}, n.Ranges())
}

func TestNode_PerceivedObjects(t *testing.T) {
	cmd := testutil.NewFrameBus()
	primary := testutil.NewScriptedSub(8)
	n := connectNode(t, testConfig(), cmd, primary, nil, nil)

	background := wire.Color{Red: 0.3, Green: 0.3, Blue: 0.3}
	object := wire.Color{Red: 1}
	left := wire.CameraImage{Pixel: make([]wire.Color, 10), ZBuffer: make([]float64, 10)}
	right := wire.CameraImage{Pixel: make([]wire.Color, 10), ZBuffer: make([]float64, 10)}
	for i := 0; i < 10; i++ {
		left.Pixel[i], right.Pixel[i] = background, background
		left.ZBuffer[i], right.ZBuffer[i] = 50, 50
	}
	for i := 2; i <= 4; i++ {
		left.Pixel[i] = object
		left.ZBuffer[i] = 5
	}
	primary.Feed(testutil.MustFrame(testNode, wire.DeviceEye, wire.CommandLeft, left))
	primary.Feed(testutil.MustFrame(testNode, wire.DeviceEye, wire.CommandRight, right))

	require.True(t, testutil.Eventually(func() bool {
		l, r := n.Eyes()
		return len(l.Pixel) == 10 && len(r.Pixel) == 10
	}, time.Second))

	objects, total := n.PerceivedObjects(func(c wire.Color) bool {
		return c.Red > 0.9
	}, vision.DefaultParams())
	require.Len(t, objects, 1)
	assert.Greater(t, objects[0].SolidAngle, 0.0)
	assert.Equal(t, objects[0].SolidAngle, total)
}

func TestNode_SettersPublish(t *testing.T) {
	cmd := testutil.NewFrameBus()
	primary := testutil.NewScriptedSub(8)
	n := connectNode(t, testConfig(), cmd, primary, nil, nil)

	ctx := context.Background()
	require.NoError(t, n.SetVelocity(ctx, 1, 2))
	require.NoError(t, n.SetLight(ctx, wire.Color{Red: 2}))
	require.NoError(t, n.SetColor(ctx, wire.Color{Green: 0.5}))
	require.NoError(t, n.SetSpeaker(ctx, 100, 50))
	require.NoError(t, n.SetVibeMotor(ctx, 30))
	require.NoError(t, n.SetDiagnosticLED(ctx, wire.Color{Blue: 1}))

	assert.Equal(t, 6, cmd.Count())
	for _, f := range cmd.Published() {
		assert.Equal(t, testNode, f.Target)
	}
}

func TestNode_SendAndReadMessage(t *testing.T) {
	cfg := testConfig()
	cfg.MsgAddr = "nats://mesh:5557"
	cfg.Neighbors = map[string]config.Neighbor{
		"right": {Name: "lure-02", Address: "nats://mesh:5557"},
	}

	cmd := testutil.NewFrameBus()
	primary := testutil.NewScriptedSub(8)
	meshPub := testutil.NewFrameBus()
	meshSub := testutil.NewScriptedSub(8)
	n := connectNode(t, cfg, cmd, primary, meshPub, meshSub)

	require.True(t, n.MeshEnabled())

	ok := n.SendMessage(context.Background(), "right", []byte("turn"))
	require.True(t, ok)
	frames := meshPub.Published()
	require.Len(t, frames, 1)
	assert.Equal(t, "lure-02", frames[0].Target)

	assert.False(t, n.SendMessage(context.Background(), "up", []byte("x")))

	// Inbound: a mesh frame is drained after the next primary frame.
	meshSub.Feed(wire.Frame{Target: testNode, Device: wire.DeviceMessage,
		Command: "lure-02", Payload: []byte("ack")})
	primary.Feed(testutil.MustFrame(testNode, wire.DeviceBase, wire.CommandEncoders, wire.DiffDrive{}))

	require.True(t, testutil.Eventually(func() bool {
		return n.peers.Pending() == 1
	}, time.Second))

	msg, ok := n.ReadMessage()
	require.True(t, ok)
	assert.Equal(t, "right", msg.Label)
	assert.Equal(t, []byte("ack"), msg.Payload)

	_, ok = n.ReadMessage()
	assert.False(t, ok)
}

// stateProbingBus records, for every published frame, whether the receiver
// had already stopped. Used to verify shutdown ordering.
type stateProbingBus struct {
	mu       sync.Mutex
	inner    *testutil.FrameBus
	state    func() State
	observed []State
}

func (b *stateProbingBus) Publish(ctx context.Context, f wire.Frame) error {
	b.mu.Lock()
	if b.state != nil {
		b.observed = append(b.observed, b.state())
	}
	b.mu.Unlock()
	return b.inner.Publish(ctx, f)
}

func TestNode_StopOrdering(t *testing.T) {
	bus := &stateProbingBus{inner: testutil.NewFrameBus()}
	primary := testutil.NewScriptedSub(8)
	primary.Feed(testutil.MustFrame(testNode, wire.DeviceBase, wire.CommandEncoders, wire.DiffDrive{}))

	n, err := Connect(context.Background(), testConfig(), WithBuses(bus, primary, nil, nil))
	require.NoError(t, err)
	bus.state = n.recv.State

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, n.Stop(ctx))

	// One off command per stateful actuator, all before the receiver stopped.
	offs := 0
	for _, f := range bus.inner.Published() {
		if f.Command == wire.CommandOff {
			offs++
		}
	}
	assert.Equal(t, 4, offs)
	require.Len(t, bus.observed, 4)
	for _, s := range bus.observed {
		assert.NotEqual(t, StateStopped, s, "off commands must precede receiver stop")
	}
	assert.Equal(t, StateStopped, n.recv.State())
}

func TestNode_StopIdempotent(t *testing.T) {
	cmd := testutil.NewFrameBus()
	primary := testutil.NewScriptedSub(8)
	n := connectNode(t, testConfig(), cmd, primary, nil, nil)

	ctx := context.Background()
	require.NoError(t, n.Stop(ctx))
	published := cmd.Count()

	require.NoError(t, n.Stop(ctx))
	assert.Equal(t, published, cmd.Count(), "double stop must not republish standby commands")
}

func TestNode_ActivityLog(t *testing.T) {
	cfg := testConfig()
	cfg.Log = true
	cfg.LogDir = t.TempDir()

	cmd := testutil.NewFrameBus()
	primary := testutil.NewScriptedSub(8)
	n := connectNode(t, cfg, cmd, primary, nil, nil)

	assert.NotEmpty(t, n.LogPath())
	require.NoError(t, n.SetVelocity(context.Background(), 1, 2))
	require.NoError(t, n.Stop(context.Background()))
	assert.FileExists(t, n.LogPath())
}
