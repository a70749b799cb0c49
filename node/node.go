// Package node implements the communication session of one robotic unit: a
// background receiver demultiplexing inbound sensor frames into a
// thread-safe reading cache, a command publisher with setpoint clamping, a
// peer mesh for neighbor messaging, and a connect-and-wait construction
// handshake. Construction blocks until the first frame from the data source
// arrives (plus a short settle period), so callers never observe an empty
// cache on their first getter call.
package node

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/plsm/assisi-go/actlog"
	"github.com/plsm/assisi-go/busclient"
	"github.com/plsm/assisi-go/config"
	"github.com/plsm/assisi-go/errors"
	"github.com/plsm/assisi-go/mesh"
	"github.com/plsm/assisi-go/metric"
	"github.com/plsm/assisi-go/pkg/vision"
	"github.com/plsm/assisi-go/readings"
	"github.com/plsm/assisi-go/wire"
)

// busSet groups the transport endpoints a node runs on. Production nodes
// dial NATS through busclient; tests inject doubles.
type busSet struct {
	cmd     Bus
	primary Subscription
	meshPub mesh.Publisher
	meshSub Subscription
	closers []func(context.Context) error
}

// Node is the facade over one communication session.
type Node struct {
	cfg     config.Config
	logger  *slog.Logger
	metrics *metric.Metrics

	store *readings.Store
	pub   *CommandPublisher
	recv  *Receiver
	peers *mesh.Mesh
	log   *actlog.Log

	buses   *busSet
	reg     prometheus.Registerer
	stopped atomic.Bool
}

// Option configures a Node before it connects.
type Option func(*Node) error

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) error {
		if logger != nil {
			n.logger = logger
		}
		return nil
	}
}

// WithRegisterer registers the node's collectors with the given Prometheus
// registerer.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(n *Node) error {
		n.reg = reg
		return nil
	}
}

// WithBuses injects transport endpoints instead of dialing. meshPub and
// meshSub may be nil when the mesh is not under test.
func WithBuses(cmd Bus, primary Subscription, meshPub mesh.Publisher, meshSub Subscription) Option {
	return func(n *Node) error {
		n.buses = &busSet{cmd: cmd, primary: primary, meshPub: meshPub, meshSub: meshSub}
		return nil
	}
}

// Connect builds the full session and blocks until the data source is seen:
// it polls the connect latch at a fixed interval, bounded by the configured
// handshake timeout, then waits the settle period so the first getter call
// observes a full set of readings. The background receiver runs until Stop
// is called or ctx ends.
func Connect(ctx context.Context, cfg config.Config, opts ...Option) (*Node, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	n := &Node{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, errors.WrapInvalid(err, "Node", "Connect", "apply option")
		}
	}
	n.logger = n.logger.With("node", cfg.Name)

	n.metrics = metric.NewMetrics(cfg.Name)
	if n.reg != nil {
		if err := n.metrics.Register(n.reg); err != nil {
			return nil, err
		}
	}

	if cfg.Log {
		log, err := actlog.Open(cfg.LogDir, cfg.Name)
		if err != nil {
			return nil, err
		}
		n.log = log
	}

	if n.buses == nil {
		buses, err := n.dial(ctx)
		if err != nil {
			n.log.Close()
			return nil, err
		}
		n.buses = buses
	}

	n.store = readings.New(cfg.MaxRange)
	if cfg.MeshEnabled() {
		n.peers = mesh.New(cfg.Name, cfg.Neighbors, n.buses.meshPub, cfg.InboxCapacity,
			mesh.WithLogger(n.logger), mesh.WithMetrics(n.metrics))
	}
	n.pub = NewCommandPublisher(cfg.Name, n.buses.cmd, n.log,
		WithPublisherLogger(n.logger), WithPublisherMetrics(n.metrics))
	n.recv = NewReceiver(cfg.Name, n.buses.primary, n.buses.meshSub,
		n.store, n.peers, n.log,
		WithReceiverLogger(n.logger), WithReceiverMetrics(n.metrics))

	if err := n.recv.Start(ctx); err != nil {
		n.teardown(ctx)
		return nil, err
	}

	if err := n.awaitFirstFrame(ctx); err != nil {
		n.teardown(ctx)
		return nil, err
	}

	if err := n.settle(ctx); err != nil {
		n.teardown(ctx)
		return nil, err
	}

	n.logger.Info("node ready")
	return n, nil
}

// dial opens the real transport endpoints: the upstream data bus filtered on
// this node's name, the downstream command bus, and (when configured) the
// peer-mesh bus.
func (n *Node) dial(ctx context.Context) (*busSet, error) {
	buses := &busSet{}

	dataBus, err := busclient.Dial(ctx, n.cfg.SubAddr,
		busclient.WithName(n.cfg.Name+"-data"), busclient.WithLogger(n.logger))
	if err != nil {
		return nil, err
	}
	buses.closers = append(buses.closers, dataBus.Close)

	primary, err := dataBus.Subscribe(n.cfg.Name, 256)
	if err != nil {
		n.closeBuses(ctx, buses)
		return nil, err
	}
	buses.primary = primary

	cmdBus, err := busclient.Dial(ctx, n.cfg.PubAddr,
		busclient.WithName(n.cfg.Name+"-cmd"), busclient.WithLogger(n.logger))
	if err != nil {
		n.closeBuses(ctx, buses)
		return nil, err
	}
	buses.closers = append(buses.closers, cmdBus.Close)
	buses.cmd = cmdBus

	if n.cfg.MeshEnabled() {
		meshBus, err := busclient.Dial(ctx, n.cfg.MsgAddr,
			busclient.WithName(n.cfg.Name+"-mesh"), busclient.WithLogger(n.logger))
		if err != nil {
			n.closeBuses(ctx, buses)
			return nil, err
		}
		buses.closers = append(buses.closers, meshBus.Close)
		buses.meshPub = meshBus

		meshSub, err := meshBus.Subscribe(n.cfg.Name, n.cfg.InboxCapacity)
		if err != nil {
			n.closeBuses(ctx, buses)
			return nil, err
		}
		buses.meshSub = meshSub
	}

	return buses, nil
}

// awaitFirstFrame polls the connect latch at the fixed handshake interval
// until the first frame addressed to this node arrives, the configured
// timeout elapses, or ctx ends. A zero timeout means ctx alone bounds the
// wait.
func (n *Node) awaitFirstFrame(ctx context.Context) error {
	deadline := make(<-chan time.Time)
	if n.cfg.ConnectTimeout > 0 {
		timer := time.NewTimer(n.cfg.ConnectTimeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(config.DefaultPollInterval)
	defer ticker.Stop()

	n.logger.Info("waiting for data source")
	for {
		if n.store.Connected() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-deadline:
			return errors.WrapTransient(errors.ErrNoDataSource, "Node", "Connect",
				"handshake timed out after "+n.cfg.ConnectTimeout.String())
		case <-ctx.Done():
			return errors.WrapTransient(ctx.Err(), "Node", "Connect", "handshake cancelled")
		}
	}
}

// settle waits the post-connect period so the cache accumulates one full
// set of readings before the constructor returns.
func (n *Node) settle(ctx context.Context) error {
	if n.cfg.SettleTime <= 0 {
		return nil
	}
	timer := time.NewTimer(n.cfg.SettleTime)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Node", "Connect", "settle cancelled")
	}
}

// Name returns the node's bus identity.
func (n *Node) Name() string {
	return n.cfg.Name
}

// Connected reports whether the data source has been seen.
func (n *Node) Connected() bool {
	return n.store.Connected()
}

// LogPath returns the activity log location, empty when logging is off.
func (n *Node) LogPath() string {
	return n.log.Path()
}

// Sensor getters. All are snapshot reads: they copy under the cache lock and
// never block on the bus.

// Range returns the corrected proximity reading for one sensor. The full
// ordered sequence (the protocol's array request) is served by Ranges.
func (n *Node) Range(id int) float64 { return n.store.Range(id) }

// Ranges returns every corrected proximity reading.
func (n *Node) Ranges() []float64 { return n.store.Ranges() }

// RawValue returns one uncorrected proximity value.
func (n *Node) RawValue(id int) float64 { return n.store.RawValue(id) }

// RawValues returns every uncorrected proximity value.
func (n *Node) RawValues() []float64 { return n.store.RawValues() }

// ObjectWithRange returns the detected object type and corrected range for
// one proximity sensor.
func (n *Node) ObjectWithRange(id int) (int32, float64) { return n.store.ObjectWithRange(id) }

// VibrationFreq returns one vibration sensor's dominant frequency.
func (n *Node) VibrationFreq(id int) float64 { return n.store.VibrationFreq(id) }

// VibrationAmplitude returns one vibration sensor's amplitude.
func (n *Node) VibrationAmplitude(id int) float64 { return n.store.VibrationAmplitude(id) }

// VibrationReadings returns every vibration sensor measurement.
func (n *Node) VibrationReadings() []wire.VibrationReading { return n.store.VibrationReadings() }

// Encoders returns the latest wheel encoder pair.
func (n *Node) Encoders() wire.DiffDrive { return n.store.Encoders() }

// VelocityRef returns the latest velocity setpoint echo.
func (n *Node) VelocityRef() wire.DiffDrive { return n.store.VelocityRef() }

// Pose returns the latest ground-truth pose.
func (n *Node) Pose() wire.Pose { return n.store.Pose() }

// LightRGB returns the latest light sensor reading.
func (n *Node) LightRGB() wire.Color { return n.store.LightRGB() }

// ColorRef returns the latest body color echo.
func (n *Node) ColorRef() wire.Color { return n.store.ColorRef() }

// Eyes returns the latest left and right camera images.
func (n *Node) Eyes() (wire.CameraImage, wire.CameraImage) { return n.store.Eyes() }

// PerceivedObjects runs object detection over the latest camera snapshot:
// the two eye images are concatenated (left then right) and scanned for
// runs of pixels isObject classifies as object, split on depth
// discontinuities. Returns the perceived objects and the sum of their solid
// angles.
func (n *Node) PerceivedObjects(isObject func(wire.Color) bool, p vision.Params) ([]vision.Object, float64) {
	left, right := n.store.Eyes()
	if len(left.Pixel) == 0 && len(right.Pixel) == 0 {
		return nil, 0
	}

	pixels := make([]wire.Color, 0, len(left.Pixel)+len(right.Pixel))
	pixels = append(pixels, left.Pixel...)
	pixels = append(pixels, right.Pixel...)
	distances := make([]float64, 0, len(left.ZBuffer)+len(right.ZBuffer))
	distances = append(distances, left.ZBuffer...)
	distances = append(distances, right.ZBuffer...)

	return vision.Detect(func(i int) bool {
		if i >= len(pixels) {
			return false
		}
		return isObject(pixels[i])
	}, distances, p)
}

// Actuator setters. Each funnels through the command publisher, is clamped
// to its documented bounds, and is appended to the activity log.

// SetVelocity sets the differential-drive wheel velocities.
func (n *Node) SetVelocity(ctx context.Context, left, right float64) error {
	return n.pub.SetVelocity(ctx, left, right)
}

// SetLight sets the light actuator color.
func (n *Node) SetLight(ctx context.Context, c wire.Color) error {
	return n.pub.SetLight(ctx, c)
}

// SetDiagnosticLED sets the diagnostic indicator color.
func (n *Node) SetDiagnosticLED(ctx context.Context, c wire.Color) error {
	return n.pub.SetDiagnosticLED(ctx, c)
}

// SetColor sets the body color.
func (n *Node) SetColor(ctx context.Context, c wire.Color) error {
	return n.pub.SetColor(ctx, c)
}

// SetSpeaker sets the speaker vibration frequency and intensity.
func (n *Node) SetSpeaker(ctx context.Context, freq, intensity float64) error {
	return n.pub.SetSpeaker(ctx, freq, intensity)
}

// SetVibeMotor sets the vibration motor intensity.
func (n *Node) SetVibeMotor(ctx context.Context, intensity float64) error {
	return n.pub.SetVibeMotor(ctx, intensity)
}

// MeshEnabled reports whether the peer mesh is configured.
func (n *Node) MeshEnabled() bool {
	return n.peers.Enabled()
}

// SendMessage delivers payload to the neighbor in the given logical
// direction. False means the direction is unknown or the mesh is off.
func (n *Node) SendMessage(ctx context.Context, direction string, payload []byte) bool {
	return n.peers.Send(ctx, direction, payload)
}

// ReadMessage pops the oldest pending peer message; false when none.
func (n *Node) ReadMessage() (mesh.Message, bool) {
	return n.peers.Pop()
}

// Stop drives every stateful actuator to standby, stops the receiver, and
// closes the buses and the activity log, in that order. Idempotent.
func (n *Node) Stop(ctx context.Context) error {
	if !n.stopped.CompareAndSwap(false, true) {
		return nil
	}

	n.logger.Info("stopping node")

	var errs []error
	// Actuator-off commands must go out while the session is still live,
	// before the receiver is told to stop.
	if err := n.pub.Standby(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := n.recv.Stop(ctx); err != nil {
		errs = append(errs, err)
	}
	for _, closeBus := range n.buses.closers {
		if err := closeBus(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := n.log.Close(); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Wrap(errors.Join(errs...), "Node", "Stop", "shutdown")
	}
	return nil
}

// teardown releases everything Connect had acquired when construction fails
// partway.
func (n *Node) teardown(ctx context.Context) {
	if n.recv != nil && n.recv.started.Load() {
		_ = n.recv.Stop(ctx)
	}
	if n.buses != nil {
		for _, closeBus := range n.buses.closers {
			_ = closeBus(ctx)
		}
	}
	n.log.Close()
}

func (n *Node) closeBuses(ctx context.Context, buses *busSet) {
	for _, closeBus := range buses.closers {
		_ = closeBus(ctx)
	}
}
