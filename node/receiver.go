package node

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/plsm/assisi-go/actlog"
	"github.com/plsm/assisi-go/errors"
	"github.com/plsm/assisi-go/mesh"
	"github.com/plsm/assisi-go/metric"
	"github.com/plsm/assisi-go/readings"
	"github.com/plsm/assisi-go/wire"
)

// Subscription is the inbound half of the bus the receiver drains. Satisfied
// by busclient.Subscription and by test doubles.
type Subscription interface {
	Next(ctx context.Context) (wire.Frame, error)
	TryNext() (wire.Frame, bool)
}

// State is the receiver lifecycle. Transitions are forward-only:
// Disconnected → Connected → Stopped; the connect latch never reverts.
type State int32

// Receiver states.
const (
	StateDisconnected State = iota
	StateConnected
	StateStopped
)

// String returns the string representation of State.
func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// frameKey identifies one sensor stream for dispatch.
type frameKey struct {
	device  wire.Device
	command wire.Command
}

type frameHandler func(payload []byte) error

// Receiver is the node's background demultiplexer: one goroutine pulling
// frames from the primary subscription, dispatching them through a closed
// table built once at construction, and polling the mesh subscription once
// per iteration.
type Receiver struct {
	name    string
	primary Subscription
	meshSub Subscription

	store   *readings.Store
	peers   *mesh.Mesh
	log     *actlog.Log
	metrics *metric.Metrics
	logger  *slog.Logger

	dispatch map[frameKey]frameHandler

	state   atomic.Int32
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool
	stopped atomic.Bool
	wg      sync.WaitGroup
}

// ReceiverOption configures a Receiver.
type ReceiverOption func(*Receiver)

// WithReceiverLogger sets a custom logger.
func WithReceiverLogger(logger *slog.Logger) ReceiverOption {
	return func(r *Receiver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithReceiverMetrics attaches receive-path counters.
func WithReceiverMetrics(met *metric.Metrics) ReceiverOption {
	return func(r *Receiver) {
		r.metrics = met
	}
}

// NewReceiver wires the demultiplexer for the named node. meshSub and peers
// may be nil when the mesh is not configured; log may be nil when logging is
// disabled.
func NewReceiver(name string, primary Subscription, meshSub Subscription,
	store *readings.Store, peers *mesh.Mesh, log *actlog.Log, opts ...ReceiverOption,
) *Receiver {
	r := &Receiver{
		name:    name,
		primary: primary,
		meshSub: meshSub,
		store:   store,
		peers:   peers,
		log:     log,
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.dispatch = r.buildDispatch()
	return r
}

// buildDispatch constructs the closed (device, command) → handler table.
// The vocabulary is fixed; anything outside it is counted and logged by the
// loop, never dispatched.
func (r *Receiver) buildDispatch() map[frameKey]frameHandler {
	return map[frameKey]frameHandler{
		{wire.DeviceRange, wire.CommandRanges}: func(payload []byte) error {
			v, err := wire.Decode[wire.RangeArray](payload)
			if err != nil {
				return err
			}
			r.store.SetRanges(v)
			r.log.Record(actlog.TagIRRange, v.Range...)
			r.log.Record(actlog.TagIRRaw, v.RawValue...)
			return nil
		},
		{wire.DeviceVibration, wire.CommandMeasurements}: func(payload []byte) error {
			v, err := wire.Decode[wire.VibrationArray](payload)
			if err != nil {
				return err
			}
			r.store.SetVibration(v)
			freqs := make([]float64, len(v.Reading))
			amps := make([]float64, len(v.Reading))
			for i, reading := range v.Reading {
				freqs[i] = reading.Freq
				amps[i] = reading.Amplitude
			}
			r.log.Record(actlog.TagAccFreq, freqs...)
			r.log.Record(actlog.TagAccAmp, amps...)
			return nil
		},
		{wire.DeviceBase, wire.CommandEncoders}: func(payload []byte) error {
			v, err := wire.Decode[wire.DiffDrive](payload)
			if err != nil {
				return err
			}
			r.store.SetEncoders(v)
			return nil
		},
		{wire.DeviceBase, wire.CommandGroundTruth}: func(payload []byte) error {
			v, err := wire.Decode[wire.Pose](payload)
			if err != nil {
				return err
			}
			r.store.SetPose(v)
			return nil
		},
		{wire.DeviceBase, wire.CommandVelocityRef}: func(payload []byte) error {
			v, err := wire.Decode[wire.DiffDrive](payload)
			if err != nil {
				return err
			}
			r.store.SetVelocityRef(v)
			return nil
		},
		{wire.DeviceLight, wire.CommandReadings}: func(payload []byte) error {
			v, err := wire.Decode[wire.Color](payload)
			if err != nil {
				return err
			}
			r.store.SetLight(v)
			return nil
		},
		{wire.DeviceColor, wire.CommandColorValue}: func(payload []byte) error {
			v, err := wire.Decode[wire.Color](payload)
			if err != nil {
				return err
			}
			r.store.SetColorRef(v)
			return nil
		},
		{wire.DeviceEye, wire.CommandLeft}: func(payload []byte) error {
			v, err := wire.Decode[wire.CameraImage](payload)
			if err != nil {
				return err
			}
			r.store.SetEye(wire.CommandLeft, v)
			return nil
		},
		{wire.DeviceEye, wire.CommandRight}: func(payload []byte) error {
			v, err := wire.Decode[wire.CameraImage](payload)
			if err != nil {
				return err
			}
			r.store.SetEye(wire.CommandRight, v)
			return nil
		},
	}
}

// Start launches the receive loop. Returns ErrAlreadyStarted on a second
// call.
func (r *Receiver) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Receiver", "Start", "start receive loop")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.wg.Add(1)
	go r.run(loopCtx)
	return nil
}

// Stop requests a cooperative shutdown and waits for the loop to join, or
// for ctx to end. Safe to call more than once.
func (r *Receiver) Stop(ctx context.Context) error {
	if !r.started.Load() {
		return errors.WrapInvalid(errors.ErrAlreadyStopped, "Receiver", "Stop", "receiver never started")
	}
	if !r.stopped.CompareAndSwap(false, true) {
		return nil
	}

	r.cancel()

	joined := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(joined)
	}()

	select {
	case <-joined:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Receiver", "Stop", "wait for loop to join")
	}
}

// State returns the current lifecycle state.
func (r *Receiver) State() State {
	return State(r.state.Load())
}

// Done is closed when the receive loop has exited.
func (r *Receiver) Done() <-chan struct{} {
	return r.done
}

func (r *Receiver) run(ctx context.Context) {
	defer r.wg.Done()
	defer close(r.done)
	defer r.state.Store(int32(StateStopped))

	r.logger.Debug("receive loop started", "node", r.name)

	for {
		f, err := r.primary.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				r.logger.Debug("receive loop stopping", "node", r.name)
			} else {
				r.logger.Error("primary subscription failed", "node", r.name, "error", err)
			}
			return
		}

		r.handle(f)

		// One non-blocking mesh poll per primary frame. Nothing pending is
		// the normal case.
		if r.meshSub != nil {
			if mf, ok := r.meshSub.TryNext(); ok {
				r.peers.Enqueue(mf)
			}
		}
	}
}

// handle classifies one frame. The connect latch fires on the first frame
// addressed to this node, recognized or not.
func (r *Receiver) handle(f wire.Frame) {
	if f.Target != r.name {
		return
	}

	if r.state.CompareAndSwap(int32(StateDisconnected), int32(StateConnected)) {
		r.store.MarkConnected()
		if r.metrics != nil {
			r.metrics.Connected.Set(1)
		}
		r.logger.Info("data source connected", "node", r.name)
	}

	if r.metrics != nil {
		r.metrics.FramesReceived.WithLabelValues(string(f.Device), string(f.Command)).Inc()
	}

	// Message frames carry the sender name in the command slot, outside the
	// closed vocabulary, so they route straight to the mesh inbox.
	if f.Device == wire.DeviceMessage {
		r.peers.Enqueue(f)
		return
	}

	handler, ok := r.dispatch[frameKey{f.Device, f.Command}]
	if !ok {
		r.logger.Warn("unrecognized frame",
			"node", r.name, "device", f.Device, "command", f.Command)
		if r.metrics != nil {
			r.metrics.FramesUnknown.Inc()
		}
		return
	}

	if err := handler(f.Payload); err != nil {
		r.logger.Warn("payload decode failed",
			"node", r.name, "device", f.Device, "command", f.Command, "error", err)
		if r.metrics != nil {
			r.metrics.DecodeErrors.Inc()
		}
	}
}
