package node

import (
	"context"
	"log/slog"

	"github.com/plsm/assisi-go/actlog"
	"github.com/plsm/assisi-go/errors"
	"github.com/plsm/assisi-go/metric"
	"github.com/plsm/assisi-go/wire"
)

// Bus is the outbound half of the command transport. Satisfied by
// busclient.Client and by test doubles.
type Bus interface {
	Publish(ctx context.Context, f wire.Frame) error
}

// Setpoint bounds. Out-of-range input is clamped and logged, never rejected.
const (
	maxVibrationFreq      = 500
	maxVibrationIntensity = 100
)

// CommandPublisher encodes and publishes actuator command frames addressed
// to the node's own name. It is stateless beyond the bus handle; the
// transport determines final routing.
type CommandPublisher struct {
	name    string
	bus     Bus
	log     *actlog.Log
	metrics *metric.Metrics
	logger  *slog.Logger
}

// PublisherOption configures a CommandPublisher.
type PublisherOption func(*CommandPublisher)

// WithPublisherLogger sets a custom logger.
func WithPublisherLogger(logger *slog.Logger) PublisherOption {
	return func(p *CommandPublisher) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithPublisherMetrics attaches command-path counters.
func WithPublisherMetrics(met *metric.Metrics) PublisherOption {
	return func(p *CommandPublisher) {
		p.metrics = met
	}
}

// NewCommandPublisher wires the actuator command funnel for the named node.
// log may be nil when logging is disabled.
func NewCommandPublisher(name string, bus Bus, log *actlog.Log, opts ...PublisherOption) *CommandPublisher {
	p := &CommandPublisher{
		name:   name,
		bus:    bus,
		log:    log,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// send is the single funnel every actuator setter goes through.
func (p *CommandPublisher) send(ctx context.Context, device wire.Device, command wire.Command, v any) error {
	payload, err := wire.Encode(v)
	if err != nil {
		return errors.WrapInvalid(err, "CommandPublisher", "send", "encode "+string(device)+"/"+string(command))
	}
	err = p.bus.Publish(ctx, wire.Frame{
		Target:  p.name,
		Device:  device,
		Command: command,
		Payload: payload,
	})
	if err != nil {
		return errors.WrapTransient(err, "CommandPublisher", "send", "publish "+string(device)+"/"+string(command))
	}
	if p.metrics != nil {
		p.metrics.CommandsPublished.WithLabelValues(string(device), string(command)).Inc()
	}
	return nil
}

// SetVelocity publishes a differential-drive velocity setpoint.
func (p *CommandPublisher) SetVelocity(ctx context.Context, left, right float64) error {
	if err := p.send(ctx, wire.DeviceBase, wire.CommandVelocity, wire.DiffDrive{VelLeft: left, VelRight: right}); err != nil {
		return err
	}
	p.log.Record(actlog.TagVelocityRef, left, right)
	return nil
}

// SetLight publishes a light actuator color. Channels are clamped to [0,1].
func (p *CommandPublisher) SetLight(ctx context.Context, c wire.Color) error {
	c = p.clampColor("light", c)
	if err := p.send(ctx, wire.DeviceLight, wire.CommandOn, c); err != nil {
		return err
	}
	p.log.Record(actlog.TagLightRef, c.Red, c.Green, c.Blue)
	return nil
}

// LightStandby turns the light actuator off.
func (p *CommandPublisher) LightStandby(ctx context.Context) error {
	if err := p.send(ctx, wire.DeviceLight, wire.CommandOff, struct{}{}); err != nil {
		return err
	}
	p.log.Record(actlog.TagLightRef, 0, 0, 0)
	return nil
}

// SetDiagnosticLED publishes a diagnostic indicator color. Channels are
// clamped to [0,1].
func (p *CommandPublisher) SetDiagnosticLED(ctx context.Context, c wire.Color) error {
	c = p.clampColor("diagnostic led", c)
	if err := p.send(ctx, wire.DeviceDLED, wire.CommandOn, c); err != nil {
		return err
	}
	p.log.Record(actlog.TagDLEDRef, c.Red, c.Green, c.Blue)
	return nil
}

// DiagnosticLEDStandby turns the diagnostic indicator off.
func (p *CommandPublisher) DiagnosticLEDStandby(ctx context.Context) error {
	if err := p.send(ctx, wire.DeviceDLED, wire.CommandOff, struct{}{}); err != nil {
		return err
	}
	p.log.Record(actlog.TagDLEDRef, 0, 0, 0)
	return nil
}

// SetColor publishes a body color setpoint. Channels are clamped to [0,1].
func (p *CommandPublisher) SetColor(ctx context.Context, c wire.Color) error {
	c = p.clampColor("color", c)
	if err := p.send(ctx, wire.DeviceColor, wire.CommandSet, c); err != nil {
		return err
	}
	p.log.Record(actlog.TagColorRef, c.Red, c.Green, c.Blue)
	return nil
}

// SetSpeaker publishes a speaker vibration setpoint. Frequency is clamped
// to [0,500] Hz, intensity to [0,100].
func (p *CommandPublisher) SetSpeaker(ctx context.Context, freq, intensity float64) error {
	freq = p.clamp("speaker freq", freq, 0, maxVibrationFreq)
	intensity = p.clamp("speaker intensity", intensity, 0, maxVibrationIntensity)
	sp := wire.VibrationSetpoint{Freq: freq, Amplitude: intensity}
	if err := p.send(ctx, wire.DeviceSpeaker, wire.CommandOn, sp); err != nil {
		return err
	}
	p.log.Record(actlog.TagSpeakerRef, freq, intensity)
	return nil
}

// SpeakerStandby stops the speaker.
func (p *CommandPublisher) SpeakerStandby(ctx context.Context) error {
	if err := p.send(ctx, wire.DeviceSpeaker, wire.CommandOff, struct{}{}); err != nil {
		return err
	}
	p.log.Record(actlog.TagSpeakerRef, 0, 0)
	return nil
}

// SetVibeMotor publishes a vibration motor intensity, clamped to [0,100].
func (p *CommandPublisher) SetVibeMotor(ctx context.Context, intensity float64) error {
	intensity = p.clamp("vibe intensity", intensity, 0, maxVibrationIntensity)
	sp := wire.VibrationSetpoint{Amplitude: intensity}
	if err := p.send(ctx, wire.DeviceVibeMotor, wire.CommandOn, sp); err != nil {
		return err
	}
	p.log.Record(actlog.TagVibeIntens, intensity)
	return nil
}

// VibeMotorStandby stops the vibration motor.
func (p *CommandPublisher) VibeMotorStandby(ctx context.Context) error {
	if err := p.send(ctx, wire.DeviceVibeMotor, wire.CommandOff, struct{}{}); err != nil {
		return err
	}
	p.log.Record(actlog.TagVibeRef, 0)
	return nil
}

// Standby drives every stateful actuator to its safe/off setpoint. Failures
// are collected, not short-circuited: each actuator still gets its off
// command.
func (p *CommandPublisher) Standby(ctx context.Context) error {
	var errs []error
	for _, off := range []func(context.Context) error{
		p.VibeMotorStandby,
		p.SpeakerStandby,
		p.LightStandby,
		p.DiagnosticLEDStandby,
	} {
		if err := off(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (p *CommandPublisher) clampColor(what string, c wire.Color) wire.Color {
	c.Red = p.clamp(what+" red", c.Red, 0, 1)
	c.Green = p.clamp(what+" green", c.Green, 0, 1)
	c.Blue = p.clamp(what+" blue", c.Blue, 0, 1)
	return c
}

func (p *CommandPublisher) clamp(what string, v, lo, hi float64) float64 {
	clamped := v
	if clamped < lo {
		clamped = lo
	}
	if clamped > hi {
		clamped = hi
	}
	if clamped != v {
		p.logger.Warn("setpoint out of range, clamped",
			"setpoint", what, "value", v, "clamped", clamped)
		if p.metrics != nil {
			p.metrics.SetpointsClamped.Inc()
		}
	}
	return clamped
}
