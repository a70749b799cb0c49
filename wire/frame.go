// Package wire defines the frame format and payload codecs exchanged between
// a node and its data source. A frame is one addressed, typed, multi-part
// message; on the NATS transport the routing triplet maps onto the subject
// "<target>.<device>.<command>" and the payload travels as the message body.
package wire

import (
	"strings"

	"github.com/plsm/assisi-go/errors"
)

// Device identifies a device category on the node. The vocabulary is closed:
// unrecognized combinations are logged by the receiver, not rejected by the
// transport.
type Device string

// Device identifiers.
const (
	DeviceRange     Device = "IR"
	DeviceVibration Device = "Acc"
	DeviceBase      Device = "Base"
	DeviceLight     Device = "Light"
	DeviceColor     Device = "Color"
	DeviceDLED      Device = "DiagnosticLed"
	DeviceSpeaker   Device = "Speaker"
	DeviceVibeMotor Device = "VibeMotor"
	DeviceEye       Device = "Eye"

	// DeviceMessage carries peer-mesh text messages. For message frames the
	// command slot holds the sender's physical name.
	DeviceMessage Device = "Message"
)

// Command identifies an operation within a device category.
type Command string

// Command identifiers.
const (
	CommandRanges       Command = "Ranges"
	CommandMeasurements Command = "Measurements"
	CommandEncoders     Command = "Enc"
	CommandGroundTruth  Command = "GroundTruth"
	CommandVelocityRef  Command = "VelRef"
	CommandReadings     Command = "Readings"
	CommandColorValue   Command = "ColorVal"
	CommandVelocity     Command = "Vel"
	CommandSet          Command = "Set"
	CommandOn           Command = "On"
	CommandOff          Command = "Off"
	CommandLeft         Command = "Left"
	CommandRight        Command = "Right"
)

// Frame is one addressed multi-part message: recipient name, device
// identifier, command identifier, opaque payload bytes. Frames are immutable
// once read off the bus.
type Frame struct {
	Target  string
	Device  Device
	Command Command
	Payload []byte
}

// Subject returns the NATS subject this frame is routed on.
func (f Frame) Subject() string {
	return f.Target + "." + string(f.Device) + "." + string(f.Command)
}

// ParseSubject splits a three-token subject back into the routing triplet.
func ParseSubject(subject string) (target string, device Device, command Command, err error) {
	parts := strings.Split(subject, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", errors.WrapInvalid(errors.ErrInvalidFrame, "wire", "ParseSubject", "split subject "+subject)
	}
	return parts[0], Device(parts[1]), Command(parts[2]), nil
}
