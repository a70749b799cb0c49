// Package readings holds the thread-safe latest-value cache for all sensor
// streams of one node. The receiver is the only writer; any goroutine may
// snapshot. One mutex guards every field, held only for the duration of a
// single field update or snapshot copy, never across a decode or an I/O call.
package readings

import (
	"sync"

	"github.com/plsm/assisi-go/wire"
)

// Sensor and actuator indices carried over from the device protocol.
const (
	IRFront      = 0 // range sensor pointing to 0 degrees
	IRFrontRight = 1 // 45 degrees
	IRBackRight  = 2 // 135 degrees
	IRBack       = 3 // 180 degrees
	IRBackLeft   = 4 // 225 degrees
	IRFrontLeft  = 5 // 270 degrees

	LightActuator = 6
	DLEDTop       = 7

	AccFront = 16 // vibration sensor at 0 degrees
	AccRight = 17 // 90 degrees
	AccBack  = 18 // 180 degrees
	AccLeft  = 19 // 270 degrees

	VibeActuator = 20

	// Array is the reserved sentinel requesting the full ordered sequence of
	// per-sensor values instead of one scalar. Scalar getters treat it (and
	// any other out-of-range index) as "no data"; the slice getters serve
	// the full-sequence request.
	Array = 10000
)

// NoData is the sentinel returned by scalar getters before the first frame
// for that stream arrives.
const NoData = -1

// epsilon below which a proximity range is treated as sensor noise meaning
// "no obstacle" and substituted with the maximum range.
const rangeEpsilon = 1e-6

// Store is the mutually-exclusive, versioned cache of the latest decoded
// value for each sensor stream. Values are fully decoded before they reach
// the store, so no snapshot can observe a partial decode.
type Store struct {
	mu sync.Mutex

	connected bool

	ranges    wire.RangeArray
	vibration wire.VibrationArray
	encoders  wire.DiffDrive
	velRef    wire.DiffDrive
	pose      wire.Pose
	light     wire.Color
	colorRef  wire.Color
	leftEye   wire.CameraImage
	rightEye  wire.CameraImage

	// defaultMaxRange substitutes near-zero proximity readings when the
	// reading itself doesn't carry a ceiling.
	defaultMaxRange float64
}

// New creates an empty store. maxRange is the fallback proximity ceiling
// used by range correction.
func New(maxRange float64) *Store {
	return &Store{defaultMaxRange: maxRange}
}

// MarkConnected latches the connected flag. The flag never reverts for the
// node's lifetime, regardless of subsequent frame loss.
func (s *Store) MarkConnected() {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
}

// Connected reports whether at least one frame addressed to this node has
// been received.
func (s *Store) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

// SetRanges replaces the proximity readings.
func (s *Store) SetRanges(v wire.RangeArray) {
	s.mu.Lock()
	s.ranges = v
	s.connected = true
	s.mu.Unlock()
}

// SetVibration replaces the vibration sensor readings.
func (s *Store) SetVibration(v wire.VibrationArray) {
	s.mu.Lock()
	s.vibration = v
	s.connected = true
	s.mu.Unlock()
}

// SetEncoders replaces the wheel encoder readings.
func (s *Store) SetEncoders(v wire.DiffDrive) {
	s.mu.Lock()
	s.encoders = v
	s.connected = true
	s.mu.Unlock()
}

// SetVelocityRef replaces the echoed velocity setpoint.
func (s *Store) SetVelocityRef(v wire.DiffDrive) {
	s.mu.Lock()
	s.velRef = v
	s.connected = true
	s.mu.Unlock()
}

// SetPose replaces the ground-truth pose.
func (s *Store) SetPose(v wire.Pose) {
	s.mu.Lock()
	s.pose = v
	s.connected = true
	s.mu.Unlock()
}

// SetLight replaces the light sensor reading.
func (s *Store) SetLight(v wire.Color) {
	s.mu.Lock()
	s.light = v
	s.connected = true
	s.mu.Unlock()
}

// SetColorRef replaces the echoed diagnostic color setpoint.
func (s *Store) SetColorRef(v wire.Color) {
	s.mu.Lock()
	s.colorRef = v
	s.connected = true
	s.mu.Unlock()
}

// SetEye replaces one eye's camera image.
func (s *Store) SetEye(cmd wire.Command, v wire.CameraImage) {
	s.mu.Lock()
	if cmd == wire.CommandLeft {
		s.leftEye = v
	} else {
		s.rightEye = v
	}
	s.connected = true
	s.mu.Unlock()
}

// correctRange substitutes near-zero readings with the maximum range. A
// range of (near-)zero means "no obstacle", not "obstacle at zero distance".
func (s *Store) correctRange(r, maxRange float64) float64 {
	if r < rangeEpsilon {
		if maxRange > 0 {
			return maxRange
		}
		return s.defaultMaxRange
	}
	return r
}

// Range returns the corrected range reading for one sensor, or NoData when
// no reading has arrived or the index is out of bounds. The full ordered
// sequence (the protocol's Array request) is served by Ranges.
func (s *Store) Range(id int) float64 {
	s.mu.Lock()
	var (
		r        = float64(NoData)
		maxRange float64
		ok       bool
	)
	if id >= 0 && id < len(s.ranges.Range) {
		r = s.ranges.Range[id]
		maxRange = s.ranges.MaxRange
		ok = true
	}
	s.mu.Unlock()

	if !ok {
		return NoData
	}
	return s.correctRange(r, maxRange)
}

// Ranges returns the full corrected range sequence, or nil when no reading
// has arrived yet.
func (s *Store) Ranges() []float64 {
	s.mu.Lock()
	out := append([]float64(nil), s.ranges.Range...)
	maxRange := s.ranges.MaxRange
	s.mu.Unlock()

	for i, r := range out {
		out[i] = s.correctRange(r, maxRange)
	}
	return out
}

// RawValue returns one sensor's raw IR value, uncorrected, or NoData.
func (s *Store) RawValue(id int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id < 0 || id >= len(s.ranges.RawValue) {
		return NoData
	}
	return s.ranges.RawValue[id]
}

// RawValues returns the full raw IR sequence, or nil.
func (s *Store) RawValues() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]float64(nil), s.ranges.RawValue...)
}

// ObjectWithRange returns the detected object type and corrected range for
// one sensor. The object type is NoData when the source doesn't report one.
func (s *Store) ObjectWithRange(id int) (int32, float64) {
	s.mu.Lock()
	var (
		obj      int32 = NoData
		r              = float64(NoData)
		maxRange float64
		ok       bool
	)
	if id >= 0 && id < len(s.ranges.Range) {
		r = s.ranges.Range[id]
		maxRange = s.ranges.MaxRange
		ok = true
		if id < len(s.ranges.ObjectType) {
			obj = s.ranges.ObjectType[id]
		}
	}
	s.mu.Unlock()

	if !ok {
		return NoData, NoData
	}
	return obj, s.correctRange(r, maxRange)
}

// VibrationFreq returns the vibration frequency reported by one sensor.
// Sensor ids use the Acc* constants; out-of-range ids return NoData.
func (s *Store) VibrationFreq(id int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := id - AccFront; i >= 0 && i < len(s.vibration.Reading) {
		return s.vibration.Reading[i].Freq
	}
	return NoData
}

// VibrationAmplitude returns the vibration amplitude reported by one sensor.
func (s *Store) VibrationAmplitude(id int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := id - AccFront; i >= 0 && i < len(s.vibration.Reading) {
		return s.vibration.Reading[i].Amplitude
	}
	return NoData
}

// VibrationReadings returns the full vibration reading sequence, or nil.
func (s *Store) VibrationReadings() []wire.VibrationReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]wire.VibrationReading(nil), s.vibration.Reading...)
}

// Encoders returns the latest wheel encoder readings.
func (s *Store) Encoders() wire.DiffDrive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encoders
}

// VelocityRef returns the latest echoed velocity setpoint.
func (s *Store) VelocityRef() wire.DiffDrive {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.velRef
}

// Pose returns the latest ground-truth pose.
func (s *Store) Pose() wire.Pose {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pose
}

// LightRGB returns the latest light sensor reading.
func (s *Store) LightRGB() wire.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.light
}

// ColorRef returns the latest echoed diagnostic color setpoint.
func (s *Store) ColorRef() wire.Color {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.colorRef
}

// Eyes returns copies of both camera images (left, right).
func (s *Store) Eyes() (wire.CameraImage, wire.CameraImage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	left := wire.CameraImage{
		Pixel:   append([]wire.Color(nil), s.leftEye.Pixel...),
		ZBuffer: append([]float64(nil), s.leftEye.ZBuffer...),
	}
	right := wire.CameraImage{
		Pixel:   append([]wire.Color(nil), s.rightEye.Pixel...),
		ZBuffer: append([]float64(nil), s.rightEye.ZBuffer...),
	}
	return left, right
}
