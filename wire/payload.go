package wire

import (
	"encoding/json"

	"github.com/plsm/assisi-go/errors"
)

// RangeArray is the payload of IR/Ranges frames: one calibrated range and one
// raw value per proximity sensor, plus the sensor's maximum range and the
// type of object detected (when the source reports it).
type RangeArray struct {
	Range      []float64 `json:"range"`
	RawValue   []float64 `json:"raw_value"`
	ObjectType []int32   `json:"object_type,omitempty"`
	MaxRange   float64   `json:"max_range"`
}

// VibrationReading is one vibration sensor's measurement.
type VibrationReading struct {
	Freq      float64 `json:"freq"`
	Amplitude float64 `json:"amplitude"`
}

// VibrationArray is the payload of Acc/Measurements frames.
type VibrationArray struct {
	Reading []VibrationReading `json:"reading"`
}

// DiffDrive is a differential-drive wheel velocity pair, used both for
// encoder readings (Base/Enc), velocity setpoint echoes (Base/VelRef) and
// outbound velocity commands (Base/Vel).
type DiffDrive struct {
	VelLeft  float64 `json:"vel_left"`
	VelRight float64 `json:"vel_right"`
}

// Pose is the payload of Base/GroundTruth frames: the node's true planar
// pose in the world.
type Pose struct {
	X   float64 `json:"x"`
	Y   float64 `json:"y"`
	Yaw float64 `json:"yaw"`
}

// Color is an RGB intensity triple with unit-range channels. Used for light
// sensor readings, light/LED commands and diagnostic color setpoints.
type Color struct {
	Red   float64 `json:"red"`
	Green float64 `json:"green"`
	Blue  float64 `json:"blue"`
}

// VibrationSetpoint is the payload of Speaker/VibeMotor commands.
type VibrationSetpoint struct {
	Freq      float64 `json:"freq"`
	Amplitude float64 `json:"amplitude"`
}

// CameraImage is the payload of Eye frames: per-pixel color and distance
// from one circular camera.
type CameraImage struct {
	Pixel   []Color   `json:"pixel"`
	ZBuffer []float64 `json:"zbuffer"`
}

// Encode serializes a payload value to bytes. Every message kind shares the
// same encoding capability; the receiver decodes by kind through the typed
// Decode helper.
func Encode(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, errors.WrapInvalid(err, "wire", "Encode", "marshal payload")
	}
	return data, nil
}

// Decode deserializes payload bytes into the typed value for one message
// kind. A decode error never carries partial data to the caller.
func Decode[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		var zero T
		return zero, errors.WrapInvalid(errors.ErrDecodeFailed, "wire", "Decode", err.Error())
	}
	return v, nil
}
