package vision

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pixels(flags ...bool) func(int) bool {
	return func(i int) bool { return flags[i] }
}

func TestDetect_NoObjects(t *testing.T) {
	p := Params{FieldOfView: math.Pi / 2, PixelCount: 2, DepthThreshold: 1}
	objects, sum := Detect(pixels(false, false, false, false), make([]float64, 4), p)
	assert.Empty(t, objects)
	assert.Zero(t, sum)
}

func TestDetect_SingleRun(t *testing.T) {
	p := Params{FieldOfView: math.Pi / 2, PixelCount: 2, DepthThreshold: 1}
	step := p.FieldOfView / float64(p.PixelCount)

	// One object covering pixels 1 and 2.
	objects, sum := Detect(pixels(false, true, true, false), []float64{0, 5, 5.2, 0}, p)

	require.Len(t, objects, 1)
	start := p.FieldOfView - step     // angle of pixel 1
	end := p.FieldOfView - 2*step     // angle of pixel 2
	assert.InDelta(t, (start+end)/2, objects[0].Bearing, 1e-9)
	assert.InDelta(t, start-end+step, objects[0].SolidAngle, 1e-9)
	assert.InDelta(t, objects[0].SolidAngle, sum, 1e-9)
}

func TestDetect_DepthDiscontinuitySplitsRun(t *testing.T) {
	p := Params{FieldOfView: math.Pi / 2, PixelCount: 2, DepthThreshold: 1}

	// Adjacent object pixels at very different depths are two objects.
	objects, _ := Detect(pixels(true, true, false, false), []float64{2, 9, 0, 0}, p)
	assert.Len(t, objects, 2)
}

func TestDetect_RunReachingLastPixelCloses(t *testing.T) {
	p := Params{FieldOfView: math.Pi / 2, PixelCount: 2, DepthThreshold: 1}

	objects, sum := Detect(pixels(false, false, false, true), []float64{0, 0, 0, 3}, p)

	require.Len(t, objects, 1)
	step := p.FieldOfView / float64(p.PixelCount)
	last := p.FieldOfView - 3*step
	assert.InDelta(t, last, objects[0].Bearing, 1e-9)
	assert.InDelta(t, step, objects[0].SolidAngle, 1e-9)
	assert.InDelta(t, step, sum, 1e-9)
}

func TestDetect_PureAcrossCalls(t *testing.T) {
	p := Params{FieldOfView: math.Pi / 2, PixelCount: 2, DepthThreshold: 1}
	isObj := pixels(true, false, true, false)
	dist := []float64{1, 0, 2, 0}

	first, firstSum := Detect(isObj, dist, p)
	second, secondSum := Detect(isObj, dist, p)

	assert.Equal(t, first, second, "no accumulator state may leak between calls")
	assert.Equal(t, firstSum, secondSum)
	assert.Len(t, first, 2)
}

func TestDetect_ShortInput(t *testing.T) {
	p := DefaultParams()
	objects, sum := Detect(func(int) bool { return true }, []float64{1, 2, 3}, p)
	assert.Nil(t, objects)
	assert.Zero(t, sum)
}
