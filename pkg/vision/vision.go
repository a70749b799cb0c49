// Package vision extracts perceived-object intervals from circular-camera
// pixel rows. Detection is a pure function over the pixel/distance sequence;
// no state is shared between calls.
package vision

import "math"

// Object is one perceived run of object pixels: the bearing of its center
// and the solid angle it subtends, both in radians.
type Object struct {
	Bearing    float64
	SolidAngle float64
}

// Params describes the camera geometry and the segmentation threshold.
type Params struct {
	// FieldOfView is the angular coverage of one eye, in radians.
	FieldOfView float64

	// PixelCount is the number of pixels per eye; the scan covers
	// 2*PixelCount pixels (left eye then right eye).
	PixelCount int

	// DepthThreshold splits one pixel run into two objects when the
	// distance spread inside the run exceeds it.
	DepthThreshold float64
}

// DefaultParams matches the simulator's circular cameras: two eyes covering
// 270 degrees with 10 pixels each.
func DefaultParams() Params {
	return Params{
		FieldOfView:    3 * math.Pi / 4,
		PixelCount:     10,
		DepthThreshold: 1.0,
	}
}

// Detect scans the pixel row and returns the perceived objects plus the sum
// of their solid angles. isObject classifies pixel i; distances holds the
// z-buffer value per pixel. Pixels are scanned from the leftmost bearing
// (+FieldOfView) to the rightmost (-FieldOfView), matching the camera order.
func Detect(isObject func(i int) bool, distances []float64, p Params) ([]Object, float64) {
	if p.PixelCount <= 0 || len(distances) < 2*p.PixelCount {
		return nil, 0
	}

	step := p.FieldOfView / float64(p.PixelCount)
	var (
		objects    []Object
		sumAngles  float64
		inRun      bool
		runStart   float64
		runMinDist float64
		runMaxDist float64
	)

	endRun := func(endAngle float64) {
		mu := (runStart + endAngle) / 2
		solid := runStart - endAngle + step
		objects = append(objects, Object{Bearing: mu, SolidAngle: solid})
		sumAngles += solid
		inRun = false
	}

	angle := p.FieldOfView
	for i := 0; i < 2*p.PixelCount; i++ {
		if isObject(i) {
			d := distances[i]
			if inRun && math.Max(runMaxDist, d)-math.Min(runMinDist, d) > p.DepthThreshold {
				// Depth discontinuity: same color run, different object.
				endRun(angle + step)
			}
			if !inRun {
				inRun = true
				runStart = angle
				runMinDist = d
				runMaxDist = d
			} else {
				runMaxDist = math.Max(runMaxDist, d)
				runMinDist = math.Min(runMinDist, d)
			}
		} else if inRun {
			endRun(angle + step)
		}
		angle -= step
	}
	if inRun {
		endRun(angle + step)
	}

	return objects, sumAngles
}
