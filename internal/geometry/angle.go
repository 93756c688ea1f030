// Package geometry holds the vector math used to turn landmarks into joint angles.
package geometry

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/spatial/r3"
)

// Angle returns the angle in degrees at vertex b between the rays b->a and b->c.
// The result is in [0, 180]. If either ray has zero length the angle is 0.
func Angle(a, b, c r3.Vec) float64 {
	ba := r3.Sub(a, b)
	bc := r3.Sub(c, b)

	nba := r3.Norm(ba)
	nbc := r3.Norm(bc)
	if nba == 0 || nbc == 0 {
		return 0
	}

	cos := r3.Dot(ba, bc) / (nba * nbc)
	cos = math.Max(-1, math.Min(1, cos))
	return math.Acos(cos) * 180 / math.Pi
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b r3.Vec) float64 {
	return r3.Norm(r3.Sub(a, b))
}

// MaxStep returns the largest displacement between consecutive points of trace.
// Traces with fewer than two points have no steps and return 0.
func MaxStep(trace []r3.Vec) float64 {
	if len(trace) < 2 {
		return 0
	}
	steps := make([]float64, len(trace)-1)
	for i := 1; i < len(trace); i++ {
		steps[i-1] = Distance(trace[i], trace[i-1])
	}
	return floats.Max(steps)
}
