// Package rep turns a stream of pose frames into scored repetitions.
package rep

import (
	"errors"
	"fmt"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/geometry"
	"github.com/claude/posereps/internal/models"
)

// ErrMissingLandmark means a frame lacks a landmark the exercise needs.
// Such frames are treated as if no pose had been detected.
var ErrMissingLandmark = errors.New("missing landmark")

// Sample is everything one frame contributes to the state machine.
type Sample struct {
	At time.Time
	// Value is the primary joint angle in degrees, or the signed lateral
	// deviation for deviation exercises.
	Value float64

	Tracked    r3.Vec
	HasTracked bool
	// ReferenceLength is the stability reference segment length in this frame.
	ReferenceLength float64

	AuxAngle float64
	HasAux   bool
}

// Measure extracts a Sample from frame according to def.
func Measure(def exercise.Definition, frame models.PoseFrame) (Sample, error) {
	pts := make(map[models.LandmarkName]r3.Vec, 8)
	for _, name := range def.RequiredLandmarks() {
		p, ok := frame.Point(name)
		if !ok {
			return Sample{}, fmt.Errorf("%w: %s", ErrMissingLandmark, name)
		}
		pts[name] = p
	}

	s := Sample{At: frame.Time}
	switch def.Kind {
	case exercise.KindLateralDeviation:
		d := def.Deviation
		mid := r3.Scale(0.5, r3.Add(pts[d.Left], pts[d.Right]))
		s.Value = pts[d.Marker].X - mid.X
	default:
		t := def.Primary
		s.Value = geometry.Angle(pts[t.A], pts[t.Vertex], pts[t.C])
	}

	if st := def.Stability; st != nil {
		s.Tracked = pts[st.Landmark]
		s.HasTracked = true
		s.ReferenceLength = geometry.Distance(pts[st.ReferenceFrom], pts[st.ReferenceTo])
	}
	if aux := def.Auxiliary; aux != nil {
		s.AuxAngle = geometry.Angle(pts[aux.Triad.A], pts[aux.Triad.Vertex], pts[aux.Triad.C])
		s.HasAux = true
	}
	return s, nil
}
