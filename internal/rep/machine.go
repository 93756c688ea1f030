package rep

import (
	"math"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/models"
)

// Completion is the state captured at the moment a repetition finishes.
type Completion struct {
	At              time.Time
	Duration        time.Duration
	Min, Max        float64
	Trace           []r3.Vec
	ReferenceLength float64
	AuxAngle        float64
	HasAux          bool
}

// Machine tracks the phase of one exercise session and emits a scored result
// each time a repetition completes. It is not safe for concurrent use.
type Machine struct {
	def         exercise.Definition
	phase       models.Phase
	min, max    float64
	trace       []r3.Vec
	activeSince time.Time
	count       int
}

// NewMachine returns a machine in the exercise's resting phase.
func NewMachine(def exercise.Definition) *Machine {
	m := &Machine{def: def, phase: def.InitialPhase()}
	m.reset()
	return m
}

// Phase reports the current phase.
func (m *Machine) Phase() models.Phase { return m.phase }

// Count reports how many repetitions have completed.
func (m *Machine) Count() int { return m.count }

// Extrema reports the running minimum and maximum of the current repetition.
func (m *Machine) Extrema() (min, max float64) { return m.min, m.max }

func (m *Machine) reset() {
	if m.def.Kind == exercise.KindLateralDeviation {
		m.min, m.max = math.Inf(1), math.Inf(-1)
	} else {
		m.min, m.max = 180, 0
	}
	m.trace = m.trace[:0]
}

// Observe advances the machine by one sample. When the sample completes a
// repetition the scored result is returned with ok set.
func (m *Machine) Observe(s Sample) (result models.RepResult, ok bool) {
	m.min = math.Min(m.min, s.Value)
	m.max = math.Max(m.max, s.Value)
	if s.HasTracked {
		m.trace = append(m.trace, s.Tracked)
	}

	next, entering, completing := m.transition(s.Value)
	if next == m.phase {
		return models.RepResult{}, false
	}
	m.phase = next
	if entering {
		m.activeSince = s.At
	}
	if !completing {
		return models.RepResult{}, false
	}

	c := Completion{
		At:              s.At,
		Min:             m.min,
		Max:             m.max,
		Trace:           append([]r3.Vec(nil), m.trace...),
		ReferenceLength: s.ReferenceLength,
		AuxAngle:        s.AuxAngle,
		HasAux:          s.HasAux,
	}
	if !m.activeSince.IsZero() {
		c.Duration = s.At.Sub(m.activeSince)
	}
	m.count++
	result = Score(m.def, c)
	result.Number = m.count
	m.reset()
	m.activeSince = time.Time{}
	return result, true
}

// transition returns the next phase for v, whether it enters the active
// phase and whether it completes a repetition.
func (m *Machine) transition(v float64) (next models.Phase, entering, completing bool) {
	d := m.def
	switch d.Kind {
	case exercise.KindLateralDeviation:
		dev := d.Deviation
		switch m.phase {
		case models.PhaseCenter:
			if v > dev.TurnThreshold {
				return models.PhaseRight, true, false
			}
			if v < -dev.TurnThreshold {
				return models.PhaseLeft, true, false
			}
		case models.PhaseLeft, models.PhaseRight:
			if math.Abs(v) < dev.NeutralBand {
				return models.PhaseCenter, false, true
			}
		}
	default:
		up := v < d.StateUpThreshold
		down := v > d.StateDownThreshold
		if d.Direction == exercise.LargeAngleUp {
			up = v > d.StateUpThreshold
			down = v < d.StateDownThreshold
		}
		switch {
		case m.phase == models.PhaseDown && up:
			return models.PhaseUp, true, false
		case m.phase == models.PhaseUp && down:
			return models.PhaseDown, false, true
		}
	}
	return m.phase, false, false
}
