// Package exercise defines the supported exercises and the registry that resolves them.
package exercise

import (
	"errors"
	"fmt"

	"github.com/claude/posereps/internal/models"
)

// Kind selects how an exercise is measured and which phases it cycles through.
type Kind string

const (
	// KindJointAngle tracks the angle of a landmark triad through a down/up cycle.
	KindJointAngle Kind = "joint_angle"
	// KindLateralDeviation tracks the sideways offset of a marker through center/left/right.
	KindLateralDeviation Kind = "lateral_deviation"
)

// Direction states whether the active ("up") phase is a small or a large angle.
type Direction string

const (
	SmallAngleUp Direction = "small_up"
	LargeAngleUp Direction = "large_up"
)

// Triad is three landmarks with the angle vertex in the middle.
type Triad struct {
	A      models.LandmarkName `json:"a"`
	Vertex models.LandmarkName `json:"vertex"`
	C      models.LandmarkName `json:"c"`
}

func (t Triad) landmarks() []models.LandmarkName {
	return []models.LandmarkName{t.A, t.Vertex, t.C}
}

// StabilityRule bounds how far a landmark may drift between frames during a rep,
// relative to the length of a reference body segment.
type StabilityRule struct {
	Landmark      models.LandmarkName `json:"landmark"`
	ReferenceFrom models.LandmarkName `json:"reference_from"`
	ReferenceTo   models.LandmarkName `json:"reference_to"`
	Threshold     float64             `json:"threshold"`
}

// AuxiliaryRule requires a secondary angle to be at least MinAngle when a rep completes.
type AuxiliaryRule struct {
	Triad    Triad   `json:"triad"`
	MinAngle float64 `json:"min_angle"`
}

// DeviationRule describes a lateral-deviation exercise: the signed x offset of Marker
// from the midpoint of Left and Right.
type DeviationRule struct {
	Marker        models.LandmarkName `json:"marker"`
	Left          models.LandmarkName `json:"left"`
	Right         models.LandmarkName `json:"right"`
	TurnThreshold float64             `json:"turn_threshold"`
	NeutralBand   float64             `json:"neutral_band"`
}

// Feedback holds the messages reported for a rep verdict.
type Feedback struct {
	Good          string `json:"good" toml:"good"`
	RangeOfMotion string `json:"range_of_motion" toml:"range_of_motion"`
	Stability     string `json:"stability" toml:"stability"`
	Auxiliary     string `json:"auxiliary" toml:"auxiliary"`
}

// Definition is the immutable description of one exercise.
//
// For SmallAngleUp exercises a full rep needs min < ROMMinThreshold and
// max > ROMMaxThreshold. For LargeAngleUp the condition is mirrored: the peak
// max must exceed ROMMinThreshold and the rest min must fall below ROMMaxThreshold.
// Deviation exercises only use ROMMinThreshold as the peak |deviation| required.
type Definition struct {
	ID                 string         `json:"id"`
	Name               string         `json:"name"`
	Kind               Kind           `json:"kind"`
	Primary            Triad          `json:"primary"`
	Direction          Direction      `json:"direction,omitempty"`
	StateUpThreshold   float64        `json:"state_up_threshold"`
	StateDownThreshold float64        `json:"state_down_threshold"`
	ROMMinThreshold    float64        `json:"rom_min_threshold"`
	ROMMaxThreshold    float64        `json:"rom_max_threshold"`
	Stability          *StabilityRule `json:"stability,omitempty"`
	Auxiliary          *AuxiliaryRule `json:"auxiliary,omitempty"`
	Deviation          *DeviationRule `json:"deviation,omitempty"`
	Feedback           Feedback       `json:"feedback"`
}

// RequiredLandmarks lists every landmark the exercise reads from a frame.
func (d Definition) RequiredLandmarks() []models.LandmarkName {
	var names []models.LandmarkName
	switch d.Kind {
	case KindLateralDeviation:
		if d.Deviation != nil {
			names = append(names, d.Deviation.Marker, d.Deviation.Left, d.Deviation.Right)
		}
	default:
		names = append(names, d.Primary.landmarks()...)
	}
	if d.Stability != nil {
		names = append(names, d.Stability.Landmark, d.Stability.ReferenceFrom, d.Stability.ReferenceTo)
	}
	if d.Auxiliary != nil {
		names = append(names, d.Auxiliary.Triad.landmarks()...)
	}
	return names
}

// InitialPhase is the phase a fresh state machine starts in.
func (d Definition) InitialPhase() models.Phase {
	if d.Kind == KindLateralDeviation {
		return models.PhaseCenter
	}
	return models.PhaseDown
}

// Validate checks the definition is internally consistent.
func (d Definition) Validate() error {
	if d.ID == "" {
		return errors.New("exercise id is required")
	}
	for _, n := range d.RequiredLandmarks() {
		if !n.Valid() {
			return fmt.Errorf("exercise %s: unknown landmark %q", d.ID, n)
		}
	}

	switch d.Kind {
	case KindJointAngle:
		if err := d.validateAngles(); err != nil {
			return fmt.Errorf("exercise %s: %w", d.ID, err)
		}
	case KindLateralDeviation:
		if d.Deviation == nil {
			return fmt.Errorf("exercise %s: lateral_deviation requires a deviation rule", d.ID)
		}
		if d.Deviation.NeutralBand <= 0 || d.Deviation.TurnThreshold <= d.Deviation.NeutralBand {
			return fmt.Errorf("exercise %s: need 0 < neutral_band < turn_threshold", d.ID)
		}
	default:
		return fmt.Errorf("exercise %s: unknown kind %q", d.ID, d.Kind)
	}

	if d.Stability != nil && d.Stability.Threshold <= 0 {
		return fmt.Errorf("exercise %s: stability threshold must be positive", d.ID)
	}
	return nil
}

func (d Definition) validateAngles() error {
	for _, v := range []float64{d.StateUpThreshold, d.StateDownThreshold, d.ROMMinThreshold, d.ROMMaxThreshold} {
		if v < 0 || v > 180 {
			return fmt.Errorf("threshold %v outside [0, 180]", v)
		}
	}
	switch d.Direction {
	case SmallAngleUp:
		if d.StateUpThreshold >= d.StateDownThreshold {
			return errors.New("small_up needs state_up < state_down")
		}
	case LargeAngleUp:
		if d.StateUpThreshold <= d.StateDownThreshold {
			return errors.New("large_up needs state_up > state_down")
		}
	default:
		return fmt.Errorf("unknown direction %q", d.Direction)
	}
	return nil
}

// withDefaults fills any empty feedback message.
// Clone returns a copy of d that shares no rule pointers with it.
func (d Definition) Clone() Definition {
	if d.Stability != nil {
		s := *d.Stability
		d.Stability = &s
	}
	if d.Auxiliary != nil {
		a := *d.Auxiliary
		d.Auxiliary = &a
	}
	if d.Deviation != nil {
		v := *d.Deviation
		d.Deviation = &v
	}
	return d
}

func (d Definition) withDefaults() Definition {
	d = d.Clone()
	if d.Name == "" {
		d.Name = d.ID
	}
	if d.Feedback.Good == "" {
		d.Feedback.Good = "Good Rep!"
	}
	if d.Feedback.RangeOfMotion == "" {
		d.Feedback.RangeOfMotion = "Bad ROM!"
	}
	if d.Feedback.Stability == "" {
		d.Feedback.Stability = "Hold steady!"
	}
	if d.Feedback.Auxiliary == "" {
		d.Feedback.Auxiliary = "Check your form!"
	}
	return d
}
