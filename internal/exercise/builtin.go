package exercise

import "github.com/claude/posereps/internal/models"

// Curl is a left-arm bicep curl. The elbow must stay put relative to the forearm-plus-upper-arm span.
var Curl = Definition{
	ID:                 "curl",
	Name:               "Bicep curl",
	Kind:               KindJointAngle,
	Primary:            Triad{A: models.LeftShoulder, Vertex: models.LeftElbow, C: models.LeftWrist},
	Direction:          SmallAngleUp,
	StateUpThreshold:   70,
	StateDownThreshold: 150,
	ROMMinThreshold:    60,
	ROMMaxThreshold:    160,
	Stability: &StabilityRule{
		Landmark:      models.LeftElbow,
		ReferenceFrom: models.LeftShoulder,
		ReferenceTo:   models.LeftWrist,
		Threshold:     0.10,
	},
	Feedback: Feedback{
		Good:          "Good Rep!",
		RangeOfMotion: "Bad ROM!",
		Stability:     "Elbow moving!",
	},
}

// LateralRaise raises the left arm sideways; the arm must stay straight at the top.
var LateralRaise = Definition{
	ID:                 "lateral_raise",
	Name:               "Lateral raise",
	Kind:               KindJointAngle,
	Primary:            Triad{A: models.LeftHip, Vertex: models.LeftShoulder, C: models.LeftElbow},
	Direction:          LargeAngleUp,
	StateUpThreshold:   75,
	StateDownThreshold: 30,
	ROMMinThreshold:    80,
	ROMMaxThreshold:    20,
	Auxiliary: &AuxiliaryRule{
		Triad:    Triad{A: models.LeftShoulder, Vertex: models.LeftElbow, C: models.LeftWrist},
		MinAngle: 150,
	},
	Feedback: Feedback{
		Good:          "Good Rep!",
		RangeOfMotion: "Bad ROM!",
		Auxiliary:     "Keep arm straight!",
	},
}

var Squat = Definition{
	ID:                 "squat",
	Name:               "Squat",
	Kind:               KindJointAngle,
	Primary:            Triad{A: models.LeftHip, Vertex: models.LeftKnee, C: models.LeftAnkle},
	Direction:          SmallAngleUp,
	StateUpThreshold:   90,
	StateDownThreshold: 160,
	ROMMinThreshold:    80,
	ROMMaxThreshold:    160,
	Feedback: Feedback{
		Good:          "Good Squat!",
		RangeOfMotion: "Incomplete!",
	},
}

// NeckTurn counts a rep each time the head turns to one side and comes back to center.
// Thresholds are in normalized image widths.
var NeckTurn = Definition{
	ID:              "neck_turn",
	Name:            "Neck turn",
	Kind:            KindLateralDeviation,
	ROMMinThreshold: 0.05,
	Deviation: &DeviationRule{
		Marker:        models.Nose,
		Left:          models.LeftShoulder,
		Right:         models.RightShoulder,
		TurnThreshold: 0.05,
		NeutralBand:   0.01,
	},
	Feedback: Feedback{
		Good:          "Good Neck Turn!",
		RangeOfMotion: "Turn further!",
	},
}

// Builtins returns the definitions that ship with the binary.
func Builtins() []Definition {
	return []Definition{Curl, LateralRaise, Squat, NeckTurn}
}
