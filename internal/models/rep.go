package models

import "time"

// Phase is the state machine's position within a repetition cycle.
type Phase string

const (
	PhaseDown   Phase = "down"
	PhaseUp     Phase = "up"
	PhaseCenter Phase = "center"
	PhaseLeft   Phase = "left"
	PhaseRight  Phase = "right"
)

// Criterion names a quality check applied to a completed repetition.
type Criterion string

const (
	CriterionNone          Criterion = ""
	CriterionRangeOfMotion Criterion = "range_of_motion"
	CriterionStability     Criterion = "stability"
	CriterionAuxiliary     Criterion = "auxiliary_angle"
)

// RepMetrics are the measurements a verdict was derived from.
// Stability and AuxAngle are nil when the exercise does not define that check.
type RepMetrics struct {
	MinAngle  float64  `json:"min_angle"`
	MaxAngle  float64  `json:"max_angle"`
	ROMSpan   float64  `json:"rom_span"`
	Stability *float64 `json:"stability,omitempty"`
	AuxAngle  *float64 `json:"aux_angle,omitempty"`
}

// RepResult is the immutable record of one completed repetition.
type RepResult struct {
	Number      int           `json:"number"`
	CompletedAt time.Time     `json:"completed_at"`
	Duration    time.Duration `json:"duration"`
	Good        bool          `json:"good"`
	Feedback    string        `json:"feedback"`
	FailedCheck Criterion     `json:"failed_check,omitempty"`
	Quality     float64       `json:"quality"`
	Metrics     RepMetrics    `json:"metrics"`
}
