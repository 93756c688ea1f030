package rep

import (
	"math"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/geometry"
	"github.com/claude/posereps/internal/models"
)

// Score judges a completed repetition. Checks run in order (range of motion,
// stability, auxiliary angle) and the feedback names the first one that failed.
func Score(def exercise.Definition, c Completion) models.RepResult {
	r := models.RepResult{
		CompletedAt: c.At,
		Duration:    c.Duration,
		Metrics: models.RepMetrics{
			MinAngle: c.Min,
			MaxAngle: c.Max,
			ROMSpan:  c.Max - c.Min,
		},
	}

	var failed []models.Criterion
	if !rangeOfMotionOK(def, c) {
		failed = append(failed, models.CriterionRangeOfMotion)
	}
	if st := def.Stability; st != nil && c.ReferenceLength > 0 && len(c.Trace) >= 2 {
		ratio := geometry.MaxStep(c.Trace) / c.ReferenceLength
		r.Metrics.Stability = &ratio
		if ratio > st.Threshold {
			failed = append(failed, models.CriterionStability)
		}
	}
	if aux := def.Auxiliary; aux != nil && c.HasAux {
		angle := c.AuxAngle
		r.Metrics.AuxAngle = &angle
		if angle < aux.MinAngle {
			failed = append(failed, models.CriterionAuxiliary)
		}
	}

	r.Good = len(failed) == 0
	if r.Good {
		r.Feedback = def.Feedback.Good
	} else {
		r.FailedCheck = failed[0]
		r.Feedback = feedbackFor(def, failed[0])
	}
	if def.Kind == exercise.KindJointAngle {
		r.Quality = Quality(c.Min, c.Max, c.Duration.Seconds())
	} else if r.Good {
		r.Quality = 100
	}
	return r
}

func rangeOfMotionOK(def exercise.Definition, c Completion) bool {
	switch {
	case def.Kind == exercise.KindLateralDeviation:
		return math.Max(math.Abs(c.Min), math.Abs(c.Max)) >= def.ROMMinThreshold
	case def.Direction == exercise.LargeAngleUp:
		return c.Max > def.ROMMinThreshold && c.Min < def.ROMMaxThreshold
	default:
		return c.Min < def.ROMMinThreshold && c.Max > def.ROMMaxThreshold
	}
}

func feedbackFor(def exercise.Definition, c models.Criterion) string {
	switch c {
	case models.CriterionStability:
		return def.Feedback.Stability
	case models.CriterionAuxiliary:
		return def.Feedback.Auxiliary
	default:
		return def.Feedback.RangeOfMotion
	}
}

// Quality rates a repetition from 0 to 100, rewarding a wide range of motion
// and penalizing slow reps.
func Quality(min, max, durationSeconds float64) float64 {
	rom := math.Min(100, max-min)
	speed := math.Max(0, 100-10*durationSeconds)
	return 0.6*rom + 0.4*speed
}
