package session

import (
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"

	"github.com/claude/posereps/internal/models"
)

// Summary identifies a session for Summarize.
type Summary struct {
	ID              uuid.UUID
	ExerciseID      string
	PatientID       string
	ClientTimestamp float64
	StartedAt       time.Time
}

// Summarize aggregates rep results into a session summary. A session without
// reps reports zeros throughout.
func Summarize(s Summary, results []models.RepResult, endedAt time.Time, cause models.EndCause) models.SessionSummary {
	out := models.SessionSummary{
		SessionID:       s.ID,
		ExerciseID:      s.ExerciseID,
		PatientID:       s.PatientID,
		ClientTimestamp: s.ClientTimestamp,
		StartedAt:       s.StartedAt,
		EndedAt:         endedAt,
		EndCause:        cause,
		TotalReps:       len(results),
	}
	if len(results) == 0 {
		return out
	}

	secs := make([]float64, len(results))
	for i, r := range results {
		secs[i] = r.Duration.Seconds()
		if r.Good {
			out.GoodReps++
		}
	}
	out.AverageRepDuration = time.Duration(stat.Mean(secs, nil) * float64(time.Second))
	out.Score = 100 * float64(out.GoodReps) / float64(out.TotalReps)
	return out
}
