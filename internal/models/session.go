package models

import (
	"time"

	"github.com/google/uuid"
)

// EndCause records why a session stopped streaming.
type EndCause string

const (
	EndTimeout      EndCause = "timeout"
	EndClientClosed EndCause = "client_closed"
	EndDisconnected EndCause = "disconnected"
	EndFault        EndCause = "fault"
	EndShutdown     EndCause = "shutdown"
)

// SessionSummary is computed once when a session ends.
type SessionSummary struct {
	SessionID          uuid.UUID     `json:"session_id"`
	ExerciseID         string        `json:"exercise_id"`
	PatientID          string        `json:"patient_id"`
	ClientTimestamp    float64       `json:"client_timestamp"`
	StartedAt          time.Time     `json:"started_at"`
	EndedAt            time.Time     `json:"ended_at"`
	EndCause           EndCause      `json:"end_cause"`
	TotalReps          int           `json:"total_reps"`
	GoodReps           int           `json:"good_reps"`
	AverageRepDuration time.Duration `json:"average_rep_duration"`
	Score              float64       `json:"score"`
}

// SessionRecord is a summary together with the repetition log it was built from.
type SessionRecord struct {
	Summary SessionSummary `json:"summary"`
	Reps    []RepResult    `json:"reps"`
}

// ScoreEntry is the payload accepted by the score recorder.
type ScoreEntry struct {
	PatientID  string    `json:"patient_id"`
	ExerciseID string    `json:"exercise_id"`
	Score      float64   `json:"score"`
	Timestamp  time.Time `json:"timestamp"`
}
