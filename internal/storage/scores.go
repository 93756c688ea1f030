package storage

import (
	"context"
	"fmt"

	"github.com/claude/posereps/internal/models"
)

// InsertScore stores a score reported through the score recorder API.
func (db *DB) InsertScore(ctx context.Context, e models.ScoreEntry) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx,
		`INSERT INTO exercise_scores (patient_id, exercise_id, score, recorded_at)
		 VALUES ($1,$2,$3,$4)
		 RETURNING id`,
		e.PatientID, e.ExerciseID, e.Score, e.Timestamp,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting score: %w", err)
	}
	return id, nil
}

// PatientScores returns the patient's most recent scores, oldest first.
func (db *DB) PatientScores(ctx context.Context, patientID string, limit int) ([]models.ScoreEntry, error) {
	if limit <= 0 {
		limit = 7
	}
	rows, err := db.Pool.Query(ctx,
		`SELECT patient_id, exercise_id, score, recorded_at FROM (
		   SELECT patient_id, exercise_id, score, recorded_at
		   FROM exercise_scores
		   WHERE patient_id = $1
		   ORDER BY recorded_at DESC
		   LIMIT $2
		 ) recent
		 ORDER BY recorded_at ASC`,
		patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying scores: %w", err)
	}
	defer rows.Close()

	var result []models.ScoreEntry
	for rows.Next() {
		var e models.ScoreEntry
		if err := rows.Scan(&e.PatientID, &e.ExerciseID, &e.Score, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning score: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}
