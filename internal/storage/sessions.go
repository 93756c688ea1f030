package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/claude/posereps/internal/models"
)

// SessionFilter narrows QuerySessions. Zero fields are ignored.
type SessionFilter struct {
	PatientID  string
	ExerciseID string
	Start      time.Time
	End        time.Time
	Limit      int
}

// RecordSession stores a finished session, its reps and the derived score in one transaction.
func (db *DB) RecordSession(ctx context.Context, rec models.SessionRecord) error {
	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	s := rec.Summary
	_, err = tx.Exec(ctx,
		`INSERT INTO exercise_sessions (id, exercise_id, patient_id, client_timestamp, started_at, ended_at,
		 end_cause, total_reps, good_reps, avg_rep_ms, score)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		s.SessionID, s.ExerciseID, s.PatientID, s.ClientTimestamp, s.StartedAt, s.EndedAt,
		string(s.EndCause), s.TotalReps, s.GoodReps, s.AverageRepDuration.Milliseconds(), s.Score)
	if err != nil {
		return fmt.Errorf("inserting session: %w", err)
	}

	if len(rec.Reps) > 0 {
		query, args := repInsertQuery(s.SessionID, rec.Reps)
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("inserting reps: %w", err)
		}
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO exercise_scores (patient_id, exercise_id, score, recorded_at, session_id)
		 VALUES ($1,$2,$3,$4,$5)`,
		s.PatientID, s.ExerciseID, s.Score, s.EndedAt, s.SessionID)
	if err != nil {
		return fmt.Errorf("inserting session score: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing session: %w", err)
	}
	return nil
}

const repColumns = 13

func repInsertQuery(sessionID uuid.UUID, reps []models.RepResult) (string, []any) {
	query := `INSERT INTO rep_results (session_id, number, completed_at, duration_ms, good, feedback,
	 failed_check, quality, min_angle, max_angle, rom_span, stability, aux_angle) VALUES `
	args := make([]any, 0, len(reps)*repColumns)
	valueStrings := make([]string, 0, len(reps))

	for i, r := range reps {
		base := i * repColumns
		placeholders := make([]string, repColumns)
		for j := range placeholders {
			placeholders[j] = fmt.Sprintf("$%d", base+j+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(placeholders, ",")+")")
		args = append(args, sessionID, r.Number, r.CompletedAt, r.Duration.Milliseconds(), r.Good,
			r.Feedback, string(r.FailedCheck), r.Quality,
			r.Metrics.MinAngle, r.Metrics.MaxAngle, r.Metrics.ROMSpan, r.Metrics.Stability, r.Metrics.AuxAngle)
	}
	return query + strings.Join(valueStrings, ","), args
}

const sessionColumns = `id, exercise_id, patient_id, client_timestamp, started_at, ended_at,
	 end_cause, total_reps, good_reps, avg_rep_ms, score`

func sessionsQuery(f SessionFilter) (string, []any) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.PatientID != "" {
		add("patient_id = $%d", f.PatientID)
	}
	if f.ExerciseID != "" {
		add("exercise_id = $%d", f.ExerciseID)
	}
	if !f.Start.IsZero() {
		add("started_at >= $%d", f.Start)
	}
	if !f.End.IsZero() {
		add("started_at < $%d", f.End)
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	query := `SELECT ` + sessionColumns + ` FROM exercise_sessions`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d", len(args))
	return query, args
}

// QuerySessions lists recorded session summaries, newest first.
func (db *DB) QuerySessions(ctx context.Context, f SessionFilter) ([]models.SessionSummary, error) {
	query, args := sessionsQuery(f)
	rows, err := db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var result []models.SessionSummary
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

// GetSession returns one session with its reps in order.
func (db *DB) GetSession(ctx context.Context, id uuid.UUID) (*models.SessionRecord, error) {
	row := db.Pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM exercise_sessions WHERE id = $1`, id)
	s, err := scanSession(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := db.Pool.Query(ctx,
		`SELECT number, completed_at, duration_ms, good, feedback, failed_check, quality,
		 min_angle, max_angle, rom_span, stability, aux_angle
		 FROM rep_results
		 WHERE session_id = $1
		 ORDER BY number ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("querying reps: %w", err)
	}
	defer rows.Close()

	rec := &models.SessionRecord{Summary: s}
	for rows.Next() {
		var (
			r          models.RepResult
			durationMs int64
			failed     string
		)
		if err := rows.Scan(&r.Number, &r.CompletedAt, &durationMs, &r.Good, &r.Feedback, &failed, &r.Quality,
			&r.Metrics.MinAngle, &r.Metrics.MaxAngle, &r.Metrics.ROMSpan, &r.Metrics.Stability, &r.Metrics.AuxAngle); err != nil {
			return nil, fmt.Errorf("scanning rep: %w", err)
		}
		r.Duration = time.Duration(durationMs) * time.Millisecond
		r.FailedCheck = models.Criterion(failed)
		rec.Reps = append(rec.Reps, r)
	}
	return rec, rows.Err()
}

func scanSession(row interface{ Scan(dest ...any) error }) (models.SessionSummary, error) {
	var (
		s     models.SessionSummary
		cause string
		avgMs int64
	)
	err := row.Scan(&s.SessionID, &s.ExerciseID, &s.PatientID, &s.ClientTimestamp, &s.StartedAt, &s.EndedAt,
		&cause, &s.TotalReps, &s.GoodReps, &avgMs, &s.Score)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, err
		}
		return s, fmt.Errorf("scanning session: %w", err)
	}
	s.EndCause = models.EndCause(cause)
	s.AverageRepDuration = time.Duration(avgMs) * time.Millisecond
	return s, nil
}
