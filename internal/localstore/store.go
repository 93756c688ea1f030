// Package localstore keeps a SQLite history of sessions analyzed by the CLI.
package localstore

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/claude/posereps/internal/models"
)

// Entry is one recorded session.
type Entry struct {
	Summary    models.SessionSummary
	Reps       []models.RepResult
	Source     string
	SourceHash string
}

// Store is the local session history at dir/history.db.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database in dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating history dir %s: %w", dir, err)
	}

	db, err := sql.Open("sqlite", filepath.Join(dir, "history.db"))
	if err != nil {
		return nil, fmt.Errorf("opening history db: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS sessions (
		id          TEXT PRIMARY KEY,
		exercise_id TEXT NOT NULL,
		patient_id  TEXT NOT NULL,
		started_at  TIMESTAMP NOT NULL,
		ended_at    TIMESTAMP NOT NULL,
		end_cause   TEXT NOT NULL,
		total_reps  INTEGER NOT NULL,
		good_reps   INTEGER NOT NULL,
		avg_rep_ms  INTEGER NOT NULL,
		score       REAL NOT NULL,
		reps_json   TEXT NOT NULL,
		source      TEXT NOT NULL DEFAULT '',
		source_hash TEXT NOT NULL DEFAULT ''
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating history table: %w", err)
	}

	return &Store{db: db}, nil
}

// RecordSession stores a session without source information.
func (s *Store) RecordSession(ctx context.Context, rec models.SessionRecord) error {
	return s.RecordReplay(ctx, rec, "", "")
}

// RecordReplay stores a session analyzed from the recording at source.
func (s *Store) RecordReplay(ctx context.Context, rec models.SessionRecord, source, hash string) error {
	reps, err := json.Marshal(rec.Reps)
	if err != nil {
		return fmt.Errorf("encoding reps: %w", err)
	}
	sum := rec.Summary
	_, err = s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO sessions (id, exercise_id, patient_id, started_at, ended_at, end_cause,
		 total_reps, good_reps, avg_rep_ms, score, reps_json, source, source_hash)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.SessionID.String(), sum.ExerciseID, sum.PatientID, sum.StartedAt.UTC(), sum.EndedAt.UTC(),
		string(sum.EndCause), sum.TotalReps, sum.GoodReps, sum.AverageRepDuration.Milliseconds(), sum.Score,
		string(reps), source, hash,
	)
	if err != nil {
		return fmt.Errorf("recording session: %w", err)
	}
	return nil
}

// List returns the most recent sessions, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, exercise_id, patient_id, started_at, ended_at, end_cause,
		 total_reps, good_reps, avg_rep_ms, score, reps_json, source, source_hash
		 FROM sessions
		 ORDER BY started_at DESC
		 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying history: %w", err)
	}
	defer rows.Close()

	var result []Entry
	for rows.Next() {
		var (
			e       Entry
			id      string
			cause   string
			avgMs   int64
			repsRaw string
		)
		if err := rows.Scan(&id, &e.Summary.ExerciseID, &e.Summary.PatientID, &e.Summary.StartedAt, &e.Summary.EndedAt,
			&cause, &e.Summary.TotalReps, &e.Summary.GoodReps, &avgMs, &e.Summary.Score,
			&repsRaw, &e.Source, &e.SourceHash); err != nil {
			return nil, fmt.Errorf("scanning history: %w", err)
		}
		if err := e.Summary.SessionID.UnmarshalText([]byte(id)); err != nil {
			return nil, fmt.Errorf("parsing session id %q: %w", id, err)
		}
		if err := json.Unmarshal([]byte(repsRaw), &e.Reps); err != nil {
			return nil, fmt.Errorf("decoding reps of %s: %w", id, err)
		}
		e.Summary.EndCause = models.EndCause(cause)
		e.Summary.AverageRepDuration = time.Duration(avgMs) * time.Millisecond
		result = append(result, e)
	}
	return result, rows.Err()
}

// Close closes the history database.
func (s *Store) Close() error {
	return s.db.Close()
}

// HashFile computes the SHA-256 hash of a file.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
