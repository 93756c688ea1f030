package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/models"
	"github.com/claude/posereps/internal/storage"
)

// patientScoreWindow is how many recent scores the patient history returns.
const patientScoreWindow = 7

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListExercises(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleGetExercise(w http.ResponseWriter, r *http.Request) {
	def, err := s.catalog.Lookup(chi.URLParam(r, "id"))
	if err != nil {
		var unknown *exercise.UnknownExerciseError
		if errors.As(err, &unknown) {
			writeJSON(w, http.StatusNotFound, map[string]any{"error": err.Error(), "known": unknown.Known})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleRecordScore(w http.ResponseWriter, r *http.Request) {
	var entry models.ScoreEntry
	if err := json.NewDecoder(r.Body).Decode(&entry); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return
	}
	switch {
	case entry.PatientID == "":
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "patient_id is required"})
		return
	case entry.ExerciseID == "":
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "exercise_id is required"})
		return
	case entry.Score < 0 || entry.Score > 100:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "score must be between 0 and 100"})
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	id, err := s.db.InsertScore(r.Context(), entry)
	if err != nil {
		s.log.Error("recording score", "error", err, "patient_id", entry.PatientID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int64{"id": id})
}

func (s *Server) handlePatientScores(w http.ResponseWriter, r *http.Request) {
	scores, err := s.db.PatientScores(r.Context(), chi.URLParam(r, "patientID"), patientScoreWindow)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if scores == nil {
		scores = []models.ScoreEntry{}
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *Server) handleQuerySessions(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseTimeRange(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	f := storage.SessionFilter{
		PatientID:  r.URL.Query().Get("patient_id"),
		ExerciseID: r.URL.Query().Get("exercise"),
		Start:      start,
		End:        end,
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		f.Limit = n
	}

	sessions, err := s.db.QuerySessions(r.Context(), f)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if sessions == nil {
		sessions = []models.SessionSummary{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.loadSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// loadSession resolves the {id} URL parameter, writing the error response itself
// when the session cannot be returned.
func (s *Server) loadSession(w http.ResponseWriter, r *http.Request) (*models.SessionRecord, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid session ID"})
		return nil, false
	}
	rec, err := s.db.GetSession(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "session not found"})
		return nil, false
	}
	if err != nil {
		s.log.Error("loading session", "error", err, "session_id", id)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return nil, false
	}
	return rec, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func parseTimeRange(r *http.Request) (start, end time.Time, err error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" {
		// Default: last 7 days
		end = time.Now()
		start = end.AddDate(0, 0, -7)
		return
	}

	start, err = time.Parse(time.RFC3339, startStr)
	if err != nil {
		start, err = time.Parse("2006-01-02", startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	}

	if endStr == "" {
		end = time.Now()
	} else {
		end, err = time.Parse(time.RFC3339, endStr)
		if err != nil {
			end, err = time.Parse("2006-01-02", endStr)
			if err != nil {
				return time.Time{}, time.Time{}, err
			}
			// End of day for date-only
			end = end.Add(24 * time.Hour)
		}
	}
	return
}
