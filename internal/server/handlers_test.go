package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/models"
	"github.com/claude/posereps/internal/storage"
)

type fakeStore struct {
	sessions []models.SessionSummary
	records  map[uuid.UUID]*models.SessionRecord
	scores   []models.ScoreEntry
	filter   storage.SessionFilter
	pingErr  error
	queryErr error
}

func (f *fakeStore) QuerySessions(_ context.Context, filter storage.SessionFilter) ([]models.SessionSummary, error) {
	f.filter = filter
	return f.sessions, f.queryErr
}

func (f *fakeStore) GetSession(_ context.Context, id uuid.UUID) (*models.SessionRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) InsertScore(_ context.Context, e models.ScoreEntry) (int64, error) {
	f.scores = append(f.scores, e)
	return int64(len(f.scores)), nil
}

func (f *fakeStore) PatientScores(_ context.Context, patientID string, limit int) ([]models.ScoreEntry, error) {
	var out []models.ScoreEntry
	for _, s := range f.scores {
		if s.PatientID == patientID {
			out = append(out, s)
		}
	}
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (f *fakeStore) Ping(context.Context) error { return f.pingErr }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(db *fakeStore) *Server {
	reg := exercise.Default()
	return New(db, reg, StreamConfig{}, "secret", discardLogger())
}

func do(t *testing.T, s *Server, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	return rec
}

// TestHealth verifies /healthz reflects database reachability.
func TestHealth(t *testing.T) {
	db := &fakeStore{}
	s := newTestServer(db)
	if rec := do(t, s, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	db.pingErr = errors.New("connection refused")
	if rec := do(t, s, http.MethodGet, "/healthz", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

// TestListExercises verifies the catalog lists every registered exercise in id order.
func TestListExercises(t *testing.T) {
	rec := do(t, newTestServer(&fakeStore{}), http.MethodGet, "/api/v1/exercises", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var defs []exercise.Definition
	if err := json.NewDecoder(rec.Body).Decode(&defs); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	var ids []string
	for _, d := range defs {
		ids = append(ids, d.ID)
	}
	if diff := cmp.Diff(exercise.Default().IDs(), ids); diff != "" {
		t.Errorf("exercise ids (-want +got):\n%s", diff)
	}
}

// TestGetExercise verifies lookup by id and the 404 listing known ids.
func TestGetExercise(t *testing.T) {
	s := newTestServer(&fakeStore{})

	rec := do(t, s, http.MethodGet, "/api/v1/exercises/curl", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var def exercise.Definition
	if err := json.NewDecoder(rec.Body).Decode(&def); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if def.StateUpThreshold != 70 || def.StateDownThreshold != 150 {
		t.Errorf("curl thresholds = %v/%v, want 70/150", def.StateUpThreshold, def.StateDownThreshold)
	}

	rec = do(t, s, http.MethodGet, "/api/v1/exercises/pushup", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body struct {
		Error string   `json:"error"`
		Known []string `json:"known"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(body.Known) == 0 || !strings.Contains(body.Error, "pushup") {
		t.Errorf("unexpected 404 body: %+v", body)
	}
}

// TestRecordScoreRequiresKey verifies the score recorder is behind API key auth.
func TestRecordScoreRequiresKey(t *testing.T) {
	db := &fakeStore{}
	s := newTestServer(db)
	payload := `{"patient_id":"p1","exercise_id":"curl","score":80}`

	if rec := do(t, s, http.MethodPost, "/api/v1/scores", payload, nil); rec.Code != http.StatusUnauthorized {
		t.Errorf("no key: status = %d, want 401", rec.Code)
	}
	if rec := do(t, s, http.MethodPost, "/api/v1/scores", payload, map[string]string{"X-API-Key": "wrong"}); rec.Code != http.StatusForbidden {
		t.Errorf("wrong key: status = %d, want 403", rec.Code)
	}
	if len(db.scores) != 0 {
		t.Errorf("stored %d scores without auth", len(db.scores))
	}
}

// TestRecordScore verifies a valid score is stored with a default timestamp.
func TestRecordScore(t *testing.T) {
	db := &fakeStore{}
	s := newTestServer(db)
	key := map[string]string{"X-API-Key": "secret"}

	rec := do(t, s, http.MethodPost, "/api/v1/scores", `{"patient_id":"p1","exercise_id":"curl","score":80}`, key)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body)
	}
	if len(db.scores) != 1 {
		t.Fatalf("stored %d scores, want 1", len(db.scores))
	}
	if db.scores[0].Timestamp.IsZero() {
		t.Error("timestamp not defaulted")
	}

	for _, body := range []string{
		`{"exercise_id":"curl","score":80}`,
		`{"patient_id":"p1","score":80}`,
		`{"patient_id":"p1","exercise_id":"curl","score":101}`,
		`not json`,
	} {
		if rec := do(t, s, http.MethodPost, "/api/v1/scores", body, key); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", body, rec.Code)
		}
	}
}

// TestPatientScores verifies only the most recent week of scores is returned.
func TestPatientScores(t *testing.T) {
	db := &fakeStore{}
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i := range 9 {
		db.scores = append(db.scores, models.ScoreEntry{
			PatientID: "p1", ExerciseID: "curl", Score: float64(10 * i), Timestamp: base.AddDate(0, 0, i),
		})
	}
	db.scores = append(db.scores, models.ScoreEntry{PatientID: "p2", ExerciseID: "curl", Score: 5})

	rec := do(t, newTestServer(db), http.MethodGet, "/api/v1/patients/p1/scores", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var got []models.ScoreEntry
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7", len(got))
	}
	if got[0].Score != 20 || got[6].Score != 80 {
		t.Errorf("window = %v..%v, want 20..80", got[0].Score, got[6].Score)
	}
}

// TestPatientScoresEmpty verifies an unknown patient yields an empty array, not null.
func TestPatientScoresEmpty(t *testing.T) {
	rec := do(t, newTestServer(&fakeStore{}), http.MethodGet, "/api/v1/patients/nobody/scores", "", nil)
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

// TestQuerySessionsFilter verifies query parameters reach the store filter.
func TestQuerySessionsFilter(t *testing.T) {
	db := &fakeStore{}
	rec := do(t, newTestServer(db), http.MethodGet,
		"/api/v1/sessions?patient_id=p1&exercise=curl&start=2026-03-01&end=2026-03-02&limit=5", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	want := storage.SessionFilter{
		PatientID:  "p1",
		ExerciseID: "curl",
		Start:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		Limit:      5,
	}
	if diff := cmp.Diff(want, db.filter); diff != "" {
		t.Errorf("filter (-want +got):\n%s", diff)
	}
}

// TestQuerySessionsBadParams verifies malformed dates and limits are rejected.
func TestQuerySessionsBadParams(t *testing.T) {
	s := newTestServer(&fakeStore{})
	for _, q := range []string{"start=yesterday", "limit=0", "limit=x"} {
		if rec := do(t, s, http.MethodGet, "/api/v1/sessions?"+q, "", nil); rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", q, rec.Code)
		}
	}
}

func sampleRecord() *models.SessionRecord {
	id := uuid.MustParse("5b1c8a8e-3c1e-4d59-9c55-0f1f3e0b7a11")
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return &models.SessionRecord{
		Summary: models.SessionSummary{
			SessionID: id, ExerciseID: "curl", PatientID: "p1",
			StartedAt: start, EndedAt: start.Add(30 * time.Second), EndCause: models.EndTimeout,
			TotalReps: 2, GoodReps: 1, AverageRepDuration: 1500 * time.Millisecond, Score: 50,
		},
		Reps: []models.RepResult{
			{Number: 1, Duration: time.Second, Good: true, Feedback: "Good Rep!", Metrics: models.RepMetrics{MinAngle: 45, MaxAngle: 165, ROMSpan: 120}},
			{Number: 2, Duration: 2 * time.Second, Feedback: "Bad ROM!", FailedCheck: models.CriterionRangeOfMotion, Metrics: models.RepMetrics{MinAngle: 65, MaxAngle: 165, ROMSpan: 100}},
		},
	}
}

// TestGetSession verifies lookup by uuid, 400 for malformed ids and 404 for unknown ones.
func TestGetSession(t *testing.T) {
	rec := sampleRecord()
	db := &fakeStore{records: map[uuid.UUID]*models.SessionRecord{rec.Summary.SessionID: rec}}
	s := newTestServer(db)

	resp := do(t, s, http.MethodGet, "/api/v1/sessions/"+rec.Summary.SessionID.String(), "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	var got models.SessionRecord
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if diff := cmp.Diff(*rec, got); diff != "" {
		t.Errorf("record (-want +got):\n%s", diff)
	}

	if resp := do(t, s, http.MethodGet, "/api/v1/sessions/not-a-uuid", "", nil); resp.Code != http.StatusBadRequest {
		t.Errorf("bad id: status = %d, want 400", resp.Code)
	}
	if resp := do(t, s, http.MethodGet, "/api/v1/sessions/"+uuid.NewString(), "", nil); resp.Code != http.StatusNotFound {
		t.Errorf("unknown id: status = %d, want 404", resp.Code)
	}
}

// TestSessionChart verifies the chart page renders as HTML with one bar per rep
// and a subtitle carrying the end time and the end cause.
func TestSessionChart(t *testing.T) {
	rec := sampleRecord()
	db := &fakeStore{records: map[uuid.UUID]*models.SessionRecord{rec.Summary.SessionID: rec}}

	resp := do(t, newTestServer(db), http.MethodGet, "/api/v1/sessions/"+rec.Summary.SessionID.String()+"/chart", "", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.Code)
	}
	if ct := resp.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("content type = %q, want text/html", ct)
	}
	body := resp.Body.String()
	for _, want := range []string{"#1", "#2", goodRepColor, badRepColor, "good reps", "09:00:30", "cause", "timeout"} {
		if !strings.Contains(body, want) {
			t.Errorf("chart missing %q", want)
		}
	}
}

// TestMCPNotMounted verifies /mcp is absent until a handler is set.
func TestMCPNotMounted(t *testing.T) {
	s := newTestServer(&fakeStore{})
	if rec := do(t, s, http.MethodPost, "/mcp", "{}", nil); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
	s.SetMCP(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))
	if rec := do(t, s, http.MethodPost, "/mcp", "{}", nil); rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
}
