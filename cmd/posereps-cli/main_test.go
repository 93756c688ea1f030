package main

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"math"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/frame"
	"github.com/claude/posereps/internal/localstore"
	"github.com/claude/posereps/internal/models"
	"github.com/claude/posereps/internal/pose"
	"github.com/claude/posereps/internal/server"
	"github.com/claude/posereps/internal/session"
)

// curlLine renders one recording line with the elbow at angle degrees.
func curlLine(t float64, angle float64) string {
	s, c := math.Sincos(angle * math.Pi / 180)
	return fmt.Sprintf(`{"t":%g,"landmarks":[`+
		`{"name":"LEFT_SHOULDER","x":0.5,"y":0.3,"z":0,"visibility":0.9},`+
		`{"name":"LEFT_ELBOW","x":0.5,"y":0.5,"z":0,"visibility":0.9},`+
		`{"name":"LEFT_WRIST","x":%g,"y":%g,"z":0,"visibility":0.9}]}`,
		t, 0.5+0.2*s, 0.5-0.2*c)
}

func writeRecording(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rec.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644))
	return path
}

// TestReplayRecording verifies a recording produces the expected reps and summary,
// with durations taken from the recording offsets.
func TestReplayRecording(t *testing.T) {
	path := writeRecording(t,
		curlLine(0, 170),
		curlLine(0.5, 40),
		curlLine(1.5, 170),
		`{"t":1.8,"landmarks":[]}`,
		curlLine(2.0, 65),
		curlLine(3.0, 170),
	)
	frames, err := pose.LoadRecording(path, 0.5)
	require.NoError(t, err)

	def, err := exercise.Default().Lookup("curl")
	require.NoError(t, err)

	started := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	var seen []int
	rec := replayRecording(def, "p1", frames, started, func(r models.RepResult) {
		seen = append(seen, r.Number)
	})

	assert.Equal(t, []int{1, 2}, seen)
	require.Len(t, rec.Reps, 2)
	assert.True(t, rec.Reps[0].Good)
	assert.Equal(t, time.Second, rec.Reps[0].Duration)
	assert.False(t, rec.Reps[1].Good)
	assert.Equal(t, models.CriterionRangeOfMotion, rec.Reps[1].FailedCheck)

	s := rec.Summary
	assert.Equal(t, "curl", s.ExerciseID)
	assert.Equal(t, "p1", s.PatientID)
	assert.Equal(t, 2, s.TotalReps)
	assert.Equal(t, 1, s.GoodReps)
	assert.Equal(t, 50.0, s.Score)
	assert.Equal(t, started.Add(3*time.Second), s.EndedAt)
}

// TestReplayRecordsHistory verifies a replayed session round-trips through the local history.
func TestReplayRecordsHistory(t *testing.T) {
	path := writeRecording(t, curlLine(0, 170), curlLine(0.4, 40), curlLine(0.8, 170))
	frames, err := pose.LoadRecording(path, 0.5)
	require.NoError(t, err)
	def, err := exercise.Default().Lookup("curl")
	require.NoError(t, err)
	rec := replayRecording(def, "p1", frames, time.Now().UTC(), nil)

	store, err := localstore.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()
	hash, err := localstore.HashFile(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordReplay(context.Background(), rec, path, hash))

	entries, err := store.List(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, rec.Summary.SessionID, entries[0].Summary.SessionID)
	assert.Equal(t, hash, entries[0].SourceHash)
	assert.Len(t, entries[0].Reps, 1)
}

// TestDescribeDefinition verifies both exercise kinds render their thresholds.
func TestDescribeDefinition(t *testing.T) {
	reg := exercise.Default()
	curl, _ := reg.Lookup("curl")
	assert.Contains(t, describeDefinition(curl), "up 70 down 150")
	assert.Contains(t, describeDefinition(curl), "stability")
	neck, _ := reg.Lookup("neck_turn")
	assert.Contains(t, describeDefinition(neck), "NOSE")
}

// TestFinalMessage verifies error texts and summaries are told apart.
func TestFinalMessage(t *testing.T) {
	_, err := finalMessage("ERROR: unknown exercise_id")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown exercise_id")

	ended, err := finalMessage(`{"status":"session_ended","total_reps":3,"good_reps":2,"average_rep_time":"1.10s"}`)
	require.NoError(t, err)
	assert.Equal(t, 3, ended.TotalReps)
}

// TestStreamSession drives the stream client against an in-process server and
// waits for the session to end on its budget.
func TestStreamSession(t *testing.T) {
	angles := []float64{170, 40, 170}
	var recorded []pose.RecordedFrame
	for range 20 {
		for _, a := range angles {
			s, c := math.Sincos(a * math.Pi / 180)
			recorded = append(recorded, pose.RecordedFrame{Landmarks: []models.Landmark{
				{Name: models.LeftShoulder, X: 0.5, Y: 0.3, Visibility: 1},
				{Name: models.LeftElbow, X: 0.5, Y: 0.5, Visibility: 1},
				{Name: models.LeftWrist, X: 0.5 + 0.2*s, Y: 0.5 - 0.2*c, Visibility: 1},
			}})
		}
	}
	srv := server.New(nil, exercise.Default(), server.StreamConfig{
		Session: session.Config{
			Registry:   exercise.Default(),
			Estimators: pose.NewReplay(recorded),
			Codec:      frame.NewJPEGCodec(frame.DefaultQuality, 0),
			Timeout:    300 * time.Millisecond,
		},
	}, "key", slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 32)), nil))

	out := t.TempDir()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ended, err := streamSession(ctx, streamClient{
		url:        "ws" + strings.TrimPrefix(ts.URL, "http") + "/pose/ws/analyze",
		exerciseID: "curl",
		patientID:  "p7",
		frames:     [][]byte{buf.Bytes()},
		interval:   10 * time.Millisecond,
		outDir:     out,
	})
	require.NoError(t, err)
	assert.Equal(t, "p7", ended.PatientID)
	assert.Positive(t, ended.TotalReps)
	assert.Equal(t, ended.TotalReps, ended.GoodReps)

	written, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.NotEmpty(t, written)
}
