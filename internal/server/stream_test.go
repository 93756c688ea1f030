package server

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/frame"
	"github.com/claude/posereps/internal/models"
	"github.com/claude/posereps/internal/pose"
	"github.com/claude/posereps/internal/protocol"
	"github.com/claude/posereps/internal/session"
)

type memRecorder struct {
	mu   sync.Mutex
	recs []models.SessionRecord
}

func (m *memRecorder) RecordSession(_ context.Context, rec models.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recs = append(m.recs, rec)
	return nil
}

func (m *memRecorder) records() []models.SessionRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.SessionRecord(nil), m.recs...)
}

// curlLandmarks places the left arm so the elbow angle is angle degrees.
func curlLandmarks(angle float64) []models.Landmark {
	s, c := math.Sincos(angle * math.Pi / 180)
	return []models.Landmark{
		{Name: models.LeftShoulder, X: 0.5, Y: 0.3, Visibility: 1},
		{Name: models.LeftElbow, X: 0.5, Y: 0.5, Visibility: 1},
		{Name: models.LeftWrist, X: 0.5 + 0.2*s, Y: 0.5 - 0.2*c, Visibility: 1},
	}
}

func testJPEG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func dialStream(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/pose/ws/analyze"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	return conn
}

// TestStreamSession runs a full session over a real websocket: handshake,
// annotated frames back for every frame, then the summary once the budget is spent.
func TestStreamSession(t *testing.T) {
	frames := []pose.RecordedFrame{
		{Landmarks: curlLandmarks(170)},
		{Landmarks: curlLandmarks(40)},
		{Landmarks: curlLandmarks(170)},
	}
	rec := &memRecorder{}
	srv := New(&fakeStore{}, exercise.Default(), StreamConfig{
		Session: session.Config{
			Registry:   exercise.Default(),
			Estimators: pose.NewReplay(frames),
			Codec:      frame.NewJPEGCodec(frame.DefaultQuality, 0),
			Recorder:   rec,
			Timeout:    500 * time.Millisecond,
		},
		ReadLimit: 1 << 20,
	}, "secret", discardLogger())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dialStream(t, ctx, ts)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"exercise_id":"curl","patient_id":42,"timestamp":1700000000}`)))

	img := testJPEG(t)
	for i := range frames {
		require.NoError(t, conn.Write(ctx, websocket.MessageBinary, img))
		typ, data, err := conn.Read(ctx)
		require.NoError(t, err, "frame %d", i)
		assert.Equal(t, websocket.MessageBinary, typ)
		_, err = jpeg.Decode(bytes.NewReader(data))
		assert.NoError(t, err, "annotated frame %d is not a JPEG", i)
	}

	// No further frames: the budget ends the wait and the summary follows.
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	ended, err := protocol.ParseSessionEnded(string(data))
	require.NoError(t, err)
	assert.Equal(t, 1, ended.TotalReps)
	assert.Equal(t, 1, ended.GoodReps)
	assert.Equal(t, "curl", ended.ExerciseID)
	assert.Equal(t, "42", ended.PatientID)
	assert.Equal(t, 100.0, ended.Score)

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))

	require.NoError(t, srv.CloseSessions(ctx))
	recs := rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, models.EndTimeout, recs[0].Summary.EndCause)
}

// TestStreamRejectsUnknownExercise verifies a bad handshake gets an error text and a close.
func TestStreamRejectsUnknownExercise(t *testing.T) {
	streaming, err := exercise.Default().Restrict([]string{"curl"})
	require.NoError(t, err)
	srv := New(&fakeStore{}, exercise.Default(), StreamConfig{
		Session: session.Config{
			Registry:   streaming,
			Estimators: pose.NewReplay(nil),
			Codec:      frame.NewJPEGCodec(frame.DefaultQuality, 0),
		},
	}, "secret", discardLogger())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dialStream(t, ctx, ts)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"exercise_id":"squat","patient_id":"p1"}`)))
	typ, data, err := conn.Read(ctx)
	require.NoError(t, err)
	require.Equal(t, websocket.MessageText, typ)
	reason, ok := protocol.ParseErrorText(string(data))
	require.True(t, ok, "expected error text, got %q", data)
	assert.Contains(t, reason, "squat")

	_, _, err = conn.Read(ctx)
	assert.Equal(t, websocket.StatusNormalClosure, websocket.CloseStatus(err))
}

// TestCloseSessionsEndsLiveStreams verifies shutdown finalizes a stream that is
// waiting for its next frame.
func TestCloseSessionsEndsLiveStreams(t *testing.T) {
	rec := &memRecorder{}
	srv := New(&fakeStore{}, exercise.Default(), StreamConfig{
		Session: session.Config{
			Registry:   exercise.Default(),
			Estimators: pose.NewReplay(nil),
			Codec:      frame.NewJPEGCodec(frame.DefaultQuality, 0),
			Recorder:   rec,
			Timeout:    time.Minute,
		},
	}, "secret", discardLogger())
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := dialStream(t, ctx, ts)
	defer conn.CloseNow()

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"exercise_id":"curl","patient_id":"p1"}`)))
	require.NoError(t, conn.Write(ctx, websocket.MessageBinary, testJPEG(t)))
	_, _, err := conn.Read(ctx)
	require.NoError(t, err)

	require.NoError(t, srv.CloseSessions(ctx))
	recs := rec.records()
	require.Len(t, recs, 1)
	assert.Equal(t, models.EndShutdown, recs[0].Summary.EndCause)
	assert.Equal(t, 0, recs[0].Summary.TotalReps)
}
