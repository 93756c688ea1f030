package pose

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"sync"
	"time"

	"github.com/claude/posereps/internal/models"
)

// RecordedFrame is one line of a landmark recording.
type RecordedFrame struct {
	// Offset is the capture time relative to the start of the recording.
	Offset    time.Duration
	Landmarks []models.Landmark
}

type recordedLine struct {
	T         float64        `json:"t"`
	Landmarks []wireLandmark `json:"landmarks"`
}

// ReadRecording parses a JSON-lines recording. Each line is
// {"t": seconds, "landmarks": [{"name":..,"x":..,"y":..,"z":..,"visibility":..}]}.
// Blank lines are skipped; an empty landmark list is a frame without a pose.
func ReadRecording(r io.Reader, minVisibility float64) ([]RecordedFrame, error) {
	var frames []RecordedFrame
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}
		var rl recordedLine
		if err := json.Unmarshal(raw, &rl); err != nil {
			return nil, fmt.Errorf("recording line %d: %w", line, err)
		}
		frames = append(frames, RecordedFrame{
			Offset:    time.Duration(rl.T * float64(time.Second)),
			Landmarks: keepVisible(rl.Landmarks, minVisibility),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("reading recording: %w", err)
	}
	return frames, nil
}

// LoadRecording reads a recording file.
func LoadRecording(path string, minVisibility float64) ([]RecordedFrame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening recording: %w", err)
	}
	defer f.Close()
	return ReadRecording(f, minVisibility)
}

// Replay serves recorded frames in order, ignoring the images it is given.
// Every estimator it opens starts from the first frame.
type Replay struct {
	frames []RecordedFrame
}

var _ Factory = (*Replay)(nil)

// NewReplay creates a replay factory over frames.
func NewReplay(frames []RecordedFrame) *Replay {
	return &Replay{frames: frames}
}

// Open returns an estimator positioned at the first recorded frame.
func (r *Replay) Open(context.Context) (Estimator, error) {
	return &replayEstimator{frames: r.frames}, nil
}

type replayEstimator struct {
	mu     sync.Mutex
	frames []RecordedFrame
	next   int
}

// Estimate returns the next recorded frame stamped with at. Once the recording
// is exhausted it reports no pose.
func (e *replayEstimator) Estimate(_ context.Context, _ image.Image, at time.Time) (models.PoseFrame, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.next >= len(e.frames) {
		return models.PoseFrame{}, false, nil
	}
	f := e.frames[e.next]
	e.next++
	if len(f.Landmarks) == 0 {
		return models.PoseFrame{}, false, nil
	}
	return models.NewPoseFrame(at, f.Landmarks), true, nil
}

func (e *replayEstimator) Close() error { return nil }
