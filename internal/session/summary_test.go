package session

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/claude/posereps/internal/models"
)

// TestSummarizeEmpty verifies a session without reps reports zeros.
func TestSummarizeEmpty(t *testing.T) {
	id := uuid.New()
	end := start.Add(30 * time.Second)
	got := Summarize(Summary{ID: id, ExerciseID: "curl", PatientID: "7", StartedAt: start}, nil, end, models.EndTimeout)
	want := models.SessionSummary{
		SessionID:  id,
		ExerciseID: "curl",
		PatientID:  "7",
		StartedAt:  start,
		EndedAt:    end,
		EndCause:   models.EndTimeout,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summary mismatch (-want +got):\n%s", diff)
	}
}

// TestSummarizeCounts verifies totals, average duration and score.
func TestSummarizeCounts(t *testing.T) {
	results := []models.RepResult{
		{Number: 1, Good: true, Duration: 1 * time.Second},
		{Number: 2, Good: false, Duration: 2 * time.Second},
		{Number: 3, Good: true, Duration: 1500 * time.Millisecond},
		{Number: 4, Good: true, Duration: 1500 * time.Millisecond},
	}
	got := Summarize(Summary{}, results, start, models.EndClientClosed)
	if got.TotalReps != 4 || got.GoodReps != 3 {
		t.Errorf("reps = %d/%d, want 3/4", got.GoodReps, got.TotalReps)
	}
	if got.GoodReps > got.TotalReps {
		t.Errorf("good reps exceed total")
	}
	if got.AverageRepDuration != 1500*time.Millisecond {
		t.Errorf("average = %v, want 1.5s", got.AverageRepDuration)
	}
	if got.Score != 75 {
		t.Errorf("score = %v, want 75", got.Score)
	}
}

// TestLifecycleTransitions verifies the transition table.
func TestLifecycleTransitions(t *testing.T) {
	tests := []struct {
		path []State
		ok   bool
	}{
		{[]State{StateStreaming, StateFinalizing, StateClosed}, true},
		{[]State{StateFinalizing, StateClosed}, true},
		{[]State{StateClosed}, false},
		{[]State{StateStreaming, StateStreaming}, false},
		{[]State{StateStreaming, StateClosed}, false},
		{[]State{StateStreaming, StateFinalizing, StateClosed, StateStreaming}, false},
	}
	for _, tt := range tests {
		l := NewLifecycle()
		var err error
		for _, s := range tt.path {
			if err = l.Transition(s); err != nil {
				break
			}
		}
		if (err == nil) != tt.ok {
			t.Errorf("path %v: err = %v, want ok=%v", tt.path, err, tt.ok)
		}
		if tt.ok {
			want := append([]State{StateInitializing}, tt.path...)
			if diff := cmp.Diff(want, l.History()); diff != "" {
				t.Errorf("history mismatch (-want +got):\n%s", diff)
			}
		}
	}
}
