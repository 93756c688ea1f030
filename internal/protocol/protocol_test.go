package protocol

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"

	"github.com/claude/posereps/internal/models"
)

// TestParseHandshake covers the accepted and rejected init messages.
func TestParseHandshake(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Handshake
		wantErr bool
	}{
		{
			name: "string patient",
			raw:  `{"exercise_id":"curl","patient_id":"p-17","timestamp":1717171717.5}`,
			want: Handshake{ExerciseID: "curl", PatientID: "p-17", Timestamp: 1717171717.5},
		},
		{
			name: "integer patient",
			raw:  `{"exercise_id":"lateral_raise","patient_id":42,"timestamp":1}`,
			want: Handshake{ExerciseID: "lateral_raise", PatientID: "42", Timestamp: 1},
		},
		{
			name: "no timestamp",
			raw:  `{"exercise_id":"curl","patient_id":"p"}`,
			want: Handshake{ExerciseID: "curl", PatientID: "p"},
		},
		{
			name: "trailing whitespace",
			raw:  "{\"exercise_id\":\"curl\"}\n",
			want: Handshake{ExerciseID: "curl"},
		},
		{name: "not json", raw: `curl please`, wantErr: true},
		{name: "trailing garbage", raw: `{"exercise_id":"curl"}garbage`, wantErr: true},
		{name: "two objects", raw: `{"exercise_id":"curl"}{"exercise_id":"squat"}`, wantErr: true},
		{name: "array", raw: `["curl"]`, wantErr: true},
		{name: "missing exercise", raw: `{"patient_id":"p"}`, wantErr: true},
		{name: "empty exercise", raw: `{"exercise_id":""}`, wantErr: true},
		{name: "numeric exercise", raw: `{"exercise_id":7}`, wantErr: true},
		{name: "fractional patient", raw: `{"exercise_id":"curl","patient_id":4.5}`, wantErr: true},
		{name: "string timestamp", raw: `{"exercise_id":"curl","timestamp":"now"}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseHandshake([]byte(tt.raw))
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseHandshake(%s) = %+v, want error", tt.raw, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("handshake mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

// TestSessionEndedRoundTrip verifies the final message fields and rep time format.
func TestSessionEndedRoundTrip(t *testing.T) {
	id := uuid.MustParse("8d1f5a1e-3c7b-4e0e-9a51-2f0b6f1c9d11")
	msg := NewSessionEnded(models.SessionSummary{
		SessionID:          id,
		ExerciseID:         "curl",
		PatientID:          "p1",
		TotalReps:          4,
		GoodReps:           3,
		AverageRepDuration: 1234 * time.Millisecond,
		Score:              75,
	})
	if msg.AverageRepTime != "1.23s" {
		t.Errorf("average_rep_time = %q, want %q", msg.AverageRepTime, "1.23s")
	}
	if msg.Status != "session_ended" {
		t.Errorf("status = %q, want session_ended", msg.Status)
	}

	raw := `{"status":"session_ended","total_reps":4,"good_reps":3,"average_rep_time":"1.23s",` +
		`"exercise_id":"curl","patient_id":"p1","session_id":"8d1f5a1e-3c7b-4e0e-9a51-2f0b6f1c9d11","score":75}`
	got, err := ParseSessionEnded(raw)
	if err != nil {
		t.Fatalf("ParseSessionEnded: %v", err)
	}
	if diff := cmp.Diff(msg, got); diff != "" {
		t.Errorf("session_ended mismatch (-want +got):\n%s", diff)
	}

	if _, err := ParseSessionEnded(`{"status":"streaming"}`); err == nil {
		t.Error("expected error for non-final status")
	}
}

// TestFormatRepTimeZero verifies sessions without reps report 0.00s.
func TestFormatRepTimeZero(t *testing.T) {
	if got := FormatRepTime(0); got != "0.00s" {
		t.Errorf("FormatRepTime(0) = %q, want 0.00s", got)
	}
}

// TestErrorText verifies error messages carry the ERROR prefix.
func TestErrorText(t *testing.T) {
	text := ErrorText("unknown exercise_id \"yoga\"")
	if text != `ERROR: unknown exercise_id "yoga"` {
		t.Errorf("ErrorText = %q", text)
	}
	reason, ok := ParseErrorText(text)
	if !ok || reason != `unknown exercise_id "yoga"` {
		t.Errorf("ParseErrorText = %q, %v", reason, ok)
	}
	if _, ok := ParseErrorText(`{"status":"session_ended"}`); ok {
		t.Error("final message parsed as error")
	}
}
