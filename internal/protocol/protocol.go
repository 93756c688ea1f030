// Package protocol defines the messages exchanged on the pose analysis stream.
package protocol

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/claude/posereps/internal/models"
)

//go:embed handshake.schema.json
var handshakeSchemaJSON []byte

const handshakeSchemaURL = "handshake.schema.json"

var handshakeSchema = mustCompile()

func mustCompile() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(handshakeSchemaURL, bytes.NewReader(handshakeSchemaJSON)); err != nil {
		panic(fmt.Sprintf("add handshake schema: %v", err))
	}
	schema, err := compiler.Compile(handshakeSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("compile handshake schema: %v", err))
	}
	return schema
}

// Handshake is the first text message of a session.
type Handshake struct {
	ExerciseID string  `json:"exercise_id"`
	PatientID  string  `json:"patient_id"`
	Timestamp  float64 `json:"timestamp"`
}

// ParseHandshake validates raw against the handshake schema and decodes it.
// A numeric patient_id is converted to its decimal string form.
func ParseHandshake(raw []byte) (Handshake, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var payload any
	if err := dec.Decode(&payload); err != nil {
		return Handshake{}, fmt.Errorf("invalid init message: %w", err)
	}
	if err := dec.Decode(new(any)); !errors.Is(err, io.EOF) {
		return Handshake{}, errors.New("invalid init message: trailing data after JSON object")
	}
	if err := handshakeSchema.Validate(payload); err != nil {
		return Handshake{}, fmt.Errorf("invalid init message: %w", err)
	}

	obj := payload.(map[string]any)
	h := Handshake{ExerciseID: obj["exercise_id"].(string)}
	switch v := obj["patient_id"].(type) {
	case string:
		h.PatientID = v
	case json.Number:
		h.PatientID = v.String()
	}
	if ts, ok := obj["timestamp"].(json.Number); ok {
		f, err := ts.Float64()
		if err != nil {
			return Handshake{}, fmt.Errorf("invalid init message: timestamp: %w", err)
		}
		h.Timestamp = f
	}
	return h, nil
}

// StatusSessionEnded marks the final message of a stream.
const StatusSessionEnded = "session_ended"

// SessionEnded is the single final text message of a stream.
type SessionEnded struct {
	Status         string  `json:"status"`
	TotalReps      int     `json:"total_reps"`
	GoodReps       int     `json:"good_reps"`
	AverageRepTime string  `json:"average_rep_time"`
	ExerciseID     string  `json:"exercise_id"`
	PatientID      string  `json:"patient_id"`
	SessionID      string  `json:"session_id"`
	Score          float64 `json:"score"`
}

// NewSessionEnded builds the final message from a summary.
func NewSessionEnded(s models.SessionSummary) SessionEnded {
	return SessionEnded{
		Status:         StatusSessionEnded,
		TotalReps:      s.TotalReps,
		GoodReps:       s.GoodReps,
		AverageRepTime: FormatRepTime(s.AverageRepDuration),
		ExerciseID:     s.ExerciseID,
		PatientID:      s.PatientID,
		SessionID:      s.SessionID.String(),
		Score:          s.Score,
	}
}

// FormatRepTime renders a duration as seconds with two decimals, e.g. "1.23s".
func FormatRepTime(d time.Duration) string {
	return fmt.Sprintf("%.2fs", d.Seconds())
}

// ParseSessionEnded decodes a final message. It fails for anything that is not one.
func ParseSessionEnded(text string) (SessionEnded, error) {
	var m SessionEnded
	if err := json.Unmarshal([]byte(text), &m); err != nil {
		return SessionEnded{}, fmt.Errorf("decoding session_ended: %w", err)
	}
	if m.Status != StatusSessionEnded {
		return SessionEnded{}, fmt.Errorf("unexpected status %q", m.Status)
	}
	return m, nil
}

const errorPrefix = "ERROR: "

// ErrorText formats a fatal session error for the client.
func ErrorText(reason string) string {
	return errorPrefix + reason
}

// ParseErrorText reports whether text is an error message and returns its reason.
func ParseErrorText(text string) (string, bool) {
	return strings.CutPrefix(text, errorPrefix)
}
