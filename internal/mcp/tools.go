package mcp

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/claude/posereps/internal/storage"
)

// defaultTimeRange returns start/end defaulting to the last 7 days.
func defaultTimeRange(startStr, endStr string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if endStr != "" {
		end, err = parseFlexTime(endStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		end = time.Now()
	}

	if startStr != "" {
		start, err = parseFlexTime(startStr)
		if err != nil {
			return time.Time{}, time.Time{}, err
		}
	} else {
		start = end.AddDate(0, 0, -7)
	}

	return start, end, nil
}

func parseFlexTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err == nil {
		return t, nil
	}
	t, err = time.Parse("2006-01-02", s)
	if err == nil {
		return t, nil
	}
	return time.Time{}, err
}

// --- Tool definitions ---

var toolListExercises = mcp.NewTool("list_exercises",
	mcp.WithDescription("List every exercise definition: id, landmark triad, up/down state thresholds, range-of-motion limits, stability and auxiliary checks, and feedback texts."),
)

var toolGetPatientScores = mcp.NewTool("get_patient_scores",
	mcp.WithDescription("Recent session scores (0-100, share of good reps) for a patient, oldest first."),
	mcp.WithString("patient_id", mcp.Required(), mcp.Description("Patient identifier as sent in the stream handshake")),
	mcp.WithNumber("limit", mcp.Description("Number of most recent scores. Defaults to 7.")),
)

var toolGetSessions = mcp.NewTool("get_sessions",
	mcp.WithDescription("Recorded analysis sessions with rep totals, average rep time, end cause and score. Newest first."),
	mcp.WithString("patient_id", mcp.Description("Filter by patient")),
	mcp.WithString("exercise", mcp.Description("Filter by exercise id (e.g. 'curl', 'lateral_raise')")),
	mcp.WithString("start", mcp.Description("Start date (ISO 8601 or YYYY-MM-DD). Defaults to 7 days ago.")),
	mcp.WithString("end", mcp.Description("End date (ISO 8601 or YYYY-MM-DD). Defaults to now.")),
	mcp.WithNumber("limit", mcp.Description("Maximum sessions returned. Defaults to 100.")),
)

var toolGetSession = mcp.NewTool("get_session",
	mcp.WithDescription("One session summary with its per-rep log: duration, verdict, feedback, failed check and the angle metrics each verdict was based on."),
	mcp.WithString("session_id", mcp.Required(), mcp.Description("Session UUID")),
)

// --- Tool handlers ---

func (h *handlers) listExercises(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	defs, err := h.ds.ListExercises(ctx)
	if err != nil {
		h.log.Error("mcp list_exercises", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(defs)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getPatientScores(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	patientID, err := req.RequireString("patient_id")
	if err != nil {
		return mcp.NewToolResultError("patient_id parameter is required"), nil
	}
	limit := req.GetInt("limit", 7)
	if limit < 1 {
		return mcp.NewToolResultError("limit must be positive"), nil
	}

	scores, err := h.ds.PatientScores(ctx, patientID, limit)
	if err != nil {
		h.log.Error("mcp get_patient_scores", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(scores)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSessions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	start, end, err := defaultTimeRange(req.GetString("start", ""), req.GetString("end", ""))
	if err != nil {
		return mcp.NewToolResultError("invalid date format: " + err.Error()), nil
	}

	sessions, err := h.ds.QuerySessions(ctx, storage.SessionFilter{
		PatientID:  req.GetString("patient_id", ""),
		ExerciseID: req.GetString("exercise", ""),
		Start:      start,
		End:        end,
		Limit:      req.GetInt("limit", 0),
	})
	if err != nil {
		h.log.Error("mcp get_sessions", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(sessions)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) getSession(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := req.RequireString("session_id")
	if err != nil {
		return mcp.NewToolResultError("session_id parameter is required"), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return mcp.NewToolResultError("session_id must be a UUID"), nil
	}

	rec, err := h.ds.GetSession(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return mcp.NewToolResultError("session not found"), nil
	}
	if err != nil {
		h.log.Error("mcp get_session", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}

	result, err := mcp.NewToolResultJSON(rec)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}
