package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/models"
	"github.com/claude/posereps/internal/storage"
)

// HTTPClient implements DataSource by calling the PoseReps REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, v any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("httpclient: %s: %w", path, storage.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("httpclient: %s returned %d: %s", path, resp.StatusCode, body)
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) ListExercises(ctx context.Context) ([]exercise.Definition, error) {
	var defs []exercise.Definition
	if err := c.get(ctx, "/api/v1/exercises", nil, &defs); err != nil {
		return nil, err
	}
	return defs, nil
}

// PatientScores returns at most limit of the scores the server reports, keeping the newest.
func (c *HTTPClient) PatientScores(ctx context.Context, patientID string, limit int) ([]models.ScoreEntry, error) {
	var scores []models.ScoreEntry
	if err := c.get(ctx, "/api/v1/patients/"+url.PathEscape(patientID)+"/scores", nil, &scores); err != nil {
		return nil, err
	}
	if limit > 0 && len(scores) > limit {
		scores = scores[len(scores)-limit:]
	}
	return scores, nil
}

func (c *HTTPClient) QuerySessions(ctx context.Context, f storage.SessionFilter) ([]models.SessionSummary, error) {
	params := url.Values{}
	if !f.Start.IsZero() {
		params.Set("start", f.Start.Format(time.RFC3339))
	}
	if !f.End.IsZero() {
		params.Set("end", f.End.Format(time.RFC3339))
	}
	if f.PatientID != "" {
		params.Set("patient_id", f.PatientID)
	}
	if f.ExerciseID != "" {
		params.Set("exercise", f.ExerciseID)
	}
	if f.Limit > 0 {
		params.Set("limit", strconv.Itoa(f.Limit))
	}

	var sessions []models.SessionSummary
	if err := c.get(ctx, "/api/v1/sessions", params, &sessions); err != nil {
		return nil, err
	}
	return sessions, nil
}

func (c *HTTPClient) GetSession(ctx context.Context, id uuid.UUID) (*models.SessionRecord, error) {
	var rec models.SessionRecord
	if err := c.get(ctx, "/api/v1/sessions/"+id.String(), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}
