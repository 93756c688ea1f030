package pose

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/claude/posereps/internal/models"
)

// HTTPFactory opens estimator sessions on a pose sidecar.
type HTTPFactory struct {
	baseURL       string
	httpClient    *http.Client
	minVisibility float64
	quality       int
}

var _ Factory = (*HTTPFactory)(nil)

// NewHTTPFactory creates a factory for the sidecar at baseURL.
func NewHTTPFactory(baseURL string, timeout time.Duration, minVisibility float64) *HTTPFactory {
	return &HTTPFactory{
		baseURL:       strings.TrimRight(baseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		minVisibility: minVisibility,
		quality:       90,
	}
}

// Open creates a sidecar session. Retries up to 3 times with exponential backoff.
func (f *HTTPFactory) Open(ctx context.Context) (Estimator, error) {
	var lastErr error
	for attempt := range 3 {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("opening pose session: %w", ctx.Err())
			case <-time.After(time.Duration(1<<uint(attempt-1)) * 200 * time.Millisecond):
			}
		}

		id, err := f.createSession(ctx)
		if err != nil {
			lastErr = err
			continue
		}
		return &HTTPEstimator{factory: f, sessionID: id}, nil
	}
	return nil, fmt.Errorf("opening pose session after 3 attempts: %w", lastErr)
}

func (f *HTTPFactory) createSession(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/sessions", nil)
	if err != nil {
		return "", fmt.Errorf("pose: create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("pose: create session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("pose: create session returned %d: %s", resp.StatusCode, body)
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("pose: decoding session: %w", err)
	}
	if out.SessionID == "" {
		return "", fmt.Errorf("pose: sidecar returned an empty session id")
	}
	return out.SessionID, nil
}

// HTTPEstimator is one sidecar session.
type HTTPEstimator struct {
	factory   *HTTPFactory
	sessionID string
}

// Estimate sends img to the sidecar and returns the visible landmarks.
func (e *HTTPEstimator) Estimate(ctx context.Context, img image.Image, at time.Time) (models.PoseFrame, bool, error) {
	f := e.factory
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: f.quality}); err != nil {
		return models.PoseFrame{}, false, fmt.Errorf("pose: encoding frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.baseURL+"/v1/sessions/"+e.sessionID+"/estimate", &buf)
	if err != nil {
		return models.PoseFrame{}, false, fmt.Errorf("pose: create request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return models.PoseFrame{}, false, fmt.Errorf("pose: estimate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return models.PoseFrame{}, false, nil
	case http.StatusOK:
	default:
		body, _ := io.ReadAll(resp.Body)
		return models.PoseFrame{}, false, fmt.Errorf("pose: estimate returned %d: %s", resp.StatusCode, body)
	}

	var out struct {
		Landmarks []wireLandmark `json:"landmarks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return models.PoseFrame{}, false, fmt.Errorf("pose: decoding landmarks: %w", err)
	}
	kept := keepVisible(out.Landmarks, f.minVisibility)
	if len(kept) == 0 {
		return models.PoseFrame{}, false, nil
	}
	return models.NewPoseFrame(at, kept), true, nil
}

// Close ends the sidecar session.
func (e *HTTPEstimator) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	f := e.factory
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, f.baseURL+"/v1/sessions/"+e.sessionID, nil)
	if err != nil {
		return fmt.Errorf("pose: create request: %w", err)
	}
	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("pose: close session: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("pose: close session returned %d", resp.StatusCode)
	}
	return nil
}
