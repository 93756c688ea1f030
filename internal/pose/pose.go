// Package pose connects the analysis engine to an external pose estimator.
package pose

import (
	"context"
	"image"
	"time"

	"github.com/claude/posereps/internal/models"
)

// Estimator detects body landmarks in a single frame. ok is false when no
// pose was detected, which is not an error.
type Estimator interface {
	Estimate(ctx context.Context, img image.Image, at time.Time) (frame models.PoseFrame, ok bool, err error)
	Close() error
}

// Factory opens one estimator per session.
type Factory interface {
	Open(ctx context.Context) (Estimator, error)
}

// wireLandmark is the JSON shape of a landmark shared by the sidecar and recordings.
type wireLandmark struct {
	Name       string  `json:"name"`
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Z          float64 `json:"z"`
	Visibility float64 `json:"visibility"`
}

// keepVisible converts wire landmarks, dropping unknown names and any point
// below minVisibility.
func keepVisible(in []wireLandmark, minVisibility float64) []models.Landmark {
	out := make([]models.Landmark, 0, len(in))
	for _, w := range in {
		name := models.LandmarkName(w.Name)
		if !name.Valid() || w.Visibility < minVisibility {
			continue
		}
		out = append(out, models.Landmark{Name: name, X: w.X, Y: w.Y, Z: w.Z, Visibility: w.Visibility})
	}
	return out
}
