package mcp

import (
	"context"

	"github.com/google/uuid"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/models"
	"github.com/claude/posereps/internal/storage"
)

// DataSource abstracts the data layer for MCP tools. Local (in-process) and
// HTTPClient (remote via REST API) both satisfy this interface.
type DataSource interface {
	ListExercises(ctx context.Context) ([]exercise.Definition, error)
	PatientScores(ctx context.Context, patientID string, limit int) ([]models.ScoreEntry, error)
	QuerySessions(ctx context.Context, f storage.SessionFilter) ([]models.SessionSummary, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.SessionRecord, error)
}

// Local serves MCP tools from the server's own database and exercise registry.
type Local struct {
	*storage.DB
	Registry *exercise.Registry
}

// Compile-time check: Local satisfies DataSource.
var _ DataSource = Local{}

func (l Local) ListExercises(context.Context) ([]exercise.Definition, error) {
	return l.Registry.List(), nil
}
