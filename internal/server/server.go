package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/models"
	"github.com/claude/posereps/internal/session"
	"github.com/claude/posereps/internal/storage"
)

// Store is the persistence the HTTP API reads from and writes scores to.
// *storage.DB satisfies it.
type Store interface {
	QuerySessions(ctx context.Context, f storage.SessionFilter) ([]models.SessionSummary, error)
	GetSession(ctx context.Context, id uuid.UUID) (*models.SessionRecord, error)
	InsertScore(ctx context.Context, e models.ScoreEntry) (int64, error)
	PatientScores(ctx context.Context, patientID string, limit int) ([]models.ScoreEntry, error)
	Ping(ctx context.Context) error
}

var _ Store = (*storage.DB)(nil)

// StreamConfig configures the pose analysis stream endpoint.
type StreamConfig struct {
	Session session.Config
	// ReadLimit caps the size of one inbound frame in bytes.
	ReadLimit int64
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	db      Store
	catalog *exercise.Registry
	stream  StreamConfig
	log     *slog.Logger
	apiKey  string
	router  chi.Router
	mcp     http.Handler

	// sessionCtx is cancelled by CloseSessions to end every live stream.
	sessionCtx    context.Context
	cancelStreams context.CancelFunc
	live          sync.WaitGroup
}

// New creates a new Server with all routes configured. catalog is the full
// exercise registry; stream.Session.Registry is the subset offered on the stream.
func New(db Store, catalog *exercise.Registry, stream StreamConfig, apiKey string, log *slog.Logger) *Server {
	if stream.Session.Logger == nil {
		stream.Session.Logger = log
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		db:            db,
		catalog:       catalog,
		stream:        stream,
		log:           log,
		apiKey:        apiKey,
		router:        chi.NewRouter(),
		sessionCtx:    ctx,
		cancelStreams: cancel,
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/pose/ws/analyze", s.handleAnalyze)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/exercises", s.handleListExercises)
		r.Get("/exercises/{id}", s.handleGetExercise)

		// Score recorder (API key required)
		r.With(APIKeyAuth(s.apiKey)).Post("/scores", s.handleRecordScore)
		r.Get("/patients/{patientID}/scores", s.handlePatientScores)

		r.Get("/sessions", s.handleQuerySessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/sessions/{id}/chart", s.handleSessionChart)
	})

	s.router.HandleFunc("/mcp", s.handleMCP)
}

// SetMCP mounts the MCP streamable HTTP handler at /mcp.
func (s *Server) SetMCP(h http.Handler) {
	s.mcp = h
}

func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	if s.mcp == nil {
		http.NotFound(w, r)
		return
	}
	s.mcp.ServeHTTP(w, r)
}

// CloseSessions cancels every live stream and waits until each has sent its
// summary and released its resources, or until ctx is done.
func (s *Server) CloseSessions(ctx context.Context) error {
	s.cancelStreams()
	done := make(chan struct{})
	go func() {
		s.live.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
