package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("PoseReps", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("PoseReps exercise analysis server. Look up exercise definitions, recorded rep-counting sessions with per-rep verdicts, and patient score history."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListExercises, Handler: h.listExercises},
		server.ServerTool{Tool: toolGetPatientScores, Handler: h.getPatientScores},
		server.ServerTool{Tool: toolGetSessions, Handler: h.getSessions},
		server.ServerTool{Tool: toolGetSession, Handler: h.getSession},
	)

	s.AddResources(
		server.ServerResource{Resource: resExerciseCatalog, Handler: h.exerciseCatalog},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

var resExerciseCatalog = mcp.NewResource(
	"posereps://exercise_catalog",
	"Exercise Catalog",
	mcp.WithResourceDescription("Every exercise the server can analyze, with landmark triads, state thresholds and range-of-motion limits"),
	mcp.WithMIMEType("application/json"),
)
