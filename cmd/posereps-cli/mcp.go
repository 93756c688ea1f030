package main

import (
	"log/slog"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/claude/posereps/internal/mcp"
)

var mcpServerURL string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve MCP over stdio, backed by a PoseReps server's REST API",
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol, so logs go to stderr.
		log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		s := mcp.New(mcp.NewHTTPClient(mcpServerURL), Version, log)
		return mcpserver.ServeStdio(s)
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpServerURL, "server", "http://localhost:8080", "PoseReps server base URL")
	rootCmd.AddCommand(mcpCmd)
}
