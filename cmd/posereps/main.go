package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"tailscale.com/tsnet"

	"github.com/claude/posereps/internal/config"
	"github.com/claude/posereps/internal/exercise"
	"github.com/claude/posereps/internal/frame"
	"github.com/claude/posereps/internal/mcp"
	"github.com/claude/posereps/internal/pose"
	"github.com/claude/posereps/internal/server"
	"github.com/claude/posereps/internal/session"
	"github.com/claude/posereps/internal/storage"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("PoseReps starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Run migrations
	dsn := cfg.Database.DSN()
	if err := storage.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Exercise registry: built-ins, file overrides, then the streaming allowlist
	catalog, err := loadCatalog(cfg.Exercises.DefinitionsFile)
	if err != nil {
		log.Error("failed to load exercise definitions", "error", err)
		os.Exit(1)
	}
	streaming, err := catalog.Restrict(cfg.Exercises.Streaming)
	if err != nil {
		log.Error("invalid streaming allowlist", "error", err)
		os.Exit(1)
	}
	log.Info("exercises loaded", "catalog", catalog.IDs(), "streaming", streaming.IDs())

	// Connect database
	ctx := context.Background()
	db, err := storage.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	log.Info("database connected")

	// Create server
	srv := server.New(db, catalog, server.StreamConfig{
		Session: session.Config{
			Registry:   streaming,
			Estimators: pose.NewHTTPFactory(cfg.Pose.EstimatorURL, cfg.Pose.RequestTimeout(), cfg.Pose.MinVisibility),
			Codec:      frame.NewJPEGCodec(cfg.Session.JPEGQuality, cfg.Session.MaxFramePixels),
			Recorder:   db,
			Logger:     log,
			Timeout:    cfg.Session.Timeout(),
		},
		ReadLimit: cfg.Session.MaxFrameBytes,
	}, cfg.Auth.APIKey, log)

	mcpSrv := mcp.New(mcp.Local{DB: db, Registry: catalog}, Version, log)
	srv.SetMCP(mcpserver.NewStreamableHTTPServer(mcpSrv))

	// Start server on tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
	// Upgraded streams are not tracked by http.Server.
	if err := srv.CloseSessions(shutdownCtx); err != nil {
		log.Error("closing live sessions", "error", err)
	}
	log.Info("server stopped")
}

func loadCatalog(path string) (*exercise.Registry, error) {
	reg := exercise.Default()
	if path == "" {
		return reg, nil
	}
	defs, err := exercise.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return reg.Merge(defs...)
}
