package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"rracer/server/internal/v1/config"
	"rracer/server/internal/v1/health"
	"rracer/server/internal/v1/logging"
	"rracer/server/internal/v1/passages"
	"rracer/server/internal/v1/room"
	"rracer/server/internal/v1/transport"
)

func main() {
	// Load .env file for local development. Try multiple paths to handle
	// different ways of running the app.
	for _, path := range []string{".env", "../../.env"} {
		if err := godotenv.Load(path); err == nil {
			slog.Info("Loaded environment from", "path", path)
			break
		}
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Environment validation failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Development()); err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if !cfg.Development() {
		gin.SetMode(gin.ReleaseMode)
	}

	// --- Passage provider: Postgres store when configured, static list
	// otherwise ---
	var provider passages.Provider = passages.NewStatic()
	var store *passages.Store
	if cfg.DatabaseURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		store, err = passages.NewStore(ctx, cfg.DatabaseURL)
		cancel()
		if err != nil {
			slog.Error("Failed to initialize passage store", "error", err)
			os.Exit(1)
		}
		provider = store
		slog.Info("✅ Passage store connected")
	} else {
		slog.Info("Running on bundled passages (DATABASE_URL not set)")
	}

	registry := room.NewRegistry(room.Options{
		Provider: provider,
		IdleReap: cfg.RoomIdleReap,
	}, 0)

	hub, err := transport.NewHub(registry, cfg.AllowedOrigins, cfg.RateLimitWsKeys)
	if err != nil {
		slog.Error("Failed to create hub", "error", err)
		os.Exit(1)
	}

	// --- Set up server ---
	router := gin.Default()

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.AllowedOrigins
	router.Use(cors.New(corsConfig))

	router.GET("/ws", hub.ServeWs)

	// Prometheus metrics endpoint
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoints
	var storePinger health.StorePinger
	if store != nil {
		storePinger = store
	}
	healthHandler := health.NewHandler(storePinger)
	router.GET("/health/live", healthHandler.Liveness)
	router.GET("/health/ready", healthHandler.Readiness)

	// Frontend assets with SPA fallback to index.html.
	router.NoRoute(func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Status(http.StatusNotFound)
			return
		}
		path := filepath.Join(cfg.WebDir, filepath.Clean("/"+c.Request.URL.Path))
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			c.File(path)
			return
		}
		c.File(filepath.Join(cfg.WebDir, "index.html"))
	})

	srv := &http.Server{
		Addr:    cfg.Addr(),
		Handler: router,
	}

	// --- Graceful shutdown ---
	go func() {
		slog.Info("Server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Failed to run server", "error", err)
			syscall.Kill(os.Getpid(), syscall.SIGTERM)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	slog.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := registry.Shutdown(ctx); err != nil {
		slog.Error("Error during registry shutdown", "error", err)
	}
	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	if store != nil {
		store.Close()
	}

	slog.Info("Server exiting")
}
