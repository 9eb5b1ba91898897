package server

import (
	"context"
	"errors"
	"fmt"
	"gsb/internal/archive"
	"gsb/internal/backup"
	"gsb/internal/container"
	"gsb/internal/lock"
	"gsb/internal/restore"
	"gsb/internal/scheduler"
	"gsb/internal/status"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const defaultKeepAlive = 15 * time.Second

type Deps struct {
	Store     *archive.Store
	Job       *backup.Job
	Scheduler *scheduler.Scheduler
	Restore   *restore.Orchestrator
	Container *container.Controller
	Status    *status.Multiplexer
	Gatherer  prometheus.Gatherer
	// KeepAlive is the interval of SSE comment pings. Zero means 15s.
	KeepAlive time.Duration
}

type Server struct {
	deps   Deps
	router *gin.Engine
}

func New(deps Deps) *Server {
	if deps.KeepAlive <= 0 {
		deps.KeepAlive = defaultKeepAlive
	}
	s := &Server{deps: deps}
	s.initRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) initRouter() {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	api := r.Group("/api")
	api.GET("/status/stream", s.handleStatusStream)

	api.GET("/backups", s.handleListBackups)
	api.POST("/backups", s.handleCreateBackup)
	api.DELETE("/backups/:name", s.handleDeleteBackup)
	api.POST("/backups/:name/verify", s.handleVerifyBackup)
	api.PUT("/backups/:name/metadata", s.handleUpdateMetadata)
	api.GET("/backups/:name/download", s.handleDownloadBackup)
	api.POST("/backups/:name/restore", s.handleRestoreBackup)

	api.GET("/server/status", s.handleServerStatus)
	api.POST("/server/start", s.handleServerStart)
	api.POST("/server/stop", s.handleServerStop)

	api.GET("/scheduler", s.handleScheduler)

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{})))
	s.router = r
}

// Run serves until ctx is cancelled. Request contexts derive from ctx so open
// streams end on shutdown.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	slog.Info("HTTP server stopped")
	return nil
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		slog.Debug("HTTP request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// statusCode maps domain errors onto HTTP statuses.
func statusCode(err error) int {
	switch {
	case errors.Is(err, archive.ErrNotFound), errors.Is(err, container.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, archive.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, lock.ErrBusy), errors.Is(err, archive.ErrExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(code, gin.H{"error": err.Error()})
}
