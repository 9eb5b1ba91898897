package server

import (
	"context"
	"gsb/internal/restore"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

type createBackupRequest struct {
	Notes string `json:"notes"`
}

type metadataRequest struct {
	Notes string   `json:"notes"`
	Tags  []string `json:"tags" binding:"max=32,dive,max=64"`
}

func (s *Server) handleListBackups(c *gin.Context) {
	list, err := s.deps.Store.List()
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backups": list})
}

func (s *Server) handleCreateBackup(c *gin.Context) {
	var req createBackupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}

	res, err := s.deps.Scheduler.ExecuteAndPrune(c.Request.Context(), req.Notes)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"backup":       res.Archive,
		"verification": res.Verification,
		"pruned":       res.Pruned,
	})
}

func (s *Server) handleDeleteBackup(c *gin.Context) {
	name := c.Param("name")
	if err := s.deps.Job.Delete(c.Request.Context(), name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": name})
}

func (s *Server) handleVerifyBackup(c *gin.Context) {
	v, err := s.deps.Store.Verify(c.Param("name"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (s *Server) handleUpdateMetadata(c *gin.Context) {
	var req metadataRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	name := c.Param("name")
	if err := s.deps.Store.UpdateMetadata(name, req.Notes, req.Tags); err != nil {
		writeError(c, err)
		return
	}
	a, err := s.deps.Store.Get(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

func (s *Server) handleDownloadBackup(c *gin.Context) {
	name := c.Param("name")
	path, err := s.deps.Store.Path(name)
	if err != nil {
		writeError(c, err)
		return
	}
	c.FileAttachment(path, name)
}

// handleRestoreBackup streams restore progress as SSE. Errors, including a
// missing archive, arrive as an error event on a 200 stream.
func (s *Server) handleRestoreBackup(c *gin.Context) {
	w, err := newSSEWriter(c.Writer)
	if err != nil {
		writeError(c, err)
		return
	}
	SetSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	name := c.Param("name")
	_ = s.deps.Restore.Run(c.Request.Context(), name, func(ev restore.Event) {
		if err := w.Send(ev.Type, ev); err != nil {
			slog.Warn("Failed to send restore event", "name", name, "error", err)
		}
	})
}

func (s *Server) handleStatusStream(c *gin.Context) {
	w, err := newSSEWriter(c.Writer)
	if err != nil {
		writeError(c, err)
		return
	}
	SetSSEHeaders(c.Writer)
	c.Status(http.StatusOK)

	ctx, cancel := context.WithCancel(c.Request.Context())
	done := make(chan struct{})
	go s.keepAlive(ctx, w, cancel, done)

	if err := s.deps.Status.Serve(ctx, w); err != nil {
		slog.Debug("Status stream ended", "error", err)
	}
	// The writer must not be touched once the handler returns.
	cancel()
	<-done
}

func (s *Server) keepAlive(ctx context.Context, w *sseWriter, cancel context.CancelFunc, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.deps.KeepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.KeepAlive(); err != nil {
				cancel()
				return
			}
		}
	}
}

func (s *Server) handleServerStatus(c *gin.Context) {
	st, err := s.deps.Container.Status(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

func (s *Server) handleServerStart(c *gin.Context) {
	st, err := s.deps.Container.Start(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

func (s *Server) handleServerStop(c *gin.Context) {
	st, err := s.deps.Container.Stop(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": st})
}

func (s *Server) handleScheduler(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Scheduler.Health())
}

