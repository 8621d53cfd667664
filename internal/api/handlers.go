package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hay-kot/orderbell/internal/bell"
	"github.com/hay-kot/orderbell/internal/core/feed"
	"github.com/hay-kot/orderbell/internal/core/status"
	"github.com/hay-kot/orderbell/internal/core/validate"
)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

func abort(c *gin.Context, code int, err error) {
	c.AbortWithStatusJSON(code, ErrorResponse{Error: err.Error()})
}

// commandFailed maps an engine command error to a status code.
func commandFailed(c *gin.Context, err error) {
	switch {
	case errors.Is(err, bell.ErrStopped):
		abort(c, http.StatusServiceUnavailable, err)
	case errors.Is(err, c.Request.Context().Err()):
		abort(c, http.StatusRequestTimeout, err)
	default:
		abort(c, http.StatusInternalServerError, err)
	}
}

func (s *Server) health(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":     "ok",
		"connection": snap.Connection.State,
		"version":    snap.Version,
	})
}

func (s *Server) listNotifications(c *gin.Context) {
	snap := s.engine.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"notifications": snap.Notifications,
		"unread":        snap.Unread,
		"version":       snap.Version,
	})
}

func (s *Server) unreadCount(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"unread": s.engine.Snapshot().Unread})
}

func (s *Server) getNotification(c *gin.Context) {
	n, ok := s.engine.Snapshot().Find(c.Param("id"))
	if !ok {
		abort(c, http.StatusNotFound, errors.New("notification not found"))
		return
	}
	c.JSON(http.StatusOK, n)
}

func (s *Server) markRead(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.engine.Snapshot().Find(id); !ok {
		abort(c, http.StatusNotFound, errors.New("notification not found"))
		return
	}

	changed, err := s.engine.MarkRead(c.Request.Context(), id)
	if err != nil {
		commandFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": changed})
}

func (s *Server) markAllRead(c *gin.Context) {
	n, err := s.engine.MarkAllRead(c.Request.Context())
	if err != nil {
		commandFailed(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"changed": n})
}

func (s *Server) clearNotifications(c *gin.Context) {
	if err := s.engine.Clear(c.Request.Context()); err != nil {
		commandFailed(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) listToasts(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"toasts": s.engine.Snapshot().Toasts})
}

func (s *Server) dismissToast(c *gin.Context) {
	ok, err := s.engine.DismissToast(c.Request.Context(), c.Param("id"))
	if err != nil {
		commandFailed(c, err)
		return
	}
	if !ok {
		abort(c, http.StatusNotFound, errors.New("toast not active"))
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) connection(c *gin.Context) {
	c.JSON(http.StatusOK, s.engine.Snapshot().Connection)
}

// StatusEntry is one row of GET /api/statuses.
type StatusEntry struct {
	Code string `json:"code"`
	status.Meta
}

func (s *Server) statuses(c *gin.Context) {
	codes := status.Codes()
	out := make([]StatusEntry, len(codes))
	for i, code := range codes {
		out[i] = StatusEntry{Code: string(code), Meta: status.Resolve(string(code))}
	}
	c.JSON(http.StatusOK, gin.H{"statuses": out})
}

// ingest accepts one change in the feed payload format, as if it had
// arrived on the feed.
func (s *Server) ingest(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}
	change, err := feed.DecodePayload(body)
	if err == nil {
		err = validate.Change(change)
	}
	if err != nil {
		abort(c, http.StatusBadRequest, err)
		return
	}

	n, ok, err := s.engine.Ingest(c.Request.Context(), change)
	if err != nil {
		commandFailed(c, err)
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"accepted": false})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"accepted": true, "notification": n})
}
