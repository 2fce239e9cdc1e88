package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// StatusResult is the /api/status response body.
type StatusResult struct {
	Status         string `json:"status"`
	Uptime         string `json:"uptime"`
	Connected      bool   `json:"connected"`
	ActiveSessions int    `json:"activeSessions"`
	OwnerSet       bool   `json:"ownerSet"`
	AdminCount     int    `json:"adminCount"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func (s *Server) handleStatus(c *gin.Context) {
	snap := s.settings.Snapshot()

	connected := false
	if s.isConnected != nil {
		connected = s.isConnected()
	}

	status := "degraded"
	if connected {
		status = "ok"
	}

	c.JSON(http.StatusOK, StatusResult{
		Status:         status,
		Uptime:         time.Since(s.startedAt).Round(time.Second).String(),
		Connected:      connected,
		ActiveSessions: s.sessions.Count(),
		OwnerSet:       snap.Owner != "",
		AdminCount:     len(snap.Admins),
	})
}
