package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/askql/askql/pkg/version"
)

// healthHandler handles GET /healthz with store reachability and pool stats.
func (s *Server) healthHandler(c *gin.Context) {
	health := s.store.Health(c.Request.Context())

	status := http.StatusOK
	overall := "healthy"
	if !health.Healthy {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	c.JSON(status, gin.H{"status": overall, "database": health})
}

// historyHandler handles GET /history/:session_id from gateway conversation
// memory. Sessions with no remembered turns are 404; memory is in-process
// and expires on its own schedule, so absence is an expected outcome.
func (s *Server) historyHandler(c *gin.Context) {
	sessionID := c.Param("session_id")

	turns := s.gateway.History(sessionID)
	if len(turns) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Kind:    KindError,
			Stage:   "session",
			Message: "no conversation recorded for this session",
		})
		return
	}

	resp := HistoryResponse{
		SessionID: sessionID,
		Turns:     make([]HistoryTurn, 0, len(turns)),
	}
	for _, m := range turns {
		resp.Turns = append(resp.Turns, HistoryTurn{Role: string(m.Role), Content: m.Content})
	}
	c.JSON(http.StatusOK, resp)
}

// versionHandler handles GET /version.
func (s *Server) versionHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"version": version.Full()})
}
