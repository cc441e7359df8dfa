package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// executeHandler handles POST /execute: consume the approval session and run
// the approved statement. An unknown or already-consumed session is 404.
func (s *Server) executeHandler(c *gin.Context) {
	var req ExecuteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.ApprovedSQL) == "" {
		badRequest(c, "approved_sql is required")
		return
	}

	result := s.orch.Execute(c.Request.Context(), req.SessionID, req.ApprovedSQL)
	c.JSON(executeResponse(result))
}
