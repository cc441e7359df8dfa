package api

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// analyzeHandler handles POST /analyze: one full analysis turn from
// utterance to approval-ready SQL, suggestions, or a description.
func (s *Server) analyzeHandler(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	if strings.TrimSpace(req.Utterance) == "" {
		badRequest(c, "utterance is required")
		return
	}

	result := s.orch.Analyze(c.Request.Context(), req.Utterance, req.SessionID)
	c.JSON(analyzeResponse(result))
}
