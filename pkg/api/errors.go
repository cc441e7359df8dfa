package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// badRequest rejects a malformed request before it reaches the pipeline.
// The stage field distinguishes transport-level rejections from pipeline
// failures, which carry taxonomy stages.
func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Kind:    KindError,
		Stage:   "request",
		Message: message,
	})
}
