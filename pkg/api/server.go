// Package api exposes the analysis pipeline over HTTP: analyze and execute
// for the two pipeline halves, plus health, history, and version endpoints.
// Handlers translate orchestrator result unions into kind-discriminated JSON
// and never embed pipeline logic of their own.
package api

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"github.com/askql/askql/pkg/database"
	"github.com/askql/askql/pkg/llm"
	"github.com/askql/askql/pkg/orchestrator"
)

// Server carries the handler dependencies.
type Server struct {
	orch    *orchestrator.Orchestrator
	gateway *llm.Gateway
	store   *database.Client
	logger  *slog.Logger
}

// NewServer creates the API server. The logger defaults to slog.Default
// when nil.
func NewServer(orch *orchestrator.Orchestrator, gateway *llm.Gateway, store *database.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{orch: orch, gateway: gateway, store: store, logger: logger}
}

// Router assembles the gin engine: middleware chain plus all routes.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(
		requestLogger(s.logger),
		recovery(s.logger),
		securityHeaders(),
	)

	r.POST("/analyze", s.analyzeHandler)
	r.POST("/execute", s.executeHandler)
	r.GET("/healthz", s.healthHandler)
	r.GET("/history/:session_id", s.historyHandler)
	r.GET("/version", s.versionHandler)

	return r
}
