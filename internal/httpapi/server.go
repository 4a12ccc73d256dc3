// Package httpapi exposes the canvas store and the version coordinator to
// the designer UI over JSON and a websocket change feed.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Server is the designer's HTTP server.
type Server struct {
	server *http.Server
	logger *zap.Logger
}

// NewServer creates a server on port that serves h.
func NewServer(port int, h *APIHandler, logger *zap.Logger) *Server {
	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           h.Routes(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger.Named("api-server"),
	}
}

// Start runs the HTTP server in a new goroutine.
func (s *Server) Start() {
	s.logger.Info("Starting API server", zap.String("address", s.server.Addr))
	go func() {
		if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server failed", zap.Error(err))
		}
	}()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping API server...")
	return s.server.Shutdown(ctx)
}

// Routes registers every endpoint on a new mux.
func (h *APIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", h.HealthHandler)
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /api/blocks", h.BlocksHandler)
	mux.HandleFunc("GET /api/canvas", h.ActiveCanvasHandler)
	mux.HandleFunc("GET /api/canvas/feed", h.FeedHandler)
	mux.HandleFunc("GET /api/canvas/{versionId}", h.CanvasHandler)
	mux.HandleFunc("POST /api/canvas/{versionId}/nodes", h.AddBlockHandler)
	mux.HandleFunc("PUT /api/canvas/{versionId}/nodes/{nodeId}", h.UpsertNodeHandler)
	mux.HandleFunc("PATCH /api/canvas/{versionId}/nodes/{nodeId}", h.UpdateNodeHandler)
	mux.HandleFunc("DELETE /api/canvas/{versionId}/nodes/{nodeId}", h.RemoveNodeHandler)
	mux.HandleFunc("PUT /api/canvas/{versionId}/nodes/{nodeId}/position", h.MoveNodeHandler)
	mux.HandleFunc("PUT /api/canvas/{versionId}/nodes/{nodeId}/parameters/{key}", h.ParameterHandler)
	mux.HandleFunc("POST /api/canvas/{versionId}/edges", h.ConnectHandler)
	mux.HandleFunc("DELETE /api/canvas/{versionId}/edges/{edgeId}", h.RemoveEdgeHandler)
	mux.HandleFunc("POST /api/canvas/{versionId}/undo", h.UndoHandler)
	mux.HandleFunc("POST /api/canvas/{versionId}/redo", h.RedoHandler)
	mux.HandleFunc("POST /api/canvas/{versionId}/validate", h.ValidateHandler)

	mux.HandleFunc("POST /api/strategies/{strategyId}/bootstrap", h.BootstrapHandler)
	mux.HandleFunc("GET /api/strategies/{strategyId}/versions", h.VersionsHandler)
	mux.HandleFunc("POST /api/strategies/{strategyId}/versions/{versionId}/load", h.LoadHandler)
	mux.HandleFunc("POST /api/strategies/{strategyId}/versions/{versionId}/revert", h.RevertHandler)

	if h.onboarding != nil {
		mux.HandleFunc("POST /api/onboarding/steps", h.OnboardingHandler)
	}

	return mux
}
