// Package httpserver exposes the daemon's HTTP surface: health probes, the
// Prometheus scrape endpoint, and the JSON API for documents, search, and
// usage tracking.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/vantagekit/vectorsync/internal/chunking"
	"github.com/vantagekit/vectorsync/internal/usage"
	"github.com/vantagekit/vectorsync/internal/vectorstore"
)

// Config holds HTTP server configuration.
type Config struct {
	// Host to bind. Default: "localhost"
	Host string `koanf:"host"`

	// Port to bind. Default: 9090
	Port int `koanf:"port"`

	// ShutdownTimeout bounds graceful shutdown. Default: 10s
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Host == "" {
		c.Host = "localhost"
	}
	if c.Port == 0 {
		c.Port = 9090
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
}

// Validate validates the configuration.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

// HealthChecker reports dependency health. Implemented by the vector client.
type HealthChecker interface {
	HealthCheck(ctx context.Context) vectorstore.HealthStatus
}

// Deps are the services the server routes to. Nil entries leave the
// corresponding routes unregistered.
type Deps struct {
	Health    HealthChecker
	Vectors   *vectorstore.Client
	Documents *chunking.DocumentStore
	Usage     *usage.Tracker
}

// Server is the daemon's HTTP server.
type Server struct {
	echo   *echo.Echo
	config Config
	deps   Deps
	logger *zap.Logger
}

// New creates the server and registers its routes.
func New(config Config, deps Deps, logger *zap.Logger) (*Server, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{
		echo:   e,
		config: config,
		deps:   deps,
		logger: logger,
	}

	e.GET("/healthz", s.handleHealthz)
	e.GET("/readyz", s.handleReadyz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/v1")
	if deps.Documents != nil {
		api.PUT("/documents/:owner", s.handleSaveDocument)
		api.GET("/documents/:owner", s.handleLoadDocument)
		api.DELETE("/documents/:owner", s.handleDeleteDocument)
	}
	if deps.Vectors != nil {
		api.POST("/search", s.handleSearch)
	}
	if deps.Usage != nil {
		api.POST("/usage/track", s.handleTrackUsage)
		api.GET("/usage/projects/:id", s.handleProjectUsage)
		api.GET("/usage/sessions/:id", s.handleSessionUsage)
	}

	return s, nil
}

// healthzResponse is the body of GET /healthz.
type healthzResponse struct {
	Status string                   `json:"status"`
	Store  vectorstore.HealthStatus `json:"store"`
}

// handleHealthz probes the vector store through the resilient client and
// reports its latency. Degraded dependencies return 503 so orchestrators
// stop routing traffic here.
func (s *Server) handleHealthz(c echo.Context) error {
	status := vectorstore.HealthStatus{Healthy: true}
	if s.deps.Health != nil {
		status = s.deps.Health.HealthCheck(c.Request().Context())
	}

	resp := healthzResponse{Status: "ok", Store: status}
	if !status.Healthy {
		resp.Status = "degraded"
		return c.JSON(http.StatusServiceUnavailable, resp)
	}
	return c.JSON(http.StatusOK, resp)
}

// handleReadyz reports process liveness only; dependency health belongs to
// /healthz.
func (s *Server) handleReadyz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

// saveDocumentRequest is the body of PUT /api/v1/documents/:owner.
type saveDocumentRequest struct {
	Fields map[string]string `json:"fields"`
}

func (s *Server) handleSaveDocument(c echo.Context) error {
	var req saveDocumentRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if len(req.Fields) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "fields are required")
	}

	owner := c.Param("owner")
	if err := s.deps.Documents.Save(c.Request().Context(), owner, req.Fields); err != nil {
		return s.apiError(c, "saving document", err)
	}
	return c.JSON(http.StatusOK, map[string]string{"owner_id": owner})
}

func (s *Server) handleLoadDocument(c echo.Context) error {
	owner := c.Param("owner")
	fields, err := s.deps.Documents.Load(c.Request().Context(), owner)
	if err != nil {
		return s.apiError(c, "loading document", err)
	}
	return c.JSON(http.StatusOK, map[string]any{"owner_id": owner, "fields": fields})
}

func (s *Server) handleDeleteDocument(c echo.Context) error {
	owner := c.Param("owner")
	if err := s.deps.Documents.Delete(c.Request().Context(), owner); err != nil {
		return s.apiError(c, "deleting document", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// searchRequest is the body of POST /api/v1/search.
type searchRequest struct {
	Text      string `json:"text"`
	Namespace string `json:"namespace"`
	TopK      int    `json:"top_k"`
}

// searchMatch is one hit in a search response.
type searchMatch struct {
	ID       string               `json:"id"`
	Score    float32              `json:"score"`
	Metadata vectorstore.Metadata `json:"metadata,omitempty"`
}

func (s *Server) handleSearch(c echo.Context) error {
	var req searchRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	matches, err := s.deps.Vectors.SearchSimilar(c.Request().Context(), req.Text, vectorstore.SearchOptions{
		Namespace: req.Namespace,
		TopK:      req.TopK,
	})
	if err != nil {
		return s.apiError(c, "searching", err)
	}

	out := make([]searchMatch, len(matches))
	for i, m := range matches {
		out[i] = searchMatch{ID: m.ID, Score: m.Score, Metadata: m.Metadata}
	}
	return c.JSON(http.StatusOK, map[string]any{"matches": out})
}

// trackUsageRequest is the body of POST /api/v1/usage/track.
type trackUsageRequest struct {
	ProjectID    string `json:"project_id"`
	UserID       string `json:"user_id"`
	SessionID    string `json:"session_id"`
	Provider     string `json:"provider"`
	AnalysisType string `json:"analysis_type"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
}

// trackUsageResponse is the body of a successful usage track call.
type trackUsageResponse struct {
	RecordID        string  `json:"record_id"`
	SessionID       string  `json:"session_id"`
	Cost            float64 `json:"cost"`
	DailyTokensUsed int64   `json:"daily_tokens_used"`
}

func (s *Server) handleTrackUsage(c echo.Context) error {
	var req trackUsageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	result, err := s.deps.Usage.TrackTokenUsage(c.Request().Context(), usage.TrackRequest{
		ProjectID:    req.ProjectID,
		UserID:       req.UserID,
		SessionID:    req.SessionID,
		Provider:     req.Provider,
		AnalysisType: req.AnalysisType,
		InputTokens:  req.InputTokens,
		OutputTokens: req.OutputTokens,
	})
	if err != nil {
		return s.apiError(c, "tracking usage", err)
	}

	return c.JSON(http.StatusOK, trackUsageResponse{
		RecordID:        result.RecordID,
		SessionID:       result.SessionID,
		Cost:            result.Cost,
		DailyTokensUsed: result.DailyTokensUsed,
	})
}

func (s *Server) handleProjectUsage(c echo.Context) error {
	totals, err := s.deps.Usage.CumulativeUsage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.apiError(c, "reading project usage", err)
	}
	return c.JSON(http.StatusOK, totals)
}

func (s *Server) handleSessionUsage(c echo.Context) error {
	totals, err := s.deps.Usage.SessionUsage(c.Request().Context(), c.Param("id"))
	if err != nil {
		return s.apiError(c, "reading session usage", err)
	}
	return c.JSON(http.StatusOK, totals)
}

// apiError maps domain errors to HTTP status codes.
func (s *Server) apiError(c echo.Context, action string, err error) error {
	var quota *usage.QuotaExceededError
	var validation *vectorstore.ValidationError

	switch {
	case errors.As(err, &quota):
		return c.JSON(http.StatusTooManyRequests, map[string]any{
			"error":  quota.Error(),
			"window": string(quota.Window),
			"limit":  quota.Limit,
			"used":   quota.Used,
		})
	case errors.As(err, &validation), errors.Is(err, usage.ErrInvalidRequest):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, vectorstore.ErrNotFound), errors.Is(err, chunking.ErrChunkNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		s.logger.Error("request failed",
			zap.String("action", action),
			zap.Error(err))
		return echo.NewHTTPError(http.StatusBadGateway, "upstream store unavailable")
	}
}

// Start runs the server until Shutdown. Blocks.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("http server listening", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	return s.echo.Shutdown(ctx)
}
