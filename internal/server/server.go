package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"todobot/internal/models"
	"todobot/internal/storage"
)

// TaskStore is the subset of the task repository the HTTP API needs.
type TaskStore interface {
	GetTask(ctx context.Context, id int64) (models.Task, error)
	ListTasks(ctx context.Context, userID int64) ([]models.Task, error)
	ListAllTasks(ctx context.Context) ([]models.Task, error)
	CreateTask(ctx context.Context, title string, userID int64) (models.Task, error)
	UpdateTask(ctx context.Context, id int64, upd models.TaskUpdate) (models.Task, error)
	SetDone(ctx context.Context, id int64, done bool, actor string) (models.Task, error)
	DeleteTask(ctx context.Context, id int64) (models.Task, error)
	Ping(ctx context.Context) error
}

// Server provides HTTP handlers for the task API.
type Server struct {
	engine *gin.Engine
	store  TaskStore
	logger *slog.Logger
}

// New constructs the HTTP server with routes and middleware configured.
func New(store TaskStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	srv := &Server{
		engine: router,
		store:  store,
		logger: logger,
	}
	router.Use(requestID(), srv.accessLog())

	srv.registerRoutes()
	return srv
}

// Engine exposes the underlying Gin engine.
func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// registerRoutes wires all API handlers together.
func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.handleHealth)

	// The collection is reachable with and without the trailing slash so
	// clients do not depend on redirects for POST.
	s.engine.GET("/tasks", s.handleListTasks)
	s.engine.POST("/tasks", s.handleCreateTask)

	tasks := s.engine.Group("/tasks")
	{
		tasks.GET("/", s.handleListTasks)
		tasks.POST("/", s.handleCreateTask)
		tasks.GET("/:id", s.handleGetTask)
		tasks.PATCH("/:id", s.handleUpdateTask)
		tasks.DELETE("/:id", s.handleDeleteTask)
		tasks.PUT("/:id/done", s.handleMarkDone)
		tasks.PUT("/:id/undone", s.handleMarkUndone)
	}

	s.engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "endpoint not found"})
	})
}

// handleHealth reports whether the database answers.
func (s *Server) handleHealth(c *gin.Context) {
	if err := s.store.Ping(c.Request.Context()); err != nil {
		s.logger.Error("health check failed", slog.String("error", err.Error()))
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

const requestIDHeader = "X-Request-ID"

// requestID tags every request with an id, reusing the caller's if present.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

// accessLog writes one structured line per request.
func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("method", c.Request.Method),
			slog.String("path", c.Request.URL.Path),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("duration", time.Since(start)),
		)
	}
}

// parseID converts a path parameter to int64 with error handling.
func parseID(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid identifier"})
		return 0, false
	}
	return id, true
}

// parseUserFilter reads the optional user_id query parameter.
func parseUserFilter(c *gin.Context) (userID int64, present, ok bool) {
	raw, present := c.GetQuery("user_id")
	if !present {
		return 0, false, true
	}
	userID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user_id"})
		return 0, true, false
	}
	return userID, true, true
}

// respondError maps repository errors onto status codes. Unexpected errors
// are logged and hidden from the client.
func (s *Server) respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": storage.ErrNotFound.Error()})
	case models.IsValidationError(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		s.logger.Error("request failed",
			slog.String("request_id", c.GetString("request_id")),
			slog.String("path", c.FullPath()),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// respondBadRequest rejects malformed input.
func respondBadRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
}

// respondSuccess writes payload as JSON, or only the status when nil.
func respondSuccess(c *gin.Context, status int, payload any) {
	if payload == nil {
		c.Status(status)
		return
	}
	c.JSON(status, payload)
}
