// Package server is the pass-through HTTP API: note and task persistence,
// the JIRA proxy and the Google OAuth callback page.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/jira"
	"github.com/ajz007/ai-voice-planner/internal/metrics"
)

// Store is the persistence the API exposes.
type Store interface {
	AddNote(ctx context.Context, n db.Note) (int64, error)
	Notes(ctx context.Context) ([]db.Note, error)
	Note(ctx context.Context, id int64) (db.Note, error)
	AddTask(ctx context.Context, t db.Task) (int64, error)
	Tasks(ctx context.Context) ([]db.Task, error)
	Task(ctx context.Context, id int64) (db.Task, error)
	UpdateTask(ctx context.Context, id int64, changes db.TaskChanges) error
}

// Issues is the upstream tracker the ticket endpoints proxy to.
type Issues interface {
	CreateIssue(ctx context.Context, in jira.TicketInput) (json.RawMessage, error)
	UpdateIssue(ctx context.Context, issueID string, changes jira.TicketChanges) (json.RawMessage, error)
}

// Server serves the API.
type Server struct {
	store   Store
	issues  Issues
	origins map[string]bool
	logger  *slog.Logger
	metrics *metrics.Metrics
	router  *gin.Engine
}

// Option configures a Server.
type Option func(*Server)

// WithIssues enables the ticket proxy. Without it the ticket endpoints
// report a configuration error.
func WithIssues(i Issues) Option {
	return func(s *Server) { s.issues = i }
}

// WithAllowedOrigins restricts CORS to origins. By default any origin is
// mirrored.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		if len(origins) == 0 {
			return
		}
		s.origins = make(map[string]bool, len(origins))
		for _, o := range origins {
			s.origins[o] = true
		}
	}
}

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// WithMetrics records requests on m and serves it at /metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// New builds the API over store.
func New(store Store, opts ...Option) *Server {
	s := &Server{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}

	router := gin.New()
	router.Use(s.recovery(), requestID(), s.cors(), s.observe())
	s.router = router

	router.GET("/health", s.handleHealth)
	if s.metrics != nil {
		router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
	router.GET("/auth/google/callback", s.handleOAuthCallback)

	api := router.Group("/api")
	{
		api.GET("/notes", s.handleListNotes)
		api.POST("/notes", s.handleCreateNote)
		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.POST("/jira/ticket", s.handleCreateTicket)
		api.PATCH("/jira/ticket/:id", s.handleUpdateTicket)
	}

	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is cancelled.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP API server", slog.String("address", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("Stopping HTTP API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// message writes the API's error body.
func message(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, gin.H{"message": msg})
}
