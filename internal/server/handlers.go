package server

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ajz007/ai-voice-planner/internal/calendar"
	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/jira"
)

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleListNotes(c *gin.Context) {
	notes, err := s.store.Notes(c.Request.Context())
	if err != nil {
		s.logger.Error("Error fetching notes", slog.String("error", err.Error()))
		message(c, http.StatusInternalServerError, "Failed to fetch notes")
		return
	}
	if notes == nil {
		notes = []db.Note{}
	}
	c.JSON(http.StatusOK, notes)
}

func (s *Server) handleCreateNote(c *gin.Context) {
	var n db.Note
	if err := c.ShouldBindJSON(&n); err != nil {
		message(c, http.StatusBadRequest, "Invalid note: "+err.Error())
		return
	}
	n.ID = 0
	if n.Timestamp == 0 {
		n.Timestamp = time.Now().UnixMilli()
	}

	ctx := c.Request.Context()
	id, err := s.store.AddNote(ctx, n)
	if err != nil {
		s.logger.Error("Error creating note", slog.String("error", err.Error()))
		message(c, http.StatusInternalServerError, "Failed to create note")
		return
	}
	saved, err := s.store.Note(ctx, id)
	if err != nil {
		s.logger.Error("Error reading created note", slog.Int64("id", id), slog.String("error", err.Error()))
		message(c, http.StatusInternalServerError, "Failed to create note")
		return
	}
	s.metrics.RecordNoteSaved()
	c.JSON(http.StatusOK, saved)
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.store.Tasks(c.Request.Context())
	if err != nil {
		s.logger.Error("Error fetching tasks", slog.String("error", err.Error()))
		message(c, http.StatusInternalServerError, "Failed to fetch tasks")
		return
	}
	if tasks == nil {
		tasks = []db.Task{}
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) handleCreateTask(c *gin.Context) {
	var t db.Task
	if err := c.ShouldBindJSON(&t); err != nil {
		message(c, http.StatusBadRequest, "Invalid task: "+err.Error())
		return
	}
	t.ID = 0

	ctx := c.Request.Context()
	id, err := s.store.AddTask(ctx, t)
	if err != nil {
		if isValidation(err) {
			message(c, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("Error creating task", slog.String("error", err.Error()))
		message(c, http.StatusInternalServerError, "Failed to create task")
		return
	}
	s.metrics.RecordTaskCreated()
	s.writeTask(c, id)
}

func (s *Server) handleUpdateTask(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		message(c, http.StatusBadRequest, "Invalid task id")
		return
	}
	var changes db.TaskChanges
	if err := c.ShouldBindJSON(&changes); err != nil {
		message(c, http.StatusBadRequest, "Invalid task changes: "+err.Error())
		return
	}

	if err := s.store.UpdateTask(c.Request.Context(), id, changes); err != nil {
		switch {
		case errors.Is(err, db.ErrNotFound):
			message(c, http.StatusNotFound, "Task not found")
		case isValidation(err):
			message(c, http.StatusBadRequest, err.Error())
		default:
			s.logger.Error("Error updating task", slog.Int64("id", id), slog.String("error", err.Error()))
			message(c, http.StatusInternalServerError, "Failed to update task")
		}
		return
	}
	s.writeTask(c, id)
}

func (s *Server) writeTask(c *gin.Context, id int64) {
	t, err := s.store.Task(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("Error reading task", slog.Int64("id", id), slog.String("error", err.Error()))
		message(c, http.StatusInternalServerError, "Failed to read task")
		return
	}
	c.JSON(http.StatusOK, t)
}

func isValidation(err error) bool {
	return errors.Is(err, db.ErrInvalidTask) || errors.Is(err, db.ErrDuplicateLabel)
}

func (s *Server) handleCreateTicket(c *gin.Context) {
	if s.issues == nil {
		message(c, http.StatusInternalServerError, jira.ErrNotConfigured.Error())
		return
	}
	var in jira.TicketInput
	if err := c.ShouldBindJSON(&in); err != nil {
		message(c, http.StatusBadRequest, "Invalid ticket: "+err.Error())
		return
	}
	if strings.TrimSpace(in.Summary) == "" {
		message(c, http.StatusBadRequest, "Ticket summary is required")
		return
	}

	issue, err := s.issues.CreateIssue(c.Request.Context(), in)
	if err != nil {
		s.upstreamFailure(c, err, "Failed to create JIRA ticket")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", issue)
}

func (s *Server) handleUpdateTicket(c *gin.Context) {
	if s.issues == nil {
		message(c, http.StatusInternalServerError, jira.ErrNotConfigured.Error())
		return
	}
	var changes jira.TicketChanges
	if err := c.ShouldBindJSON(&changes); err != nil {
		message(c, http.StatusBadRequest, "Invalid ticket changes: "+err.Error())
		return
	}

	issue, err := s.issues.UpdateIssue(c.Request.Context(), c.Param("id"), changes)
	if err != nil {
		s.upstreamFailure(c, err, "Failed to update JIRA ticket")
		return
	}
	c.Data(http.StatusOK, "application/json; charset=utf-8", issue)
}

// upstreamFailure mirrors the tracker's status when it answered.
func (s *Server) upstreamFailure(c *gin.Context, err error, msg string) {
	status := http.StatusInternalServerError
	var re *jira.RemoteError
	if errors.As(err, &re) {
		status = re.StatusCode
	}
	s.logger.Error(msg, slog.Int("status", status), slog.String("error", err.Error()))
	message(c, status, msg)
}

func (s *Server) handleOAuthCallback(c *gin.Context) {
	msg, ok := calendar.MessageFromCallback(c.Query("code"), c.Query("state"), c.Query("error"))
	if !ok {
		c.String(http.StatusBadRequest, "Missing authorization code")
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", calendar.CallbackPage(msg))
}
