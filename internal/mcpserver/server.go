// Package mcpserver exposes notes and tasks to MCP clients over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/planner"
)

// Store is the slice of the local store the tools use.
type Store interface {
	Notes(ctx context.Context) ([]db.Note, error)
	Note(ctx context.Context, id int64) (db.Note, error)
	AddTask(ctx context.Context, t db.Task) (int64, error)
	Tasks(ctx context.Context) ([]db.Task, error)
	Task(ctx context.Context, id int64) (db.Task, error)
	UpdateTask(ctx context.Context, id int64, changes db.TaskChanges) error
}

// Handlers implements the tools.
type Handlers struct {
	store  Store
	logger *slog.Logger
}

// NewHandlers returns tool handlers over store.
func NewHandlers(store Store, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{store: store, logger: logger}
}

// New builds the MCP server with every tool registered.
func New(store Store, version string, logger *slog.Logger) *server.MCPServer {
	h := NewHandlers(store, logger)
	s := server.NewMCPServer("voiceplanner", version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
	)

	s.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List voice notes, newest first. Audio is omitted."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of notes to return")),
	), h.ListNotes)

	s.AddTool(mcp.NewTool("list_tasks",
		mcp.WithDescription("List tasks, optionally filtered by status, priority or label."),
		mcp.WithString("status", mcp.Enum(statusNames...), mcp.Description("Only tasks with this status")),
		mcp.WithString("priority", mcp.Enum(priorityNames...), mcp.Description("Only tasks with this priority")),
		mcp.WithString("label", mcp.Description("Only tasks carrying this label")),
	), h.ListTasks)

	s.AddTool(mcp.NewTool("create_task_from_note",
		mcp.WithDescription("Create a task drafted from a voice note's transcript."),
		mcp.WithNumber("note_id", mcp.Required(), mcp.Description("Id of the source note")),
		mcp.WithString("title", mcp.Description("Override the drafted title")),
		mcp.WithString("priority", mcp.Enum(priorityNames...), mcp.Description("Task priority, default medium")),
		mcp.WithString("labels", mcp.Description("Comma-separated labels")),
		mcp.WithNumber("estimated_hours", mcp.Description("Estimated effort in hours")),
	), h.CreateTaskFromNote)

	s.AddTool(mcp.NewTool("update_task_status",
		mcp.WithDescription("Set a task's status."),
		mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Id of the task")),
		mcp.WithString("status", mcp.Required(), mcp.Enum(statusNames...), mcp.Description("New status")),
	), h.UpdateTaskStatus)

	return s
}

// Serve runs the server on stdin and stdout until the client disconnects.
func Serve(s *server.MCPServer) error {
	return server.ServeStdio(s)
}

var (
	statusNames   = []string{string(db.StatusNotStarted), string(db.StatusInProgress), string(db.StatusCompleted)}
	priorityNames = []string{string(db.PriorityLow), string(db.PriorityMedium), string(db.PriorityHigh)}
)

// noteSummary is a note without its audio payload.
type noteSummary struct {
	ID          int64  `json:"id"`
	Text        string `json:"text"`
	Timestamp   int64  `json:"timestamp"`
	Transcribed bool   `json:"transcribed"`
	HasAudio    bool   `json:"hasAudio"`
}

// ListNotes handles list_notes.
func (h *Handlers) ListNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	limit := req.GetInt("limit", 0)
	if limit < 0 {
		return mcp.NewToolResultError("limit cannot be negative"), nil
	}

	notes, err := h.store.Notes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}

	out := make([]noteSummary, 0, len(notes))
	for _, n := range notes {
		out = append(out, noteSummary{
			ID:          n.ID,
			Text:        n.Text,
			Timestamp:   n.Timestamp,
			Transcribed: n.Transcribed,
			HasAudio:    n.HasAudio(),
		})
	}
	return jsonResult(out)
}

// ListTasks handles list_tasks.
func (h *Handlers) ListTasks(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := planner.Filter{
		Status:   db.Status(req.GetString("status", "")),
		Priority: db.Priority(req.GetString("priority", "")),
		Label:    req.GetString("label", ""),
	}
	if f.Status != "" && !f.Status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", f.Status)), nil
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown priority %q", f.Priority)), nil
	}

	tasks, err := h.store.Tasks(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return jsonResult(f.Apply(tasks))
}

// CreateTaskFromNote handles create_task_from_note.
func (h *Handlers) CreateTaskFromNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	noteID, err := req.RequireInt("note_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	note, err := h.store.Note(ctx, int64(noteID))
	if errors.Is(err, db.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("note %d not found", noteID)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read note %d: %w", noteID, err)
	}

	task := planner.DraftFromNote(note)
	if title := strings.TrimSpace(req.GetString("title", "")); title != "" {
		task.Title = title
	}
	if p := req.GetString("priority", ""); p != "" {
		task.Priority = db.Priority(p)
	}
	for _, l := range strings.Split(req.GetString("labels", ""), ",") {
		task.Labels = planner.AddLabel(task.Labels, l)
	}
	if hours := req.GetFloat("estimated_hours", -1); hours >= 0 {
		task.EstimatedHours = &hours
	}

	id, err := h.store.AddTask(ctx, task)
	if errors.Is(err, db.ErrInvalidTask) || errors.Is(err, db.ErrDuplicateLabel) {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	h.logger.Info("task created from note", slog.Int64("note", note.ID), slog.Int64("task", id))

	created, err := h.store.Task(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("read task %d: %w", id, err)
	}
	return jsonResult(created)
}

// UpdateTaskStatus handles update_task_status.
func (h *Handlers) UpdateTaskStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	taskID, err := req.RequireInt("task_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	raw, err := req.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status := db.Status(raw)
	if !status.Valid() {
		return mcp.NewToolResultError(fmt.Sprintf("unknown status %q", raw)), nil
	}

	err = h.store.UpdateTask(ctx, int64(taskID), db.TaskChanges{Status: &status})
	if errors.Is(err, db.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("task %d not found", taskID)), nil
	}
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", taskID, err)
	}

	updated, err := h.store.Task(ctx, int64(taskID))
	if err != nil {
		return nil, fmt.Errorf("read task %d: %w", taskID, err)
	}
	return jsonResult(updated)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(data)), nil
}
