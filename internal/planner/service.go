package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/ajz007/ai-voice-planner/internal/calendar"
	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/jira"
)

// Metadata keys written on tasks after a push.
const (
	MetaJiraID          = "jiraId"
	MetaCalendarEventID = "calendarEventId"
)

// ErrNoTracker and ErrNoCalendar are returned when the matching remote is
// not configured.
var (
	ErrNoTracker  = errors.New("no ticket tracker configured")
	ErrNoCalendar = errors.New("no calendar configured")
)

// TaskStore is the part of the store the service needs.
type TaskStore interface {
	Task(ctx context.Context, id int64) (db.Task, error)
	UpdateTask(ctx context.Context, id int64, changes db.TaskChanges) error
}

// Tracker creates tickets.
type Tracker interface {
	CreateTicket(ctx context.Context, in jira.TicketInput) (jira.TicketRef, error)
}

// Scheduler creates calendar events.
type Scheduler interface {
	CreateEvent(ctx context.Context, in calendar.EventInput) (calendar.EventRef, error)
}

// Service pushes stored tasks to the remotes and records the remote ids.
type Service struct {
	store     TaskStore
	tracker   Tracker
	scheduler Scheduler
	logger    *slog.Logger
}

// NewService returns a service over store. tracker and scheduler may be nil.
func NewService(store TaskStore, tracker Tracker, scheduler Scheduler, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, tracker: tracker, scheduler: scheduler, logger: logger}
}

// PushTask creates a ticket for task id and stores its key under
// metadata["jiraId"]. The task is left untouched when the remote call fails.
func (s *Service) PushTask(ctx context.Context, id int64) (jira.TicketRef, error) {
	if s.tracker == nil {
		return jira.TicketRef{}, ErrNoTracker
	}
	t, err := s.store.Task(ctx, id)
	if err != nil {
		return jira.TicketRef{}, err
	}

	in := jira.TicketInput{Summary: t.Title, Description: t.Description}
	if t.EstimatedHours != nil {
		in.Estimate = jira.FormatEstimate(*t.EstimatedHours)
	}
	ref, err := s.tracker.CreateTicket(ctx, in)
	if err != nil {
		return jira.TicketRef{}, fmt.Errorf("push task %d: %w", id, err)
	}

	if err := s.setMeta(ctx, t, MetaJiraID, ref.Ref()); err != nil {
		return ref, err
	}
	s.logger.Info("task pushed to tracker", slog.Int64("task", id), slog.String("ticket", ref.Ref()))
	return ref, nil
}

// ScheduleTask creates a calendar event for task id and stores the event id
// under metadata["calendarEventId"].
func (s *Service) ScheduleTask(ctx context.Context, id int64) (calendar.EventRef, error) {
	if s.scheduler == nil {
		return calendar.EventRef{}, ErrNoCalendar
	}
	t, err := s.store.Task(ctx, id)
	if err != nil {
		return calendar.EventRef{}, err
	}

	ref, err := s.scheduler.CreateEvent(ctx, EventInput(t))
	if err != nil {
		return calendar.EventRef{}, fmt.Errorf("schedule task %d: %w", id, err)
	}

	if err := s.setMeta(ctx, t, MetaCalendarEventID, ref.ID); err != nil {
		return ref, err
	}
	s.logger.Info("task scheduled", slog.Int64("task", id), slog.String("event", ref.ID))
	return ref, nil
}

// EventInput maps a task onto calendar event fields.
func EventInput(t db.Task) calendar.EventInput {
	in := calendar.EventInput{
		Title:          t.Title,
		Description:    t.Description,
		EstimatedHours: t.EstimatedHours,
	}
	if t.ScheduledStart != nil {
		start := time.UnixMilli(*t.ScheduledStart)
		in.ScheduledStart = &start
	}
	if t.ScheduledEnd != nil {
		end := time.UnixMilli(*t.ScheduledEnd)
		in.ScheduledEnd = &end
	}
	return in
}

func (s *Service) setMeta(ctx context.Context, t db.Task, key, value string) error {
	meta := maps.Clone(t.Metadata)
	if meta == nil {
		meta = map[string]any{}
	}
	meta[key] = value
	if err := s.store.UpdateTask(ctx, t.ID, db.TaskChanges{Metadata: meta}); err != nil {
		return fmt.Errorf("record %s on task %d: %w", key, t.ID, err)
	}
	return nil
}
