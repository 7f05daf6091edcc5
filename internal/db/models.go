// Package db provides the local SQLite store for voice notes and tasks.
package db

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an update or lookup targets a missing id.
	ErrNotFound = errors.New("record not found")
	// ErrStorage wraps failures of the underlying database file.
	ErrStorage = errors.New("storage unavailable")
	// ErrInvalidTask is returned for tasks that have an empty title or description, an unknown enum value or negative hours.
	ErrInvalidTask = errors.New("invalid task")
	// ErrDuplicateLabel is returned when a task carries the same label twice.
	ErrDuplicateLabel = errors.New("duplicate label")
	// ErrAudioImmutable is returned when an update tries to replace a note's audio.
	ErrAudioImmutable = errors.New("note audio is immutable once set")
)

// Note is a transcribed voice note.
type Note struct {
	ID          int64  `json:"id,omitempty"`
	Text        string `json:"text"`
	AudioBlob   []byte `json:"audioBlob,omitempty"`
	AudioType   string `json:"audioType,omitempty"`
	Timestamp   int64  `json:"timestamp"`
	Transcribed bool   `json:"transcribed"`
	Synced      bool   `json:"synced"`
}

// Time returns the creation time of the note.
func (n Note) Time() time.Time {
	return time.UnixMilli(n.Timestamp)
}

// HasAudio reports whether the note carries a recording.
func (n Note) HasAudio() bool {
	return len(n.AudioBlob) > 0
}

// NoteChanges is a partial note update. Nil fields are left untouched.
// The creation timestamp cannot be changed.
type NoteChanges struct {
	Text        *string `json:"text,omitempty"`
	AudioBlob   []byte  `json:"audioBlob,omitempty"`
	AudioType   *string `json:"audioType,omitempty"`
	Transcribed *bool   `json:"transcribed,omitempty"`
	Synced      *bool   `json:"synced,omitempty"`
}

// Status is the progress state of a task.
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusNotStarted, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Priority is the urgency of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// Task is a unit of work, usually drafted from a note.
type Task struct {
	ID             int64          `json:"id,omitempty"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Status         Status         `json:"status"`
	Priority       Priority       `json:"priority"`
	ScheduledStart *int64         `json:"scheduledStart,omitempty"`
	ScheduledEnd   *int64         `json:"scheduledEnd,omitempty"`
	EstimatedHours *float64       `json:"estimatedHours,omitempty"`
	ActualHours    float64        `json:"actualHours"`
	Labels         []string       `json:"labels"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Synced         bool           `json:"synced"`
	CreatedAt      int64          `json:"createdAt"`
	UpdatedAt      int64          `json:"updatedAt"`
}

// HasLabel reports whether the task carries label l.
func (t Task) HasLabel(l string) bool {
	for _, have := range t.Labels {
		if have == l {
			return true
		}
	}
	return false
}

// TaskChanges is a partial task update. Nil fields are left untouched.
// CreatedAt is immutable and UpdatedAt is always set by the store.
type TaskChanges struct {
	Title          *string        `json:"title,omitempty"`
	Description    *string        `json:"description,omitempty"`
	Status         *Status        `json:"status,omitempty"`
	Priority       *Priority      `json:"priority,omitempty"`
	ScheduledStart *int64         `json:"scheduledStart,omitempty"`
	ScheduledEnd   *int64         `json:"scheduledEnd,omitempty"`
	EstimatedHours *float64       `json:"estimatedHours,omitempty"`
	ActualHours    *float64       `json:"actualHours,omitempty"`
	Labels         []string       `json:"labels,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	Synced         *bool          `json:"synced,omitempty"`
}

// Ptr returns a pointer to v. Convenience for building partial changes.
func Ptr[T any](v T) *T { return &v }
