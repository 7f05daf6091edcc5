package app

import (
	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/session"
)

// NotesLoadedMsg carries the notes read from the store.
type NotesLoadedMsg struct {
	Notes []db.Note
	Err   error
}

// RecordingStartedMsg is sent once the recorder has started, or failed to.
type RecordingStartedMsg struct {
	Err error
}

// ProgressMsg carries a live snapshot of the running recording.
type ProgressMsg struct {
	Snapshot session.Snapshot
}

// NoteSavedMsg is sent when a stopped recording has been stored.
// ID is zero when nothing was stored.
type NoteSavedMsg struct {
	ID  int64
	Err error
}

// TaskDraftedMsg is sent when a task has been drafted from a note.
type TaskDraftedMsg struct {
	NoteID int64
	TaskID int64
	Err    error
}

// ClearTransientErrorMsg clears a transient error or notice after a timeout.
// Seq identifies the message it was scheduled for; a newer message is kept.
type ClearTransientErrorMsg struct {
	Seq int
}
