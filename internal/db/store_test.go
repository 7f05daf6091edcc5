package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

// openTestStore opens a fresh database file in a temp dir.
func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "test.sqlite"), opts...)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// fixedClock returns a clock that advances one millisecond per call.
func fixedClock(start time.Time) func() time.Time {
	now := start
	return func() time.Time {
		now = now.Add(time.Millisecond)
		return now
	}
}

func TestNotesNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id1, err := store.AddNote(ctx, Note{Text: "first", Timestamp: 1000, Transcribed: true})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	id2, err := store.AddNote(ctx, Note{Text: "second", Timestamp: 2000, Transcribed: true})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	notes, err := store.Notes(ctx)
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if len(notes) != 2 {
		t.Fatalf("got %d notes, want 2", len(notes))
	}
	if notes[0].ID != id2 || notes[1].ID != id1 {
		t.Errorf("order = [%d %d], want [%d %d]", notes[0].ID, notes[1].ID, id2, id1)
	}
}

func TestNotesEqualTimestampsReverseInsertion(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	var ids []int64
	for _, text := range []string{"a", "b", "c"} {
		id, err := store.AddNote(ctx, Note{Text: text, Timestamp: 5000})
		if err != nil {
			t.Fatalf("AddNote: %v", err)
		}
		ids = append(ids, id)
	}

	notes, err := store.Notes(ctx)
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	for i, n := range notes {
		want := ids[len(ids)-1-i]
		if n.ID != want {
			t.Errorf("notes[%d].ID = %d, want %d", i, n.ID, want)
		}
	}
}

func TestNotesEmpty(t *testing.T) {
	store := openTestStore(t)

	notes, err := store.Notes(context.Background())
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if len(notes) != 0 {
		t.Errorf("got %d notes, want 0", len(notes))
	}
}

func TestAddNoteDistinctIDs(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	seen := make(map[int64]bool)
	for i := 0; i < 20; i++ {
		id, err := store.AddNote(ctx, Note{Text: "x"})
		if err != nil {
			t.Fatalf("AddNote: %v", err)
		}
		if seen[id] {
			t.Fatalf("id %d assigned twice", id)
		}
		seen[id] = true
	}
}

func TestAddNoteDefaultsTimestamp(t *testing.T) {
	start := time.UnixMilli(1_700_000_000_000)
	store := openTestStore(t, WithClock(func() time.Time { return start }))
	ctx := context.Background()

	id, err := store.AddNote(ctx, Note{Text: "hello"})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	n, err := store.Note(ctx, id)
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	if n.Timestamp != start.UnixMilli() {
		t.Errorf("Timestamp = %d, want %d", n.Timestamp, start.UnixMilli())
	}
}

func TestAddNoteAudioRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	blob := []byte("RIFF....WAVE")
	id, err := store.AddNote(ctx, Note{Text: "memo", AudioBlob: blob, AudioType: "audio/wav"})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	n, err := store.Note(ctx, id)
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	if string(n.AudioBlob) != string(blob) {
		t.Errorf("AudioBlob = %q, want %q", n.AudioBlob, blob)
	}
	if n.AudioType != "audio/wav" {
		t.Errorf("AudioType = %q, want %q", n.AudioType, "audio/wav")
	}
}

func TestUpdateNotePreservesOtherFields(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.AddNote(ctx, Note{
		Text:        "original",
		AudioBlob:   []byte{1, 2, 3},
		AudioType:   "audio/wav",
		Timestamp:   4242,
		Transcribed: true,
	})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	if err := store.UpdateNote(ctx, id, NoteChanges{Text: Ptr("x")}); err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}

	n, err := store.Note(ctx, id)
	if err != nil {
		t.Fatalf("Note: %v", err)
	}
	if n.Text != "x" {
		t.Errorf("Text = %q, want %q", n.Text, "x")
	}
	if n.Timestamp != 4242 {
		t.Errorf("Timestamp = %d, want 4242", n.Timestamp)
	}
	if !n.Transcribed {
		t.Error("Transcribed = false, want true")
	}
	if n.Synced {
		t.Error("Synced = true, want false")
	}
	if len(n.AudioBlob) != 3 {
		t.Errorf("AudioBlob len = %d, want 3", len(n.AudioBlob))
	}
}

func TestUpdateNoteMissing(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if _, err := store.AddNote(ctx, Note{Text: "keep", Timestamp: 1}); err != nil {
		t.Fatalf("AddNote: %v", err)
	}

	err := store.UpdateNote(ctx, 999, NoteChanges{Text: Ptr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("UpdateNote err = %v, want ErrNotFound", err)
	}

	notes, err := store.Notes(ctx)
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if len(notes) != 1 || notes[0].Text != "keep" {
		t.Errorf("store changed after failed update: %+v", notes)
	}
}

func TestUpdateNoteAudioImmutable(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	withAudio, _ := store.AddNote(ctx, Note{Text: "a", AudioBlob: []byte{1}})
	withoutAudio, _ := store.AddNote(ctx, Note{Text: "b"})

	err := store.UpdateNote(ctx, withAudio, NoteChanges{AudioBlob: []byte{2}})
	if !errors.Is(err, ErrAudioImmutable) {
		t.Errorf("replace audio err = %v, want ErrAudioImmutable", err)
	}

	if err := store.UpdateNote(ctx, withoutAudio, NoteChanges{AudioBlob: []byte{9}}); err != nil {
		t.Fatalf("set audio: %v", err)
	}
	n, _ := store.Note(ctx, withoutAudio)
	if len(n.AudioBlob) != 1 || n.AudioBlob[0] != 9 {
		t.Errorf("AudioBlob = %v, want [9]", n.AudioBlob)
	}
}

func TestNoteMissing(t *testing.T) {
	store := openTestStore(t)

	_, err := store.Note(context.Background(), 7)
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Note err = %v, want ErrNotFound", err)
	}
}

func TestIDsNotReusedAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.sqlite")
	ctx := context.Background()

	store, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	first, err := store.AddNote(ctx, Note{Text: "one"})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	store.Close()

	store, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer store.Close()
	second, err := store.AddNote(ctx, Note{Text: "two"})
	if err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	if second <= first {
		t.Errorf("second id = %d, want > %d", second, first)
	}
}

func TestLazyOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lazy.sqlite")
	store := New(path)
	defer store.Close()

	if _, err := store.AddNote(context.Background(), Note{Text: "lazy"}); err != nil {
		t.Fatalf("AddNote: %v", err)
	}
	notes, err := store.Notes(context.Background())
	if err != nil {
		t.Fatalf("Notes: %v", err)
	}
	if len(notes) != 1 {
		t.Errorf("got %d notes, want 1", len(notes))
	}
}

func TestOpenFailureIsStorageError(t *testing.T) {
	// A directory in place of the database file cannot be opened.
	dir := t.TempDir()
	store := New(dir)

	_, err := store.Notes(context.Background())
	if !errors.Is(err, ErrStorage) {
		t.Fatalf("Notes err = %v, want ErrStorage", err)
	}
	// The failure is remembered rather than retried.
	_, err = store.AddNote(context.Background(), Note{Text: "x"})
	if !errors.Is(err, ErrStorage) {
		t.Errorf("AddNote err = %v, want ErrStorage", err)
	}
}

func TestSchemaVersion(t *testing.T) {
	store := openTestStore(t)
	db, err := store.conn()
	if err != nil {
		t.Fatalf("conn: %v", err)
	}

	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != schemaVersion {
		t.Errorf("user_version = %d, want %d", version, schemaVersion)
	}

	for _, idx := range []string{"idx_notes_timestamp", "idx_notes_synced", "idx_tasks_synced"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = ?`, idx).Scan(&name)
		if err != nil {
			t.Errorf("index %s: %v", idx, err)
		}
	}
}

func TestAddTaskDefaults(t *testing.T) {
	created := time.UnixMilli(1_700_000_000_000)
	store := openTestStore(t, WithClock(func() time.Time { return created }))
	ctx := context.Background()

	id, err := store.AddTask(ctx, Task{Title: "Buy milk", Description: "Buy milk and eggs"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	task, err := store.Task(ctx, id)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}

	if task.Status != StatusNotStarted {
		t.Errorf("Status = %q, want %q", task.Status, StatusNotStarted)
	}
	if task.Priority != PriorityMedium {
		t.Errorf("Priority = %q, want %q", task.Priority, PriorityMedium)
	}
	if task.ActualHours != 0 {
		t.Errorf("ActualHours = %v, want 0", task.ActualHours)
	}
	if task.Labels == nil || len(task.Labels) != 0 {
		t.Errorf("Labels = %#v, want empty slice", task.Labels)
	}
	if task.CreatedAt != created.UnixMilli() || task.UpdatedAt != created.UnixMilli() {
		t.Errorf("CreatedAt/UpdatedAt = %d/%d, want %d", task.CreatedAt, task.UpdatedAt, created.UnixMilli())
	}
	if task.ScheduledStart != nil || task.EstimatedHours != nil {
		t.Errorf("optional fields set: start=%v estimate=%v", task.ScheduledStart, task.EstimatedHours)
	}
}

func TestAddTaskValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name string
		task Task
		want error
	}{
		{"empty title", Task{Description: "d"}, ErrInvalidTask},
		{"empty description", Task{Title: "t"}, ErrInvalidTask},
		{"unknown status", Task{Title: "t", Description: "d", Status: "done"}, ErrInvalidTask},
		{"unknown priority", Task{Title: "t", Description: "d", Priority: "urgent"}, ErrInvalidTask},
		{"negative estimate", Task{Title: "t", Description: "d", EstimatedHours: Ptr(-1.0)}, ErrInvalidTask},
		{"negative actual", Task{Title: "t", Description: "d", ActualHours: -0.5}, ErrInvalidTask},
		{"duplicate label", Task{Title: "t", Description: "d", Labels: []string{"home", "home"}}, ErrDuplicateLabel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.AddTask(ctx, tt.task)
			if !errors.Is(err, tt.want) {
				t.Errorf("AddTask err = %v, want %v", err, tt.want)
			}
		})
	}

	tasks, err := store.Tasks(ctx)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("got %d tasks after rejected adds, want 0", len(tasks))
	}
}

func TestTaskRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	start := int64(1_700_000_000_000)
	in := Task{
		Title:          "Plan sprint",
		Description:    "Plan the next sprint",
		Status:         StatusInProgress,
		Priority:       PriorityHigh,
		ScheduledStart: &start,
		EstimatedHours: Ptr(2.5),
		ActualHours:    1,
		Labels:         []string{"work", "planning"},
		Metadata:       map[string]any{"jiraId": "PROJ-1"},
	}
	id, err := store.AddTask(ctx, in)
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	got, err := store.Task(ctx, id)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if got.Status != StatusInProgress || got.Priority != PriorityHigh {
		t.Errorf("status/priority = %q/%q", got.Status, got.Priority)
	}
	if got.ScheduledStart == nil || *got.ScheduledStart != start {
		t.Errorf("ScheduledStart = %v, want %d", got.ScheduledStart, start)
	}
	if got.ScheduledEnd != nil {
		t.Errorf("ScheduledEnd = %v, want nil", *got.ScheduledEnd)
	}
	if got.EstimatedHours == nil || *got.EstimatedHours != 2.5 {
		t.Errorf("EstimatedHours = %v, want 2.5", got.EstimatedHours)
	}
	if len(got.Labels) != 2 || got.Labels[0] != "work" || got.Labels[1] != "planning" {
		t.Errorf("Labels = %v, want [work planning]", got.Labels)
	}
	if got.Metadata["jiraId"] != "PROJ-1" {
		t.Errorf("Metadata[jiraId] = %v, want PROJ-1", got.Metadata["jiraId"])
	}
}

func TestUpdateTaskMerge(t *testing.T) {
	store := openTestStore(t, WithClock(fixedClock(time.UnixMilli(1_000_000))))
	ctx := context.Background()

	id, err := store.AddTask(ctx, Task{
		Title:       "Write report",
		Description: "Quarterly report",
		Labels:      []string{"work"},
	})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}
	before, _ := store.Task(ctx, id)

	err = store.UpdateTask(ctx, id, TaskChanges{
		Status:   Ptr(StatusCompleted),
		Metadata: map[string]any{"calendarEventId": "evt-1"},
	})
	if err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	after, err := store.Task(ctx, id)
	if err != nil {
		t.Fatalf("Task: %v", err)
	}
	if after.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", after.Status, StatusCompleted)
	}
	if after.Title != before.Title || after.Description != before.Description {
		t.Errorf("title/description changed: %q/%q", after.Title, after.Description)
	}
	if len(after.Labels) != 1 || after.Labels[0] != "work" {
		t.Errorf("Labels = %v, want [work]", after.Labels)
	}
	if after.CreatedAt != before.CreatedAt {
		t.Errorf("CreatedAt = %d, want %d", after.CreatedAt, before.CreatedAt)
	}
	if after.UpdatedAt <= before.UpdatedAt {
		t.Errorf("UpdatedAt = %d, want > %d", after.UpdatedAt, before.UpdatedAt)
	}
	if after.Metadata["calendarEventId"] != "evt-1" {
		t.Errorf("Metadata = %v", after.Metadata)
	}
	if after.Synced {
		t.Error("Synced = true, want false")
	}
}

func TestUpdateTaskMissing(t *testing.T) {
	store := openTestStore(t)

	err := store.UpdateTask(context.Background(), 42, TaskChanges{Title: Ptr("x")})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateTask err = %v, want ErrNotFound", err)
	}
}

func TestUpdateTaskRejectsInvalid(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	id, err := store.AddTask(ctx, Task{Title: "t", Description: "d"})
	if err != nil {
		t.Fatalf("AddTask: %v", err)
	}

	if err := store.UpdateTask(ctx, id, TaskChanges{Title: Ptr("")}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("empty title err = %v, want ErrInvalidTask", err)
	}
	if err := store.UpdateTask(ctx, id, TaskChanges{Labels: []string{"a", "a"}}); !errors.Is(err, ErrDuplicateLabel) {
		t.Errorf("duplicate label err = %v, want ErrDuplicateLabel", err)
	}

	got, _ := store.Task(ctx, id)
	if got.Title != "t" || len(got.Labels) != 0 {
		t.Errorf("task changed after rejected update: %+v", got)
	}
}

func TestTasksByID(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for _, title := range []string{"one", "two", "three"} {
		if _, err := store.AddTask(ctx, Task{Title: title, Description: title}); err != nil {
			t.Fatalf("AddTask: %v", err)
		}
	}

	tasks, err := store.Tasks(ctx)
	if err != nil {
		t.Fatalf("Tasks: %v", err)
	}
	if len(tasks) != 3 {
		t.Fatalf("got %d tasks, want 3", len(tasks))
	}
	for i := 1; i < len(tasks); i++ {
		if tasks[i].ID <= tasks[i-1].ID {
			t.Errorf("tasks not in id order: %d after %d", tasks[i].ID, tasks[i-1].ID)
		}
	}
}
