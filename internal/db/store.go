package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// schemaVersion is stored in PRAGMA user_version.
const schemaVersion = 1

const schemaV1 = `
	CREATE TABLE IF NOT EXISTS notes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		audioBlob BLOB,
		audioType TEXT,
		timestamp INTEGER NOT NULL,
		transcribed INTEGER NOT NULL DEFAULT 0,
		synced INTEGER NOT NULL DEFAULT 0
	);
	CREATE INDEX IF NOT EXISTS idx_notes_timestamp ON notes(timestamp);
	CREATE INDEX IF NOT EXISTS idx_notes_synced ON notes(synced);

	CREATE TABLE IF NOT EXISTS tasks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		description TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'not_started',
		priority TEXT NOT NULL DEFAULT 'medium',
		scheduledStart INTEGER,
		scheduledEnd INTEGER,
		estimatedHours REAL,
		actualHours REAL NOT NULL DEFAULT 0,
		labels TEXT NOT NULL DEFAULT '[]',
		metadata TEXT,
		synced INTEGER NOT NULL DEFAULT 0,
		createdAt INTEGER NOT NULL,
		updatedAt INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_synced ON tasks(synced);
`

// Store is the process-wide handle to the notes and tasks database.
// The file is opened on first use and the connection is reused for the
// lifetime of the process.
type Store struct {
	path string
	now  func() time.Time

	once    sync.Once
	db      *sql.DB
	openErr error
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used for updatedAt and default timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, "voiceplanner", "voiceplanner.sqlite")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "voiceplanner", "voiceplanner.sqlite")
}

// New returns a store for path without touching the file. The database is
// opened and migrated by the first operation.
func New(path string, opts ...Option) *Store {
	s := &Store{path: path, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Open returns a store for path and opens it immediately.
func Open(path string, opts ...Option) (*Store, error) {
	s := New(path, opts...)
	if _, err := s.conn(); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database connection, if it was opened.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

func (s *Store) conn() (*sql.DB, error) {
	s.once.Do(func() {
		s.db, s.openErr = openDB(s.path)
	})
	return s.db, s.openErr
}

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, storageErr("create database directory", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, storageErr("open database", err)
	}
	// SQLite serializes writers anyway; one connection keeps
	// read-modify-write merges ordered.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, storageErr("ping database", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	var version int
	if err := db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return storageErr("read schema version", err)
	}
	if version >= schemaVersion {
		return nil
	}
	if _, err := db.Exec(schemaV1); err != nil {
		return storageErr("create schema", err)
	}
	if _, err := db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
		return storageErr("write schema version", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorage, err)
}

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// Notes

const noteColumns = `id, text, audioBlob, audioType, timestamp, transcribed, synced`

// AddNote persists a new note and returns its assigned id. A zero
// timestamp is replaced with the current time.
func (s *Store) AddNote(ctx context.Context, n Note) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	if n.Timestamp == 0 {
		n.Timestamp = s.now().UnixMilli()
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO notes (text, audioBlob, audioType, timestamp, transcribed, synced)
		VALUES (?, ?, ?, ?, ?, ?)
	`, n.Text, nullBytes(n.AudioBlob), nullString(n.AudioType), n.Timestamp, n.Transcribed, n.Synced)
	if err != nil {
		return 0, storageErr("insert note", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("read note id", err)
	}
	return id, nil
}

// Notes returns all notes, newest first. Notes with equal timestamps are
// returned in reverse insertion order.
func (s *Store) Notes(ctx context.Context) ([]Note, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `
		SELECT `+noteColumns+`
		FROM notes
		ORDER BY timestamp DESC, id DESC
	`)
	if err != nil {
		return nil, storageErr("query notes", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate notes", err)
	}
	return notes, nil
}

// Note returns the note with the given id.
func (s *Store) Note(ctx context.Context, id int64) (Note, error) {
	db, err := s.conn()
	if err != nil {
		return Note{}, err
	}
	return getNote(ctx, db, id)
}

// UpdateNote merges changes onto the stored note.
func (s *Store) UpdateNote(ctx context.Context, id int64, changes NoteChanges) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin note update", err)
	}
	defer tx.Rollback()

	n, err := getNote(ctx, tx, id)
	if err != nil {
		return err
	}
	if err := n.apply(changes); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE notes SET text = ?, audioBlob = ?, audioType = ?, transcribed = ?, synced = ?
		WHERE id = ?
	`, n.Text, nullBytes(n.AudioBlob), nullString(n.AudioType), n.Transcribed, n.Synced, id); err != nil {
		return storageErr("update note", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit note update", err)
	}
	return nil
}

func (n *Note) apply(c NoteChanges) error {
	if c.Text != nil {
		n.Text = *c.Text
	}
	if c.AudioBlob != nil {
		if n.HasAudio() {
			return ErrAudioImmutable
		}
		n.AudioBlob = c.AudioBlob
	}
	if c.AudioType != nil {
		n.AudioType = *c.AudioType
	}
	if c.Transcribed != nil {
		n.Transcribed = *c.Transcribed
	}
	if c.Synced != nil {
		n.Synced = *c.Synced
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getNote(ctx context.Context, q queryer, id int64) (Note, error) {
	row := q.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, fmt.Errorf("note %d: %w", id, ErrNotFound)
	}
	return n, err
}

func scanNote(sc scanner) (Note, error) {
	var n Note
	var audioType sql.NullString
	if err := sc.Scan(&n.ID, &n.Text, &n.AudioBlob, &audioType,
		&n.Timestamp, &n.Transcribed, &n.Synced); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Note{}, err
		}
		return Note{}, storageErr("scan note", err)
	}
	n.AudioType = audioType.String
	return n, nil
}

// Tasks

const taskColumns = `id, title, description, status, priority, scheduledStart, scheduledEnd,
	estimatedHours, actualHours, labels, metadata, synced, createdAt, updatedAt`

// AddTask validates and persists a new task and returns its assigned id.
// Empty status and priority default to not_started and medium; zero
// timestamps default to the current time.
func (s *Store) AddTask(ctx context.Context, t Task) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}

	now := s.now().UnixMilli()
	if t.Status == "" {
		t.Status = StatusNotStarted
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	if t.CreatedAt == 0 {
		t.CreatedAt = now
	}
	if t.UpdatedAt == 0 {
		t.UpdatedAt = t.CreatedAt
	}
	if err := t.validate(); err != nil {
		return 0, err
	}

	labels, metadata, err := encodeTaskJSON(t)
	if err != nil {
		return 0, err
	}

	res, err := db.ExecContext(ctx, `
		INSERT INTO tasks (title, description, status, priority, scheduledStart, scheduledEnd,
			estimatedHours, actualHours, labels, metadata, synced, createdAt, updatedAt)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, t.Title, t.Description, string(t.Status), string(t.Priority),
		nullInt(t.ScheduledStart), nullInt(t.ScheduledEnd), nullFloat(t.EstimatedHours),
		t.ActualHours, labels, metadata, t.Synced, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return 0, storageErr("insert task", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storageErr("read task id", err)
	}
	return id, nil
}

// Tasks returns all tasks in id order. Callers filter and sort.
func (s *Store) Tasks(ctx context.Context) ([]Task, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY id ASC`)
	if err != nil {
		return nil, storageErr("query tasks", err)
	}
	defer rows.Close()

	var tasks []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate tasks", err)
	}
	return tasks, nil
}

// Task returns the task with the given id.
func (s *Store) Task(ctx context.Context, id int64) (Task, error) {
	db, err := s.conn()
	if err != nil {
		return Task{}, err
	}
	return getTask(ctx, db, id)
}

// UpdateTask merges changes onto the stored task and refreshes updatedAt.
func (s *Store) UpdateTask(ctx context.Context, id int64, changes TaskChanges) error {
	db, err := s.conn()
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return storageErr("begin task update", err)
	}
	defer tx.Rollback()

	t, err := getTask(ctx, tx, id)
	if err != nil {
		return err
	}
	t.apply(changes)
	if updated := s.now().UnixMilli(); updated > t.UpdatedAt {
		t.UpdatedAt = updated
	}
	if err := t.validate(); err != nil {
		return err
	}

	labels, metadata, err := encodeTaskJSON(t)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE tasks SET title = ?, description = ?, status = ?, priority = ?,
			scheduledStart = ?, scheduledEnd = ?, estimatedHours = ?, actualHours = ?,
			labels = ?, metadata = ?, synced = ?, updatedAt = ?
		WHERE id = ?
	`, t.Title, t.Description, string(t.Status), string(t.Priority),
		nullInt(t.ScheduledStart), nullInt(t.ScheduledEnd), nullFloat(t.EstimatedHours),
		t.ActualHours, labels, metadata, t.Synced, t.UpdatedAt, id); err != nil {
		return storageErr("update task", err)
	}
	if err := tx.Commit(); err != nil {
		return storageErr("commit task update", err)
	}
	return nil
}

func (t *Task) apply(c TaskChanges) {
	if c.Title != nil {
		t.Title = *c.Title
	}
	if c.Description != nil {
		t.Description = *c.Description
	}
	if c.Status != nil {
		t.Status = *c.Status
	}
	if c.Priority != nil {
		t.Priority = *c.Priority
	}
	if c.ScheduledStart != nil {
		t.ScheduledStart = c.ScheduledStart
	}
	if c.ScheduledEnd != nil {
		t.ScheduledEnd = c.ScheduledEnd
	}
	if c.EstimatedHours != nil {
		t.EstimatedHours = c.EstimatedHours
	}
	if c.ActualHours != nil {
		t.ActualHours = *c.ActualHours
	}
	if c.Labels != nil {
		t.Labels = c.Labels
	}
	if c.Metadata != nil {
		t.Metadata = c.Metadata
	}
	if c.Synced != nil {
		t.Synced = *c.Synced
	}
}

func (t Task) validate() error {
	if t.Title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidTask)
	}
	if t.Description == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidTask)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTask, t.Status)
	}
	if !t.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidTask, t.Priority)
	}
	if t.EstimatedHours != nil && *t.EstimatedHours < 0 {
		return fmt.Errorf("%w: estimatedHours must not be negative", ErrInvalidTask)
	}
	if t.ActualHours < 0 {
		return fmt.Errorf("%w: actualHours must not be negative", ErrInvalidTask)
	}
	seen := make(map[string]bool, len(t.Labels))
	for _, l := range t.Labels {
		if seen[l] {
			return fmt.Errorf("%w: %q", ErrDuplicateLabel, l)
		}
		seen[l] = true
	}
	return nil
}

func getTask(ctx context.Context, q queryer, id int64) (Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	return t, err
}

func scanTask(sc scanner) (Task, error) {
	var t Task
	var status, priority, labels string
	var start, end sql.NullInt64
	var estimate sql.NullFloat64
	var metadata sql.NullString

	if err := sc.Scan(&t.ID, &t.Title, &t.Description, &status, &priority,
		&start, &end, &estimate, &t.ActualHours, &labels, &metadata,
		&t.Synced, &t.CreatedAt, &t.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Task{}, err
		}
		return Task{}, storageErr("scan task", err)
	}

	t.Status = Status(status)
	t.Priority = Priority(priority)
	if start.Valid {
		t.ScheduledStart = &start.Int64
	}
	if end.Valid {
		t.ScheduledEnd = &end.Int64
	}
	if estimate.Valid {
		t.EstimatedHours = &estimate.Float64
	}
	if err := json.Unmarshal([]byte(labels), &t.Labels); err != nil {
		return Task{}, storageErr(fmt.Sprintf("decode labels of task %d", t.ID), err)
	}
	if t.Labels == nil {
		t.Labels = []string{}
	}
	if metadata.Valid {
		if err := json.Unmarshal([]byte(metadata.String), &t.Metadata); err != nil {
			return Task{}, storageErr(fmt.Sprintf("decode metadata of task %d", t.ID), err)
		}
	}
	return t, nil
}

func encodeTaskJSON(t Task) (labels string, metadata sql.NullString, err error) {
	if t.Labels == nil {
		t.Labels = []string{}
	}
	lb, err := json.Marshal(t.Labels)
	if err != nil {
		return "", metadata, fmt.Errorf("marshal labels: %w", err)
	}
	if t.Metadata != nil {
		mb, err := json.Marshal(t.Metadata)
		if err != nil {
			return "", metadata, fmt.Errorf("marshal metadata: %w", err)
		}
		metadata = sql.NullString{String: string(mb), Valid: true}
	}
	return string(lb), metadata, nil
}

func nullBytes(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
