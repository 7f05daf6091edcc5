// Package session runs one recording: audio capture and live transcription
// started and stopped together, yielding the transcript and audio as a unit.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ajz007/ai-voice-planner/internal/capture"
	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/metrics"
	"github.com/ajz007/ai-voice-planner/internal/transcribe"
)

var (
	// ErrRunning is returned by Start on a running session.
	ErrRunning = errors.New("recording already in progress")
	// ErrNotRunning is returned by Stop when no recording is in progress.
	ErrNotRunning = errors.New("no recording in progress")
	// ErrEmpty is returned by Save when nothing was recognized.
	ErrEmpty = errors.New("nothing was recognized")
)

// Capturer records audio between Start and Stop.
type Capturer interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (capture.Blob, error)
}

// NoteAdder persists notes.
type NoteAdder interface {
	AddNote(ctx context.Context, n db.Note) (int64, error)
}

// Result is the output of a finished recording.
type Result struct {
	Text  string
	Audio capture.Blob
}

// Empty reports whether nothing was recognized.
func (r Result) Empty() bool { return r.Text == "" }

// Snapshot is the live view of a recording, for display only.
type Snapshot struct {
	Final   string
	Interim string
	Elapsed time.Duration
}

// Text returns the committed text followed by the in-progress guess.
func (s Snapshot) Text() string { return transcribe.Join(s.Final, s.Interim) }

// Session composes a capturer and a transcriber.
type Session struct {
	capture     Capturer
	transcriber transcribe.Transcriber
	logger      *slog.Logger
	metrics     *metrics.Metrics
	now         func() time.Time

	mu         sync.Mutex
	running    bool
	started    time.Time
	transcript transcribe.Transcript
	progress   chan Snapshot
	consumed   chan struct{}
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) { s.logger = logger }
}

// WithMetrics records session counters on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithClock overrides the clock used for note timestamps and elapsed time.
func WithClock(now func() time.Time) Option {
	return func(s *Session) { s.now = now }
}

// New returns an idle session.
func New(c Capturer, t transcribe.Transcriber, opts ...Option) *Session {
	s := &Session{
		capture:     c,
		transcriber: t,
		logger:      slog.Default(),
		now:         time.Now,
		progress:    make(chan Snapshot, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins capturing and transcribing. If the transcriber cannot start,
// the capture is stopped before the error is returned.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrRunning
	}

	if err := s.capture.Start(ctx); err != nil {
		return fmt.Errorf("start capture: %w", err)
	}
	updates, err := s.transcriber.Start(ctx)
	if err != nil {
		if _, stopErr := s.capture.Stop(ctx); stopErr != nil {
			s.logger.Warn("release capture after failed start", slog.String("error", stopErr.Error()))
		}
		return fmt.Errorf("start transcriber: %w", err)
	}

	s.running = true
	s.started = s.now()
	s.transcript = transcribe.Transcript{}
	s.consumed = make(chan struct{})
	s.metrics.RecordRecordingStarted()
	s.logger.Info("recording started")

	go s.consume(updates, s.consumed)
	return nil
}

func (s *Session) consume(updates <-chan transcribe.Update, done chan struct{}) {
	defer close(done)

	for u := range updates {
		s.metrics.RecordTranscriptUpdate(u.Final)

		s.mu.Lock()
		s.transcript.Apply(u)
		snap := Snapshot{
			Final:   s.transcript.Final(),
			Interim: s.transcript.Interim(),
			Elapsed: s.now().Sub(s.started),
		}
		s.mu.Unlock()

		s.publish(snap)
	}
}

// publish replaces any unread snapshot with snap.
func (s *Session) publish(snap Snapshot) {
	for {
		select {
		case s.progress <- snap:
			return
		default:
		}
		select {
		case <-s.progress:
		default:
		}
	}
}

// Progress delivers the latest transcript while recording. Stale snapshots
// are dropped when the reader falls behind.
func (s *Session) Progress() <-chan Snapshot { return s.progress }

// Running reports whether a recording is in progress.
func (s *Session) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stop ends the recording and returns the transcript and audio. Both the
// transcriber and the capture are always stopped, concurrently, and a
// transcriber that has not stopped by the time ctx ends counts as failed.
// If either fails the result is empty.
func (s *Session) Stop(ctx context.Context) (Result, error) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return Result{}, ErrNotRunning
	}
	s.running = false
	started, consumed := s.started, s.consumed
	s.mu.Unlock()

	// The microphone is released even while the transcriber is still stopping.
	transcriberDone := make(chan error, 1)
	go func() { transcriberDone <- s.transcriber.Stop() }()

	var errs []error
	blob, err := s.capture.Stop(ctx)
	select {
	case terr := <-transcriberDone:
		if terr != nil {
			errs = append(errs, fmt.Errorf("stop transcriber: %w", terr))
		}
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("stop transcriber: %w", ctx.Err()))
	}
	if err != nil {
		errs = append(errs, fmt.Errorf("stop capture: %w", err))
	}

	select {
	case <-consumed:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}

	elapsed := s.now().Sub(started)
	if err := errors.Join(errs...); err != nil {
		s.metrics.RecordRecordingFinished(false, elapsed)
		s.logger.Error("recording failed", slog.String("error", err.Error()), slog.Duration("elapsed", elapsed))
		return Result{}, err
	}

	s.mu.Lock()
	text := s.transcript.String()
	s.mu.Unlock()

	s.metrics.RecordRecordingFinished(true, elapsed)
	s.logger.Info("recording stopped",
		slog.Duration("elapsed", elapsed), slog.Int("chars", len(text)), slog.Int("audio_bytes", len(blob.Data)))
	return Result{Text: text, Audio: blob}, nil
}

// Save stops the recording and persists it as a transcribed note.
// Nothing is stored when the recording failed or recognized no speech.
func (s *Session) Save(ctx context.Context, store NoteAdder) (int64, Result, error) {
	res, err := s.Stop(ctx)
	if err != nil {
		return 0, Result{}, err
	}
	if res.Empty() {
		return 0, res, ErrEmpty
	}

	id, err := store.AddNote(ctx, db.Note{
		Text:        res.Text,
		AudioBlob:   res.Audio.Data,
		AudioType:   res.Audio.Type,
		Timestamp:   s.now().UnixMilli(),
		Transcribed: true,
		Synced:      false,
	})
	if err != nil {
		return 0, res, fmt.Errorf("save note: %w", err)
	}
	s.metrics.RecordNoteSaved()
	s.logger.Info("note saved", slog.Int64("id", id))
	return id, res, nil
}
