// Package capture records microphone audio into a single WAV blob per session.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

var (
	// ErrDeviceUnavailable is returned when the microphone cannot be acquired.
	ErrDeviceUnavailable = errors.New("audio device unavailable")
	// ErrDeviceBusy is returned when another recorder owns the microphone.
	ErrDeviceBusy = fmt.Errorf("microphone in use: %w", ErrDeviceUnavailable)
	// ErrAlreadyStarted is returned by Start on an active recorder.
	ErrAlreadyStarted = errors.New("capture already started")
	// ErrNotStarted is returned by Stop when no capture is active.
	ErrNotStarted = errors.New("capture not started")
)

// DefaultSampleRate matches the default recorder command.
const DefaultSampleRate = 16000

// readChunk is the size of one buffered audio chunk.
const readChunk = 4096

// Blob is the payload of a finished capture.
type Blob struct {
	Data     []byte
	Type     string
	Duration time.Duration
}

// Source yields a raw PCM stream from an input device.
// Closing the stream releases the device.
type Source interface {
	Open(ctx context.Context) (io.ReadCloser, error)
}

// SourceFunc adapts a function to a Source.
type SourceFunc func(ctx context.Context) (io.ReadCloser, error)

// Open calls f.
func (f SourceFunc) Open(ctx context.Context) (io.ReadCloser, error) { return f(ctx) }

// Recorder buffers audio between Start and Stop.
type Recorder struct {
	source     Source
	sampleRate int
	logger     *slog.Logger

	mu  sync.Mutex
	cur *take
}

// take is one capture session. Its buffer belongs to the read goroutine
// until done is closed, so an abandoned take can never leak into the next.
type take struct {
	stream  io.ReadCloser
	chunks  [][]byte
	readErr error
	done    chan struct{}
	started time.Time

	// buffered counts bytes read so far; safe to load while recording.
	buffered atomic.Int64
	closing  atomic.Bool
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithSampleRate sets the sample rate written to the WAV header.
func WithSampleRate(rate int) Option {
	return func(r *Recorder) { r.sampleRate = rate }
}

// WithLogger sets the recorder's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) { r.logger = logger }
}

// NewRecorder returns a recorder reading from source.
func NewRecorder(source Source, opts ...Option) *Recorder {
	r := &Recorder{
		source:     source,
		sampleRate: DefaultSampleRate,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start acquires the device and begins buffering audio.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cur != nil {
		return ErrAlreadyStarted
	}

	stream, err := r.source.Open(ctx)
	if err != nil {
		if errors.Is(err, ErrDeviceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	t := &take{stream: stream, done: make(chan struct{}), started: time.Now()}
	r.cur = t
	go t.read()
	r.logger.Debug("capture started")
	return nil
}

func (t *take) read() {
	defer close(t.done)

	for {
		buf := make([]byte, readChunk)
		n, err := t.stream.Read(buf)
		if n > 0 {
			t.chunks = append(t.chunks, buf[:n])
			t.buffered.Add(int64(n))
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !t.closing.Load() {
				t.readErr = err
			}
			return
		}
	}
}

// Stop releases the device and returns everything captured since Start.
// The recorder is ready for a fresh Start whether or not Stop succeeds.
func (r *Recorder) Stop(ctx context.Context) (Blob, error) {
	r.mu.Lock()
	t := r.cur
	r.cur = nil
	r.mu.Unlock()
	if t == nil {
		return Blob{}, ErrNotStarted
	}

	t.closing.Store(true)
	closeErr := t.stream.Close()

	select {
	case <-t.done:
	case <-ctx.Done():
		return Blob{}, fmt.Errorf("finalize capture: %w", errors.Join(closeErr, ctx.Err()))
	}
	elapsed := time.Since(t.started)

	if err := errors.Join(t.readErr, closeErr); err != nil {
		return Blob{}, fmt.Errorf("finalize capture: %w", err)
	}

	size := 0
	for _, c := range t.chunks {
		size += len(c)
	}
	pcm := make([]byte, 0, size)
	for _, c := range t.chunks {
		pcm = append(pcm, c...)
	}

	data, err := EncodeWAV(pcm, r.sampleRate)
	if err != nil {
		return Blob{}, err
	}
	blob := Blob{
		Data:     data,
		Type:     MIMEType,
		Duration: time.Duration(len(pcm)/2) * time.Second / time.Duration(r.sampleRate),
	}
	r.logger.Debug("capture stopped",
		slog.Int("bytes", len(data)), slog.Duration("elapsed", elapsed))
	return blob, nil
}

// Active reports whether a capture is in progress.
func (r *Recorder) Active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cur != nil
}
