package transcribe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ajz007/ai-voice-planner/internal/daemon"
)

// defaultFlushTimeout is how long Stop waits for trailing segments.
const defaultFlushTimeout = 2 * time.Second

// DaemonTranscriber recognizes speech through the recognition daemon.
// Partial events become interim updates and segment events become finals.
type DaemonTranscriber struct {
	SocketPath string
	Locale     string
	Device     string
	// FlushTimeout bounds the wait for the daemon's last segment on Stop.
	FlushTimeout time.Duration
	Logger       *slog.Logger

	mu     sync.Mutex
	cmd    *daemon.Client
	events *daemon.Client
	run    *stream
}

// NewDaemonTranscriber returns a transcriber for the daemon at socketPath.
func NewDaemonTranscriber(socketPath string, logger *slog.Logger) *DaemonTranscriber {
	return &DaemonTranscriber{SocketPath: socketPath, Logger: logger}
}

// Start subscribes to recognition events and starts recording.
func (d *DaemonTranscriber) Start(ctx context.Context) (<-chan Update, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.run != nil {
		return nil, ErrAlreadyStarted
	}

	events, err := daemon.ConnectContext(ctx, d.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
	}
	sub := daemon.Command{
		Cmd:    daemon.CmdSubscribe,
		Events: []string{daemon.EventPartial, daemon.EventSegment, daemon.EventStatus, daemon.EventError},
	}
	if _, err := events.Do(sub); err != nil {
		events.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	cmd, err := daemon.ConnectContext(ctx, d.SocketPath)
	if err != nil {
		events.Close()
		return nil, fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
	}
	resp, err := cmd.Do(daemon.Command{Cmd: daemon.CmdStart, Locale: d.Locale, Device: d.Device})
	if err != nil {
		cmd.Close()
		events.Close()
		return nil, fmt.Errorf("start recognition: %w", err)
	}

	d.cmd, d.events = cmd, events
	d.run = newStream()
	d.logger().Info("recognition started", slog.String("session", resp.SessionID))

	go d.readEvents(d.run, events)
	return d.run.out, nil
}

func (d *DaemonTranscriber) readEvents(s *stream, events *daemon.Client) {
	defer s.finish()

	for {
		ev, err := events.ReadEvent()
		if err != nil {
			if !s.halted() && !errors.Is(err, daemon.ErrConnectionClosed) {
				d.logger().Warn("recognition stream ended", slog.String("error", err.Error()))
			}
			return
		}

		switch ev.Event {
		case daemon.EventPartial:
			if !s.interim(ev.Text) {
				return
			}
		case daemon.EventSegment:
			if !s.final(ev.Text) {
				return
			}
		case daemon.EventStatus:
			// The daemon reports recording=false once the last segment is out.
			if ev.Recording != nil && !*ev.Recording {
				return
			}
		case daemon.EventError:
			transient := ev.Transient != nil && *ev.Transient
			d.logger().Warn("recognition error",
				slog.String("message", ev.Message), slog.Bool("transient", transient))
			if !transient {
				return
			}
		}
	}
}

// Stop ends recording and waits for the update channel to close.
func (d *DaemonTranscriber) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.run == nil {
		return nil
	}
	s := d.run

	_, stopErr := d.cmd.Do(daemon.Command{Cmd: daemon.CmdStop})
	if stopErr != nil {
		stopErr = fmt.Errorf("stop recognition: %w", stopErr)
	} else {
		flush := d.FlushTimeout
		if flush == 0 {
			flush = defaultFlushTimeout
		}
		select {
		case <-s.exited:
		case <-time.After(flush):
		}
	}

	s.halt()
	d.events.Close()
	<-s.exited
	d.cmd.Close()

	d.cmd, d.events, d.run = nil, nil, nil
	return stopErr
}

func (d *DaemonTranscriber) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}
