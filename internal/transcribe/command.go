package transcribe

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// CommandTranscriber runs a local recognizer that prints one JSON object
// per line to stdout:
//
//	{"text":"buy mi","final":false}
//	{"text":"buy milk","final":true}
//
// A final line carries only the span it commits.
type CommandTranscriber struct {
	Command string
	Args    []string
	// FlushTimeout bounds the wait for the recognizer to exit after interrupt.
	FlushTimeout time.Duration
	Logger       *slog.Logger

	mu   sync.Mutex
	proc *exec.Cmd
	run  *stream
}

// NewCommandTranscriber returns a transcriber running command with args.
func NewCommandTranscriber(command string, args []string, logger *slog.Logger) *CommandTranscriber {
	return &CommandTranscriber{Command: command, Args: args, Logger: logger}
}

// Start launches the recognizer. The process outlives ctx and is ended by Stop.
func (c *CommandTranscriber) Start(ctx context.Context) (<-chan Update, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run != nil {
		return nil, ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	proc := exec.Command(c.Command, c.Args...)
	startGroup(proc)
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("recognizer stdout: %w", err)
	}
	if err := proc.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %w", ErrRecognitionUnavailable, err)
		}
		return nil, fmt.Errorf("start recognizer: %w", err)
	}

	c.proc = proc
	c.run = newStream()
	c.logger().Info("recognizer started",
		slog.String("command", c.Command), slog.Int("pid", proc.Process.Pid))

	go c.readLines(c.run, stdout)
	return c.run.out, nil
}

func (c *CommandTranscriber) readLines(s *stream, stdout io.Reader) {
	defer s.finish()

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var u Update
		if err := json.Unmarshal(line, &u); err != nil {
			c.logger().Debug("skipping recognizer line", slog.String("line", string(line)))
			continue
		}

		ok := false
		if u.Final {
			ok = s.final(u.Text)
		} else {
			ok = s.interim(u.Text)
		}
		if !ok {
			return
		}
	}
	if err := scanner.Err(); err != nil && !s.halted() {
		c.logger().Warn("recognizer output ended", slog.String("error", err.Error()))
	}
}

// Stop interrupts the recognizer, waits for its last lines, and reaps it.
func (c *CommandTranscriber) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.run == nil {
		return nil
	}
	s, proc := c.run, c.proc

	// Interrupt lets the recognizer flush its final span.
	if err := signalGroup(proc, os.Interrupt); err == nil {
		flush := c.FlushTimeout
		if flush == 0 {
			flush = defaultFlushTimeout
		}
		select {
		case <-s.exited:
		case <-time.After(flush):
		}
	}

	s.halt()
	if err := signalGroup(proc, os.Kill); err != nil {
		proc.Process.Kill()
	}
	// Wait closes stdout once the recognizer exits, which ends the reader
	// even if a stray helper still holds the pipe.
	waitErr := proc.Wait()
	<-s.exited

	var stopErr error
	if waitErr != nil && !exitedBySignal(waitErr) {
		stopErr = fmt.Errorf("recognizer exit: %w", waitErr)
	}

	c.proc, c.run = nil, nil
	return stopErr
}

// exitedBySignal reports whether err only says the process died from the
// interrupt or kill sent by Stop.
func exitedBySignal(err error) bool {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	// 130 is the shell convention for exit on SIGINT.
	return !exitErr.Exited() || exitErr.ExitCode() == 130
}

func (c *CommandTranscriber) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}
