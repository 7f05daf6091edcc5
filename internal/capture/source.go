package capture

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// DefaultCommand records the default ALSA input as raw mono s16le PCM on stdout.
var DefaultCommand = []string{
	"ffmpeg", "-hide_banner", "-loglevel", "error",
	"-f", "alsa", "-i", "default",
	"-ac", "1", "-ar", "16000",
	"-f", "s16le", "-",
}

// startupGrace is how long Open waits for the recorder to either produce
// audio or fail.
const startupGrace = 300 * time.Millisecond

// The microphone is owned by at most one command recorder per process.
var (
	micMu    sync.Mutex
	micOwned bool
)

func acquireMic() bool {
	micMu.Lock()
	defer micMu.Unlock()
	if micOwned {
		return false
	}
	micOwned = true
	return true
}

func releaseMic() {
	micMu.Lock()
	micOwned = false
	micMu.Unlock()
}

// CommandSource captures audio by running an external recorder that writes
// raw PCM to stdout.
type CommandSource struct {
	// Argv is the recorder command line. Empty means DefaultCommand.
	Argv []string
}

// Open starts the recorder. The process outlives ctx; closing the stream
// interrupts it.
func (s CommandSource) Open(ctx context.Context) (io.ReadCloser, error) {
	argv := s.Argv
	if len(argv) == 0 {
		argv = DefaultCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !acquireMic() {
		return nil, ErrDeviceBusy
	}

	// A plain pipe rather than StdoutPipe: Wait must not close the read end
	// before the last buffered audio is consumed.
	pr, pw, err := os.Pipe()
	if err != nil {
		releaseMic()
		return nil, fmt.Errorf("recorder pipe: %w", err)
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	stderr := &tailBuffer{max: 2048}
	cmd.Stdout = pw
	cmd.Stderr = stderr
	if err := cmd.Start(); err != nil {
		pr.Close()
		pw.Close()
		releaseMic()
		return nil, fmt.Errorf("%w: start %s: %w", ErrDeviceUnavailable, argv[0], err)
	}
	pw.Close()

	cs := &commandStream{
		cmd:    cmd,
		pipe:   pr,
		stdout: bufio.NewReader(pr),
		stderr: stderr,
		ready:  make(chan struct{}),
	}

	// A recorder that cannot open the device exits before producing audio.
	go func() {
		_, cs.peekErr = cs.stdout.Peek(1)
		close(cs.ready)
	}()
	select {
	case <-cs.ready:
		if cs.peekErr != nil {
			waitErr := cmd.Wait()
			pr.Close()
			releaseMic()
			return nil, fmt.Errorf("%w: %s", ErrDeviceUnavailable, describeExit(waitErr, stderr))
		}
	case <-time.After(startupGrace):
	}
	return cs, nil
}

type commandStream struct {
	cmd     *exec.Cmd
	pipe    *os.File
	stdout  *bufio.Reader
	stderr  *tailBuffer
	ready   chan struct{}
	peekErr error

	closeOnce sync.Once
	closeErr  error
}

// Read returns io.EOF once the recorder has exited and its output is drained.
func (c *commandStream) Read(p []byte) (int, error) {
	<-c.ready
	n, err := c.stdout.Read(p)
	if err != nil {
		c.pipe.Close()
	}
	return n, err
}

// Close interrupts the recorder so it flushes, then reaps it.
func (c *commandStream) Close() error {
	c.closeOnce.Do(func() {
		defer releaseMic()

		c.cmd.Process.Signal(os.Interrupt)
		exited := make(chan error, 1)
		go func() { exited <- c.cmd.Wait() }()

		var err error
		select {
		case err = <-exited:
		case <-time.After(2 * time.Second):
			c.cmd.Process.Kill()
			err = <-exited
		}

		var exitErr *exec.ExitError
		if err != nil && errors.As(err, &exitErr) && (!exitErr.Exited() || exitErr.ExitCode() == 255) {
			// Killed by our interrupt; ffmpeg exits 255 on SIGINT.
			err = nil
		}
		if err != nil {
			c.closeErr = fmt.Errorf("recorder exit: %s", describeExit(err, c.stderr))
		}
	})
	return c.closeErr
}

func describeExit(err error, stderr *tailBuffer) string {
	msg := strings.TrimSpace(stderr.String())
	if err == nil {
		if msg == "" {
			return "recorder produced no audio"
		}
		return msg
	}
	if msg == "" {
		return err.Error()
	}
	return err.Error() + ": " + msg
}

// tailBuffer keeps the last max bytes written to it.
type tailBuffer struct {
	mu  sync.Mutex
	max int
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.max; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}

// NewReaderSource returns a source that yields r once. Later opens fail
// with ErrDeviceUnavailable.
func NewReaderSource(r io.Reader) Source {
	var once sync.Once
	return SourceFunc(func(ctx context.Context) (io.ReadCloser, error) {
		var rc io.ReadCloser
		once.Do(func() {
			if c, ok := r.(io.ReadCloser); ok {
				rc = c
			} else {
				rc = io.NopCloser(r)
			}
		})
		if rc == nil {
			return nil, fmt.Errorf("%w: reader already consumed", ErrDeviceUnavailable)
		}
		return rc, nil
	})
}
