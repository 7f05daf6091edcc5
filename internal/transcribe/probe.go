package transcribe

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/ajz007/ai-voice-planner/internal/daemon"
)

// probeTimeout bounds the daemon reachability check.
const probeTimeout = 500 * time.Millisecond

// Engine names accepted by ProbeConfig.Engine.
const (
	EngineAuto    = "auto"
	EngineDaemon  = "daemon"
	EngineCommand = "command"
)

// ProbeConfig describes the engines Probe may choose from.
type ProbeConfig struct {
	Engine     string
	SocketPath string
	Locale     string
	Device     string
	Command    string
	Args       []string

	// FlushTimeout is passed to the chosen engine. Zero keeps its default.
	FlushTimeout time.Duration
	Logger       *slog.Logger
}

// Probe picks a recognition engine: the daemon when its socket accepts a
// connection, else the recognizer command when it is on PATH. Engine
// restricts the choice to one of them.
func Probe(ctx context.Context, cfg ProbeConfig) (Transcriber, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	engine := cfg.Engine
	if engine == "" {
		engine = EngineAuto
	}

	if engine == EngineAuto || engine == EngineDaemon {
		socket := cfg.SocketPath
		if socket == "" {
			socket = daemon.SocketPath()
		}
		pctx, cancel := context.WithTimeout(ctx, probeTimeout)
		ok := daemon.Reachable(pctx, socket)
		cancel()
		if ok {
			logger.Debug("using recognition daemon", slog.String("socket", socket))
			return &DaemonTranscriber{
				SocketPath:   socket,
				Locale:       cfg.Locale,
				Device:       cfg.Device,
				FlushTimeout: cfg.FlushTimeout,
				Logger:       logger,
			}, nil
		}
		if engine == EngineDaemon {
			return nil, fmt.Errorf("%w: no daemon at %s", ErrRecognitionUnavailable, socket)
		}
	}

	if engine == EngineAuto || engine == EngineCommand {
		if cfg.Command != "" {
			if path, err := exec.LookPath(cfg.Command); err == nil {
				logger.Debug("using recognizer command", slog.String("path", path))
				tr := NewCommandTranscriber(path, cfg.Args, logger)
				tr.FlushTimeout = cfg.FlushTimeout
				return tr, nil
			}
		}
		if engine == EngineCommand {
			return nil, fmt.Errorf("%w: recognizer %q not found", ErrRecognitionUnavailable, cfg.Command)
		}
	}

	if engine != EngineAuto {
		return nil, fmt.Errorf("unknown recognition engine %q", engine)
	}
	return nil, ErrRecognitionUnavailable
}
