package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ajz007/ai-voice-planner/internal/calendar"
	"github.com/ajz007/ai-voice-planner/internal/capture"
	"github.com/ajz007/ai-voice-planner/internal/config"
	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/jira"
	"github.com/ajz007/ai-voice-planner/internal/metrics"
	"github.com/ajz007/ai-voice-planner/internal/planner"
	"github.com/ajz007/ai-voice-planner/internal/session"
	"github.com/ajz007/ai-voice-planner/internal/transcribe"
)

var Version = "dev"

// skipConfig marks commands that run without loading the config file.
const skipConfig = "skip-config"

// env is the state shared by every command.
type env struct {
	configPath string

	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics
	store   *db.Store
}

func main() {
	e := &env{}

	rootCmd := &cobra.Command{
		Use:           "voiceplanner",
		Short:         "Voice notes to tasks, tickets and calendar events",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[skipConfig] != "" {
				return nil
			}
			return e.load()
		},
	}
	rootCmd.PersistentFlags().StringVar(&e.configPath, "config", "", "config file (default "+config.DefaultPath()+")")

	rootCmd.AddCommand(recordCmd(e))
	rootCmd.AddCommand(notesCmd(e))
	rootCmd.AddCommand(tasksCmd(e))
	rootCmd.AddCommand(ticketCmd(e))
	rootCmd.AddCommand(calendarCmd(e))
	rootCmd.AddCommand(serveCmd(e))
	rootCmd.AddCommand(mcpCmd(e))
	rootCmd.AddCommand(tuiCmd(e))
	rootCmd.AddCommand(configCmd(e))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if e.store != nil {
		e.store.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func (e *env) load() error {
	cfg, err := config.Load(e.configPath)
	if err != nil {
		return err
	}
	e.cfg = cfg
	e.logger = initLogger(cfg.Logging)
	slog.SetDefault(e.logger)
	e.metrics = metrics.New()
	e.store = db.New(cfg.Store.Path)

	e.logger.Debug("Configuration loaded",
		slog.String("config_path", e.configPath),
		slog.String("store", cfg.Store.Path),
		slog.String("engine", cfg.Transcription.Engine),
		slog.Bool("jira_configured", cfg.Jira.Configured()),
		slog.Bool("calendar_configured", cfg.Calendar.ClientID != ""),
	)
	return nil
}

// newSession probes for a recognition engine and pairs it with the
// configured microphone recorder.
func (e *env) newSession(ctx context.Context) (*session.Session, error) {
	pc := e.cfg.Transcription.ProbeConfig()
	pc.Logger = e.logger
	tr, err := transcribe.Probe(ctx, pc)
	if err != nil {
		return nil, err
	}
	rec := capture.NewRecorder(
		capture.CommandSource{Argv: e.cfg.Capture.Command},
		capture.WithSampleRate(e.cfg.Capture.SampleRate),
		capture.WithLogger(e.logger),
	)
	return session.New(rec, tr, session.WithLogger(e.logger), session.WithMetrics(e.metrics)), nil
}

// tracker talks to the voiceplanner server's ticket endpoints.
func (e *env) tracker() *jira.Client {
	return jira.NewClient(e.cfg.Jira.ServerURL, jira.WithMetrics(e.metrics))
}

func (e *env) calendar() (*calendar.Service, error) {
	return calendar.NewService(e.cfg.Calendar.Config,
		calendar.WithTokenStore(calendar.TokenFile(e.cfg.Calendar.TokenFile)),
		calendar.WithLogger(e.logger),
		calendar.WithMetrics(e.metrics),
	)
}

// planner wires the task service. A calendar that is not configured leaves
// scheduling unavailable rather than failing every other operation.
func (e *env) planner() (*planner.Service, error) {
	var scheduler planner.Scheduler
	cal, err := e.calendar()
	switch {
	case err == nil:
		scheduler = cal
	case errors.Is(err, calendar.ErrNotConfigured):
	default:
		return nil, err
	}
	return planner.NewService(e.store, e.tracker(), scheduler, e.logger), nil
}

// initLogger creates the structured logger from the logging section.
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr", "":
		output = os.Stderr
	case "stdout":
		output = os.Stdout
	default:
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stderr\n", cfg.Output, err)
			output = os.Stderr
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}
	return slog.New(handler)
}

// quietLogger keeps log lines off a terminal the command owns. File
// output is kept.
func quietLogger(cfg config.LoggingConfig) *slog.Logger {
	switch cfg.Output {
	case "", "stderr", "stdout":
		return slog.New(slog.DiscardHandler)
	}
	return initLogger(cfg)
}
