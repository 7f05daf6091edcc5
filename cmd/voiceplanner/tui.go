package main

import (
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ajz007/ai-voice-planner/internal/app"
)

func tuiCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse notes and record in the terminal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e.logger = quietLogger(e.cfg.Logging)
			slog.SetDefault(e.logger)

			var rec app.Recorder
			sess, err := e.newSession(cmd.Context())
			if err != nil {
				fmt.Fprintf(os.Stderr, "Recording unavailable: %v\n", err)
			} else {
				rec = sess
			}

			p := tea.NewProgram(app.New(e.store, rec), tea.WithAltScreen(), tea.WithContext(cmd.Context()))
			_, err = p.Run()
			return err
		},
	}
}
