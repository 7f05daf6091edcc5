package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajz007/ai-voice-planner/internal/session"
)

// stopTimeout bounds flushing the recognizer and storing the note.
const stopTimeout = 30 * time.Second

func recordCmd(e *env) *cobra.Command {
	var duration time.Duration

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice note",
		Long: `Record from the microphone and store the transcript as a note.

Recording stops when Enter is pressed, on Ctrl-C, or after --duration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			sess, err := e.newSession(ctx)
			if err != nil {
				return err
			}
			if err := sess.Start(ctx); err != nil {
				return err
			}
			fmt.Fprintln(os.Stderr, "Recording... press Enter to stop.")

			enter := make(chan struct{})
			go func() {
				bufio.NewReader(os.Stdin).ReadString('\n')
				close(enter)
			}()
			var deadline <-chan time.Time
			if duration > 0 {
				deadline = time.After(duration)
			}

		wait:
			for {
				select {
				case snap := <-sess.Progress():
					fmt.Fprintf(os.Stderr, "\r\033[K[%s] %s", snap.Elapsed.Truncate(time.Second), tail(snap.Text(), 70))
				case <-enter:
					break wait
				case <-deadline:
					break wait
				case <-ctx.Done():
					break wait
				}
			}
			fmt.Fprintln(os.Stderr)

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()
			id, res, err := sess.Save(stopCtx, e.store)
			if errors.Is(err, session.ErrEmpty) {
				fmt.Fprintln(os.Stderr, "Nothing was recognized, no note saved.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("Saved note #%d (%s of audio)\n", id, res.Audio.Duration.Truncate(100*time.Millisecond))
			fmt.Println(res.Text)
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 0, "stop after this long (0 waits for Enter)")
	return cmd
}

// tail returns the last n runes of s.
func tail(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return "…" + string(r[len(r)-n+1:])
}
