package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/ajz007/ai-voice-planner/internal/capture"
	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/planner"
)

func notesCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "notes",
		Short: "List, show and edit voice notes",
	}
	cmd.AddCommand(notesListCmd(e))
	cmd.AddCommand(notesShowCmd(e))
	cmd.AddCommand(notesEditCmd(e))
	cmd.AddCommand(notesAudioCmd(e))
	return cmd
}

func notesListCmd(e *env) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notes, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			notes, err := e.store.Notes(cmd.Context())
			if err != nil {
				return err
			}
			if limit > 0 && len(notes) > limit {
				notes = notes[:limit]
			}
			if asJSON {
				for i := range notes {
					notes[i].AudioBlob = nil
				}
				return printJSON(notes)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tAUDIO\tTEXT")
			for _, n := range notes {
				audio := "-"
				if n.HasAudio() {
					audio = n.AudioType
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", n.ID, n.Time().Format("2006-01-02 15:04"), audio, planner.DraftTitle(n.Text))
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum notes to list")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON (audio omitted)")
	return cmd
}

func notesShowCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			n, err := e.store.Note(cmd.Context(), id)
			if err != nil {
				return err
			}

			fmt.Printf("Note #%d  %s\n", n.ID, n.Time().Format("2006-01-02 15:04:05"))
			out, err := glamour.Render(n.Text, "auto")
			if err != nil {
				out = n.Text + "\n"
			}
			fmt.Print(out)
			return nil
		},
	}
}

func notesEditCmd(e *env) *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace a note's text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if err := e.store.UpdateNote(cmd.Context(), id, db.NoteChanges{Text: &text}); err != nil {
				return err
			}
			fmt.Printf("Updated note #%d\n", id)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "new note text")
	cmd.MarkFlagRequired("text")
	return cmd
}

func notesAudioCmd(e *env) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "audio <id>",
		Short: "Write a note's recording to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			n, err := e.store.Note(cmd.Context(), id)
			if err != nil {
				return err
			}
			if !n.HasAudio() {
				return fmt.Errorf("note %d has no recording", id)
			}
			if output == "" {
				output = fmt.Sprintf("note-%d.wav", id)
			}
			if err := os.WriteFile(output, n.AudioBlob, 0o644); err != nil {
				return fmt.Errorf("write recording: %w", err)
			}
			if d, err := capture.Duration(n.AudioBlob); err == nil {
				fmt.Printf("Wrote %s (%d bytes, %s)\n", output, len(n.AudioBlob), d.Round(100*time.Millisecond))
			} else {
				fmt.Printf("Wrote %s (%d bytes)\n", output, len(n.AudioBlob))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default note-<id>.wav)")
	return cmd
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id " + strconv.Quote(s))
	}
	return id, nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
