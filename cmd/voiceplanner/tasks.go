package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ajz007/ai-voice-planner/internal/calendar"
	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/planner"
)

func tasksCmd(e *env) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tasks",
		Short: "Create, list and sync tasks",
	}
	cmd.AddCommand(tasksAddCmd(e))
	cmd.AddCommand(tasksListCmd(e))
	cmd.AddCommand(tasksUpdateCmd(e))
	cmd.AddCommand(tasksFromNoteCmd(e))
	cmd.AddCommand(tasksPushCmd(e))
	cmd.AddCommand(tasksScheduleCmd(e))
	return cmd
}

// taskFlags are the editable task fields shared by add, update and from-note.
type taskFlags struct {
	title, description string
	status, priority   string
	labels             []string
	estimate, actual   float64
	start, end         string
}

func (f *taskFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&f.title, "title", "", "task title")
	fs.StringVar(&f.description, "description", "", "task description")
	fs.StringVar(&f.status, "status", "", "not_started, in_progress or completed")
	fs.StringVar(&f.priority, "priority", "", "low, medium or high")
	fs.StringSliceVar(&f.labels, "label", nil, "label (repeatable)")
	fs.Float64Var(&f.estimate, "estimate", 0, "estimated hours")
	fs.Float64Var(&f.actual, "actual", 0, "hours spent")
	fs.StringVar(&f.start, "start", "", "scheduled start, RFC 3339 or \"2006-01-02 15:04\"")
	fs.StringVar(&f.end, "end", "", "scheduled end, same formats as --start")
}

// apply copies the flags that were set onto t.
func (f *taskFlags) apply(cmd *cobra.Command, t *db.Task) error {
	changed := cmd.Flags().Changed
	if changed("title") {
		t.Title = f.title
	}
	if changed("description") {
		t.Description = f.description
	}
	if changed("status") {
		t.Status = db.Status(f.status)
	}
	if changed("priority") {
		t.Priority = db.Priority(f.priority)
	}
	for _, l := range f.labels {
		t.Labels = planner.AddLabel(t.Labels, l)
	}
	if changed("estimate") {
		t.EstimatedHours = db.Ptr(f.estimate)
	}
	if changed("actual") {
		t.ActualHours = f.actual
	}
	if changed("start") {
		ms, err := parseTime(f.start)
		if err != nil {
			return err
		}
		t.ScheduledStart = &ms
	}
	if changed("end") {
		ms, err := parseTime(f.end)
		if err != nil {
			return err
		}
		t.ScheduledEnd = &ms
	}
	return nil
}

// changes builds a partial update from the flags that were set.
func (f *taskFlags) changes(cmd *cobra.Command) (db.TaskChanges, error) {
	var c db.TaskChanges
	changed := cmd.Flags().Changed
	if changed("title") {
		c.Title = db.Ptr(f.title)
	}
	if changed("description") {
		c.Description = db.Ptr(f.description)
	}
	if changed("status") {
		c.Status = db.Ptr(db.Status(f.status))
	}
	if changed("priority") {
		c.Priority = db.Ptr(db.Priority(f.priority))
	}
	if changed("label") {
		var labels []string
		for _, l := range f.labels {
			labels = planner.AddLabel(labels, l)
		}
		c.Labels = labels
	}
	if changed("estimate") {
		c.EstimatedHours = db.Ptr(f.estimate)
	}
	if changed("actual") {
		c.ActualHours = db.Ptr(f.actual)
	}
	if changed("start") {
		ms, err := parseTime(f.start)
		if err != nil {
			return c, err
		}
		c.ScheduledStart = &ms
	}
	if changed("end") {
		ms, err := parseTime(f.end)
		if err != nil {
			return c, err
		}
		c.ScheduledEnd = &ms
	}
	return c, nil
}

func tasksAddCmd(e *env) *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a task",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			t := db.Task{Labels: []string{}}
			if err := f.apply(cmd, &t); err != nil {
				return err
			}
			if t.Description == "" {
				t.Description = t.Title
			}
			id, err := e.store.AddTask(cmd.Context(), t)
			if err != nil {
				return err
			}
			e.metrics.RecordTaskCreated()
			fmt.Printf("Created task #%d\n", id)
			return nil
		},
	}
	f.register(cmd)
	cmd.MarkFlagRequired("title")
	return cmd
}

func tasksFromNoteCmd(e *env) *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "from-note <note-id>",
		Short: "Draft a task from a note's transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			noteID, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			n, err := e.store.Note(ctx, noteID)
			if err != nil {
				return err
			}
			t := planner.DraftFromNote(n)
			if err := f.apply(cmd, &t); err != nil {
				return err
			}
			id, err := e.store.AddTask(ctx, t)
			if err != nil {
				return err
			}
			e.metrics.RecordTaskCreated()
			fmt.Printf("Created task #%d: %s\n", id, t.Title)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func tasksListCmd(e *env) *cobra.Command {
	var (
		status, priority, label string
		asJSON                  bool
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			filter := planner.Filter{Status: db.Status(status), Priority: db.Priority(priority), Label: label}
			if filter.Status != "" && !filter.Status.Valid() {
				return fmt.Errorf("unknown status %q", status)
			}
			if filter.Priority != "" && !filter.Priority.Valid() {
				return fmt.Errorf("unknown priority %q", priority)
			}
			all, err := e.store.Tasks(cmd.Context())
			if err != nil {
				return err
			}
			tasks := filter.Apply(all)
			if asJSON {
				if tasks == nil {
					tasks = []db.Task{}
				}
				return printJSON(tasks)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPRIORITY\tESTIMATE\tLABELS\tTITLE")
			for _, t := range tasks {
				estimate := "-"
				if t.EstimatedHours != nil {
					estimate = fmt.Sprintf("%gh", *t.EstimatedHours)
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n",
					t.ID, t.Status, t.Priority, estimate, strings.Join(t.Labels, ","), t.Title)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if labels := planner.Labels(all); len(labels) > 0 && !cmd.Flags().Changed("label") {
				fmt.Printf("\nLabels: %s\n", strings.Join(labels, ", "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "only tasks with this status")
	cmd.Flags().StringVar(&priority, "priority", "", "only tasks with this priority")
	cmd.Flags().StringVar(&label, "label", "", "only tasks with this label")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output as JSON")
	return cmd
}

func tasksUpdateCmd(e *env) *cobra.Command {
	var f taskFlags
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Change fields of a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			changes, err := f.changes(cmd)
			if err != nil {
				return err
			}
			if err := e.store.UpdateTask(cmd.Context(), id, changes); err != nil {
				return err
			}
			fmt.Printf("Updated task #%d\n", id)
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func tasksPushCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "push <id>",
		Short: "Create a JIRA ticket for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := e.planner()
			if err != nil {
				return err
			}
			ref, err := svc.PushTask(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Printf("Task #%d is ticket %s\n", id, ref.Ref())
			return nil
		},
	}
}

func tasksScheduleCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "schedule <id>",
		Short: "Create a calendar event for a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			svc, err := e.planner()
			if err != nil {
				return err
			}
			ref, err := svc.ScheduleTask(cmd.Context(), id)
			if errors.Is(err, calendar.ErrNotAuthenticated) {
				return fmt.Errorf("%w: run \"voiceplanner calendar auth\" first", err)
			}
			if err != nil {
				return err
			}
			fmt.Printf("Scheduled task #%d: %s\n", id, ref.HTMLLink)
			return nil
		},
	}
}

var timeLayouts = []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02T15:04", "2006-01-02"}

// parseTime returns s as epoch milliseconds. Layouts without an offset are
// read in local time.
func parseTime(s string) (int64, error) {
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t.UnixMilli(), nil
		}
	}
	return 0, fmt.Errorf("invalid time %q", s)
}
