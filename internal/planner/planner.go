// Package planner turns notes into tasks and hands tasks to the tracker and
// the calendar.
package planner

import (
	"strings"
	"unicode/utf8"

	"github.com/ajz007/ai-voice-planner/internal/db"
)

// maxTitleRunes is the longest title drafted from a note before truncation.
const maxTitleRunes = 100

// DraftTitle returns the first line of text, cut to maxTitleRunes with "...".
func DraftTitle(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = strings.TrimSpace(line)
	if utf8.RuneCountInString(line) <= maxTitleRunes {
		return line
	}
	return string([]rune(line)[:maxTitleRunes]) + "..."
}

// DraftFromNote prefills a task from a note. The task is not persisted.
func DraftFromNote(n db.Note) db.Task {
	return db.Task{
		Title:       DraftTitle(n.Text),
		Description: n.Text,
		Status:      db.StatusNotStarted,
		Priority:    db.PriorityMedium,
		Labels:      []string{},
	}
}

// AddLabel appends l unless it is blank or already present.
func AddLabel(labels []string, l string) []string {
	l = strings.TrimSpace(l)
	if l == "" {
		return labels
	}
	for _, have := range labels {
		if have == l {
			return labels
		}
	}
	return append(labels, l)
}

// Labels returns every label used by tasks, in first-seen order.
func Labels(tasks []db.Task) []string {
	out := []string{}
	for _, t := range tasks {
		for _, l := range t.Labels {
			out = AddLabel(out, l)
		}
	}
	return out
}

// Filter selects tasks. Zero fields match everything.
type Filter struct {
	Status   db.Status
	Priority db.Priority
	Label    string
}

// Match reports whether t passes the filter.
func (f Filter) Match(t db.Task) bool {
	if f.Status != "" && t.Status != f.Status {
		return false
	}
	if f.Priority != "" && t.Priority != f.Priority {
		return false
	}
	if f.Label != "" && !t.HasLabel(f.Label) {
		return false
	}
	return true
}

// Apply returns the tasks that match, preserving order.
func (f Filter) Apply(tasks []db.Task) []db.Task {
	out := make([]db.Task, 0, len(tasks))
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}
