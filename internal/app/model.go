package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/ajz007/ai-voice-planner/internal/db"
	"github.com/ajz007/ai-voice-planner/internal/planner"
	"github.com/ajz007/ai-voice-planner/internal/session"
	"github.com/ajz007/ai-voice-planner/internal/ui"

	tea "github.com/charmbracelet/bubbletea"
)

const (
	// transientErrorTimeout is how long transient errors and notices stay visible.
	transientErrorTimeout = 5 * time.Second
	// saveTimeout bounds stopping the recorder and storing the note.
	saveTimeout = 30 * time.Second
)

// PanelFocus tracks which panel has keyboard focus.
type PanelFocus int

const (
	FocusNotes PanelFocus = iota
	FocusDetail
)

// Store is the slice of the local store the TUI uses.
type Store interface {
	Notes(ctx context.Context) ([]db.Note, error)
	AddNote(ctx context.Context, n db.Note) (int64, error)
	AddTask(ctx context.Context, t db.Task) (int64, error)
}

// Recorder runs one recording at a time and stores it as a note.
// *session.Session satisfies it.
type Recorder interface {
	Start(ctx context.Context) error
	Progress() <-chan session.Snapshot
	Save(ctx context.Context, store session.NoteAdder) (int64, session.Result, error)
}

// Model is the root bubbletea model for the planner TUI.
type Model struct {
	ctx      context.Context
	store    Store
	recorder Recorder

	// Notes
	notes        []db.Note
	selectedNote int
	loaded       bool

	// Recording state
	recording bool
	saving    bool
	snapshot  session.Snapshot
	stopWait  chan struct{}
	spinner   spinner.Model

	// UI state
	focusedPanel PanelFocus
	width        int
	height       int
	detailScroll int
	renderer     *glamour.TermRenderer

	// Errors and notices
	errorMessage   string
	errorTransient bool
	notice         string
	transientSeq   int
}

// New creates a Model over store. rec may be nil, in which case
// recording is unavailable.
func New(store Store, rec Recorder) Model {
	return Model{
		ctx:          context.Background(),
		store:        store,
		recorder:     rec,
		focusedPanel: FocusNotes,
		spinner: spinner.New(
			spinner.WithSpinner(spinner.Dot),
			spinner.WithStyle(ui.SpinnerStyle),
		),
	}
}

// Init loads the notes.
func (m Model) Init() tea.Cmd {
	return loadNotesCmd(m.ctx, m.store)
}

func loadNotesCmd(ctx context.Context, store Store) tea.Cmd {
	return func() tea.Msg {
		notes, err := store.Notes(ctx)
		return NotesLoadedMsg{Notes: notes, Err: err}
	}
}

func startCmd(ctx context.Context, rec Recorder) tea.Cmd {
	return func() tea.Msg {
		return RecordingStartedMsg{Err: rec.Start(ctx)}
	}
}

// waitProgressCmd delivers the next snapshot, or nothing once stop is closed.
func waitProgressCmd(progress <-chan session.Snapshot, stop <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		select {
		case snap := <-progress:
			return ProgressMsg{Snapshot: snap}
		case <-stop:
			return nil
		}
	}
}

func saveCmd(ctx context.Context, rec Recorder, store Store) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(ctx, saveTimeout)
		defer cancel()
		id, _, err := rec.Save(ctx, store)
		return NoteSavedMsg{ID: id, Err: err}
	}
}

func draftTaskCmd(ctx context.Context, store Store, note db.Note) tea.Cmd {
	return func() tea.Msg {
		id, err := store.AddTask(ctx, planner.DraftFromNote(note))
		return TaskDraftedMsg{NoteID: note.ID, TaskID: id, Err: err}
	}
}

// clearTransientErrorCmd returns a command that clears the transient message
// numbered seq after a delay.
func clearTransientErrorCmd(seq int) tea.Cmd {
	return tea.Tick(transientErrorTimeout, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{Seq: seq}
	})
}

// Update handles incoming messages and returns the updated model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.renderer = newRenderer(m.detailPanelWidth() - 2)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case NotesLoadedMsg:
		if msg.Err != nil {
			return m.setError("Loading notes failed: "+msg.Err.Error(), false)
		}
		m.notes = msg.Notes
		m.loaded = true
		if m.selectedNote >= len(m.notes) {
			m.selectedNote = max(0, len(m.notes)-1)
		}
		return m, nil

	case RecordingStartedMsg:
		if msg.Err != nil {
			m.recording = false
			m.stopRecordingUI()
			return m.setError("Recording failed: "+msg.Err.Error(), false)
		}
		return m, nil

	case ProgressMsg:
		if !m.recording {
			return m, nil
		}
		m.snapshot = msg.Snapshot
		return m, waitProgressCmd(m.recorder.Progress(), m.stopWait)

	case NoteSavedMsg:
		m.saving = false
		switch {
		case errors.Is(msg.Err, session.ErrEmpty):
			return m.setError("Nothing was recognized, no note saved", true)
		case msg.Err != nil:
			return m.setError("Saving note failed: "+msg.Err.Error(), false)
		}
		m.snapshot = session.Snapshot{}
		m.selectedNote = 0
		m.detailScroll = 0
		return m.setNotice(fmt.Sprintf("Saved note #%d", msg.ID), loadNotesCmd(m.ctx, m.store))

	case TaskDraftedMsg:
		if msg.Err != nil {
			return m.setError("Drafting task failed: "+msg.Err.Error(), true)
		}
		return m.setNotice(fmt.Sprintf("Drafted task #%d from note #%d", msg.TaskID, msg.NoteID), nil)

	case ClearTransientErrorMsg:
		if msg.Seq != m.transientSeq {
			return m, nil
		}
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		m.notice = ""
		return m, nil

	case spinner.TickMsg:
		if !m.recording {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m Model) setError(text string, transient bool) (tea.Model, tea.Cmd) {
	m.errorMessage = text
	m.errorTransient = transient
	m.notice = ""
	if transient {
		m.transientSeq++
		return m, clearTransientErrorCmd(m.transientSeq)
	}
	return m, nil
}

func (m Model) setNotice(text string, cmd tea.Cmd) (tea.Model, tea.Cmd) {
	m.notice = text
	if !m.errorTransient {
		m.errorMessage = ""
	}
	m.transientSeq++
	return m, tea.Batch(cmd, clearTransientErrorCmd(m.transientSeq))
}

func (m *Model) stopRecordingUI() {
	if m.stopWait != nil {
		close(m.stopWait)
		m.stopWait = nil
	}
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch key {
	case KeyQuit, KeyQuitUpper, KeyCtrlC:
		if m.recording {
			m.recording = false
			m.saving = true
			m.stopRecordingUI()
			return m, tea.Sequence(saveCmd(m.ctx, m.recorder, m.store), tea.Quit)
		}
		return m, tea.Quit

	case KeySpace:
		return m.toggleRecording()

	case KeyTab:
		if m.focusedPanel == FocusNotes {
			m.focusedPanel = FocusDetail
		} else {
			m.focusedPanel = FocusNotes
		}
		return m, nil

	case KeyReload:
		return m, loadNotesCmd(m.ctx, m.store)

	case KeyDraftTask:
		note, ok := m.currentNote()
		if !ok {
			return m.setError("No note selected", true)
		}
		return m, draftTaskCmd(m.ctx, m.store, note)

	case KeyJ, KeyDown:
		if m.focusedPanel == FocusNotes {
			if m.selectedNote < len(m.notes)-1 {
				m.selectedNote++
				m.detailScroll = 0
			}
		} else {
			m.detailScroll++
		}
		return m, nil

	case KeyK, KeyUp:
		if m.focusedPanel == FocusNotes {
			if m.selectedNote > 0 {
				m.selectedNote--
				m.detailScroll = 0
			}
		} else if m.detailScroll > 0 {
			m.detailScroll--
		}
		return m, nil

	case KeyPageDown:
		m.detailScroll += m.contentHeight() / 2
		return m, nil

	case KeyPageUp:
		m.detailScroll = max(0, m.detailScroll-m.contentHeight()/2)
		return m, nil
	}

	return m, nil
}

func (m Model) toggleRecording() (tea.Model, tea.Cmd) {
	if m.recorder == nil {
		return m.setError("No recorder configured", false)
	}
	if m.saving {
		return m, nil
	}
	if m.recording {
		m.recording = false
		m.saving = true
		m.stopRecordingUI()
		return m, saveCmd(m.ctx, m.recorder, m.store)
	}

	// Drop a snapshot left over from the previous recording.
	select {
	case <-m.recorder.Progress():
	default:
	}

	m.recording = true
	m.snapshot = session.Snapshot{}
	m.stopWait = make(chan struct{})
	m.focusedPanel = FocusDetail
	m.errorMessage = ""
	m.errorTransient = false
	return m, tea.Batch(
		startCmd(m.ctx, m.recorder),
		waitProgressCmd(m.recorder.Progress(), m.stopWait),
		m.spinner.Tick,
	)
}

func (m Model) currentNote() (db.Note, bool) {
	if m.selectedNote < 0 || m.selectedNote >= len(m.notes) {
		return db.Note{}, false
	}
	return m.notes[m.selectedNote], true
}

func newRenderer(width int) *glamour.TermRenderer {
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(max(10, width)),
	)
	if err != nil {
		return nil
	}
	return r
}

func (m Model) contentHeight() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + status(1) + divider(1) + divider(1) + error(1) + footer(1) + padding
	reserved := 7
	return max(5, m.height-reserved)
}

func (m Model) notesPanelWidth() int {
	if m.width == 0 {
		return 30
	}
	return max(24, m.width*35/100)
}

func (m Model) detailPanelWidth() int {
	if m.width == 0 {
		return 60
	}
	return max(30, m.width-m.notesPanelWidth()-3)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())
	sections = append(sections, m.renderStatusBar())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))
	sections = append(sections, m.renderMainContent())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	switch {
	case m.errorMessage != "":
		sections = append(sections, m.renderErrorBar())
	case m.notice != "":
		sections = append(sections, ui.NoticeStyle.Render(m.notice))
	}

	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	return ui.TitleStyle.Render("VOICEPLANNER") + ui.DimStyle.Render(" · voice notes to tasks")
}

func (m Model) renderStatusBar() string {
	switch {
	case m.recording:
		elapsed := m.snapshot.Elapsed.Truncate(time.Second)
		return ui.RecordingDotStyle.Render("● REC") + " " + m.spinner.View() + " " + ui.StatusStyle.Render(elapsed.String())
	case m.saving:
		return ui.RecordingDotStyle.Render("● REC") + " " + ui.StatusStyle.Render("saving...")
	default:
		return ui.IdleDotStyle.Render("○ IDLE") + "  " + ui.StatusStyle.Render(fmt.Sprintf("%d notes", len(m.notes)))
	}
}

func (m Model) renderMainContent() string {
	notesW := m.notesPanelWidth()
	detailW := m.detailPanelWidth()
	contentH := m.contentHeight()

	notesLines := strings.Split(m.renderNotesPanel(notesW, contentH), "\n")
	detailLines := strings.Split(m.renderDetailPanel(detailW, contentH), "\n")

	divider := ui.DividerStyle.Render("│")
	var rows []string
	for i := 0; i < contentH; i++ {
		nl := strings.Repeat(" ", notesW)
		if i < len(notesLines) {
			nl = notesLines[i]
		}
		dl := ""
		if i < len(detailLines) {
			dl = detailLines[i]
		}
		rows = append(rows, nl+divider+dl)
	}
	return strings.Join(rows, "\n")
}

func (m Model) renderNotesPanel(width, height int) string {
	title := fmt.Sprintf("NOTES (%d)", len(m.notes))
	var header string
	if m.focusedPanel == FocusNotes {
		header = ui.PanelTitleActiveStyle.Render(title)
	} else {
		header = ui.PanelTitleStyle.Render(title)
	}

	lines := []string{header}

	switch {
	case !m.loaded:
		lines = append(lines, ui.DimStyle.Render("  Loading notes..."))
	case len(m.notes) == 0:
		lines = append(lines, ui.DimStyle.Render("  No notes yet..."))
		lines = append(lines, ui.DimStyle.Render("  Press Space to record one"))
	default:
		// Keep the selection in view.
		visible := height - 1
		start := 0
		if m.selectedNote >= visible {
			start = m.selectedNote - visible + 1
		}
		for i := start; i < len(m.notes) && len(lines) < height; i++ {
			lines = append(lines, m.renderNoteRow(m.notes[i], i == m.selectedNote, width))
		}
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	for i, l := range lines {
		lines[i] = padRight(l, width)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderNoteRow(n db.Note, selected bool, width int) string {
	ts := n.Time().Format("Jan 02 15:04")
	badge := " "
	if n.HasAudio() {
		badge = "♪"
	}
	// "> " + timestamp + " " + badge + " "
	titleW := max(4, width-lipgloss.Width(ts)-6)
	title := truncateToWidth(planner.DraftTitle(n.Text), titleW)

	if selected && m.focusedPanel == FocusNotes {
		return ui.SelectedStyle.Render("> "+ts+" ") + ui.AudioBadgeStyle.Render(badge) + " " + ui.SelectedStyle.Render(title)
	}
	if selected {
		return "> " + ui.TimestampStyle.Render(ts) + " " + ui.AudioBadgeStyle.Render(badge) + " " + title
	}
	return "  " + ui.TimestampStyle.Render(ts) + " " + ui.AudioBadgeStyle.Render(badge) + " " + title
}

func (m Model) renderDetailPanel(width, height int) string {
	var header string
	var body []string

	if m.recording || m.saving {
		header = m.panelTitle("TRANSCRIPT") + ui.LiveBadgeStyle.Render(" LIVE")
		body = m.transcriptLines(width - 2)
	} else if note, ok := m.currentNote(); ok {
		header = m.panelTitle(fmt.Sprintf("NOTE #%d", note.ID)) + ui.DimStyle.Render(" "+note.Time().Format("2006-01-02 15:04"))
		body = m.noteLines(note, width-2)
	} else {
		header = m.panelTitle("NOTE")
		body = []string{"", ui.DimStyle.Render("Select a note or press Space to start recording")}
	}

	lines := []string{header}
	contentHeight := height - 1

	start := m.detailScroll
	if m.recording {
		// Follow the live transcript.
		start = max(0, len(body)-contentHeight)
	}
	start = min(start, max(0, len(body)-contentHeight))
	end := min(len(body), start+contentHeight)
	for _, l := range body[start:end] {
		lines = append(lines, "  "+l)
	}

	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func (m Model) panelTitle(title string) string {
	if m.focusedPanel == FocusDetail {
		return ui.PanelTitleActiveStyle.Render(title)
	}
	return ui.PanelTitleStyle.Render(title)
}

// transcriptLines renders committed text plainly and the in-progress
// guess highlighted, with a cursor at the end.
func (m Model) transcriptLines(width int) []string {
	if m.snapshot.Final == "" && m.snapshot.Interim == "" {
		return []string{"", ui.DimStyle.Render("Listening...")}
	}

	var lines []string
	if m.snapshot.Final != "" {
		lines = append(lines, wrapText(m.snapshot.Final, width)...)
	}
	for _, wl := range wrapText(m.snapshot.Interim+"▌", width) {
		lines = append(lines, ui.InterimTextStyle.Render(wl))
	}
	return lines
}

func (m Model) noteLines(n db.Note, width int) []string {
	var lines []string
	if m.renderer != nil {
		if out, err := m.renderer.Render(n.Text); err == nil {
			lines = strings.Split(strings.Trim(out, "\n"), "\n")
		}
	}
	if lines == nil {
		lines = wrapText(n.Text, width)
	}

	var meta []string
	if n.Transcribed {
		meta = append(meta, "transcribed")
	}
	if n.HasAudio() {
		meta = append(meta, fmt.Sprintf("audio %s, %d bytes", n.AudioType, len(n.AudioBlob)))
	}
	if len(meta) > 0 {
		lines = append(lines, "", ui.DimStyle.Render(strings.Join(meta, " · ")))
	}
	return lines
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string

	if m.recording {
		parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Stop"))
	} else {
		parts = append(parts, ui.FooterKeyStyle.Render("Space")+ui.FooterDescStyle.Render(" Record"))
	}
	parts = append(parts, ui.FooterKeyStyle.Render("t")+ui.FooterDescStyle.Render(" Task"))
	parts = append(parts, ui.FooterKeyStyle.Render("r")+ui.FooterDescStyle.Render(" Reload"))
	parts = append(parts, ui.FooterKeyStyle.Render("Tab")+ui.FooterDescStyle.Render(" Focus"))
	parts = append(parts, ui.FooterKeyStyle.Render("j/k")+ui.FooterDescStyle.Render(" Nav"))
	parts = append(parts, ui.FooterKeyStyle.Render("q")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func padRight(s string, width int) string {
	// Get visible length (ignoring ANSI codes)
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func truncateToWidth(s string, width int) string {
	if lipgloss.Width(s) <= width {
		return s
	}
	// Plain strings only; styled input would be cut mid-sequence.
	runes := []rune(s)
	if width > 1 && len(runes) > width-1 {
		return string(runes[:width-1]) + "…"
	}
	return s
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len([]rune(current))+1+len([]rune(word)) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
