package reporter

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/patchpilot/internal/model"
)

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// TUI styles
var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	runStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	pauseStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("11")).Bold(true)
)

type tickMsg time.Time

// RunRow is one run with the context needed to display it.
type RunRow struct {
	Run      model.Run
	Repo     string
	PRNumber int
	PRTitle  string
}

// TUIModel is the Bubbletea model for the live run view.
type TUIModel struct {
	load     func() ([]RunRow, error)
	interval time.Duration

	rows         []RunRow
	err          error
	scrollOffset int
	paused       bool
	frame        int
	width        int
	height       int
	now          func() time.Time
}

// NewTUIModel creates a TUI that refreshes rows from load every interval.
func NewTUIModel(load func() ([]RunRow, error), interval time.Duration) TUIModel {
	if interval <= 0 {
		interval = time.Second
	}
	return TUIModel{load: load, interval: interval, now: time.Now}
}

// Init implements tea.Model.
func (m TUIModel) Init() tea.Cmd {
	return tea.Batch(m.refresh, tickCmd(m.interval))
}

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

type rowsMsg struct {
	rows []RunRow
	err  error
}

func (m TUIModel) refresh() tea.Msg {
	rows, err := m.load()
	return rowsMsg{rows: rows, err: err}
}

// Update implements tea.Model.
func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "p", " ":
			m.paused = !m.paused

		case "r":
			return m, m.refresh

		case "j", "down":
			m.scrollDown(1)

		case "k", "up":
			m.scrollUp(1)

		case "g", "home":
			m.scrollOffset = 0

		case "G", "end":
			m.scrollOffset = m.maxScroll()

		case "pgdown":
			m.scrollDown(m.visibleRows())

		case "pgup":
			m.scrollUp(m.visibleRows())
		}

	case rowsMsg:
		m.rows = msg.rows
		m.err = msg.err
		if limit := m.maxScroll(); m.scrollOffset > limit {
			m.scrollOffset = limit
		}

	case tickMsg:
		m.frame++
		if m.paused {
			return m, tickCmd(m.interval)
		}
		return m, tea.Batch(m.refresh, tickCmd(m.interval))

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

func (m *TUIModel) scrollDown(n int) {
	m.scrollOffset += n
	if limit := m.maxScroll(); m.scrollOffset > limit {
		m.scrollOffset = limit
	}
}

func (m *TUIModel) scrollUp(n int) {
	m.scrollOffset -= n
	if m.scrollOffset < 0 {
		m.scrollOffset = 0
	}
}

func (m TUIModel) visibleRows() int {
	// header(1) + progress(1) + help(1) = 3 reserved lines
	avail := m.height - 3
	if avail < 3 {
		return 3
	}
	return avail
}

func (m TUIModel) maxScroll() int {
	vis := m.visibleRows()
	if len(m.rows) <= vis {
		return 0
	}
	return len(m.rows) - vis
}

// View implements tea.Model.
func (m TUIModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	header := fmt.Sprintf("patchpilot — %d runs", len(m.rows))
	if m.paused {
		header += "  " + pauseStyle.Render("⏸ PAUSED")
	}
	b.WriteString(headerStyle.Render(header))
	b.WriteString("\n")

	if m.err != nil {
		b.WriteString(failedStyle.Render("  load runs: " + m.err.Error()))
	} else {
		b.WriteString(m.progressLine())
	}
	b.WriteString("\n")

	lines := m.buildRunLines()
	vis := m.visibleRows()
	start := m.scrollOffset
	if start > len(lines) {
		start = len(lines)
	}
	end := start + vis
	if end > len(lines) {
		end = len(lines)
	}
	for i := start; i < end; i++ {
		b.WriteString(lines[i])
		b.WriteString("\n")
	}

	// pad to fill screen
	for i := 2 + (end - start); i < m.height-1; i++ {
		b.WriteString("\n")
	}

	b.WriteString(helpStyle.Render("  ↑↓/jk: scroll  g/G: top/bottom  r: refresh  p: pause  q: quit"))
	return b.String()
}

// buildRunLines orders rows failed, in progress, pending, then completed.
func (m TUIModel) buildRunLines() []string {
	var failed, running, pending, done []RunRow
	for _, r := range m.rows {
		switch r.Run.Status {
		case model.RunFailed:
			failed = append(failed, r)
		case model.RunInProgress:
			running = append(running, r)
		case model.RunCompleted:
			done = append(done, r)
		default:
			pending = append(pending, r)
		}
	}

	spinner := spinnerChars[m.frame%len(spinnerChars)]
	var lines []string
	for _, r := range failed {
		lines = append(lines, m.fmtFailed(r))
	}
	for _, r := range running {
		lines = append(lines, m.fmtRunning(r, spinner))
	}
	for _, r := range pending {
		lines = append(lines, m.fmtPending(r))
	}
	for _, r := range done {
		lines = append(lines, m.fmtDone(r))
	}
	return lines
}

func rowLabel(r RunRow) string {
	label := r.Repo
	if r.PRNumber > 0 {
		label = fmt.Sprintf("%s#%d", r.Repo, r.PRNumber)
	}
	return label
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func (m TUIModel) fmtFailed(r RunRow) string {
	errMsg := r.Run.ErrorMessage
	if len(errMsg) > 50 {
		errMsg = errMsg[:50] + "..."
	}
	return failedStyle.Render(fmt.Sprintf("  ✗ %-11s %-8s %-30s %s", "FAILED", shortID(r.Run.ID), rowLabel(r), errMsg))
}

func (m TUIModel) fmtRunning(r RunRow, spinner string) string {
	elapsed := ""
	if r.Run.StartedAt != nil {
		elapsed = m.now().Sub(*r.Run.StartedAt).Truncate(time.Second).String()
	}
	return runStyle.Render(fmt.Sprintf("  %s %-11s %-8s %-30s %s", spinner, "running", shortID(r.Run.ID), rowLabel(r), elapsed))
}

func (m TUIModel) fmtPending(r RunRow) string {
	return dimStyle.Render(fmt.Sprintf("  ─ %-11s %-8s %-30s via %s", "pending", shortID(r.Run.ID), rowLabel(r), r.Run.TriggeredBy))
}

func (m TUIModel) fmtDone(r RunRow) string {
	info := ""
	if mt := r.Run.Metrics; mt != nil {
		info = fmt.Sprintf("%d findings, score %d", mt.Total, mt.OverallScore)
	}
	if r.Run.StartedAt != nil && r.Run.CompletedAt != nil {
		info += fmt.Sprintf(" in %s", r.Run.CompletedAt.Sub(*r.Run.StartedAt).Truncate(time.Second))
	}
	return doneStyle.Render(fmt.Sprintf("  ✓ %-11s %-8s %-30s %s", "done", shortID(r.Run.ID), rowLabel(r), info))
}

func (m TUIModel) progressLine() string {
	counts := make(map[model.RunStatus]int)
	for _, r := range m.rows {
		counts[r.Run.Status]++
	}
	var parts []string
	if n := counts[model.RunCompleted]; n > 0 {
		parts = append(parts, doneStyle.Render(fmt.Sprintf("%d done", n)))
	}
	if n := counts[model.RunInProgress]; n > 0 {
		parts = append(parts, runStyle.Render(fmt.Sprintf("%d running", n)))
	}
	if n := counts[model.RunFailed]; n > 0 {
		parts = append(parts, failedStyle.Render(fmt.Sprintf("%d failed", n)))
	}
	if n := counts[model.RunPending]; n > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("%d pending", n)))
	}
	return fmt.Sprintf("  %s", strings.Join(parts, "  "))
}
