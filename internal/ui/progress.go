package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"kmpls/internal/check"
)

type progressModel struct {
	title      string
	events     <-chan check.Event
	spinner    spinner.Model
	prog       progress.Model
	items      []fileItem
	index      map[string]int
	stageLabel string
	width      int
	percent    float64
	failed     int
	done       bool
}

type fileItem struct {
	path   string
	status string
	stage  check.Stage
}

type eventMsg check.Event
type doneMsg struct{}

// NewProgressModel returns a Bubble Tea model that renders check progress
// for files, which must be given in the form events carry.
func NewProgressModel(title string, files []string, events <-chan check.Event) tea.Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	prog := progress.New(progress.WithDefaultGradient())
	prog.Width = 76

	items := make([]fileItem, 0, len(files))
	index := make(map[string]int, len(files))
	for i, file := range files {
		items = append(items, fileItem{path: file, status: "queued"})
		index[file] = i
	}
	return &progressModel{
		title:   title,
		events:  events,
		spinner: sp,
		prog:    prog,
		items:   items,
		index:   index,
		width:   80,
	}
}

func (m *progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.listenForEvent())
}

func (m *progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		ev := check.Event(msg)
		cmd := m.applyEvent(ev)
		return m, tea.Batch(cmd, m.listenForEvent())
	case doneMsg:
		m.done = true
		return m, tea.Quit
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		return m, nil
	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	case tea.WindowSizeMsg:
		if msg.Width > 0 {
			m.width = msg.Width
			m.prog.Width = msg.Width - 4
		}
		return m, nil
	case progress.FrameMsg:
		progressModel, cmd := m.prog.Update(msg)
		m.prog = progressModel.(progress.Model)
		return m, cmd
	}
	return m, nil
}

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("7"))
	countStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

const statusWidth = 10

func (m *progressModel) finished() int {
	n := 0
	for _, it := range m.items {
		if it.status == "done" || it.status == "error" {
			n++
		}
	}
	return n
}

func (m *progressModel) View() string {
	if len(m.items) == 0 {
		return ""
	}
	var header strings.Builder
	if m.done {
		header.WriteString("done: ")
	} else {
		header.WriteString(m.spinner.View() + " ")
	}
	header.WriteString(m.title)
	if m.stageLabel != "" && !m.done {
		header.WriteString(" (" + m.stageLabel + ")")
	}
	counts := fmt.Sprintf("  %d/%d", m.finished(), len(m.items))
	if m.failed > 0 {
		counts += fmt.Sprintf(", %d failed", m.failed)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(header.String()))
	b.WriteString(countStyle.Render(counts))
	b.WriteString("\n\n")

	nameWidth := max(m.width-statusWidth-4, 20)
	rows, hidden := m.visibleItems()
	for _, item := range rows {
		status := styleStatus(item.status).Render(fmt.Sprintf("%*s", statusWidth, item.status))
		fmt.Fprintf(&b, "  %s %s\n", status, truncate(item.path, nameWidth))
	}
	if hidden > 0 {
		b.WriteString(countStyle.Render(fmt.Sprintf("  %*s %d more", statusWidth, "...", hidden)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.done {
		b.WriteString(m.prog.ViewAs(1.0))
	} else {
		b.WriteString(m.prog.View())
	}
	b.WriteString("\n")
	return b.String()
}

// maxRows bounds the file list; active files are shown before finished ones.
const maxRows = 15

func (m *progressModel) visibleItems() ([]fileItem, int) {
	if len(m.items) <= maxRows {
		return m.items, 0
	}
	rows := make([]fileItem, 0, maxRows)
	for _, pass := range []func(fileItem) bool{
		func(it fileItem) bool { return it.status != "done" && it.status != "queued" },
		func(it fileItem) bool { return it.status == "queued" },
		func(it fileItem) bool { return it.status == "done" },
	} {
		for _, it := range m.items {
			if len(rows) == maxRows {
				return rows, len(m.items) - maxRows
			}
			if pass(it) {
				rows = append(rows, it)
			}
		}
	}
	return rows, len(m.items) - len(rows)
}

func (m *progressModel) listenForEvent() tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-m.events
		if !ok {
			return doneMsg{}
		}
		return eventMsg(ev)
	}
}

func (m *progressModel) applyEvent(ev check.Event) tea.Cmd {
	label := statusLabel(ev.Stage, ev.Status)
	if ev.File == "" {
		if label != "" {
			m.stageLabel = label
		}
		return nil
	}
	idx, ok := m.index[ev.File]
	if !ok {
		return nil
	}
	if label != "" {
		m.items[idx].status = label
	}
	if ev.Status == check.StatusWorking {
		m.items[idx].stage = ev.Stage
	}
	if ev.Err != nil {
		m.failed++
	}
	m.percent = m.fraction()
	return m.prog.SetPercent(m.percent)
}

// fraction is the share of work behind the files, finished files count fully.
func (m *progressModel) fraction() float64 {
	if len(m.items) == 0 {
		return 0
	}
	total := 0.0
	for _, item := range m.items {
		if item.status == "done" || item.status == "error" {
			total += 1.0
		} else {
			total += progressFromStage(item.stage)
		}
	}
	return total / float64(len(m.items))
}

func progressFromStage(stage check.Stage) float64 {
	switch stage {
	case check.StageIndex:
		return 0.1
	case check.StageAnalyze:
		return 0.4
	case check.StageCrossCheck:
		return 0.8
	default:
		return 0.0
	}
}

func statusLabel(stage check.Stage, status check.Status) string {
	switch status {
	case check.StatusQueued:
		return "queued"
	case check.StatusDone:
		return "done"
	case check.StatusError:
		return "error"
	case check.StatusWorking:
		return stageLabel(stage)
	default:
		return ""
	}
}

func stageLabel(stage check.Stage) string {
	switch stage {
	case check.StageIndex:
		return "indexing"
	case check.StageAnalyze:
		return "analyzing"
	case check.StageCrossCheck:
		return "grammar"
	default:
		return ""
	}
}

func styleStatus(status string) lipgloss.Style {
	switch status {
	case "done":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	case "error":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	case "indexing", "analyzing", "grammar":
		return lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	default:
		return lipgloss.NewStyle().Foreground(lipgloss.Color("7"))
	}
}

func truncate(value string, width int) string {
	if width <= 0 {
		return value
	}
	if runewidth.StringWidth(value) <= width {
		return value
	}
	if width <= 3 {
		return runewidth.Truncate(value, width, "")
	}
	return runewidth.Truncate(value, width-3, "...")
}
