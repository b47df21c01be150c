package ui

import (
	"fmt"
	"strings"

	"coursedesk/internal/models"
	"coursedesk/internal/toast"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const defaultWidth = 72

// JobSource is the registry surface the presentation reads and dismisses from.
type JobSource interface {
	List() []models.ProgressRecord
	Remove(id string)
	Subscribe() (func(), <-chan struct{})
}

// Banner is the toast surface shown above the job stack.
type Banner interface {
	Current() (toast.Message, bool)
	Close()
	Subscribe() (func(), <-chan struct{})
}

// Options configure a Model.
type Options struct {
	// Header is shown above the stack.
	Header string
	// ExitWhenIdle quits once every record has been removed after at least
	// one was shown.
	ExitWhenIdle bool
}

type jobsChangedMsg struct{}
type toastChangedMsg struct{}

// Model is the Bubble Tea model for the progress stack. It holds no timers:
// terminal records disappear when the registry removes them.
type Model struct {
	jobs   JobSource
	banner Banner
	styles Styles
	opts   Options

	records []models.ProgressRecord
	cursor  int
	width   int
	seen    bool

	jobsSignal  <-chan struct{}
	toastSignal <-chan struct{}
	disposers   []func()
}

// NewModel subscribes to jobs and banner. Call Dispose when the program exits.
func NewModel(jobs JobSource, banner Banner, opts Options) *Model {
	if opts.Header == "" {
		opts.Header = "Background jobs"
	}
	m := &Model{
		jobs:   jobs,
		banner: banner,
		styles: DefaultStyles(),
		opts:   opts,
		width:  defaultWidth,
	}

	dispose, signal := jobs.Subscribe()
	m.disposers = append(m.disposers, dispose)
	m.jobsSignal = signal
	if banner != nil {
		dispose, signal := banner.Subscribe()
		m.disposers = append(m.disposers, dispose)
		m.toastSignal = signal
	}
	m.refresh()
	return m
}

// Dispose releases the registry and banner subscriptions.
func (m *Model) Dispose() {
	for _, dispose := range m.disposers {
		dispose()
	}
	m.disposers = nil
}

// Init starts listening for registry and toast changes.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(waitFor(m.jobsSignal, jobsChangedMsg{}), waitFor(m.toastSignal, toastChangedMsg{}))
}

// waitFor turns one signal into msg. A closed or nil channel yields no message.
func waitFor(signal <-chan struct{}, msg tea.Msg) tea.Cmd {
	if signal == nil {
		return nil
	}
	return func() tea.Msg {
		if _, ok := <-signal; !ok {
			return nil
		}
		return msg
	}
}

// Update handles key presses, resizes and change signals.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "k", "up":
			if m.cursor > 0 {
				m.cursor--
			}
		case "j", "down":
			if m.cursor < len(m.records)-1 {
				m.cursor++
			}
		case "x", "delete", "backspace":
			if len(m.records) > 0 {
				m.jobs.Remove(m.records[m.cursor].ID)
				m.refresh()
			}
		case "c":
			if m.banner != nil {
				m.banner.Close()
			}
		}
		return m, m.idleCmd()

	case tea.WindowSizeMsg:
		m.width = msg.Width

	case jobsChangedMsg:
		m.refresh()
		if cmd := m.idleCmd(); cmd != nil {
			return m, cmd
		}
		return m, waitFor(m.jobsSignal, jobsChangedMsg{})

	case toastChangedMsg:
		return m, waitFor(m.toastSignal, toastChangedMsg{})
	}
	return m, nil
}

func (m *Model) idleCmd() tea.Cmd {
	if m.opts.ExitWhenIdle && m.seen && len(m.records) == 0 {
		return tea.Quit
	}
	return nil
}

func (m *Model) refresh() {
	m.records = m.jobs.List()
	if len(m.records) > 0 {
		m.seen = true
	}
	if m.cursor >= len(m.records) {
		m.cursor = len(m.records) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

// View renders the toast banner, the job cards and a key hint footer.
func (m *Model) View() string {
	var sb strings.Builder

	if m.banner != nil {
		if msg, ok := m.banner.Current(); ok {
			sb.WriteString(m.renderToast(msg))
			sb.WriteString("\n")
		}
	}

	sb.WriteString(m.styles.Header.Render(fmt.Sprintf("%s (%d)", m.opts.Header, len(m.records))))
	sb.WriteString("\n")

	if len(m.records) == 0 {
		sb.WriteString(m.styles.Empty.Render("No background jobs."))
		sb.WriteString("\n")
	}
	for i, rec := range m.records {
		sb.WriteString(renderCard(rec, m.styles, m.width, i == m.cursor))
		sb.WriteString("\n")
	}

	sb.WriteString(m.styles.Footer.Render("↑/↓ select • x dismiss • c close message • q quit"))
	return sb.String()
}

func (m *Model) renderToast(msg toast.Message) string {
	color := toastColor(msg.Kind)
	width := m.width - 2
	if width < minCardWidth {
		width = minCardWidth
	}
	return m.styles.Toast.
		BorderForeground(color).
		Foreground(color).
		Width(width).
		Render(lipgloss.NewStyle().Bold(true).Render(msg.Text))
}
