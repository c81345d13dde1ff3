package repl

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/perbu/esxiops/agent"
)

// programRef holds a reference to the tea.Program, set after creation.
// This allows the model (passed by value) to access the program for Println.
type programRef struct {
	p *tea.Program
}

func (r *programRef) Println(args ...interface{}) {
	if r != nil && r.p != nil {
		r.p.Println(args...)
	}
}

// model is the bubbletea Model for the interactive REPL.
type model struct {
	textarea textarea.Model
	spinner  spinner.Model
	history  *History

	ctx        context.Context
	dispatcher *agent.Dispatcher
	debug      bool
	mdRenderer *glamour.TermRenderer
	program    *programRef // shared pointer, set after program creation

	// turn execution state
	busy       bool
	stopping   bool // quit once the cancelled turn has returned
	turnCancel context.CancelFunc
	eventCh    chan turnMsg

	// status display
	statusText string
	toolName   string
	toolDetail string

	width  int
	height int

	// saved textarea content when navigating history
	savedInput string

	quitting bool
}

// statusStyle is the dim style for the status line.
var statusStyle = lipgloss.NewStyle().Faint(true)

func newModel(ctx context.Context, d *agent.Dispatcher, history *History, debug bool) model {
	ta := textarea.New()
	ta.Placeholder = "Ask about your VMs..."
	ta.Prompt = linePrompt
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(1)
	ta.MaxHeight = 10

	// Clear background colors so the textarea blends with the terminal.
	ta.FocusedStyle.Base = lipgloss.NewStyle()
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.FocusedStyle.EndOfBuffer = lipgloss.NewStyle()
	ta.FocusedStyle.Text = lipgloss.NewStyle()
	ta.BlurredStyle.Base = lipgloss.NewStyle()
	ta.BlurredStyle.CursorLine = lipgloss.NewStyle()
	ta.BlurredStyle.EndOfBuffer = lipgloss.NewStyle()
	ta.BlurredStyle.Text = lipgloss.NewStyle()

	// Enter submits; Alt+Enter and Ctrl+J insert newlines.
	ta.KeyMap.InsertNewline.SetKeys("alt+enter", "ctrl+j")

	ta.Focus()

	s := spinner.New(
		spinner.WithSpinner(spinner.Dot),
		spinner.WithStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("205"))),
	)

	// A fixed dark style avoids terminal queries (OSC 11) that would race
	// with bubbletea's stdin reader.
	md, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("dark"),
		glamour.WithWordWrap(80),
	)

	return model{
		textarea:   ta,
		spinner:    s,
		history:    history,
		ctx:        ctx,
		dispatcher: d,
		debug:      debug,
		mdRenderer: md,
		program:    &programRef{},
		eventCh:    make(chan turnMsg, 64),
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.textarea.SetWidth(msg.Width)
		if m.mdRenderer != nil {
			m.mdRenderer, _ = glamour.NewTermRenderer(
				glamour.WithStandardStyle("dark"),
				glamour.WithWordWrap(msg.Width),
			)
		}
		return m, nil

	case tea.KeyMsg:
		// Ctrl+C cancels a running turn and quits once it has returned.
		// A second Ctrl+C quits without waiting.
		if msg.String() == "ctrl+c" {
			if m.busy && !m.stopping && m.turnCancel != nil {
				m.stopping = true
				m.turnCancel()
				return m, nil
			}
			return m.quit()
		}

		// Input is held back while a turn runs.
		if m.busy {
			return m, nil
		}

		switch msg.String() {
		case "enter":
			return m.handleSubmit()

		case "up":
			if m.textarea.Line() == 0 {
				if m.history.atEnd() {
					m.savedInput = m.textarea.Value()
				}
				if entry, ok := m.history.Previous(); ok {
					m.textarea.SetValue(entry)
					m.textarea.CursorEnd()
					m.resizeTextarea()
				}
				return m, nil
			}

		case "down":
			if m.textarea.Line() == m.textarea.LineCount()-1 {
				entry, ok := m.history.Next()
				if ok {
					m.textarea.SetValue(entry)
				} else {
					m.textarea.SetValue(m.savedInput)
					m.savedInput = ""
				}
				m.textarea.CursorEnd()
				m.resizeTextarea()
				return m, nil
			}
		}

		var cmd tea.Cmd
		m.textarea, cmd = m.textarea.Update(msg)
		m.resizeTextarea()
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case turnMsg:
		return m.handleTurnMsg(msg)
	}

	return m, nil
}

func (m model) View() string {
	if m.quitting {
		return ""
	}

	var sb strings.Builder
	if m.busy {
		sb.WriteString(statusStyle.Render(m.buildStatusLine()))
		sb.WriteString("\n")
	}
	sb.WriteString(m.textarea.View())
	return sb.String()
}

// handleSubmit processes the Enter key press.
func (m model) handleSubmit() (tea.Model, tea.Cmd) {
	input := strings.TrimSpace(m.textarea.Value())
	if input == "" {
		return m, nil
	}

	m.history.Add(input)
	m.history.ResetCursor()
	m.savedInput = ""

	m.textarea.Reset()
	m.textarea.SetHeight(1)

	m.program.Println(linePrompt + input)

	if agent.IsQuit(input) {
		m.program.Println("Goodbye!")
		return m.quit()
	}

	cmd := m.startTurn(input)
	return m, cmd
}

func (m model) quit() (tea.Model, tea.Cmd) {
	m.dispatcher.Shutdown()
	m.history.Save()
	m.quitting = true
	return m, tea.Quit
}

// startTurn runs one dispatcher turn in a goroutine and returns a Cmd that
// waits for its first notification.
func (m *model) startTurn(input string) tea.Cmd {
	m.busy = true
	m.statusText = "Thinking..."
	m.toolName = ""
	m.toolDetail = ""
	m.textarea.Blur()

	ctx, cancel := context.WithCancel(m.ctx)
	m.turnCancel = cancel

	d, ch := m.dispatcher, m.eventCh
	go func() {
		defer cancel()
		_, _ = d.Turn(ctx, input, chanObserver{ch: ch})
	}()

	return waitForTurn(ch)
}

// waitForTurn returns a Cmd that reads one notification from the channel.
func waitForTurn(ch chan turnMsg) tea.Cmd {
	return func() tea.Msg {
		return <-ch
	}
}

// handleTurnMsg processes one notification from the running turn.
func (m model) handleTurnMsg(msg turnMsg) (tea.Model, tea.Cmd) {
	switch msg.kind {
	case eventPlan:
		if m.debug && msg.plan.ParseErr != nil {
			m.program.Println(fmt.Sprintf("[DEBUG] %v", msg.plan.ParseErr))
		}
		if text := RenderPlan(msg.plan); text != "" {
			m.program.Println(renderMarkdown(m.mdRenderer, text))
		}
		m.statusText = "Running actions..."

	case eventActionStarted:
		m.toolName = msg.req.Tool
		m.toolDetail = formatParameters(msg.req.Parameters)

	case eventActionFinished:
		m.program.Println(FormatResult(msg.result))
		m.toolName = ""
		m.toolDetail = ""

	case eventFailed:
		if m.stopping {
			return m.quit()
		}
		m.program.Println(fmt.Sprintf("[ERROR] AI communication failed: %v", msg.err))
		return m.finishTurn()

	case eventFinished:
		if m.stopping {
			return m.quit()
		}
		return m.finishTurn()
	}

	return m, waitForTurn(m.eventCh)
}

func (m model) finishTurn() (tea.Model, tea.Cmd) {
	m.busy = false
	m.turnCancel = nil
	m.statusText = ""
	m.toolName = ""
	m.toolDetail = ""
	return m, m.textarea.Focus()
}

// buildStatusLine constructs the status text for display.
func (m *model) buildStatusLine() string {
	spin := m.spinner.View()

	var status string
	switch {
	case m.stopping:
		status = fmt.Sprintf("%s Cancelling...", spin)
	case m.toolName != "" && m.toolDetail != "":
		status = fmt.Sprintf("%s %s: %s", spin, m.toolName, m.toolDetail)
	case m.toolName != "":
		status = fmt.Sprintf("%s Running: %s", spin, m.toolName)
	case m.statusText != "":
		status = fmt.Sprintf("%s %s", spin, m.statusText)
	default:
		status = fmt.Sprintf("%s Thinking...", spin)
	}

	if m.width > 0 {
		status = ansi.Truncate(status, m.width-1, "...")
	}
	return status
}

// resizeTextarea adjusts textarea height based on content lines.
func (m *model) resizeTextarea() {
	lines := max(m.textarea.LineCount(), 1)
	maxHeight := 10
	if m.height > 0 {
		maxHeight = min(10, m.height/3)
	}
	m.textarea.SetHeight(min(lines, maxHeight))
}
