package repl

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/x/ansi"
)

// StatusLine draws a spinner line on a terminal while a turn runs. On
// anything but a terminal it draws nothing.
type StatusLine struct {
	mu        sync.Mutex
	out       io.Writer
	state     string
	toolName  string
	detail    string
	spinIdx   int
	ticker    *time.Ticker
	done      chan struct{}
	termWidth int
	isTTY     bool
}

var spinChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// NewStatusLine creates a status line writing to out.
func NewStatusLine(out io.Writer, isTTY bool, width int) *StatusLine {
	if width <= 0 {
		width = 80
	}
	return &StatusLine{
		out:       out,
		state:     "idle",
		termWidth: width,
		isTTY:     isTTY,
	}
}

// Start begins the animation in the thinking state.
func (s *StatusLine) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state = "thinking"
	s.toolName = ""
	s.detail = ""
	if !s.isTTY || s.done != nil {
		return
	}

	done := make(chan struct{})
	ticker := time.NewTicker(80 * time.Millisecond)
	s.done, s.ticker = done, ticker

	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				s.mu.Lock()
				s.spinIdx = (s.spinIdx + 1) % len(spinChars)
				s.render()
				s.mu.Unlock()
			}
		}
	}()
	s.render()
}

// Action switches to showing the tool currently running.
func (s *StatusLine) Action(tool, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = "tool"
	s.toolName = tool
	s.detail = detail
	s.render()
}

// Stop clears the line and stops the animation.
func (s *StatusLine) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.clear()
	s.state = "idle"
}

// ClearForOutput clears the line so that other output can be printed.
// The next tick redraws it.
func (s *StatusLine) ClearForOutput() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

// Text returns the current status text without drawing it.
func (s *StatusLine) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text()
}

func (s *StatusLine) text() string {
	spin := spinChars[s.spinIdx]
	switch s.state {
	case "thinking":
		return fmt.Sprintf("%s Thinking...", spin)
	case "tool":
		if s.detail != "" {
			return fmt.Sprintf("%s %s: %s", spin, s.toolName, s.detail)
		}
		return fmt.Sprintf("%s Running: %s", spin, s.toolName)
	}
	return ""
}

func (s *StatusLine) render() {
	if !s.isTTY || s.state == "idle" {
		return
	}
	status := ansi.Truncate(s.text(), s.termWidth-1, "...")
	status += strings.Repeat(" ", max(0, s.termWidth-ansi.StringWidth(status)-1))
	fmt.Fprintf(s.out, "\r\033[2m%s\033[0m", status)
}

func (s *StatusLine) clear() {
	if !s.isTTY {
		return
	}
	fmt.Fprintf(s.out, "\r%s\r", strings.Repeat(" ", s.termWidth-1))
}
