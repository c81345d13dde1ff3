// Package repl is the operator-facing loop: a bubbletea UI on terminals and
// a plain line reader for everything else.
package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/perbu/esxiops/agent"
	"golang.org/x/term"
)

// REPL manages the interactive read-eval-print loop.
type REPL struct {
	dispatcher *agent.Dispatcher
	debug      bool
}

// New creates a new REPL instance.
func New(d *agent.Dispatcher, debug bool) *REPL {
	return &REPL{
		dispatcher: d,
		debug:      debug,
	}
}

// Run starts the interactive REPL loop using bubbletea.
func (r *REPL) Run(ctx context.Context) error {
	// Libraries like termenv/lipgloss/glamour query the terminal for
	// background color and capabilities during init. Responses that arrive
	// late end up in stdin and get interpreted as user input by bubbletea.
	drainStdin()

	m := newModel(ctx, r.dispatcher, NewHistory(), r.debug)
	p := tea.NewProgram(m, tea.WithContext(ctx))

	// m.program is a shared pointer, so this reaches the copy held inside
	// the tea.Program.
	m.program.p = p

	_, err := p.Run()
	return err
}

// RunLines reads one request per line from in and writes results to out.
// It is used when stdin is not a terminal, e.g. when requests are piped in.
func (r *REPL) RunLines(ctx context.Context, in io.Reader, out io.Writer) error {
	obs := &lineObserver{
		out:    out,
		status: NewStatusLine(os.Stderr, isTerminal(os.Stderr), terminalWidth(os.Stderr)),
		debug:  r.debug,
	}
	if f, ok := in.(*os.File); ok {
		obs.interactive = term.IsTerminal(int(f.Fd()))
	}
	return r.dispatcher.Run(ctx, in, obs)
}

// PrintWelcome displays the startup banner.
func (r *REPL) PrintWelcome(w io.Writer, version, model, host string, toolCount int) {
	welcome := fmt.Sprintf(`# ESXi Ops %s

**Conversational operations for VMware ESXi**

| Setting | Value |
|---------|-------|
| Host | %s |
| Model | %s |
| Tools | %d |

Describe what you want done in plain language. Type **exit** to quit.
`, version, host, model, toolCount)

	renderer, err := setupMarkdownRenderer()
	if err == nil {
		if rendered, err := renderer.Render(welcome); err == nil {
			fmt.Fprint(w, rendered)
			return
		}
	}

	fmt.Fprintf(w, "=== ESXi Ops %s ===\n", version)
	fmt.Fprintf(w, "Host: %s | Model: %s | Tools: %d\n", host, model, toolCount)
	fmt.Fprintf(w, "Type 'exit' or 'quit' to exit.\n\n")
}

// PrintMarkdown renders doc for the terminal, falling back to plain text.
func PrintMarkdown(w io.Writer, doc string) {
	renderer, err := setupMarkdownRenderer()
	if err != nil {
		fmt.Fprintln(w, doc)
		return
	}
	fmt.Fprintln(w, renderMarkdown(renderer, doc))
}

// setupMarkdownRenderer creates a glamour renderer configured for the terminal.
func setupMarkdownRenderer() (*glamour.TermRenderer, error) {
	return glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(terminalWidth(os.Stdout)),
	)
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func terminalWidth(f *os.File) int {
	if w, _, err := term.GetSize(int(f.Fd())); err == nil && w > 0 {
		return w
	}
	return 80
}

// drainStdin discards any bytes sitting in the terminal input buffer.
// This prevents stale escape sequence responses (from terminal color/capability
// queries) from being interpreted as user input by bubbletea.
func drainStdin() {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return
	}

	// Raw mode makes escape sequences (which lack newlines) readable.
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return
	}
	defer term.Restore(fd, oldState)

	if err := syscall.SetNonblock(fd, true); err != nil {
		return
	}
	defer syscall.SetNonblock(fd, false)

	buf := make([]byte, 256)
	for {
		n, _ := syscall.Read(fd, buf)
		if n <= 0 {
			break
		}
	}
}
