package repl

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/x/ansi"
	"github.com/perbu/esxiops/agent"
	"github.com/perbu/esxiops/gateway"
	"github.com/perbu/esxiops/logging"
	"github.com/perbu/esxiops/plan"
	"github.com/perbu/esxiops/remote/remotetest"
	"github.com/perbu/esxiops/tools"
)

func TestHistory_Persistence(t *testing.T) {
	file := filepath.Join(t.TempDir(), "history")

	h := NewHistoryAt(file)
	h.Add("list vms")
	h.Add("list vms") // consecutive duplicate
	h.Add("   ")
	h.Add("stop ubuntu01\nand snapshot it")

	info, err := os.Stat(file)
	if err != nil {
		t.Fatalf("history file not written: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("history file mode = %o, want 600", perm)
	}

	reloaded := NewHistoryAt(file)
	got := reloaded.Entries()
	want := []string{"list vms", "stop ubuntu01\nand snapshot it"}
	if len(got) != len(want) {
		t.Fatalf("Entries() = %q, want %q", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entry %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestHistory_Navigation(t *testing.T) {
	h := NewHistoryAt("")
	for _, e := range []string{"one", "two", "three"} {
		h.Add(e)
	}

	for _, want := range []string{"three", "two", "one"} {
		got, ok := h.Previous()
		if !ok || got != want {
			t.Fatalf("Previous() = %q, %v; want %q", got, ok, want)
		}
	}
	if _, ok := h.Previous(); ok {
		t.Error("Previous() past the oldest entry should fail")
	}

	if got, _ := h.Next(); got != "two" {
		t.Errorf("Next() = %q, want two", got)
	}
	h.Next()
	if _, ok := h.Next(); ok {
		t.Error("Next() past the newest entry should fail")
	}
	if !h.atEnd() {
		t.Error("cursor should be at the end")
	}
}

func TestHistory_Limit(t *testing.T) {
	h := NewHistoryAt("")
	h.limit = 3
	for _, e := range []string{"a", "b", "c", "d"} {
		h.Add(e)
	}
	if got := strings.Join(h.Entries(), ","); got != "b,c,d" {
		t.Errorf("Entries() = %s, want b,c,d", got)
	}
}

func TestRenderPlan(t *testing.T) {
	if got := RenderPlan(nil); got != "" {
		t.Errorf("RenderPlan(nil) = %q", got)
	}
	if got := RenderPlan(&plan.Plan{Reply: "Nothing to do."}); got != "Nothing to do." {
		t.Errorf("reply-only plan = %q", got)
	}

	got := RenderPlan(&plan.Plan{
		Reply: "Stopping it.",
		Actions: []plan.ActionRequest{
			{Tool: "get_vm_id", Parameters: map[string]any{"vm_name": "web|01"}},
			{Tool: "power_off_vm"},
		},
	})
	for _, want := range []string{
		"Stopping it.",
		"| 1 | `get_vm_id` | vm_name=web\\|01 |",
		"| 2 | `power_off_vm` | (none) |",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("RenderPlan missing %q in:\n%s", want, got)
		}
	}
}

func TestFormatParameters(t *testing.T) {
	got := formatParameters(map[string]any{"vm_id": "7", "name": strings.Repeat("x", 60), "description": 3})
	want := "description=3, name=" + strings.Repeat("x", 47) + "..., vm_id=7"
	if got != want {
		t.Errorf("formatParameters = %q, want %q", got, want)
	}
}

func TestFormatParameters_MultibyteNames(t *testing.T) {
	name := strings.Repeat("仮想マシン", 6)
	got := formatParameters(map[string]any{"vm_name": name})

	value := strings.TrimPrefix(got, "vm_name=")
	if !utf8.ValidString(value) {
		t.Fatalf("formatParameters split a rune: %q", got)
	}
	if !strings.HasSuffix(value, "...") {
		t.Errorf("formatParameters = %q, want a truncated value", got)
	}
	if w := ansi.StringWidth(value); w > 50 {
		t.Errorf("truncated width = %d, want at most 50", w)
	}
	if !strings.HasPrefix(name, strings.TrimSuffix(value, "...")) {
		t.Errorf("formatParameters = %q, want a prefix of %q", got, name)
	}
}

func TestFormatResult(t *testing.T) {
	tests := []struct {
		name string
		res  tools.Result
		want string
	}{
		{"success", tools.Success(plan.ToolGetVMID, "VMID found: 7 (db01)"), "[OK] VMID found: 7 (db01)"},
		{"unsupported", tools.Failure("reboot_host", plan.ErrUnsupportedTool), "[WARN] Unknown tool: reboot_host"},
		{"failure", tools.Failure(plan.ToolPowerOnVM, errors.New("boom")), "[ERROR] Tool 'power_on_vm' failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FormatResult(tt.res); got != tt.want {
				t.Errorf("FormatResult() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusLine_Text(t *testing.T) {
	var buf bytes.Buffer
	s := NewStatusLine(&buf, false, 0)

	s.Start()
	if got := s.Text(); !strings.HasSuffix(got, "Thinking...") {
		t.Errorf("Text() = %q", got)
	}
	s.Action("power_off_vm", "vm_id=7")
	if got := s.Text(); !strings.HasSuffix(got, "power_off_vm: vm_id=7") {
		t.Errorf("Text() = %q", got)
	}
	s.Stop()
	if got := s.Text(); got != "" {
		t.Errorf("Text() after Stop = %q", got)
	}
	if buf.Len() != 0 {
		t.Errorf("non-terminal status line wrote %q", buf.String())
	}
}

type staticPlanner struct {
	plans []*plan.Plan
	err   error
}

func (p *staticPlanner) Converse(context.Context, string, []gateway.Message) (*plan.Plan, error) {
	if p.err != nil {
		return nil, p.err
	}
	next := p.plans[0]
	p.plans = p.plans[1:]
	return next, nil
}

func newDispatcher(planner agent.Planner, host *remotetest.Host) *agent.Dispatcher {
	return agent.New(agent.Config{
		Planner:  planner,
		Resolver: plan.NewResolver(plan.Defaults{VMName: "ubuntu01", SnapshotName: "AutoSnap"}),
		Executor: tools.NewExecutor(host, tools.Settings{}, logging.NewNop()),
		Logger:   logging.NewNop(),
	})
}

func TestRunLines(t *testing.T) {
	host := remotetest.NewHost(remotetest.VM{ID: "4", Name: "ubuntu01", On: true})
	planner := &staticPlanner{plans: []*plan.Plan{{
		Reply: "Checking ubuntu01.",
		Actions: []plan.ActionRequest{
			{Tool: "get_vm_id", Parameters: map[string]any{"vm_name": "ubuntu01"}},
			{Tool: "get_power_state"},
			{Tool: "reboot_host"},
		},
	}}}
	d := newDispatcher(planner, host)

	var out bytes.Buffer
	err := New(d, false).RunLines(context.Background(), strings.NewReader("\nis ubuntu01 on?\nexit\n"), &out)
	if err != nil {
		t.Fatalf("RunLines: %v", err)
	}

	want := strings.Join([]string{
		"[AI] Checking ubuntu01.",
		"[OK] VMID found: 4 (ubuntu01)",
		"[OK] VM 4: Powered on",
		"[WARN] Unknown tool: reboot_host",
	}, "\n") + "\n"
	if out.String() != want {
		t.Errorf("output:\n%s\nwant:\n%s", out.String(), want)
	}
	if d.State() != agent.StateShuttingDown {
		t.Errorf("state = %v, want shutting-down", d.State())
	}
}

func TestRunLines_PlannerFailure(t *testing.T) {
	planner := &staticPlanner{err: &gateway.UnavailableError{Attempts: 3, Err: errors.New("503 Service Unavailable")}}
	d := newDispatcher(planner, remotetest.NewHost())

	var out bytes.Buffer
	if err := New(d, false).RunLines(context.Background(), strings.NewReader("list vms\n"), &out); err != nil {
		t.Fatalf("RunLines: %v", err)
	}
	if !strings.HasPrefix(out.String(), "[ERROR] AI communication failed:") {
		t.Errorf("output = %q", out.String())
	}
	if !strings.Contains(out.String(), "503 Service Unavailable") {
		t.Errorf("output should carry the last failure: %q", out.String())
	}
}

// waitingPlanner blocks until the turn's context is cancelled.
type waitingPlanner struct {
	entered chan struct{}
}

func (p *waitingPlanner) Converse(ctx context.Context, _ string, _ []gateway.Message) (*plan.Plan, error) {
	close(p.entered)
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestModel_CtrlCWaitsForRunningTurn(t *testing.T) {
	planner := &waitingPlanner{entered: make(chan struct{})}
	d := newDispatcher(planner, remotetest.NewHost())
	m := newModel(context.Background(), d, NewHistoryAt(filepath.Join(t.TempDir(), "history")), false)
	m.textarea.SetValue("list vms")

	next, wait := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if wait == nil {
		t.Fatal("submitting input did not start a turn")
	}
	<-planner.entered

	next, cmd := next.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	if cmd != nil {
		t.Fatal("ctrl+c quit before the turn returned")
	}
	if got := d.State(); got == agent.StateShuttingDown {
		t.Fatalf("dispatcher shut down while its turn was running")
	}

	msg, ok := wait().(turnMsg)
	if !ok || msg.kind != eventFailed || !errors.Is(msg.err, context.Canceled) {
		t.Fatalf("turn message = %+v, want a cancelled turn", msg)
	}

	next, cmd = next.Update(msg)
	if !next.(model).quitting {
		t.Error("model did not quit after the turn returned")
	}
	if cmd == nil {
		t.Fatal("no quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("command is not tea.Quit")
	}
	if got := d.State(); got != agent.StateShuttingDown {
		t.Errorf("dispatcher state = %s, want %s", got, agent.StateShuttingDown)
	}
}
