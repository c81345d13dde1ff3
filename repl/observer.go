package repl

import (
	"fmt"
	"io"

	"github.com/perbu/esxiops/agent"
	"github.com/perbu/esxiops/plan"
	"github.com/perbu/esxiops/tools"
)

const linePrompt = "esxi> "

// lineObserver prints turn progress as plain lines. It is used when input
// does not come from the bubbletea UI.
type lineObserver struct {
	out         io.Writer
	status      *StatusLine
	interactive bool
	debug       bool
}

var _ agent.Observer = (*lineObserver)(nil)

func (o *lineObserver) Prompt() {
	if o.interactive {
		fmt.Fprint(o.out, linePrompt)
	}
}

func (o *lineObserver) TurnStarted(string) {
	o.status.Start()
}

func (o *lineObserver) PlanReceived(p *plan.Plan) {
	o.status.ClearForOutput()
	if o.debug && p.ParseErr != nil {
		fmt.Fprintf(o.out, "[DEBUG] %v\n", p.ParseErr)
	}
	if p.Reply != "" {
		fmt.Fprintf(o.out, "[AI] %s\n", p.Reply)
	}
}

func (o *lineObserver) ActionStarted(_ int, req plan.ActionRequest) {
	o.status.Action(req.Tool, formatParameters(req.Parameters))
}

func (o *lineObserver) ActionFinished(_ int, res tools.Result) {
	o.status.ClearForOutput()
	fmt.Fprintln(o.out, FormatResult(res))
}

func (o *lineObserver) TurnFinished(*agent.TurnReport) {
	o.status.Stop()
}

func (o *lineObserver) TurnFailed(err error) {
	o.status.Stop()
	fmt.Fprintf(o.out, "[ERROR] AI communication failed: %v\n", err)
}

// turnMsg carries one observer notification into the bubbletea loop.
type turnMsg struct {
	kind   turnEvent
	index  int
	req    plan.ActionRequest
	plan   *plan.Plan
	result tools.Result
	report *agent.TurnReport
	err    error
}

type turnEvent int

const (
	eventPlan turnEvent = iota
	eventActionStarted
	eventActionFinished
	eventFinished
	eventFailed
)

// chanObserver forwards notifications from the turn goroutine to the UI.
type chanObserver struct {
	agent.NopObserver
	ch chan<- turnMsg
}

func (o chanObserver) PlanReceived(p *plan.Plan) {
	o.ch <- turnMsg{kind: eventPlan, plan: p}
}

func (o chanObserver) ActionStarted(i int, req plan.ActionRequest) {
	o.ch <- turnMsg{kind: eventActionStarted, index: i, req: req}
}

func (o chanObserver) ActionFinished(i int, res tools.Result) {
	o.ch <- turnMsg{kind: eventActionFinished, index: i, result: res}
}

func (o chanObserver) TurnFinished(r *agent.TurnReport) {
	o.ch <- turnMsg{kind: eventFinished, report: r}
}

func (o chanObserver) TurnFailed(err error) {
	o.ch <- turnMsg{kind: eventFailed, err: err}
}
