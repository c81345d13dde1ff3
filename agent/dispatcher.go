// Package agent runs conversation turns: it asks the model for a plan,
// resolves each action against session state and executes the actions in
// order.
package agent

import (
	"bufio"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/perbu/esxiops/gateway"
	"github.com/perbu/esxiops/plan"
	"github.com/perbu/esxiops/tools"
)

// Planner produces a plan for the user's text given the transcript so far.
type Planner interface {
	Converse(ctx context.Context, userText string, transcript []gateway.Message) (*plan.Plan, error)
}

// Executor runs one resolved action.
type Executor interface {
	Execute(ctx context.Context, ra plan.ResolvedAction) tools.Result
}

var (
	// ErrShutdown is returned by Turn once the dispatcher has shut down.
	ErrShutdown = errors.New("dispatcher is shut down")
	// ErrBusy is returned by Turn while another turn is running.
	ErrBusy = errors.New("a turn is already running")
)

// State is the dispatcher's position in its input cycle.
type State int

const (
	StateAwaitingInput State = iota
	StateProcessing
	StateShuttingDown
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting-input"
	case StateProcessing:
		return "processing"
	case StateShuttingDown:
		return "shutting-down"
	}
	return "unknown"
}

// Observer is notified as a turn progresses. Embed NopObserver to implement
// only the callbacks you need.
type Observer interface {
	Prompt()
	TurnStarted(input string)
	PlanReceived(p *plan.Plan)
	ActionStarted(index int, req plan.ActionRequest)
	ActionFinished(index int, res tools.Result)
	TurnFinished(report *TurnReport)
	TurnFailed(err error)
}

// NopObserver ignores every notification.
type NopObserver struct{}

func (NopObserver) Prompt() {}
func (NopObserver) TurnStarted(string) {}
func (NopObserver) PlanReceived(*plan.Plan) {}
func (NopObserver) ActionStarted(int, plan.ActionRequest) {}
func (NopObserver) ActionFinished(int, tools.Result) {}
func (NopObserver) TurnFinished(*TurnReport) {}
func (NopObserver) TurnFailed(error) {}

// TurnReport summarizes a completed turn.
type TurnReport struct {
	ID      string
	Input   string
	Plan    *plan.Plan
	Results []tools.Result
}

// Config holds the dispatcher's collaborators.
type Config struct {
	Planner  Planner
	Resolver *plan.Resolver
	Executor Executor
	Logger   *slog.Logger
}

// Dispatcher owns the Session and runs turns strictly one at a time. Only
// the goroutine running Turn touches the session; State and Shutdown may be
// called from any goroutine.
type Dispatcher struct {
	planner  Planner
	resolver *plan.Resolver
	executor Executor
	logger   *slog.Logger

	session Session

	mu    sync.Mutex
	state State
}

// New creates a Dispatcher in the awaiting-input state.
func New(cfg Config) *Dispatcher {
	return &Dispatcher{
		planner:  cfg.Planner,
		resolver: cfg.Resolver,
		executor: cfg.Executor,
		logger:   cfg.Logger,
		state:    StateAwaitingInput,
	}
}

// State returns the current state.
func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Transcript returns a copy of the conversation so far.
func (d *Dispatcher) Transcript() []gateway.Message { return d.session.Transcript() }

// LastVMID returns the VM identifier carried into the next turn.
func (d *Dispatcher) LastVMID() string { return d.session.LastVMID() }

// Shutdown moves the dispatcher to its terminal state. A running turn is not
// interrupted, but it will not return the dispatcher to awaiting-input.
func (d *Dispatcher) Shutdown() {
	d.mu.Lock()
	d.state = StateShuttingDown
	d.mu.Unlock()
}

// transition moves from one state to another and reports whether the
// dispatcher was in from.
func (d *Dispatcher) transition(from, to State) (State, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != from {
		return d.state, false
	}
	d.state = to
	return from, true
}

// IsQuit reports whether input is a quit directive.
func IsQuit(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit":
		return true
	}
	return false
}

// Turn processes one line of operator input.
//
// If the planner fails, the error is returned and the session is left
// untouched. Otherwise every action is attempted in plan order; a failing
// action does not stop the ones after it. A VM identifier resolved by an
// action is visible to the actions that follow it in the same turn. The user
// text and the reply are appended to the transcript once all actions ran.
// Turn fails with ErrShutdown or ErrBusy unless the dispatcher is awaiting
// input.
func (d *Dispatcher) Turn(ctx context.Context, input string, obs Observer) (*TurnReport, error) {
	if obs == nil {
		obs = NopObserver{}
	}

	if state, ok := d.transition(StateAwaitingInput, StateProcessing); !ok {
		err := ErrBusy
		if state == StateShuttingDown {
			err = ErrShutdown
		}
		obs.TurnFailed(err)
		return nil, err
	}
	defer d.transition(StateProcessing, StateAwaitingInput)

	report := &TurnReport{ID: uuid.NewString(), Input: input}
	logger := d.logger.With("turn", report.ID)
	obs.TurnStarted(input)

	p, err := d.planner.Converse(ctx, input, d.session.Transcript())
	if err != nil {
		logger.Error("planning failed", "error", err)
		obs.TurnFailed(err)
		return nil, err
	}
	report.Plan = p
	logger.Debug("plan received", "actions", len(p.Actions))
	obs.PlanReceived(p)

	for i, req := range p.Actions {
		obs.ActionStarted(i, req)

		res := d.dispatch(ctx, req)
		if res.OK() && res.VMID != "" {
			d.session.setVMID(res.VMID)
		}
		if res.Err != nil {
			logger.Warn("action failed", "index", i, "tool", res.Tool, "outcome", res.Outcome, "error", res.Err)
		} else {
			logger.Info("action finished", "index", i, "tool", res.Tool, "changed", res.Changed)
		}

		report.Results = append(report.Results, res)
		obs.ActionFinished(i, res)
	}

	d.session.recordTurn(input, p.Reply)
	obs.TurnFinished(report)
	return report, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req plan.ActionRequest) tools.Result {
	ra, err := d.resolver.Resolve(req, d.session.LastVMID())
	if err != nil {
		return tools.Failure(plan.Tool(req.Tool), err)
	}
	return d.executor.Execute(ctx, ra)
}

// Run reads one line of input per turn until a quit directive or end of
// input. Blank lines are ignored. Turn failures are reported to obs and do
// not end the loop.
func (d *Dispatcher) Run(ctx context.Context, in io.Reader, obs Observer) error {
	if obs == nil {
		obs = NopObserver{}
	}

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		if d.State() == StateShuttingDown {
			return nil
		}
		obs.Prompt()

		if !scanner.Scan() {
			d.Shutdown()
			return scanner.Err()
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if IsQuit(line) {
			d.Shutdown()
			return nil
		}

		_, _ = d.Turn(ctx, line, obs)
	}
}
