package tools

import (
	"errors"
	"fmt"

	"github.com/perbu/esxiops/plan"
)

// Outcome discriminates an action's result.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeFailure
	// OutcomeUnsupported is a warning: the model asked for a tool outside the known set.
	OutcomeUnsupported
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "ok"
	case OutcomeFailure:
		return "failed"
	case OutcomeUnsupported:
		return "unsupported"
	}
	return fmt.Sprintf("Outcome(%d)", int(o))
}

// Result is the outcome of one action.
type Result struct {
	Tool    plan.Tool
	Outcome Outcome
	// Output is human-readable text for successful actions.
	Output string
	// VMID is set when the action resolved a VM identifier.
	VMID string
	// Changed reports whether a state-changing command was issued.
	Changed bool
	Err     error
}

// OK reports whether the action succeeded.
func (r Result) OK() bool { return r.Outcome == OutcomeSuccess }

// Success builds a successful Result.
func Success(tool plan.Tool, output string) Result {
	return Result{Tool: tool, Outcome: OutcomeSuccess, Output: output}
}

// Failure builds a failed Result. Unsupported tool errors become warnings.
func Failure(tool plan.Tool, err error) Result {
	if errors.Is(err, plan.ErrUnsupportedTool) {
		return Result{Tool: tool, Outcome: OutcomeUnsupported, Err: err}
	}
	return Result{Tool: tool, Outcome: OutcomeFailure, Err: err}
}

var (
	// ErrCommandFailed marks a remote command that ran but did not meet its success criteria.
	ErrCommandFailed = errors.New("remote command failed")
	// ErrVMNotFound means no VM with the requested name exists.
	ErrVMNotFound = errors.New("vm not found")
)

// CommandError describes a remote command that exited unsuccessfully or
// produced unexpected output.
type CommandError struct {
	Command    string
	ExitStatus int
	Message    string
}

func (e *CommandError) Error() string {
	if e.ExitStatus != 0 {
		return fmt.Sprintf("%q exited with status %d: %s", e.Command, e.ExitStatus, e.Message)
	}
	return fmt.Sprintf("%q: %s", e.Command, e.Message)
}

func (e *CommandError) Unwrap() error { return ErrCommandFailed }
