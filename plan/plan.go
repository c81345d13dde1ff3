// Package plan holds the model⇄agent wire contract: the Plan returned by the
// model each turn, the typed actions it decodes into, and the resolution of
// implicit action parameters against carried-over session state.
package plan

import "errors"

// Tool is the name of a primitive operation the model may request.
type Tool string

// The closed set of tool names understood by the executor.
const (
	ToolListVMs        Tool = "list_vms"
	ToolGetVMID        Tool = "get_vm_id"
	ToolGetPowerState  Tool = "get_power_state"
	ToolPowerOffVM     Tool = "power_off_vm"
	ToolPowerOnVM      Tool = "power_on_vm"
	ToolCreateSnapshot Tool = "create_snapshot"
)

// Known reports whether t belongs to the supported tool set.
func (t Tool) Known() bool {
	switch t {
	case ToolListVMs, ToolGetVMID, ToolGetPowerState, ToolPowerOffVM, ToolPowerOnVM, ToolCreateSnapshot:
		return true
	}
	return false
}

var (
	// ErrEmptyResponse is returned by Extract when the model produced no text.
	ErrEmptyResponse = errors.New("empty response from model")
	// ErrMalformedResponse marks model output that is not a plan object.
	// It is recovered locally and never surfaced to the operator.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrUnsupportedTool marks an action whose tool is outside the known set.
	ErrUnsupportedTool = errors.New("unsupported tool")
	// ErrMissingParameter means a required parameter was absent and could not be inferred.
	ErrMissingParameter = errors.New("missing parameter")
	// ErrInvalidParameter means a parameter was present but not well-formed.
	ErrInvalidParameter = errors.New("invalid parameter")
)

// ActionRequest is one action as emitted by the model, before decoding.
type ActionRequest struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// Plan is the structured output of one model turn.
type Plan struct {
	Actions []ActionRequest `json:"actions"`
	Reply   string          `json:"reply"`

	// ParseErr is set when the response could not be parsed and Reply holds
	// the raw model text instead.
	ParseErr error `json:"-"`
}
