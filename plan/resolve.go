package plan

import "strings"

// Defaults supplies values for name-like parameters the model left out.
type Defaults struct {
	VMName       string
	SnapshotName string
}

// ResolvedAction is an Action whose required parameters are all present and
// well-formed. Only Resolver produces values of this type.
type ResolvedAction struct {
	action Action
}

// Action returns the resolved typed action.
func (r ResolvedAction) Action() Action { return r.action }

// Tool returns the resolved action's tool name.
func (r ResolvedAction) Tool() Tool {
	if r.action == nil {
		return ""
	}
	return r.action.Tool()
}

// Supported reports whether the action names a known tool.
func (r ResolvedAction) Supported() bool {
	_, unsupported := r.action.(Unsupported)
	return r.action != nil && !unsupported
}

// Resolver completes action parameters from explicit values, carried-over
// context and configured defaults.
type Resolver struct {
	defaults Defaults
}

// NewResolver creates a Resolver using the given defaults.
func NewResolver(defaults Defaults) *Resolver {
	return &Resolver{defaults: defaults}
}

// Resolve decodes req and fills in its parameters.
//
// A VM identifier supplied by the model must be a non-negative integer string
// and is always preferred over lastVMID. When none is supplied, lastVMID is
// used if it is well-formed; otherwise resolution fails with
// ErrMissingParameter. Identifiers are never guessed from names here.
func (r *Resolver) Resolve(req ActionRequest, lastVMID string) (ResolvedAction, error) {
	action, err := Decode(req)
	if err != nil {
		return ResolvedAction{}, err
	}

	switch a := action.(type) {
	case ListVMs, Unsupported:
		return ResolvedAction{action: a}, nil
	case GetVMID:
		a.VMName = strings.TrimSpace(a.VMName)
		if a.VMName == "" {
			a.VMName = r.defaults.VMName
		}
		if a.VMName == "" {
			return ResolvedAction{}, &ParamError{Tool: a.Tool(), Param: "vm_name", Err: ErrMissingParameter}
		}
		return ResolvedAction{action: a}, nil
	case GetPowerState:
		if a.VMID, err = resolveVMID(a.Tool(), a.VMID, lastVMID); err != nil {
			return ResolvedAction{}, err
		}
		return ResolvedAction{action: a}, nil
	case PowerOff:
		if a.VMID, err = resolveVMID(a.Tool(), a.VMID, lastVMID); err != nil {
			return ResolvedAction{}, err
		}
		return ResolvedAction{action: a}, nil
	case PowerOn:
		if a.VMID, err = resolveVMID(a.Tool(), a.VMID, lastVMID); err != nil {
			return ResolvedAction{}, err
		}
		return ResolvedAction{action: a}, nil
	case CreateSnapshot:
		if a.VMID, err = resolveVMID(a.Tool(), a.VMID, lastVMID); err != nil {
			return ResolvedAction{}, err
		}
		if strings.TrimSpace(a.Name) == "" {
			a.Name = r.defaults.SnapshotName
		}
		return ResolvedAction{action: a}, nil
	}

	return ResolvedAction{}, &ParamError{Tool: action.Tool(), Err: ErrUnsupportedTool}
}

func resolveVMID(tool Tool, explicit, last string) (string, error) {
	explicit = strings.TrimSpace(explicit)
	if explicit != "" {
		if !IsVMID(explicit) {
			return "", &ParamError{Tool: tool, Param: "vm_id", Err: ErrInvalidParameter, Detail: "not a numeric identifier: " + explicit}
		}
		return explicit, nil
	}

	last = strings.TrimSpace(last)
	if IsVMID(last) {
		return last, nil
	}
	return "", &ParamError{Tool: tool, Param: "vm_id", Err: ErrMissingParameter, Detail: "no identifier given and none resolved earlier; call get_vm_id first"}
}

// IsVMID reports whether s is a non-negative integer string.
func IsVMID(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
