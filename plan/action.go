package plan

import (
	"fmt"
	"reflect"
	"strconv"

	"github.com/mitchellh/mapstructure"
)

// Action is a decoded, strongly typed action. Each tool has its own variant.
type Action interface {
	Tool() Tool
}

// ListVMs lists every VM registered on the host.
type ListVMs struct{}

// GetVMID looks up a VM identifier by exact name.
type GetVMID struct {
	VMName string `mapstructure:"vm_name"`
}

// GetPowerState queries the power state of a VM.
type GetPowerState struct {
	VMID string `mapstructure:"vm_id"`
}

// PowerOff powers a VM off.
type PowerOff struct {
	VMID string `mapstructure:"vm_id"`
}

// PowerOn powers a VM on.
type PowerOn struct {
	VMID string `mapstructure:"vm_id"`
}

// CreateSnapshot takes a snapshot of a VM.
type CreateSnapshot struct {
	VMID        string `mapstructure:"vm_id"`
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// Unsupported is an action naming a tool outside the known set.
type Unsupported struct {
	Name string
}

func (ListVMs) Tool() Tool { return ToolListVMs }
func (GetVMID) Tool() Tool { return ToolGetVMID }
func (GetPowerState) Tool() Tool { return ToolGetPowerState }
func (PowerOff) Tool() Tool { return ToolPowerOffVM }
func (PowerOn) Tool() Tool { return ToolPowerOnVM }
func (CreateSnapshot) Tool() Tool { return ToolCreateSnapshot }
func (u Unsupported) Tool() Tool { return Tool(u.Name) }

// ParamError describes why an action's parameters could not be used.
// It unwraps to ErrMissingParameter or ErrInvalidParameter.
type ParamError struct {
	Tool   Tool
	Param  string
	Err    error
	Detail string
}

func (e *ParamError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Tool, e.Err)
	if e.Param != "" {
		msg = fmt.Sprintf("%s: %v %q", e.Tool, e.Err, e.Param)
	}
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

func (e *ParamError) Unwrap() error { return e.Err }

// Decode converts a wire action into its typed variant. Unknown tools decode
// to Unsupported without error. Parameters of the wrong shape (for example an
// object or a boolean where a string is expected) fail with
// ErrInvalidParameter; numbers such as a JSON vm_id of 42 are converted to
// strings.
func Decode(req ActionRequest) (Action, error) {
	tool := Tool(req.Tool)

	var target Action
	switch tool {
	case ToolListVMs:
		return ListVMs{}, nil
	case ToolGetVMID:
		target = &GetVMID{}
	case ToolGetPowerState:
		target = &GetPowerState{}
	case ToolPowerOffVM:
		target = &PowerOff{}
	case ToolPowerOnVM:
		target = &PowerOn{}
	case ToolCreateSnapshot:
		target = &CreateSnapshot{}
	default:
		return Unsupported{Name: req.Tool}, nil
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: numberToString,
		Result:     target,
	})
	if err != nil {
		return nil, fmt.Errorf("creating decoder: %w", err)
	}
	if err := dec.Decode(req.Parameters); err != nil {
		return nil, &ParamError{Tool: tool, Err: ErrInvalidParameter, Detail: err.Error()}
	}

	switch v := target.(type) {
	case *GetVMID:
		return *v, nil
	case *GetPowerState:
		return *v, nil
	case *PowerOff:
		return *v, nil
	case *PowerOn:
		return *v, nil
	case *CreateSnapshot:
		return *v, nil
	}
	return nil, fmt.Errorf("unhandled tool %q", tool)
}

// numberToString formats numeric sources bound for string fields. It is the
// only coercion Decode allows.
func numberToString(from, to reflect.Type, data any) (any, error) {
	if to.Kind() != reflect.String {
		return data, nil
	}
	v := reflect.ValueOf(data)
	switch from.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64), nil
	}
	return data, nil
}
